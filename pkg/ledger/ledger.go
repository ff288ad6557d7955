// Package ledger maintains the durable record of completed items and
// overall progress, used to resume a run after interruption.
//
// The ledger file is a JSON object {"songs": [...], "last_index": N}
// rewritten in full on every persist. Writes go through a temp file
// and rename so a crash mid-write never leaves an unparseable file.
package ledger

import (
	"github.com/songlift/songlift/pkg/sanitize"
)

// Entry is the durable record for one successfully processed item.
//
// Entries are created the moment fetch and embed succeed, with the
// remote-reference fields nil. Only reconciliation mutates them
// afterwards; the pipeline never deletes entries.
type Entry struct {
	Title     string `json:"song"`
	Artists   string `json:"artists,omitempty"`
	Album     string `json:"movie,omitempty"`
	Year      string `json:"year,omitempty"`
	Genre     string `json:"genre,omitempty"`
	Composers string `json:"composers,omitempty"`
	Language  string `json:"language,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Label     string `json:"label,omitempty"`

	// Lyrics holds subtitle texts captured alongside the artifact.
	Lyrics []string `json:"lyrics,omitempty"`

	// Downloaded records that a local artifact existed when the
	// entry was created.
	Downloaded bool `json:"downloaded"`

	// FileURL and CoverURL are the remote references assigned during
	// reconciliation. Both are nil until a synchronization cycle
	// matches the entry against uploaded assets.
	FileURL  *string `json:"file"`
	CoverURL *string `json:"album_art"`
}

// Ledger is the process-wide durable state: completed entries in
// completion order plus the resume watermark.
type Ledger struct {
	// Songs holds one entry per completed item, insertion order =
	// completion order (not necessarily input order).
	Songs []Entry `json:"songs"`

	// LastIndex is the highest input index k such that every index
	// 0..k is fully handled. -1 means no progress.
	LastIndex int `json:"last_index"`
}

// NewLedger returns an empty ledger with no progress.
func NewLedger() Ledger {
	return Ledger{Songs: []Entry{}, LastIndex: -1}
}

// HasCompleted reports whether an entry with the same sanitized title
// exists and already carries a remote artifact reference.
func (l *Ledger) HasCompleted(title string) bool {
	key := sanitize.Name(title)
	for i := range l.Songs {
		if sanitize.Name(l.Songs[i].Title) == key && l.Songs[i].FileURL != nil {
			return true
		}
	}
	return false
}

// find returns the index of the entry whose sanitized title matches,
// or -1.
func (l *Ledger) find(title string) int {
	key := sanitize.Name(title)
	for i := range l.Songs {
		if sanitize.Name(l.Songs[i].Title) == key {
			return i
		}
	}
	return -1
}

// upsert inserts e, or replaces the existing entry with the same
// sanitized title. Replacing rather than appending keeps the ledger
// at one entry per title even when an earlier run recorded the item
// but its artifact was later removed locally.
func (l *Ledger) upsert(e Entry) {
	if i := l.find(e.Title); i >= 0 {
		l.Songs[i] = e
		return
	}
	l.Songs = append(l.Songs, e)
}
