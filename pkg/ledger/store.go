package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Store owns the in-memory ledger and serializes every
// read-modify-persist sequence behind a single mutex. Exactly one
// writer at a time may append an entry or advance the watermark.
//
// The watermark (Ledger.LastIndex) is computed over the set of
// completed indices: it advances to the largest k such that all
// indices 0..k are complete. A later-index item finishing before an
// earlier one therefore never marks the earlier item as done.
type Store struct {
	path string
	lock *flock.Flock

	mu        sync.Mutex
	ledger    Ledger
	completed map[int]bool
	watermark int
}

// Open loads the ledger at path, or initializes an empty one if the
// file does not exist. A malformed ledger file is a hard error: the
// caller should fail fast rather than silently discard history.
func Open(path string) (*Store, error) {
	s := &Store{
		path:      path,
		lock:      flock.New(path + ".lock"),
		ledger:    NewLedger(),
		completed: map[int]bool{},
		watermark: -1,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.ledger); err != nil {
		return nil, fmt.Errorf("ledger %s is corrupt: %w", path, err)
	}
	if s.ledger.Songs == nil {
		s.ledger.Songs = []Entry{}
	}
	// Indices up to the persisted watermark count as complete for
	// this run.
	s.watermark = s.ledger.LastIndex
	return s, nil
}

// Lock acquires the cross-process run lock next to the ledger file.
// It fails immediately if another process holds it.
func (s *Store) Lock() error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("ledger %s is in use by another process", s.path)
	}
	return nil
}

// Unlock releases the cross-process run lock.
func (s *Store) Unlock() error {
	return s.lock.Unlock()
}

// Path returns the ledger file path.
func (s *Store) Path() string {
	return s.path
}

// LastIndex returns the current resume watermark.
func (s *Store) LastIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.LastIndex
}

// Len returns the number of ledger entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ledger.Songs)
}

// Snapshot returns a deep copy of the current ledger state.
func (s *Store) Snapshot() Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Ledger {
	cp := Ledger{Songs: make([]Entry, len(s.ledger.Songs)), LastIndex: s.ledger.LastIndex}
	copy(cp.Songs, s.ledger.Songs)
	return cp
}

// HasCompleted reports whether the ledger already records a finished
// item for this title (entry present with a remote reference).
func (s *Store) HasCompleted(title string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.HasCompleted(title)
}

// HasEntry reports whether any entry exists for this title,
// regardless of reconciliation state.
func (s *Store) HasEntry(title string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.find(title) >= 0
}

// Append records a completed item and persists the ledger. The index
// joins the completed set and the watermark advances as far as the
// set allows.
func (s *Store) Append(e Entry, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.upsert(e)
	s.markCompletedLocked(index)
	return s.persistLocked()
}

// MarkSkipped records that index was already handled (for example the
// artifact exists from an earlier run) without adding an entry, and
// persists the ledger.
func (s *Store) MarkSkipped(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markCompletedLocked(index)
	return s.persistLocked()
}

// Update runs fn against the ledger under the store lock and then
// persists. Reconciliation uses this to fill in remote references
// without interleaving with worker appends.
func (s *Store) Update(fn func(l *Ledger)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.ledger)
	return s.persistLocked()
}

func (s *Store) markCompletedLocked(index int) {
	if index <= s.watermark {
		return
	}
	s.completed[index] = true
	for s.completed[s.watermark+1] {
		delete(s.completed, s.watermark+1)
		s.watermark++
	}
	// The persisted watermark never decreases within a run.
	if s.watermark > s.ledger.LastIndex {
		s.ledger.LastIndex = s.watermark
	}
}

// persistLocked rewrites the ledger file atomically: the full JSON is
// written to a temp file in the same directory, then renamed over the
// ledger path.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(&s.ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
