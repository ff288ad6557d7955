// Package sanitize derives deterministic, filesystem-safe identifiers
// from human-readable titles.
//
// The sanitized identifier is the join key between local artifacts,
// ledger entries, and remotely uploaded asset names, so two titles that
// are equivalent after Unicode normalization must sanitize identically.
package sanitize

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Placeholder replaces filesystem-reserved and control characters.
const Placeholder = '_'

// reserved lists characters that are unsafe in filenames on at least
// one supported platform.
const reserved = `<>:"/\|?*`

// Name maps an arbitrary title to a filesystem-safe identifier.
//
// The title is NFKC-normalized first so that visually or semantically
// equivalent Unicode representations produce the same identifier. Each
// reserved or control character is replaced with Placeholder, and
// surrounding whitespace is trimmed. Name is total: it never fails,
// including for the empty string.
func Name(title string) string {
	normalized := norm.NFKC.String(title)

	var b strings.Builder
	b.Grow(len(normalized))
	for _, r := range normalized {
		if strings.ContainsRune(reserved, r) || r < 0x20 || r == 0x7f {
			b.WriteRune(Placeholder)
			continue
		}
		b.WriteRune(r)
	}

	return strings.TrimSpace(b.String())
}

// ArtifactName returns the canonical artifact filename for a title,
// e.g. ArtifactName("My Song", "mp3") == "My Song.mp3" after
// sanitization of the title.
func ArtifactName(title, ext string) string {
	return Name(title) + "." + strings.TrimPrefix(ext, ".")
}

// StripExt removes the final extension from an asset filename.
// Used when mapping remote asset names back to sanitized titles.
func StripExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}
