// Package tags writes ID3 metadata and cover art into audio
// artifacts by rewriting them with ffmpeg.
package tags

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Tags is the metadata embedded into one artifact.
type Tags struct {
	Title     string
	Artists   []string
	Album     string
	Year      string
	Genre     string
	Composers []string
	Language  string
	Duration  string
	Label     string
	// CoverPath, when set, is attached as front cover art.
	CoverPath string
	// Lyrics are timed subtitle texts, one per language.
	Lyrics []string
}

// Embedder writes tags into the artifact at path in place.
type Embedder interface {
	Embed(ctx context.Context, path string, t Tags) error
}

// FFmpeg implements Embedder by rewriting the file with the ffmpeg
// binary. The stream is copied, not re-encoded.
type FFmpeg struct {
	// Binary overrides the executable name, mainly for tests.
	Binary string
}

// NewFFmpeg returns an Embedder backed by the ffmpeg binary on PATH.
func NewFFmpeg() *FFmpeg {
	return &FFmpeg{Binary: "ffmpeg"}
}

func (f *FFmpeg) binary() string {
	if f.Binary != "" {
		return f.Binary
	}
	return "ffmpeg"
}

func (f *FFmpeg) Embed(ctx context.Context, path string, t Tags) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("artifact path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("artifact %s: %w", path, err)
	}

	tmp := tempOutputPath(path)
	args := embedArgs(path, tmp, t)

	cmd := exec.CommandContext(ctx, f.binary(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%s failed: %w: %s", f.binary(), err, strings.TrimSpace(stderr.String()))
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace artifact %s: %w", path, err)
	}
	return nil
}

// tempOutputPath keeps the original extension so ffmpeg can infer the
// output container.
func tempOutputPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".tagged" + ext
}

// embedArgs builds the ffmpeg invocation. The cover, when present, is
// a second input mapped as an attached picture.
func embedArgs(in, out string, t Tags) []string {
	args := []string{"-y", "-i", in}

	hasCover := t.CoverPath != ""
	if hasCover {
		args = append(args, "-i", t.CoverPath)
		args = append(args, "-map", "0:a", "-map", "1:v")
		args = append(args, "-c", "copy")
		args = append(args, "-disposition:v", "attached_pic")
		args = append(args, "-metadata:s:v", "title=Album cover")
	} else {
		args = append(args, "-c", "copy")
	}

	args = appendMetadata(args, "title", t.Title)
	args = appendMetadata(args, "artist", strings.Join(t.Artists, "; "))
	args = appendMetadata(args, "album", t.Album)
	args = appendMetadata(args, "date", t.Year)
	args = appendMetadata(args, "genre", t.Genre)
	args = appendMetadata(args, "composer", strings.Join(t.Composers, "; "))
	args = appendMetadata(args, "language", t.Language)
	args = appendMetadata(args, "publisher", t.Label)
	args = appendMetadata(args, "lyrics", strings.Join(t.Lyrics, "\n\n"))

	args = append(args, "-id3v2_version", "3", out)
	return args
}

func appendMetadata(args []string, key, value string) []string {
	if strings.TrimSpace(value) == "" {
		return args
	}
	return append(args, "-metadata", key+"="+value)
}
