// Package fetch retrieves media items from their source URLs. The
// production implementation shells out to yt-dlp for probing and
// audio extraction, and fetches cover art over plain HTTP.
package fetch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Info is the probe result for a single source URL.
type Info struct {
	Title         string
	Uploader      string
	Thumbnail     string
	SubtitleLangs []string
}

// Fetcher retrieves a media item and its companion artifacts. All
// methods honor context cancellation.
type Fetcher interface {
	// Probe resolves source metadata without downloading.
	Probe(ctx context.Context, url string) (*Info, error)
	// Download deposits <safeTitle>.mp3 into destDir.
	Download(ctx context.Context, url, destDir, safeTitle string) error
	// Subtitles fetches timed lyrics for one language and returns the
	// text. Best-effort: callers treat errors as non-fatal.
	Subtitles(ctx context.Context, url, destDir, safeTitle, lang string) (string, error)
	// CoverArt saves the thumbnail as <safeTitle>.jpg and returns the
	// written path. Best-effort.
	CoverArt(ctx context.Context, thumbnailURL, destDir, safeTitle string) (string, error)
}

// YTDLP implements Fetcher by executing the yt-dlp binary.
type YTDLP struct {
	// Binary overrides the executable name, mainly for tests.
	Binary string
	// HTTPClient is used for cover art retrieval.
	HTTPClient *http.Client
}

// NewYTDLP returns a Fetcher backed by the yt-dlp binary on PATH.
func NewYTDLP() *YTDLP {
	return &YTDLP{
		Binary:     "yt-dlp",
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (y *YTDLP) binary() string {
	if y.Binary != "" {
		return y.Binary
	}
	return "yt-dlp"
}

func (y *YTDLP) Probe(ctx context.Context, url string) (*Info, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("source URL is required")
	}

	out, err := y.run(ctx, probeArgs(url))
	if err != nil {
		return nil, err
	}
	return parseProbeOutput(out)
}

func (y *YTDLP) Download(ctx context.Context, url, destDir, safeTitle string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("source URL is required")
	}
	if strings.TrimSpace(destDir) == "" {
		return fmt.Errorf("destination directory is required")
	}

	if _, err := y.run(ctx, downloadArgs(url, destDir, safeTitle)); err != nil {
		return err
	}

	artifact := filepath.Join(destDir, safeTitle+".mp3")
	if _, err := os.Stat(artifact); err != nil {
		return fmt.Errorf("expected artifact %s was not produced: %w", artifact, err)
	}
	return nil
}

func (y *YTDLP) Subtitles(ctx context.Context, url, destDir, safeTitle, lang string) (string, error) {
	if strings.TrimSpace(lang) == "" {
		return "", fmt.Errorf("subtitle language is required")
	}

	if _, err := y.run(ctx, subtitleArgs(url, destDir, safeTitle, lang)); err != nil {
		return "", err
	}

	// yt-dlp writes <safeTitle>.<lang>.lrc next to the artifact.
	path := filepath.Join(destDir, fmt.Sprintf("%s.%s.lrc", safeTitle, lang))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("subtitle file for %q: %w", lang, err)
	}
	_ = os.Remove(path)
	return string(data), nil
}

func (y *YTDLP) CoverArt(ctx context.Context, thumbnailURL, destDir, safeTitle string) (string, error) {
	if strings.TrimSpace(thumbnailURL) == "" {
		return "", fmt.Errorf("no thumbnail URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbnailURL, nil)
	if err != nil {
		return "", fmt.Errorf("build cover request: %w", err)
	}
	client := y.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch cover art: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch cover art: unexpected status %d", resp.StatusCode)
	}

	path := filepath.Join(destDir, safeTitle+".jpg")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create cover file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write cover file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close cover file: %w", err)
	}
	return path, nil
}

func probeArgs(url string) []string {
	return []string{"--no-playlist", "--skip-download", "--print-json", url}
}

func downloadArgs(url, destDir, safeTitle string) []string {
	return []string{
		"--no-playlist",
		"--newline",
		"-x",
		"--audio-format", "mp3",
		"-o", filepath.Join(destDir, safeTitle+".%(ext)s"),
		url,
	}
}

func subtitleArgs(url, destDir, safeTitle, lang string) []string {
	return []string{
		"--no-playlist",
		"--skip-download",
		"--newline",
		"--write-subs",
		"--write-auto-subs",
		"--sub-langs", lang,
		"--convert-subs", "lrc",
		"-o", filepath.Join(destDir, safeTitle+".%(ext)s"),
		url,
	}
}

// run executes the binary, capturing a bounded amount of output for
// error reporting.
func (y *YTDLP) run(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, y.binary(), args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		return nil, fmt.Errorf("%s failed: %w: %s", y.binary(), err, truncate(detail, 8192))
	}
	return stdout.Bytes(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

type probePayload struct {
	Title             string                     `json:"title"`
	Uploader          string                     `json:"uploader"`
	Thumbnail         string                     `json:"thumbnail"`
	Subtitles         map[string]json.RawMessage `json:"subtitles"`
	AutomaticCaptions map[string]json.RawMessage `json:"automatic_captions"`
}

// parseProbeOutput decodes the last JSON line of --print-json output.
// yt-dlp may emit progress noise before the metadata object.
func parseProbeOutput(out []byte) (*Info, error) {
	var last []byte
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) > 0 && line[0] == '{' {
			last = append(last[:0], line...)
		}
	}
	if len(last) == 0 {
		return nil, fmt.Errorf("probe returned no metadata")
	}

	var payload probePayload
	if err := json.Unmarshal(last, &payload); err != nil {
		return nil, fmt.Errorf("decode probe metadata: %w", err)
	}

	langs := make(map[string]struct{})
	for lang := range payload.Subtitles {
		langs[lang] = struct{}{}
	}
	for lang := range payload.AutomaticCaptions {
		langs[lang] = struct{}{}
	}
	info := &Info{
		Title:     payload.Title,
		Uploader:  payload.Uploader,
		Thumbnail: payload.Thumbnail,
	}
	for lang := range langs {
		info.SubtitleLangs = append(info.SubtitleLangs, lang)
	}
	sort.Strings(info.SubtitleLangs)
	return info, nil
}
