// Package worklist loads the ordered list of work items that feed the
// pipeline.
//
// The file format is determined by extension: .yaml/.yml for YAML,
// .json for JSON. If the extension is unrecognized, JSON is attempted
// first, then YAML. Item identity is positional: an item's index in
// the loaded slice is its identity for resume bookkeeping.
package worklist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Item is one unit of input: a source locator plus optional
// pre-known descriptive fields. Items are immutable once loaded.
type Item struct {
	// SourceURL locates the media to fetch (e.g. a video URL).
	SourceURL string `json:"youtube" yaml:"youtube"`

	// Title is the song title. When empty, the fetcher's probed
	// title is used instead.
	Title string `json:"song" yaml:"song"`

	Artists   string `json:"artists,omitempty" yaml:"artists,omitempty"`
	Album     string `json:"movie,omitempty" yaml:"movie,omitempty"`
	Year      string `json:"year,omitempty" yaml:"year,omitempty"`
	Genre     string `json:"genre,omitempty" yaml:"genre,omitempty"`
	Composers string `json:"composers,omitempty" yaml:"composers,omitempty"`
	Language  string `json:"language,omitempty" yaml:"language,omitempty"`
	Duration  string `json:"duration,omitempty" yaml:"duration,omitempty"`
	Label     string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Load reads the work list at path and returns at most limit items.
// A limit <= 0 means no truncation.
//
// Returns an error if the file cannot be read or parsed, or if any
// item is missing a source locator.
func Load(path string, limit int) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("work list not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read work list: %w", err)
	}

	items, err := parse(data, path)
	if err != nil {
		return nil, err
	}

	for i, it := range items {
		if strings.TrimSpace(it.SourceURL) == "" {
			return nil, fmt.Errorf("work list item %d has no source URL", i)
		}
	}

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func parse(data []byte, path string) ([]Item, error) {
	if len(data) == 0 {
		return nil, errors.New("work list file is empty")
	}

	var items []Item
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("invalid YAML work list: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("invalid JSON work list: %w", err)
		}
	default:
		if jsonErr := json.Unmarshal(data, &items); jsonErr != nil {
			if yamlErr := yaml.Unmarshal(data, &items); yamlErr != nil {
				return nil, fmt.Errorf("work list is neither valid JSON (%v) nor YAML (%v)", jsonErr, yamlErr)
			}
		}
	}
	return items, nil
}
