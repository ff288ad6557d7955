package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songlift/songlift/internal/config"
	"github.com/songlift/songlift/pkg/output"
	"github.com/songlift/songlift/pkg/pipeline"
)

func TestApplyRunFlags(t *testing.T) {
	defer func() {
		runLimit, runBatchSize, runWorkers = 0, 0, 0
		runLibrary, runLedgerPath, runStore = "", "", ""
	}()

	cfg := &config.Config{}
	cfg.Pipeline.Limit = 100
	cfg.Pipeline.BatchSize = 10
	cfg.Library.Dir = "library"
	cfg.Ledger.Path = "ledger.json"
	cfg.Store.Backend = "github"

	runLimit = 5
	runWorkers = 2
	runStore = "none"
	applyRunFlags(cfg)

	assert.Equal(t, 5, cfg.Pipeline.Limit)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, "none", cfg.Store.Backend)
	// untouched flags leave config values alone
	assert.Equal(t, 10, cfg.Pipeline.BatchSize)
	assert.Equal(t, "library", cfg.Library.Dir)
}

func TestBuildStore(t *testing.T) {
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Store.Backend = "none"
		store, err := buildStore(ctx, cfg)
		require.NoError(t, err)
		assert.Nil(t, store)
	})

	t.Run("github requires owner and repo", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Store.Backend = "github"
		_, err := buildStore(ctx, cfg)
		assert.Error(t, err)
	})

	t.Run("github", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Store.Backend = "github"
		cfg.Store.Github.Owner = "owner"
		cfg.Store.Github.Repo = "songs"
		store, err := buildStore(ctx, cfg)
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Store.Backend = "ftp"
		_, err := buildStore(ctx, cfg)
		assert.Error(t, err)
	})
}

func TestCreateWriter(t *testing.T) {
	t.Run("empty destination discards", func(t *testing.T) {
		w, cleanup, err := createWriter("", "job", "src")
		require.NoError(t, err)
		defer cleanup()
		assert.IsType(t, output.Discard{}, w)
	})

	t.Run("file destination", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.jsonl")
		w, cleanup, err := createWriter(path, "job", "src")
		require.NoError(t, err)
		require.NotNil(t, w)
		cleanup()

		_, err = os.Stat(path)
		assert.NoError(t, err)
	})

	t.Run("file prefix stripped", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.jsonl")
		_, cleanup, err := createWriter("file:"+path, "job", "src")
		require.NoError(t, err)
		cleanup()

		_, err = os.Stat(path)
		assert.NoError(t, err)
	})

	t.Run("unwritable path fails", func(t *testing.T) {
		_, _, err := createWriter(filepath.Join(t.TempDir(), "missing", "out.jsonl"), "job", "src")
		assert.Error(t, err)
	})
}

func TestCancelLogFields(t *testing.T) {
	// A run can be cancelled before the pipeline produces a summary.
	assert.Len(t, cancelLogFields("job", nil), 1)
	assert.Len(t, cancelLogFields("job", &pipeline.Summary{Processed: 3}), 2)
}

func TestDirWritable(t *testing.T) {
	assert.True(t, dirWritable(t.TempDir()))
	assert.False(t, dirWritable(filepath.Join(t.TempDir(), "absent")))
}
