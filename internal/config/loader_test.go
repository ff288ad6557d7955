package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "CLI", cfg.Logging.Profile)

		assert.Equal(t, 0, cfg.Pipeline.Workers)
		assert.Equal(t, 10, cfg.Pipeline.BatchSize)
		assert.Equal(t, 100, cfg.Pipeline.Limit)

		assert.Equal(t, "songs", cfg.Library.Dir)
		assert.Equal(t, "metadata.json", cfg.Ledger.Path)

		assert.Equal(t, "github", cfg.Store.Backend)
		assert.Equal(t, "latest", cfg.Store.ReleaseTag)
		assert.Equal(t, 1.0, cfg.Store.RequestsPerSecond)
		assert.Equal(t, 30*time.Second, cfg.Store.Timeout)

		assert.True(t, cfg.VCS.Enabled)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"pipeline": map[string]any{
				"workers":    3,
				"batch_size": 5,
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, 3, cfg.Pipeline.Workers)
		assert.Equal(t, 5, cfg.Pipeline.BatchSize)
		assert.Equal(t, "debug", cfg.Logging.Level)

		// non-overridden values keep their defaults
		assert.Equal(t, 100, cfg.Pipeline.Limit)
		assert.Equal(t, "github", cfg.Store.Backend)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("SONGLIFT_PIPELINE_BATCH_SIZE", "7")
		t.Setenv("SONGLIFT_STORE_BACKEND", "s3")
		t.Setenv("SONGLIFT_STORE_S3_BUCKET", "my-songs")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 7, cfg.Pipeline.BatchSize)
		assert.Equal(t, "s3", cfg.Store.Backend)
		assert.Equal(t, "my-songs", cfg.Store.S3.Bucket)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "songlift.yaml")
		body := []byte("pipeline:\n  limit: 25\nstore:\n  backend: none\n  timeout: 90s\n")
		require.NoError(t, os.WriteFile(path, body, 0o644))
		t.Setenv("SONGLIFT_CONFIG", path)

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 25, cfg.Pipeline.Limit)
		assert.Equal(t, "none", cfg.Store.Backend)
		assert.Equal(t, 90*time.Second, cfg.Store.Timeout)
	})

	t.Run("MissingConfigFileFails", func(t *testing.T) {
		t.Setenv("SONGLIFT_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

		_, err := Load(ctx)
		assert.Error(t, err)
	})

	t.Run("InvalidBackendFails", func(t *testing.T) {
		_, err := Load(ctx, map[string]any{
			"store": map[string]any{"backend": "ftp"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store.backend")
	})
}
