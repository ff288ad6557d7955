// Package config loads songlift configuration from defaults, an
// optional config file, SONGLIFT_* environment variables, and runtime
// overrides, in increasing precedence.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Library  LibraryConfig  `mapstructure:"library"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Store    StoreConfig    `mapstructure:"store"`
	VCS      VCSConfig      `mapstructure:"vcs"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

type PipelineConfig struct {
	Workers   int `mapstructure:"workers"`
	BatchSize int `mapstructure:"batch_size"`
	Limit     int `mapstructure:"limit"`
}

type LibraryConfig struct {
	Dir string `mapstructure:"dir"`
}

type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

type StoreConfig struct {
	// Backend selects the asset store: github, s3, or none.
	Backend           string        `mapstructure:"backend"`
	ReleaseTag        string        `mapstructure:"release_tag"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Github            GithubConfig  `mapstructure:"github"`
	S3                S3Config      `mapstructure:"s3"`
}

type GithubConfig struct {
	Owner   string `mapstructure:"owner"`
	Repo    string `mapstructure:"repo"`
	APIBase string `mapstructure:"api_base"`
}

type S3Config struct {
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	PublicBaseURL  string `mapstructure:"public_base_url"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

type VCSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	Remote  string `mapstructure:"remote"`
	Branch  string `mapstructure:"branch"`
}

// Load builds the effective configuration. Optional override maps are
// merged last and win over file and environment values.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SONGLIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := configFilePath(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for _, o := range overrides {
		if err := v.MergeConfigMap(o); err != nil {
			return nil, fmt.Errorf("merge overrides: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can act on.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "github", "s3", "none":
	default:
		return fmt.Errorf("store.backend must be github, s3, or none (got %q)", c.Store.Backend)
	}
	if c.Pipeline.BatchSize < 0 {
		return fmt.Errorf("pipeline.batch_size cannot be negative")
	}
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline.workers cannot be negative")
	}
	return nil
}

// configFilePath picks the config file: $SONGLIFT_CONFIG, then
// ./songlift.yaml, then the user config directory. Empty means run on
// defaults and environment only.
func configFilePath() string {
	if path := os.Getenv("SONGLIFT_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("songlift.yaml"); err == nil {
		return "songlift.yaml"
	}
	if dir, err := os.UserConfigDir(); err == nil {
		path := filepath.Join(dir, "songlift", "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "CLI")

	v.SetDefault("pipeline.workers", 0) // 0 = derive from CPU count
	v.SetDefault("pipeline.batch_size", 10)
	v.SetDefault("pipeline.limit", 100)

	v.SetDefault("library.dir", "songs")
	v.SetDefault("ledger.path", "metadata.json")

	v.SetDefault("store.backend", "github")
	v.SetDefault("store.release_tag", "latest")
	v.SetDefault("store.requests_per_second", 1.0)
	v.SetDefault("store.timeout", "30s")
	v.SetDefault("store.github.owner", "")
	v.SetDefault("store.github.repo", "")
	v.SetDefault("store.github.api_base", "")
	v.SetDefault("store.s3.bucket", "")
	v.SetDefault("store.s3.region", "")
	v.SetDefault("store.s3.endpoint", "")
	v.SetDefault("store.s3.profile", "")
	v.SetDefault("store.s3.public_base_url", "")
	v.SetDefault("store.s3.force_path_style", false)

	v.SetDefault("vcs.enabled", true)
	v.SetDefault("vcs.dir", "")
	v.SetDefault("vcs.remote", "")
	v.SetDefault("vcs.branch", "")
}
