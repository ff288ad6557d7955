package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/songlift/songlift/internal/config"
	"github.com/songlift/songlift/internal/observability"
	"github.com/songlift/songlift/pkg/assetstore"
	"github.com/songlift/songlift/pkg/assetstore/github"
	"github.com/songlift/songlift/pkg/assetstore/s3"
	"github.com/songlift/songlift/pkg/fetch"
	"github.com/songlift/songlift/pkg/ledger"
	"github.com/songlift/songlift/pkg/output"
	"github.com/songlift/songlift/pkg/pipeline"
	"github.com/songlift/songlift/pkg/tags"
	"github.com/songlift/songlift/pkg/vcs"
	"github.com/songlift/songlift/pkg/worklist"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process the work list through the batch pipeline",
	Long: `Process the work list: fetch each item, embed tags, and publish the
artifacts to the configured release store in batches.

Already-handled items are skipped, so re-running after an interruption
picks up where the previous run stopped.

Example:
  songlift run --worklist songs.json
  songlift run --worklist songs.yaml --store none --limit 10
  songlift run --worklist songs.json --output run.jsonl`,
	RunE: runRun,
}

var (
	runWorklist  string
	runLimit     int
	runBatchSize int
	runWorkers   int
	runLibrary   string
	runLedgerPath string
	runStore     string
	runOutput    string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runWorklist, "worklist", "w", "", "Path to work list (required)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "Cap the number of items this run handles")
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", 0, "Completions between synchronization cycles")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Fetch/embed worker count")
	runCmd.Flags().StringVar(&runLibrary, "library", "", "Artifact library directory")
	runCmd.Flags().StringVar(&runLedgerPath, "ledger", "", "Ledger file path")
	runCmd.Flags().StringVar(&runStore, "store", "", "Asset store backend (github|s3|none)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "JSONL output destination (stdout or file path)")

	_ = runCmd.MarkFlagRequired("worklist")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	applyRunFlags(cfg)

	if err := fetch.CheckDependencies(); err != nil {
		observability.CLILogger.Error("Missing external dependency", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Missing external dependency", err)
	}

	items, err := worklist.Load(runWorklist, cfg.Pipeline.Limit)
	if err != nil {
		observability.CLILogger.Error("Failed to load work list",
			zap.String("path", runWorklist),
			zap.Error(err))
		return exitError(foundry.ExitFileReadError, "Invalid work list", err)
	}

	led, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to open ledger", err)
	}
	if err := led.Lock(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Ledger is locked", err)
	}
	defer func() { _ = led.Unlock() }()

	jobID := uuid.New().String()

	writer, cleanup, err := createWriter(runOutput, jobID, runWorklist)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		observability.CLILogger.Error("Failed to configure asset store", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to configure asset store", err)
	}

	p := pipeline.New(pipeline.Deps{
		Fetcher:  fetch.NewYTDLP(),
		Embedder: tags.NewFFmpeg(),
		Store:    store,
		Pusher:   buildPusher(cfg),
		Ledger:   led,
		Writer:   writer,
		Logger:   observability.CLILogger,
	}, pipeline.Config{
		Workers:    cfg.Pipeline.Workers,
		BatchSize:  cfg.Pipeline.BatchSize,
		LibraryDir: cfg.Library.Dir,
		Limit:      cfg.Pipeline.Limit,
		ReleaseTag: cfg.Store.ReleaseTag,
	})

	observability.CLILogger.Info("Starting run",
		zap.String("job_id", jobID),
		zap.Int("items", len(items)),
		zap.Int("resume_index", led.LastIndex()),
		zap.String("store", cfg.Store.Backend))

	summary, err := p.Run(ctx, items)
	if err != nil {
		if ctx.Err() != nil {
			observability.CLILogger.Warn("Run cancelled", cancelLogFields(jobID, summary)...)
			return exitError(foundry.ExitSignalInt, "Run cancelled", err)
		}
		observability.CLILogger.Error("Run failed",
			zap.String("job_id", jobID),
			zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Run failed", err)
	}

	observability.CLILogger.Info("Run completed",
		zap.String("job_id", jobID),
		zap.Int64("items", summary.Items),
		zap.Int64("processed", summary.Processed),
		zap.Int64("skipped", summary.Skipped),
		zap.Int64("failed", summary.Failed),
		zap.Int64("cycles", summary.Cycles),
		zap.Duration("duration", summary.Duration))
	return nil
}

// cancelLogFields builds the cancellation log fields. The summary is
// nil when the run failed before any item was dispatched.
func cancelLogFields(jobID string, summary *pipeline.Summary) []zap.Field {
	fields := []zap.Field{zap.String("job_id", jobID)}
	if summary != nil {
		fields = append(fields, zap.Int64("processed", summary.Processed))
	}
	return fields
}

// applyRunFlags lets command-line flags win over file and env config.
func applyRunFlags(cfg *config.Config) {
	if runLimit > 0 {
		cfg.Pipeline.Limit = runLimit
	}
	if runBatchSize > 0 {
		cfg.Pipeline.BatchSize = runBatchSize
	}
	if runWorkers > 0 {
		cfg.Pipeline.Workers = runWorkers
	}
	if runLibrary != "" {
		cfg.Library.Dir = runLibrary
	}
	if runLedgerPath != "" {
		cfg.Ledger.Path = runLedgerPath
	}
	if runStore != "" {
		cfg.Store.Backend = runStore
	}
}

// buildStore constructs the configured asset store backend. A nil
// store means cycles degrade to push-only.
func buildStore(ctx context.Context, cfg *config.Config) (assetstore.Store, error) {
	switch cfg.Store.Backend {
	case "none", "":
		return nil, nil
	case "github":
		if cfg.Store.Github.Owner == "" || cfg.Store.Github.Repo == "" {
			return nil, fmt.Errorf("store.github.owner and store.github.repo are required")
		}
		return github.New(github.Config{
			Owner:             cfg.Store.Github.Owner,
			Repo:              cfg.Store.Github.Repo,
			APIBase:           cfg.Store.Github.APIBase,
			RequestsPerSecond: cfg.Store.RequestsPerSecond,
			Timeout:           cfg.Store.Timeout,
		}), nil
	case "s3":
		return s3.New(ctx, s3.Config{
			Bucket:         cfg.Store.S3.Bucket,
			Region:         cfg.Store.S3.Region,
			Endpoint:       cfg.Store.S3.Endpoint,
			Profile:        cfg.Store.S3.Profile,
			PublicBaseURL:  cfg.Store.S3.PublicBaseURL,
			ForcePathStyle: cfg.Store.S3.ForcePathStyle || cfg.Store.S3.Endpoint != "",
		})
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
}

func buildPusher(cfg *config.Config) vcs.Pusher {
	if !cfg.VCS.Enabled {
		return vcs.Noop{}
	}
	g := vcs.NewGit(cfg.VCS.Dir)
	g.Remote = cfg.VCS.Remote
	g.Branch = cfg.VCS.Branch
	return g
}

// createWriter builds the JSONL writer for a run. An empty destination
// discards records; "stdout" writes to standard output; anything else
// is a file path (with an optional file: prefix).
func createWriter(dest, jobID, source string) (output.Writer, func(), error) {
	if dest == "" {
		return output.Discard{}, func() {}, nil
	}
	if dest == "stdout" {
		w := output.NewJSONLWriter(os.Stdout, jobID, source)
		return w, func() { _ = w.Close() }, nil
	}

	path := strings.TrimPrefix(dest, "file:")
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	w := output.NewJSONLWriter(f, jobID, source)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}
