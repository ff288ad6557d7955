package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/songlift/songlift/internal/observability"
	"github.com/songlift/songlift/pkg/fetch"
	"github.com/songlift/songlift/pkg/ledger"
	"github.com/songlift/songlift/pkg/pipeline"
	"github.com/songlift/songlift/pkg/tags"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization cycle without processing items",
	Long: `Run a single synchronization cycle: push the ledger, upload local
artifacts missing from the release store, and reconcile remote URLs
into ledger entries.

Useful after a run that could not reach the store, or after adding
artifacts to the library by hand.

Example:
  songlift sync
  songlift sync --store s3 --output sync.jsonl`,
	RunE: runSync,
}

var (
	syncStore  string
	syncOutput string
)

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVar(&syncStore, "store", "", "Asset store backend (github|s3|none)")
	syncCmd.Flags().StringVarP(&syncOutput, "output", "o", "", "JSONL output destination (stdout or file path)")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	if syncStore != "" {
		cfg.Store.Backend = syncStore
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
	writer, cleanup, err := createWriter(syncOutput, jobID, "")
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
		LibraryDir: cfg.Library.Dir,
		ReleaseTag: cfg.Store.ReleaseTag,
	})

	observability.CLILogger.Info("Starting synchronization",
		zap.String("job_id", jobID),
		zap.String("store", cfg.Store.Backend),
		zap.Int("entries", led.Len()))

	p.SyncOnce(ctx)

	observability.CLILogger.Info("Synchronization finished",
		zap.String("job_id", jobID))
	return nil
}
