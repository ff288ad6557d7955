// Package cmd wires the songlift CLI: command definitions, config
// loading, logging setup, and exit-code mapping.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/songlift/songlift/internal/config"
	"github.com/songlift/songlift/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "songlift",
	Short: "Resumable batch pipeline for building a published song library",
	Long: `songlift fetches media items from a work list, embeds tags, and
publishes the artifacts to a remote release store in batches. Progress
is persisted to a ledger after every item, so an interrupted run
resumes where it left off and already-handled items are never fetched
twice.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
}

var (
	flagConfig     string
	flagLogLevel   string
	flagLogProfile string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&flagLogProfile, "log-profile", "", "Log profile (CLI|STRUCTURED)")
}

// versionInfo holds build-time version metadata.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected via ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate)
}

// loadConfig builds the effective config, honoring the persistent
// flags.
func loadConfig(ctx context.Context) (*config.Config, error) {
	if flagConfig != "" {
		os.Setenv("SONGLIFT_CONFIG", flagConfig)
	}

	overrides := map[string]any{}
	logging := map[string]any{}
	if flagLogLevel != "" {
		logging["level"] = flagLogLevel
	}
	if flagLogProfile != "" {
		logging["profile"] = flagLogProfile
	}
	if len(logging) > 0 {
		overrides["logging"] = logging
	}
	return config.Load(ctx, overrides)
}

func initLogging() error {
	level := flagLogLevel
	if level == "" {
		level = "info"
	}
	profile := flagLogProfile
	if profile == "" {
		profile = observability.ProfileCLI
	}
	return observability.Init(level, profile)
}

// commandError pairs a process exit code with the failure it reports.
type commandError struct {
	code    int
	message string
	err     error
}

func (e *commandError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *commandError) Unwrap() error { return e.err }

// exitError wraps a failure so Execute can map it to the right exit
// code after cobra unwinds.
func exitError(code int, message string, err error) error {
	return &commandError{code: code, message: message, err: err}
}

// ExitWithCode logs the failure and terminates the process
// immediately. Used where returning up the call stack is not viable.
func ExitWithCode(logger *zap.Logger, code int, message string, err error) {
	logger.Error(message, zap.Error(err))
	observability.Sync()
	os.Exit(code)
}

// Execute runs the CLI and exits the process with the mapped code.
func Execute(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	observability.Sync()
	if err == nil {
		return
	}

	var cmdErr *commandError
	if errors.As(err, &cmdErr) {
		fmt.Fprintln(os.Stderr, "Error: "+cmdErr.Error())
		os.Exit(cmdErr.code)
	}
	fmt.Fprintln(os.Stderr, "Error: "+err.Error())
	os.Exit(1)
}
