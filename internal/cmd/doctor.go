package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/songlift/songlift/internal/errors"
	"github.com/songlift/songlift/internal/observability"
	"github.com/songlift/songlift/pkg/assetstore/github"
	"github.com/songlift/songlift/pkg/fetch"
	"github.com/songlift/songlift/pkg/vcs"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment and suggest fixes for
common issues.

Examples:
  songlift doctor`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) {
	observability.CLILogger.Info("=== songlift doctor ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 7

	// Check 1: environment
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s (%s)", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH, runtime.Version()),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	checkNum++

	// Check 2: foundation library access
	version := crucible.GetVersion()
	if version.Gofulmen != "" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ✅ v%s", checkNum, totalChecks, version.Gofulmen),
			zap.String("gofulmen_version", version.Gofulmen))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ❌ Cannot access Gofulmen", checkNum, totalChecks))
		allChecks = false
	}
	checkNum++

	// Check 3: yt-dlp
	deps := fetch.DependencyStatus()
	if deps.YTDLPFound {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking yt-dlp... ✅ %s", checkNum, totalChecks, deps.YTDLPPath),
			zap.String("yt_dlp_path", deps.YTDLPPath))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking yt-dlp... ❌ not found on PATH", checkNum, totalChecks))
		allChecks = false
	}
	checkNum++

	// Check 4: ffmpeg
	if deps.FFmpegFound {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking ffmpeg... ✅ %s", checkNum, totalChecks, deps.FFmpegPath),
			zap.String("ffmpeg_path", deps.FFmpegPath))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking ffmpeg... ❌ not found on PATH", checkNum, totalChecks))
		allChecks = false
	}
	checkNum++

	// Check 5: git
	if vcs.Available() {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking git... ✅ found", checkNum, totalChecks))
	} else {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking git... ⚠️  not found (ledger pushes disabled)", checkNum, totalChecks))
	}
	checkNum++

	// Check 6: ledger directory writable
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking ledger path... ❌ invalid configuration", checkNum, totalChecks), zap.Error(err))
		ExitWithCode(observability.CLILogger, foundry.ExitInvalidArgument, "Invalid configuration",
			errwrap.WrapInternal(cmd.Context(), err, "Invalid configuration"))
	}
	ledgerDir := filepath.Dir(cfg.Ledger.Path)
	if dirWritable(ledgerDir) {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking ledger directory... ✅ %s", checkNum, totalChecks, ledgerDir),
			zap.String("ledger_dir", ledgerDir))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking ledger directory... ❌ %s is not writable", checkNum, totalChecks, ledgerDir))
		allChecks = false
	}
	checkNum++

	// Check 7: store credential
	switch cfg.Store.Backend {
	case "github":
		if os.Getenv(github.TokenEnv) != "" {
			observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking %s... ✅ set", checkNum, totalChecks, github.TokenEnv))
		} else {
			observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking %s... ⚠️  not set (uploads will be skipped)", checkNum, totalChecks, github.TokenEnv))
		}
	default:
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking store credential... ✅ backend %q needs none", checkNum, totalChecks, cfg.Store.Backend))
	}

	observability.CLILogger.Info("")
	if allChecks {
		observability.CLILogger.Info("All checks passed ✅")
	} else {
		observability.CLILogger.Warn("Some checks failed. See messages above for fixes.")
		ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Diagnostics failed",
			errwrap.NewExternalServiceError("one or more diagnostic checks failed"))
	}
}

// dirWritable probes the directory with a throwaway file.
func dirWritable(dir string) bool {
	if dir == "" || dir == "." {
		dir, _ = os.Getwd()
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
