// Package observability configures process-wide structured logging.
//
// Two zap loggers are exposed: CLILogger writes human-oriented console
// output to stderr and is what commands log through, while the
// structured profile switches it to JSON for machine consumption.
package observability

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process logger. It defaults to a no-op logger so
// packages can log safely before Init runs.
var CLILogger = zap.NewNop()

// Profile names for Init.
const (
	ProfileCLI        = "CLI"
	ProfileStructured = "STRUCTURED"
)

// Init builds the process logger for the given level and profile and
// installs it as CLILogger.
func Init(level, profile string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var encoder zapcore.Encoder
	switch profile {
	case "", ProfileCLI:
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	case ProfileStructured:
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return fmt.Errorf("unknown logging profile %q", profile)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), lvl)
	CLILogger = zap.New(core)
	return nil
}

// Sync flushes buffered log entries. Safe to call on the no-op logger.
func Sync() {
	_ = CLILogger.Sync()
}
