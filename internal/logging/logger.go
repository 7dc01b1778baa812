// Package logging builds the structured zap logger used across caserun.
//
// Human-readable console output is the default. The --json flag switches
// to the JSON encoder so that log lines on stderr can be consumed by the
// same tooling that reads the JSON result on stdout.
//
// The level is Info by default, Debug with --verbose, and can always be
// overridden through the CASERUN_LOG_LEVEL environment variable.
package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvLogLevel names the environment variable that overrides the log level.
const EnvLogLevel = "CASERUN_LOG_LEVEL"

// Options configures New.
type Options struct {
	// Verbose lowers the level to Debug.
	Verbose bool

	// JSON selects the JSON encoder instead of the console encoder.
	JSON bool

	// Output receives the log lines. Defaults to os.Stderr.
	Output io.Writer
}

// New creates a logger from the given options and the environment.
func New(opts Options) *zap.Logger {
	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opts.JSON {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if !isTerminal(out) {
			encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(out)), level)
	return zap.New(core)
}

// ParseLevel converts a level name into a zap level. The second result is
// false for empty or unknown names so callers keep their default.
func ParseLevel(raw string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zapcore.InfoLevel, false
	case "debug", "trace":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "off", "none", "disabled":
		// Above every level zap emits from application code.
		return zapcore.FatalLevel + 1, true
	default:
		return zapcore.InfoLevel, false
	}
}

// isTerminal reports whether w is a character device, in which case ANSI
// colors are safe to emit.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
