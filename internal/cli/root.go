// Package cli implements the cobra-based CLI commands for caserun.
//
// Each subcommand (run, plan, clean, init, presets, clone, containers) is
// defined in its own file within this package. This file defines the root
// command that serves as the parent for all subcommands and handles global
// flags, logging setup and the mapping from errors to exit codes.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shinji-kodama/caserun/internal/logging"
	"github.com/shinji-kodama/caserun/internal/model"
	"github.com/shinji-kodama/caserun/internal/pipeline"
)

// Global flag variables shared across all subcommands.
var (
	// jsonOutput switches command results on stdout and log lines on
	// stderr to JSON.
	jsonOutput bool

	// verbose lowers the log level to Debug.
	verbose bool

	// logger is built in the root PersistentPreRun once flags are parsed.
	logger *zap.Logger
)

// Version, Commit and Date are set at build time via ldflags in the main
// package.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// The root command itself does not perform any action. It only provides
// help text and global flags; the work is done by the subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "caserun",
		Short: "Run solver tutorial workflows step by step",
		Long: `caserun prepares and runs CFD tutorial cases by invoking the solver
suite's command-line utilities in order: meshing, field initialization,
decomposition, the solver itself, reconstruction and the marker file used
by the visualizer.

Every step is awaited. The first failed required step stops the run and
its exit code and error output are reported.`,

		// Errors are printed by Execute in text or JSON form.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.New(logging.Options{
				Verbose: verbose,
				JSON:    jsonOutput,
				Output:  cmd.ErrOrStderr(),
			})
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewPlanCommand())
	rootCmd.AddCommand(NewCleanCommand())
	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewPresetsCommand())
	rootCmd.AddCommand(NewCloneCommand())
	rootCmd.AddCommand(NewContainersCommand())

	return rootCmd
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// SIGINT and SIGTERM cancel the command context, which stops the running
// step and skips the rest.
func Execute(rootCmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if logger != nil {
		_ = logger.Sync()
	}
	if err == nil {
		return
	}

	printError(os.Stderr, err)
	os.Exit(int(exitCodeFor(err)))
}

// exitCodeFor translates an error returned by a command into a process
// exit code. Interruption wins over the failure it caused.
func exitCodeFor(err error) model.ExitCode {
	if errors.Is(err, context.Canceled) {
		return model.ExitUserCancelled
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}

	var stepErr *pipeline.StepError
	if errors.As(err, &stepErr) {
		return model.ExitStepFailed
	}

	return model.ExitGeneralError
}

// printError outputs an error in the format selected by --json.
func printError(w io.Writer, err error) {
	message := err.Error()
	var detail string

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		message = cliErr.Message
		if cliErr.Err != nil {
			detail = cliErr.Err.Error()
		}
	}

	var stepErr *pipeline.StepError
	hasStep := errors.As(err, &stepErr)

	if jsonOutput {
		errObj := map[string]interface{}{
			"message": message,
			"code":    int(exitCodeFor(err)),
		}
		if detail != "" {
			errObj["detail"] = detail
		}
		if hasStep {
			errObj["step"] = map[string]interface{}{
				"index":       stepErr.Index + 1,
				"name":        stepErr.Name,
				"commandLine": stepErr.CommandLine,
				"exitCode":    stepErr.ExitCode,
				"stderrTail":  stepErr.StderrTail,
			}
		}
		data, _ := json.MarshalIndent(map[string]interface{}{"error": errObj}, "", "  ")
		_, _ = fmt.Fprintln(w, string(data))
		return
	}

	if detail != "" {
		_, _ = fmt.Fprintf(w, "Error: %s: %s\n", message, detail)
	} else {
		_, _ = fmt.Fprintf(w, "Error: %s\n", message)
	}
	if hasStep {
		if stepErr.CommandLine != "" {
			_, _ = fmt.Fprintf(w, "  command:   %s\n", stepErr.CommandLine)
		}
		if stepErr.ExitCode != 0 {
			_, _ = fmt.Fprintf(w, "  exit code: %d\n", stepErr.ExitCode)
		}
		if tail := strings.TrimRight(stepErr.StderrTail, "\n"); tail != "" {
			_, _ = fmt.Fprintln(w, "  last error output:")
			for _, line := range strings.Split(tail, "\n") {
				_, _ = fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
}

// Logger returns the CLI logger, or a no-op logger before the root
// command has parsed its flags.
func Logger() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// VerboseLog writes a debug record. It only shows with --verbose or a
// debug CASERUN_LOG_LEVEL.
func VerboseLog(format string, args ...interface{}) {
	Logger().Sugar().Debugf(format, args...)
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}

// printJSON writes v as indented JSON followed by a newline.
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
