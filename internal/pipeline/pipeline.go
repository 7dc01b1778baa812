package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shinji-kodama/caserun/internal/model"
	"github.com/shinji-kodama/caserun/internal/solver"
)

// Runtime names recorded in RunSummary.Runtime.
const (
	RuntimeLocal  = "local"
	RuntimeDocker = "docker"
)

// Executor runs workflow steps in order.
type Executor struct {
	// Runner starts external utilities. Defaults to solver.ExecRunner.
	Runner solver.Runner

	// Toolchain turns run steps into invocations. Defaults to the
	// launcher settings of model.Toolchain{} on the current platform.
	Toolchain *solver.Toolchain

	// Logger receives progress and failure records. Defaults to a no-op.
	Logger *zap.Logger

	// DryRun records every step as planned without touching anything.
	DryRun bool

	// Stdout and Stderr receive the output of external utilities.
	Stdout io.Writer
	Stderr io.Writer

	// Runtime is copied into the summary. Defaults to RuntimeLocal.
	Runtime string

	// RunID identifies the run. A random UUID is used when empty.
	RunID string
}

// StepError reports the step that stopped a run.
type StepError struct {
	// Index is the 0-based step position.
	Index int

	// Name is the step's display name.
	Name string

	// CommandLine is the rendered command for run steps.
	CommandLine string

	// ExitCode is the utility's exit code, or 0 for built-in actions.
	ExitCode int

	// StderrTail holds the end of the utility's error output.
	StderrTail string

	// Err is the underlying failure.
	Err error
}

// Error describes the failed step. The stderr tail is left to callers
// that want to print it separately.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index+1, e.Name, e.Err)
}

// Unwrap returns the underlying failure, so errors.Is(err,
// context.Canceled) works for interrupted runs.
func (e *StepError) Unwrap() error {
	return e.Err
}

// stepOutcome is what a single step produced.
type stepOutcome struct {
	commandLine string
	exitCode    int
	stderrTail  string
	err         error
}

// RunWorkflow runs wf.Steps and records the workflow name in the summary.
func (e *Executor) RunWorkflow(ctx context.Context, caseDir string, wf *model.Workflow) (*model.RunSummary, error) {
	summary, err := e.Run(ctx, caseDir, wf.Steps)
	if summary != nil {
		summary.Workflow = wf.Name
	}
	return summary, err
}

// Run executes steps against caseDir and returns one result per step.
//
// The returned error is nil when every required step succeeded. Otherwise
// it is a *StepError for the step that stopped the run. The summary is
// returned in both cases.
func (e *Executor) Run(ctx context.Context, caseDir string, steps []model.Step) (*model.RunSummary, error) {
	// Step 1: Pin the case directory. Utilities run with it as their working
	// directory and built-in actions resolve paths against it, so it must
	// not depend on where caserun was started.
	absDir, err := filepath.Abs(caseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve case directory %s: %w", caseDir, err)
	}

	// Step 2: Fill in run metadata. The run ID ties log lines and container
	// labels of one run together.
	runID := e.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	runtime := e.Runtime
	if runtime == "" {
		runtime = RuntimeLocal
	}

	summary := &model.RunSummary{
		RunID:     runID,
		CaseDir:   absDir,
		Runtime:   runtime,
		DryRun:    e.DryRun,
		StartedAt: time.Now().UTC(),
		Results:   make([]model.StepResult, 0, len(steps)),
	}

	log := e.logger().With(zap.String("runId", runID))
	log.Debug("starting run",
		zap.String("caseDir", absDir),
		zap.Int("steps", len(steps)),
		zap.Bool("dryRun", e.DryRun))

	// Step 3: Walk the steps in order. Every step gets a result, so the
	// summary always lists the whole workflow even after a failure.
	//
	// stopErr is set by the first failed required step (or by cancellation)
	// and turns every later step into "skipped" without running it.
	var stopErr *StepError
	for i, step := range steps {
		result := model.StepResult{
			Index: i,
			Name:  step.DisplayName(),
			Kind:  step.Kind(),
		}

		// A cancelled context stops the run before the next step starts,
		// even when the previous step happened to finish cleanly.
		if stopErr == nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				stopErr = &StepError{Index: i, Name: result.Name, Err: ctxErr}
			}
		}
		if stopErr != nil {
			result.Status = model.StatusSkipped
			summary.Results = append(summary.Results, result)
			continue
		}

		stepLog := log.With(
			zap.Int("step", i+1),
			zap.Int("of", len(steps)),
			zap.String("name", result.Name))

		if e.DryRun {
			result.Status = model.StatusPlanned
			result.CommandLine = e.describe(step)
			stepLog.Info("planned", zap.String("command", result.CommandLine))
			summary.Results = append(summary.Results, result)
			continue
		}

		// execute blocks until the step is completely finished. For run steps
		// that means the utility process has exited and its output pipes are
		// drained; nothing below starts early.
		stepLog.Info("running step", zap.String("kind", string(result.Kind)))
		start := time.Now()
		out := e.execute(ctx, absDir, step, stepLog)
		result.Duration = time.Since(start)
		result.CommandLine = out.commandLine
		result.ExitCode = out.exitCode

		switch {
		case out.err == nil:
			result.Status = model.StatusSucceeded
			stepLog.Info("step finished", zap.Duration("duration", result.Duration))

		// An interrupted optional step still stops the run: the failure was
		// caused by the cancellation, not by the step.
		case step.IsRequired() || ctx.Err() != nil:
			result.Status = model.StatusFailed
			result.Error = out.err.Error()
			stopErr = &StepError{
				Index:       i,
				Name:        result.Name,
				CommandLine: out.commandLine,
				ExitCode:    out.exitCode,
				StderrTail:  out.stderrTail,
				Err:         out.err,
			}
			fields := []zap.Field{
				zap.Error(out.err),
				zap.Int("exitCode", out.exitCode),
				zap.Duration("duration", result.Duration),
			}
			if out.commandLine != "" {
				fields = append(fields, zap.String("command", out.commandLine))
			}
			if tail := strings.TrimSpace(out.stderrTail); tail != "" {
				fields = append(fields, zap.String("stderrTail", tail))
			}
			stepLog.Error("step failed, stopping workflow", fields...)

		default:
			result.Status = model.StatusIgnored
			result.Error = out.err.Error()
			stepLog.Warn("optional step failed, continuing",
				zap.Error(out.err),
				zap.Int("exitCode", out.exitCode))
		}

		summary.Results = append(summary.Results, result)
	}

	// Step 4: Close the summary. It is returned with the error so callers
	// can print the per-step table for failed runs too.
	summary.FinishedAt = time.Now().UTC()

	if stopErr != nil {
		if skipped := summary.Count(model.StatusSkipped); skipped > 0 {
			log.Warn("remaining steps skipped", zap.Int("skipped", skipped))
		}
		return summary, stopErr
	}

	log.Debug("run finished",
		zap.Int("succeeded", summary.Count(model.StatusSucceeded)),
		zap.Int("ignored", summary.Count(model.StatusIgnored)))
	return summary, nil
}

// execute performs a single step.
func (e *Executor) execute(ctx context.Context, caseDir string, step model.Step, log *zap.Logger) stepOutcome {
	switch step.Kind() {
	case model.StepRun:
		return e.runUtility(ctx, caseDir, step)

	case model.StepRemove:
		removed, err := RemoveIfExists(caseDir, step.Remove...)
		if len(removed) > 0 {
			log.Debug("removed", zap.Strings("paths", removed))
		}
		return stepOutcome{err: err}

	case model.StepCopy:
		return stepOutcome{err: CopyFile(caseDir, step.Copy.From, step.Copy.To)}

	case model.StepTouch:
		return stepOutcome{err: TouchFile(caseDir, step.Touch)}

	default:
		return stepOutcome{err: errors.New("step has no action")}
	}
}

// runUtility invokes an external utility through the toolchain.
func (e *Executor) runUtility(ctx context.Context, caseDir string, step model.Step) stepOutcome {
	tc := e.toolchain()

	name, args, err := tc.Command(step)
	if err != nil {
		return stepOutcome{exitCode: -1, err: err}
	}
	display, _ := tc.DisplayCommand(step)

	res, err := e.runner().Run(ctx, solver.Invocation{
		Dir:    caseDir,
		Name:   name,
		Args:   args,
		Env:    tc.Environ(),
		Stdout: e.Stdout,
		Stderr: e.Stderr,
		Step:   step.DisplayName(),
	})

	// A runner may return no result when the utility never started; that
	// is reported as exit code -1.
	out := stepOutcome{commandLine: display, err: err}
	if res != nil {
		out.exitCode = res.ExitCode
		out.stderrTail = res.StderrTail
	} else if err != nil {
		out.exitCode = -1
	}
	return out
}

// describe renders a step for dry runs and plans.
func (e *Executor) describe(step model.Step) string {
	return Describe(e.toolchain(), step)
}

// Describe renders what a step would do: the command line for run steps,
// a shell-like description for built-in actions.
func Describe(tc *solver.Toolchain, step model.Step) string {
	switch step.Kind() {
	case model.StepRun:
		line, err := tc.DisplayCommand(step)
		if err != nil {
			return step.Run
		}
		return line
	case model.StepRemove:
		// Globs are left unquoted so the line reads like the shell command.
		return "rm -rf " + strings.Join(step.Remove, " ")
	case model.StepCopy:
		return solver.JoinCommand("cp", []string{step.Copy.From, step.Copy.To})
	case model.StepTouch:
		return solver.JoinCommand("touch", []string{step.Touch})
	default:
		return ""
	}
}

func (e *Executor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Executor) runner() solver.Runner {
	if e.Runner == nil {
		return solver.NewExecRunner()
	}
	return e.Runner
}

func (e *Executor) toolchain() *solver.Toolchain {
	if e.Toolchain == nil {
		return solver.NewToolchain(model.Toolchain{})
	}
	return e.Toolchain
}
