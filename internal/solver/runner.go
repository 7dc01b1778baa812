package solver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// stderrTailSize is how many trailing bytes of stderr are kept for error
// reports. Solver output can be gigabytes long; only the end of it is
// useful when explaining a failure.
const stderrTailSize = 4096

// ExitCodeNotFound is reported when the executable could not be found,
// following the shell convention.
const ExitCodeNotFound = 127

// waitDelay bounds how long Run waits for the output pipes to close after
// the process group was killed. A process that escaped the group (for
// example by starting its own session) could otherwise hold stderr open
// and block the run forever.
const waitDelay = 5 * time.Second

// Invocation is a single external process to run.
type Invocation struct {
	// Dir is the working directory, normally the case directory.
	Dir string

	// Name is the executable.
	Name string

	// Args are the command-line arguments.
	Args []string

	// Env holds extra KEY=VALUE entries added to the inherited environment.
	Env []string

	// Stdout and Stderr receive the process output as it is produced.
	// Nil writers discard the output.
	Stdout io.Writer
	Stderr io.Writer

	// Step is the workflow step name. Runners may use it for labelling.
	Step string
}

// Result describes a finished (or failed to start) process.
type Result struct {
	// ExitCode is the process exit code: 0 on success, 127 if the
	// executable was not found, -1 if the process never started or was
	// killed by a signal.
	ExitCode int

	// StderrTail holds the last bytes written to stderr.
	StderrTail string

	// Duration is the wall time between start and exit.
	Duration time.Duration
}

// Runner executes one invocation and blocks until it has finished.
//
// Implementations must return a non-nil Result even when err is non-nil,
// so callers can always report the exit code. When ctx is cancelled the
// process is killed and the returned error wraps ctx.Err().
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*Result, error)
}

// ExecRunner runs invocations as child processes of the current process.
type ExecRunner struct{}

// NewExecRunner creates a runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run starts the process, streams its output and waits for it to exit.
//
// The process runs in its own process group. Cancelling ctx kills the
// whole group, so a launcher script and the solver it started stop
// together.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	// Step 1: Build the command. The inherited environment comes first so
	// that toolchain entries override it.
	// #nosec G204 -- the command comes from the workflow the user asked to run
	cmd := exec.CommandContext(ctx, inv.Name, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = append(os.Environ(), inv.Env...)

	// Step 2: Replace the default cancel behaviour (kill the direct child
	// only) with a kill of the process tree.
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay

	// Step 3: Stream output. Only the tail of stderr is kept in memory.
	tail := NewTailBuffer(stderrTailSize)
	cmd.Stdout = writerOrDiscard(inv.Stdout)
	cmd.Stderr = io.MultiWriter(writerOrDiscard(inv.Stderr), tail)

	// Step 4: Run and wait. Run returns once the process has exited and
	// its output pipes are drained.
	start := time.Now()
	err := cmd.Run()
	result := &Result{
		ExitCode:   0,
		StderrTail: tail.String(),
		Duration:   time.Since(start),
	}
	if err == nil {
		return result, nil
	}

	// Step 5: Classify the failure. A cancelled context kills the process;
	// report that as the cause rather than the "signal: killed" error
	// from exec.
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, fmt.Errorf("%s interrupted: %w", inv.Name, ctxErr)
	}

	// A non-zero exit is the normal way for a utility to report failure.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, fmt.Errorf("%s exited with code %d: %w", inv.Name, result.ExitCode, err)
	}

	// LookPath failed inside exec; mirror the shell's 127.
	if errors.Is(err, exec.ErrNotFound) {
		result.ExitCode = ExitCodeNotFound
		return result, fmt.Errorf("%s not found: %w", inv.Name, err)
	}

	result.ExitCode = -1
	return result, fmt.Errorf("failed to start %s: %w", inv.Name, err)
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// TailBuffer is an io.Writer that keeps only the last max bytes written.
type TailBuffer struct {
	max int
	buf []byte
}

// NewTailBuffer creates a TailBuffer holding at most max bytes.
func NewTailBuffer(max int) *TailBuffer {
	return &TailBuffer{max: max}
}

// Write appends p and drops the oldest bytes beyond the limit.
// It never fails, so it can sit inside an io.MultiWriter.
func (b *TailBuffer) Write(p []byte) (int, error) {
	if len(p) >= b.max {
		b.buf = append(b.buf[:0], p[len(p)-b.max:]...)
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

// String returns the retained bytes.
func (b *TailBuffer) String() string {
	return string(b.buf)
}
