package solver

import (
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/shinji-kodama/caserun/internal/model"
)

// Modifier flags understood by the solver-suite utilities.
const (
	// FlagForce lets utilities such as decomposePar overwrite earlier output.
	FlagForce = "-force"

	// FlagParallel runs a utility on the decomposed case.
	FlagParallel = "-parallel"

	// FlagLatestTime restricts a utility to the latest time directory.
	FlagLatestTime = "-latestTime"
)

// Platform captures the one piece of host detection the workflows need:
// whether the launcher must be started through the command shell.
type Platform struct {
	// GOOS is the operating system name as reported by runtime.GOOS.
	GOOS string
}

// CurrentPlatform returns the platform the binary is running on.
func CurrentPlatform() Platform {
	return Platform{GOOS: runtime.GOOS}
}

// IsWindows reports whether the platform is Windows.
func (p Platform) IsWindows() bool {
	return p.GOOS == "windows"
}

// Toolchain builds invocations for the solver-suite launcher.
//
// The launcher is usually a script (caelus.py). On Windows scripts are not
// directly executable, so the launcher is started through `cmd /C`; on
// other platforms it is executed directly unless Shell is set.
type Toolchain struct {
	// Settings are the launcher settings with defaults applied.
	Settings model.Toolchain

	// Platform decides whether the invocation goes through a shell.
	Platform Platform
}

// NewToolchain creates a Toolchain for the current platform.
func NewToolchain(settings model.Toolchain) *Toolchain {
	return &Toolchain{
		Settings: settings.WithDefaults(),
		Platform: CurrentPlatform(),
	}
}

// UtilityArgs returns the launcher arguments for a run step, in the order
// [log flag] <utility> [-force] [-parallel] [-latestTime] [extra args...].
//
// Returns an error if the step is not a run step.
func (t *Toolchain) UtilityArgs(step model.Step) ([]string, error) {
	if step.Kind() != model.StepRun {
		return nil, fmt.Errorf("step %q is not a run step", step.DisplayName())
	}

	args := make([]string, 0, len(step.Args)+5)
	if t.Settings.LogFlag != "" {
		args = append(args, t.Settings.LogFlag)
	}
	args = append(args, step.Run)
	if step.Force {
		args = append(args, FlagForce)
	}
	if step.Parallel {
		args = append(args, FlagParallel)
	}
	if step.LatestTime {
		args = append(args, FlagLatestTime)
	}
	args = append(args, step.Args...)
	return args, nil
}

// Command returns the executable and argument vector for a run step,
// wrapped in the platform shell when required.
func (t *Toolchain) Command(step model.Step) (string, []string, error) {
	args, err := t.UtilityArgs(step)
	if err != nil {
		return "", nil, err
	}
	exe := t.Settings.Executable

	switch {
	case t.Platform.IsWindows():
		return "cmd", append([]string{"/C", exe}, args...), nil
	case t.Settings.Shell:
		return "sh", []string{"-c", JoinCommand(exe, args)}, nil
	default:
		return exe, args, nil
	}
}

// DisplayCommand returns the launcher command line for a run step without
// any shell wrapping. This is what `caserun plan` prints.
func (t *Toolchain) DisplayCommand(step model.Step) (string, error) {
	args, err := t.UtilityArgs(step)
	if err != nil {
		return "", err
	}
	return JoinCommand(t.Settings.Executable, args), nil
}

// Environ returns the extra environment variables in KEY=VALUE form,
// sorted by key so that invocations are reproducible.
func (t *Toolchain) Environ() []string {
	keys := make([]string, 0, len(t.Settings.Env))
	for k := range t.Settings.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+t.Settings.Env[k])
	}
	return env
}

// CheckExecutable verifies that the launcher can be found on PATH.
// Returns a CLIError with ExitToolchainNotFound otherwise.
func (t *Toolchain) CheckExecutable() error {
	if _, err := exec.LookPath(t.Settings.Executable); err != nil {
		return model.WrapCLIError(
			model.ExitToolchainNotFound,
			fmt.Sprintf("solver launcher %q not found on PATH", t.Settings.Executable),
			err,
		)
	}
	return nil
}

// JoinCommand renders a command and its arguments as a single POSIX shell
// line, quoting only the arguments that need it.
func JoinCommand(name string, args []string) string {
	var b strings.Builder
	b.WriteString(shellQuote(name))
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(shellQuote(arg))
	}
	return b.String()
}

// shellQuote wraps value in single quotes when it contains characters the
// shell would interpret.
func shellQuote(value string) string {
	if value == "" {
		return "''"
	}
	if !strings.ContainsAny(value, " \t\n'\"\\$`*?[]{}()<>|&;#~") {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
