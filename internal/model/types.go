package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// StepKind identifies what a single workflow step does.
//
// A tutorial workflow only ever needs four kinds of actions:
//
//	run    → invoke a solver-suite utility and wait for it
//	remove → delete files/directories, ignoring ones that do not exist
//	copy   → copy a template file (e.g. 0/alpha1.org) to an initial-condition file
//	touch  → create an empty marker file for the visualization tool
type StepKind string

const (
	// StepRun invokes an external utility through the toolchain.
	StepRun StepKind = "run"

	// StepRemove deletes paths relative to the case directory.
	StepRemove StepKind = "remove"

	// StepCopy copies a template file to its target.
	StepCopy StepKind = "copy"

	// StepTouch creates an empty file.
	StepTouch StepKind = "touch"
)

// String returns the string representation of StepKind.
func (k StepKind) String() string {
	return string(k)
}

// IsValid checks whether the StepKind value is one of the predefined kinds.
func (k StepKind) IsValid() bool {
	switch k {
	case StepRun, StepRemove, StepCopy, StepTouch:
		return true
	default:
		return false
	}
}

// ParseStepKind converts a string to a StepKind.
// Returns an error if the string does not match any valid kind.
func ParseStepKind(s string) (StepKind, error) {
	kind := StepKind(strings.ToLower(s))
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid step kind: %q (valid: run, remove, copy, touch)", s)
	}
	return kind, nil
}

// CopySpec describes a template copy. Both paths are relative to the
// case directory.
type CopySpec struct {
	// From is the template file, conventionally "<field>.org".
	From string `json:"from" yaml:"from" toml:"from"`

	// To is the initial-condition file that the solver reads.
	To string `json:"to" yaml:"to" toml:"to"`
}

// Step is one entry of a workflow. Exactly one of Run, Remove, Copy or
// Touch must be set; Kind derives the step kind from whichever is present.
//
// The field tags cover all three workflow file formats (YAML, JSON, TOML)
// so the same struct is decoded regardless of the file extension.
type Step struct {
	// Name is an optional label shown in logs and results.
	// When empty, DisplayName falls back to a description of the action.
	Name string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`

	// Run is the name of the solver-suite utility to invoke
	// (e.g. "blockMesh", "decomposePar", "simpleSolver").
	Run string `json:"run,omitempty" yaml:"run,omitempty" toml:"run,omitempty"`

	// Args are extra arguments appended after the modifier flags.
	Args []string `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`

	// Force adds the force-overwrite flag (-force).
	Force bool `json:"force,omitempty" yaml:"force,omitempty" toml:"force,omitempty"`

	// Parallel adds the parallel-mode flag (-parallel).
	Parallel bool `json:"parallel,omitempty" yaml:"parallel,omitempty" toml:"parallel,omitempty"`

	// LatestTime adds the latest-time-only flag (-latestTime).
	LatestTime bool `json:"latestTime,omitempty" yaml:"latestTime,omitempty" toml:"latestTime,omitempty"`

	// Required controls whether a failure stops the workflow.
	// A nil pointer means "required", so workflow files only need to
	// spell out `required: false` for best-effort steps.
	Required *bool `json:"required,omitempty" yaml:"required,omitempty" toml:"required,omitempty"`

	// Remove lists paths (glob patterns allowed) to delete if present.
	Remove []string `json:"remove,omitempty" yaml:"remove,omitempty" toml:"remove,omitempty"`

	// Copy describes a template copy.
	Copy *CopySpec `json:"copy,omitempty" yaml:"copy,omitempty" toml:"copy,omitempty"`

	// Touch is the path of an empty marker file to create.
	Touch string `json:"touch,omitempty" yaml:"touch,omitempty" toml:"touch,omitempty"`
}

// Kind returns the kind of the step. If more than one action field is set,
// the first one in the order run, remove, copy, touch wins; Validate in the
// workflow package rejects such steps before they reach the runner.
// Returns an empty StepKind if no action is set.
func (s Step) Kind() StepKind {
	switch {
	case s.Run != "":
		return StepRun
	case len(s.Remove) > 0:
		return StepRemove
	case s.Copy != nil:
		return StepCopy
	case s.Touch != "":
		return StepTouch
	default:
		return ""
	}
}

// ActionCount returns how many action fields are set on the step.
func (s Step) ActionCount() int {
	n := 0
	if s.Run != "" {
		n++
	}
	if len(s.Remove) > 0 {
		n++
	}
	if s.Copy != nil {
		n++
	}
	if s.Touch != "" {
		n++
	}
	return n
}

// IsRequired reports whether a failure of this step must stop the workflow.
func (s Step) IsRequired() bool {
	return s.Required == nil || *s.Required
}

// DisplayName returns a short human-readable label for the step.
func (s Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	switch s.Kind() {
	case StepRun:
		return s.Run
	case StepRemove:
		return "remove " + strings.Join(s.Remove, " ")
	case StepCopy:
		return fmt.Sprintf("copy %s -> %s", s.Copy.From, s.Copy.To)
	case StepTouch:
		return "touch " + s.Touch
	default:
		return "(empty step)"
	}
}

// Bool returns a pointer to b. It is used to fill optional fields such as
// Step.Required in presets and tests.
func Bool(b bool) *bool {
	return &b
}

// Default toolchain values. They match the launcher shipped with the
// solver suite: `caelus.py -l <utility> ...`.
const (
	DefaultExecutable = "caelus.py"
	DefaultLogFlag    = "-l"
)

// Toolchain describes how the solver suite is invoked.
type Toolchain struct {
	// Executable is the launcher binary or script name.
	Executable string `json:"executable,omitempty" yaml:"executable,omitempty" toml:"executable,omitempty"`

	// LogFlag makes the launcher write a per-utility log file in the case
	// directory. Set NoLog to omit it.
	LogFlag string `json:"logFlag,omitempty" yaml:"logFlag,omitempty" toml:"logFlag,omitempty"`

	// NoLog drops the logging flag from every invocation.
	NoLog bool `json:"noLog,omitempty" yaml:"noLog,omitempty" toml:"noLog,omitempty"`

	// Shell forces launching through the platform shell even on platforms
	// that would otherwise exec the launcher directly.
	Shell bool `json:"shell,omitempty" yaml:"shell,omitempty" toml:"shell,omitempty"`

	// Env holds extra environment variables for every invocation.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`
}

// WithDefaults returns a copy of the toolchain with empty fields filled in.
func (t Toolchain) WithDefaults() Toolchain {
	if t.Executable == "" {
		t.Executable = DefaultExecutable
	}
	if t.LogFlag == "" && !t.NoLog {
		t.LogFlag = DefaultLogFlag
	}
	if t.NoLog {
		t.LogFlag = ""
	}
	return t
}

// Workflow is a named, ordered list of steps plus the toolchain settings
// used to run them. It is the in-memory form of a caserun.yaml file.
type Workflow struct {
	// Name identifies the workflow in output; usually the case name.
	Name string `json:"name" yaml:"name" toml:"name"`

	// Description is free text shown by `caserun plan`.
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`

	// Toolchain overrides the launcher settings.
	Toolchain Toolchain `json:"toolchain,omitempty" yaml:"toolchain,omitempty" toml:"toolchain,omitempty"`

	// Steps run strictly in order.
	Steps []Step `json:"steps" yaml:"steps" toml:"steps"`
}

// nameRegex validates workflow names: letters, digits, dots, underscores
// and hyphens, starting with a letter or digit. Solver tutorial names such
// as "pitzDaily" or "damBreak_fine" are all accepted.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidateName checks if the given name is a valid workflow name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("workflow name must not be empty")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid workflow name %q: must contain only letters, digits, '.', '_' or '-' and start with a letter or digit", name)
	}
	return nil
}

// nameInvalidChars matches runs of characters a workflow name cannot hold.
var nameInvalidChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeName turns an arbitrary string, typically a case directory's
// base name, into a name that passes ValidateName. Runs of other
// characters become a single hyphen and leading punctuation is dropped.
// Returns "case" when nothing usable is left.
func SanitizeName(s string) string {
	name := nameInvalidChars.ReplaceAllString(s, "-")
	name = strings.TrimLeft(name, "._-")
	name = strings.TrimRight(name, "-")
	if name == "" {
		return "case"
	}
	return name
}

// StepStatus is the outcome of a single step.
type StepStatus string

const (
	// StatusSucceeded means the step completed without error.
	StatusSucceeded StepStatus = "succeeded"

	// StatusFailed means a required step failed and stopped the workflow.
	StatusFailed StepStatus = "failed"

	// StatusIgnored means a non-required step failed and the workflow went on.
	StatusIgnored StepStatus = "ignored"

	// StatusSkipped means the step never ran because an earlier step failed
	// or the run was cancelled.
	StatusSkipped StepStatus = "skipped"

	// StatusPlanned means the step was only printed (dry run).
	StatusPlanned StepStatus = "planned"
)

// String returns the string representation of StepStatus.
func (s StepStatus) String() string {
	return string(s)
}

// StepResult records what happened to a single step.
type StepResult struct {
	// Index is the 0-based position of the step in the workflow.
	Index int `json:"index"`

	// Name is the step's display name.
	Name string `json:"name"`

	// Kind is the step kind.
	Kind StepKind `json:"kind"`

	// Status is the outcome.
	Status StepStatus `json:"status"`

	// CommandLine is the rendered command for run steps.
	CommandLine string `json:"commandLine,omitempty"`

	// ExitCode is the process exit code for run steps (-1 if the process
	// never started or was killed).
	ExitCode int `json:"exitCode"`

	// Duration is the wall time the step took.
	Duration time.Duration `json:"duration"`

	// Error is the failure message, if any.
	Error string `json:"error,omitempty"`
}

// RunSummary is the result of executing a workflow against a case directory.
type RunSummary struct {
	// RunID uniquely identifies this execution.
	RunID string `json:"runId"`

	// CaseDir is the absolute case directory path.
	CaseDir string `json:"caseDir"`

	// Workflow is the workflow name.
	Workflow string `json:"workflow"`

	// Runtime is "local" or "docker".
	Runtime string `json:"runtime"`

	// DryRun is true when no step was actually executed.
	DryRun bool `json:"dryRun,omitempty"`

	// StartedAt and FinishedAt bracket the run.
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	// Results holds one entry per workflow step, in order.
	Results []StepResult `json:"results"`
}

// Succeeded reports whether no step ended in StatusFailed and no step was
// skipped because of a failure or cancellation.
func (r *RunSummary) Succeeded() bool {
	for _, res := range r.Results {
		if res.Status == StatusFailed || res.Status == StatusSkipped {
			return false
		}
	}
	return true
}

// FirstFailure returns the first failed step result, or nil.
func (r *RunSummary) FirstFailure() *StepResult {
	for i := range r.Results {
		if r.Results[i].Status == StatusFailed {
			return &r.Results[i]
		}
	}
	return nil
}

// Count returns how many results have the given status.
func (r *RunSummary) Count(status StepStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// ContainerInfo holds runtime information about a Docker container started
// by the docker runtime. It is fetched from the Docker API, never persisted.
type ContainerInfo struct {
	// ContainerID is the unique Docker container identifier.
	ContainerID string `json:"containerId"`

	// ContainerName is the human-readable Docker container name.
	ContainerName string `json:"containerName"`

	// Image is the image the container was created from.
	Image string `json:"image"`

	// Status is the Docker container state (e.g., "running", "exited").
	Status string `json:"status"`

	// RunID, CaseDir and Step are reconstructed from caserun labels.
	RunID   string `json:"runId,omitempty"`
	CaseDir string `json:"caseDir,omitempty"`
	Step    string `json:"step,omitempty"`

	// CreatedAt is parsed from the created-at label.
	CreatedAt time.Time `json:"createdAt,omitempty"`

	// Labels is the full set of Docker labels on the container.
	Labels map[string]string `json:"labels,omitempty"`
}

// ExitCode defines standard CLI exit codes.
// These codes allow scripts and CI systems to programmatically determine
// the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitWorkflowNotFound indicates no workflow file or preset was found,
	// or the workflow file could not be parsed.
	ExitWorkflowNotFound ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitCaseInvalid indicates the directory is not a solver case.
	ExitCaseInvalid ExitCode = 4

	// ExitStepFailed indicates a required workflow step failed.
	ExitStepFailed ExitCode = 5

	// ExitToolchainNotFound indicates the solver launcher is not on PATH.
	ExitToolchainNotFound ExitCode = 6

	// ExitUserCancelled indicates the user cancelled an interactive prompt
	// or interrupted the run.
	ExitUserCancelled ExitCode = 7
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
