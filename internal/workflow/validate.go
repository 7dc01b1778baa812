package workflow

import (
	"fmt"
	"strings"

	"github.com/shinji-kodama/caserun/internal/casedir"
	"github.com/shinji-kodama/caserun/internal/model"
)

// ValidationError is a single problem found in a workflow.
type ValidationError struct {
	// Step is the 0-based step index, or -1 for workflow-level fields.
	Step int

	// Field is the offending field (e.g. "run", "copy.from").
	Field string

	// Message describes what is wrong.
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("steps[%d].%s: %s", e.Step, e.Field, e.Message)
}

// Validate checks a workflow before anything runs. It returns every
// problem found (an empty list means the workflow is valid).
//
// Checks performed:
//   - the name, when set, is a valid workflow name
//   - there is at least one step
//   - every step has exactly one action
//   - utility names contain no whitespace and do not start with '-'
//   - modifier flags and args only appear on run steps
//   - every path is relative and stays inside the case directory
//   - toolchain environment keys are well formed
func Validate(wf *model.Workflow) []ValidationError {
	var errs []ValidationError
	add := func(step int, field, msg string) {
		errs = append(errs, ValidationError{Step: step, Field: field, Message: msg})
	}

	if wf.Name != "" {
		if err := model.ValidateName(wf.Name); err != nil {
			add(-1, "name", err.Error())
		}
	}

	if len(wf.Steps) == 0 {
		add(-1, "steps", "workflow has no steps")
	}

	for key := range wf.Toolchain.Env {
		if key == "" || strings.ContainsAny(key, "= \t") {
			add(-1, "toolchain.env", fmt.Sprintf("invalid environment variable name %q", key))
		}
	}
	if strings.ContainsAny(wf.Toolchain.Executable, "\n\r") {
		add(-1, "toolchain.executable", "must be a single line")
	}

	for i, step := range wf.Steps {
		switch n := step.ActionCount(); {
		case n == 0:
			add(i, "action", "step has no action (set one of run, remove, copy, touch)")
			continue
		case n > 1:
			add(i, "action", "step sets more than one of run, remove, copy, touch")
			continue
		}

		kind := step.Kind()
		if kind != model.StepRun {
			if step.Force || step.Parallel || step.LatestTime || len(step.Args) > 0 {
				add(i, "run", fmt.Sprintf("force, parallel, latestTime and args only apply to run steps, not %s", kind))
			}
		}

		switch kind {
		case model.StepRun:
			if strings.ContainsAny(step.Run, " \t\n\r") {
				add(i, "run", fmt.Sprintf("utility name %q must not contain whitespace; use args for arguments", step.Run))
			}
			if strings.HasPrefix(step.Run, "-") {
				add(i, "run", fmt.Sprintf("utility name %q must not start with '-'", step.Run))
			}

		case model.StepRemove:
			for j, p := range step.Remove {
				if msg := checkPath(p); msg != "" {
					add(i, fmt.Sprintf("remove[%d]", j), msg)
				}
			}

		case model.StepCopy:
			if msg := checkPath(step.Copy.From); msg != "" {
				add(i, "copy.from", msg)
			}
			if msg := checkPath(step.Copy.To); msg != "" {
				add(i, "copy.to", msg)
			}
			if step.Copy.From != "" && step.Copy.From == step.Copy.To {
				add(i, "copy", "from and to are the same file")
			}
			if casedir.HasGlob(step.Copy.From) || casedir.HasGlob(step.Copy.To) {
				add(i, "copy", "glob patterns are only supported in remove")
			}

		case model.StepTouch:
			if msg := checkPath(step.Touch); msg != "" {
				add(i, "touch", msg)
			}
		}
	}

	return errs
}

// checkPath returns a message if p is not a usable case-relative path.
func checkPath(p string) string {
	if strings.TrimSpace(p) == "" {
		return "path must not be empty"
	}
	// Only the string form matters here; the root is never touched.
	if _, err := casedir.Resolve("case", p); err != nil {
		return err.Error()
	}
	return ""
}

// Check runs Validate and folds the result into a single CLIError with
// ExitWorkflowNotFound, or returns nil for a valid workflow.
func Check(wf *model.Workflow) error {
	errs := Validate(wf)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i := range errs {
		msgs[i] = errs[i].Error()
	}
	return model.NewCLIError(
		model.ExitWorkflowNotFound,
		fmt.Sprintf("invalid workflow:\n  %s", strings.Join(msgs, "\n  ")),
	)
}
