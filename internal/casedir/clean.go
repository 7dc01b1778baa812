package casedir

import (
	"fmt"

	"github.com/shinji-kodama/caserun/internal/model"
)

// CleanOptions selects what CleanSteps removes in addition to the solver
// results, which are always removed.
type CleanOptions struct {
	// KeepInitial keeps the initial time directory "0". Callers almost
	// always want this; turning it off wipes every time directory.
	KeepInitial bool

	// Mesh removes the generated mesh (constant/polyMesh).
	Mesh bool

	// Templates removes initial-condition files that were produced from a
	// <field>.org template, leaving the template in place.
	Templates bool
}

// DefaultCleanOptions returns the options used by `caserun clean` without
// flags and by `run --clean-first`.
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{KeepInitial: true}
}

// CleanSteps builds the remove steps that reset a case to its pre-run
// state. The listing of time directories happens now, so the steps
// reflect the case as it is when they are built.
//
// Every path is removed only if present: running the steps on an already
// clean case succeeds and changes nothing.
func CleanSteps(dir string, opts CleanOptions) ([]model.Step, error) {
	times, err := TimeDirs(dir)
	if err != nil {
		return nil, err
	}

	var results []string
	for _, t := range times {
		if opts.KeepInitial && isInitialTime(t) {
			continue
		}
		results = append(results, t)
	}
	results = append(results, ProcessorGlob, LogGlob, PostProcessing, MarkerName(dir))

	steps := []model.Step{{
		Name:   "remove results",
		Remove: results,
	}}

	if opts.Mesh {
		steps = append(steps, model.Step{
			Name:   "remove mesh",
			Remove: []string{PolyMeshDir},
		})
	}

	if opts.Templates && opts.KeepInitial {
		templates, err := Templates(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to list templates: %w", err)
		}
		var targets []string
		for _, tpl := range templates {
			targets = append(targets, tpl.To)
		}
		if len(targets) > 0 {
			steps = append(steps, model.Step{
				Name:   "remove initialized fields",
				Remove: targets,
			})
		}
	}

	return steps, nil
}

// isInitialTime reports whether a time name denotes t=0 ("0", "0.0", "0e0").
func isInitialTime(name string) bool {
	v, ok := ParseTime(name)
	return ok && v == 0
}
