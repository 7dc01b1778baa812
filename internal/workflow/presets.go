package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shinji-kodama/caserun/internal/casedir"
	"github.com/shinji-kodama/caserun/internal/model"
)

// Default preset parameters.
const (
	DefaultSolver         = "simpleSolver"
	DefaultSetFieldsField = "alpha1"
	DefaultSetFieldsSolve = "vofSolver"
)

// PresetOptions parameterizes a preset.
type PresetOptions struct {
	// Name becomes the workflow name; usually the case directory name.
	Name string

	// Solver is the solver utility. Each preset has its own default.
	Solver string

	// Template is the field initialized from 0/<Template>.org by the
	// setfields presets. Defaults to alpha1.
	Template string

	// Marker is the visualization marker file. Defaults to "<Name>.foam".
	Marker string
}

// PresetInfo describes a preset for `caserun presets`.
type PresetInfo struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	DefaultSolver string `json:"defaultSolver"`
}

type presetDef struct {
	info  PresetInfo
	build func(opts PresetOptions) []model.Step
}

var presets = map[string]presetDef{
	"serial": {
		info: PresetInfo{
			Name:          "serial",
			Description:   "mesh, solve on one core, write marker",
			DefaultSolver: DefaultSolver,
		},
		build: func(o PresetOptions) []model.Step {
			return []model.Step{
				meshStep(),
				{Name: "solve", Run: o.Solver},
				markerStep(o.Marker),
			}
		},
	},
	"parallel": {
		info: PresetInfo{
			Name:          "parallel",
			Description:   "mesh, decompose, solve in parallel, reconstruct latest time, write marker",
			DefaultSolver: DefaultSolver,
		},
		build: func(o PresetOptions) []model.Step {
			steps := []model.Step{meshStep()}
			steps = append(steps, parallelSolve(o.Solver)...)
			return append(steps, markerStep(o.Marker))
		},
	},
	"setfields": {
		info: PresetInfo{
			Name:          "setfields",
			Description:   "mesh, initialize a field from its .org template, setFields, solve, write marker",
			DefaultSolver: DefaultSetFieldsSolve,
		},
		build: func(o PresetOptions) []model.Step {
			steps := []model.Step{meshStep()}
			steps = append(steps, initFields(o.Template)...)
			steps = append(steps, model.Step{Name: "solve", Run: o.Solver})
			return append(steps, markerStep(o.Marker))
		},
	},
	"setfields-parallel": {
		info: PresetInfo{
			Name:          "setfields-parallel",
			Description:   "setfields followed by decompose, parallel solve and reconstruction",
			DefaultSolver: DefaultSetFieldsSolve,
		},
		build: func(o PresetOptions) []model.Step {
			steps := []model.Step{meshStep()}
			steps = append(steps, initFields(o.Template)...)
			steps = append(steps, parallelSolve(o.Solver)...)
			return append(steps, markerStep(o.Marker))
		},
	},
}

// Presets lists the built-in presets sorted by name.
func Presets() []PresetInfo {
	infos := make([]PresetInfo, 0, len(presets))
	for _, p := range presets {
		infos = append(infos, p.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// PresetNames returns the preset names sorted.
func PresetNames() []string {
	var names []string
	for _, p := range Presets() {
		names = append(names, p.Name)
	}
	return names
}

// Preset builds the workflow of a built-in preset.
//
// Returns a CLIError with ExitWorkflowNotFound for unknown names.
func Preset(name string, opts PresetOptions) (*model.Workflow, error) {
	def, ok := presets[strings.ToLower(name)]
	if !ok {
		return nil, model.NewCLIError(
			model.ExitWorkflowNotFound,
			fmt.Sprintf("unknown preset %q (available: %s)", name, strings.Join(PresetNames(), ", ")),
		)
	}

	if opts.Solver == "" {
		opts.Solver = def.info.DefaultSolver
	}
	if opts.Template == "" {
		opts.Template = DefaultSetFieldsField
	}
	if opts.Marker == "" {
		base := opts.Name
		if base == "" {
			base = "case"
		}
		opts.Marker = base + casedir.MarkerExt
	}

	return &model.Workflow{
		Name:        opts.Name,
		Description: fmt.Sprintf("%s preset: %s", def.info.Name, def.info.Description),
		Steps:       def.build(opts),
	}, nil
}

func meshStep() model.Step {
	return model.Step{Name: "mesh", Run: "blockMesh"}
}

func parallelSolve(solver string) []model.Step {
	return []model.Step{
		{Name: "decompose", Run: "decomposePar", Force: true},
		{Name: "solve", Run: solver, Parallel: true},
		{Name: "reconstruct", Run: "reconstructPar", LatestTime: true},
	}
}

func initFields(field string) []model.Step {
	initial := casedir.InitialTimeDir + "/" + field
	return []model.Step{
		{Name: "restore " + field, Copy: &model.CopySpec{From: initial + casedir.TemplateSuffix, To: initial}},
		{Name: "set fields", Run: "setFields"},
	}
}

func markerStep(marker string) model.Step {
	return model.Step{Name: "marker", Touch: marker}
}
