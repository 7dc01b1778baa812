// run.go implements the "caserun run" command.
//
// The run command resolves a workflow (a workflow file in the case
// directory or a built-in preset), validates it and executes its steps in
// order, either on the host or inside a container image.

package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shinji-kodama/caserun/internal/casedir"
	"github.com/shinji-kodama/caserun/internal/docker"
	"github.com/shinji-kodama/caserun/internal/model"
	"github.com/shinji-kodama/caserun/internal/pipeline"
	"github.com/shinji-kodama/caserun/internal/solver"
	"github.com/shinji-kodama/caserun/internal/workflow"
)

// runFlags holds the flag values for the run and plan commands.
type runFlags struct {
	// workflowPath points at a workflow file. Discovered in the case
	// directory when empty.
	workflowPath string

	// preset selects a built-in workflow instead of a file.
	preset string

	// solver and template parameterize the preset.
	solver   string
	template string

	dryRun     bool
	cleanFirst bool

	// runtime is "local" or "docker".
	runtime string
	image   string
	pull    bool
}

// NewRunCommand creates the "run" cobra command.
func NewRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [case-dir]",
		Short: "Run a case's workflow step by step",
		Long: `Run the workflow of a case directory. Steps run one at a time in order
and each one must finish before the next starts. The first failed required
step stops the run; later steps are reported as skipped.

The workflow comes from caserun.yaml (or .yml, .json, .jsonc, .toml) in the
case directory, from --workflow, or from a built-in --preset.

Examples:
  caserun run
  caserun run ./damBreak --preset setfields-parallel
  caserun run ./pitzDaily --preset serial --solver simpleSolver --clean-first
  caserun run ./cavity --runtime docker --image registry.example/solver:9 --pull`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), caseDirArg(args), flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	addWorkflowFlags(cmd, flags)
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print the steps without running them")
	cmd.Flags().StringVar(&flags.runtime, "runtime", pipeline.RuntimeLocal, "Where utilities run: local or docker")
	cmd.Flags().StringVar(&flags.image, "image", "", "Container image with the solver suite (docker runtime)")
	cmd.Flags().BoolVar(&flags.pull, "pull", false, "Pull the image before the first step (docker runtime)")

	return cmd
}

// addWorkflowFlags registers the flags shared by run and plan.
func addWorkflowFlags(cmd *cobra.Command, flags *runFlags) {
	cmd.Flags().StringVarP(&flags.workflowPath, "workflow", "w", "", "Workflow file (default: discovered in the case directory)")
	cmd.Flags().StringVarP(&flags.preset, "preset", "p", "", "Built-in workflow to use instead of a file")
	cmd.Flags().StringVar(&flags.solver, "solver", "", "Solver utility for the preset")
	cmd.Flags().StringVar(&flags.template, "template", "", "Field initialized from 0/<field>.org by setfields presets")
	cmd.Flags().BoolVar(&flags.cleanFirst, "clean-first", false, "Remove previous results before the first step")
}

// caseDirArg returns the case directory argument, defaulting to ".".
func caseDirArg(args []string) string {
	if len(args) == 0 {
		return "."
	}
	return args[0]
}

// runRun is the main logic function for the run and plan commands.
func runRun(ctx context.Context, caseDir string, flags *runFlags, stdout, stderr io.Writer) error {
	// Step 1: The directory must be a case before anything else is resolved.
	if err := casedir.Validate(caseDir); err != nil {
		return err
	}

	// Step 2: Resolve and validate the workflow.
	wf, source, err := resolveWorkflow(caseDir, flags)
	if err != nil {
		return err
	}
	if err := workflow.Check(wf); err != nil {
		return err
	}
	VerboseLog("Using workflow %q from %s (%d steps)", wf.Name, source, len(wf.Steps))

	if flags.cleanFirst {
		cleanSteps, err := casedir.CleanSteps(caseDir, casedir.DefaultCleanOptions())
		if err != nil {
			return model.WrapCLIError(model.ExitCaseInvalid, "failed to list previous results", err)
		}
		wf.Steps = append(cleanSteps, wf.Steps...)
	}

	// Step 3: Pick the runtime.
	runID := uuid.NewString()
	exec := &pipeline.Executor{
		Logger: Logger(),
		DryRun: flags.dryRun,
		Stdout: stdout,
		Stderr: stderr,
		RunID:  runID,
	}
	// Solver output must not interleave with the JSON document.
	if IsJSONOutput() {
		exec.Stdout = stderr
	}

	switch flags.runtime {
	case pipeline.RuntimeLocal:
		exec.Runtime = pipeline.RuntimeLocal
		exec.Toolchain = solver.NewToolchain(wf.Toolchain)
		if !flags.dryRun {
			if err := exec.Toolchain.CheckExecutable(); err != nil {
				return err
			}
		}

	case pipeline.RuntimeDocker:
		if flags.image == "" {
			return model.NewCLIError(model.ExitGeneralError, "--image is required with --runtime docker")
		}
		exec.Runtime = pipeline.RuntimeDocker
		// Utilities run in a Linux container regardless of the host.
		exec.Toolchain = &solver.Toolchain{
			Settings: wf.Toolchain.WithDefaults(),
			Platform: solver.Platform{GOOS: "linux"},
		}
		if !flags.dryRun {
			cli, err := docker.NewClient()
			if err != nil {
				return err
			}
			defer func() { _ = cli.Close() }()

			if err := cli.Ping(ctx); err != nil {
				return err
			}
			VerboseLog("Connected to Docker daemon")

			exec.Runner = &docker.ContainerRunner{
				Client:   cli,
				Image:    flags.image,
				Pull:     flags.pull,
				RunID:    runID,
				Workflow: wf.Name,
				Logger:   Logger(),
			}
		}

	default:
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid runtime %q: valid values are local, docker", flags.runtime))
	}

	// Step 4: Execute. The summary is printed whether or not a step failed.
	summary, runErr := exec.RunWorkflow(ctx, caseDir, wf)
	if summary != nil {
		if err := printRunSummary(stdout, summary); err != nil {
			return err
		}
	}
	if runErr != nil {
		Logger().Debug("run stopped", zap.Error(runErr))
	}
	return runErr
}

// resolveWorkflow returns the workflow selected by the flags and a short
// description of where it came from.
func resolveWorkflow(caseDir string, flags *runFlags) (*model.Workflow, string, error) {
	if flags.workflowPath != "" && flags.preset != "" {
		return nil, "", model.NewCLIError(model.ExitGeneralError, "--workflow and --preset cannot be used together")
	}

	if flags.preset != "" {
		absDir, err := filepath.Abs(caseDir)
		if err != nil {
			return nil, "", model.WrapCLIError(model.ExitCaseInvalid, "failed to resolve case directory", err)
		}
		wf, err := workflow.Preset(flags.preset, workflow.PresetOptions{
			Name:     model.SanitizeName(filepath.Base(absDir)),
			Marker:   casedir.MarkerName(absDir),
			Solver:   flags.solver,
			Template: flags.template,
		})
		if err != nil {
			return nil, "", err
		}
		return wf, "preset " + flags.preset, nil
	}

	if flags.solver != "" || flags.template != "" {
		return nil, "", model.NewCLIError(model.ExitGeneralError, "--solver and --template only apply to --preset")
	}

	path := flags.workflowPath
	if path == "" {
		found, err := workflow.Find(caseDir)
		if err != nil {
			return nil, "", err
		}
		path = found
	}

	wf, err := workflow.Load(path)
	if err != nil {
		return nil, "", err
	}
	return wf, path, nil
}

// runSummaryJSON is the JSON output of run, plan and clean.
type runSummaryJSON struct {
	*model.RunSummary
	Succeeded bool `json:"succeeded"`
}

// printRunSummary outputs a run summary in text or JSON format.
func printRunSummary(w io.Writer, summary *model.RunSummary) error {
	if IsJSONOutput() {
		return printJSON(w, runSummaryJSON{RunSummary: summary, Succeeded: summary.Succeeded()})
	}
	printRunSummaryText(w, summary)
	return nil
}

// printRunSummaryText outputs one line per step:
//
//	Workflow damBreak in /home/user/run/damBreak (local)
//	  ok       1. mesh         caelus.py -l blockMesh  0.8s
//	  failed   2. solve        caelus.py -l vofSolver  12.1s
//	  skipped  3. marker       touch damBreak.foam
//	1 succeeded, 1 failed, 1 skipped
func printRunSummaryText(w io.Writer, summary *model.RunSummary) {
	name := summary.Workflow
	if name == "" {
		name = "(unnamed)"
	}
	header := "Workflow"
	if summary.DryRun {
		header = "Plan for workflow"
	}
	_, _ = fmt.Fprintf(w, "%s %s in %s (%s)\n", header, name, summary.CaseDir, summary.Runtime)

	nameWidth := 4
	for _, r := range summary.Results {
		if len(r.Name) > nameWidth {
			nameWidth = len(r.Name)
		}
	}

	for _, r := range summary.Results {
		line := fmt.Sprintf("  %-8s %2d. %-*s  %s", statusLabel(r.Status), r.Index+1, nameWidth, r.Name, r.CommandLine)
		if r.Status == model.StatusSucceeded || r.Status == model.StatusFailed || r.Status == model.StatusIgnored {
			line += "  " + FormatDuration(r.Duration)
		}
		_, _ = fmt.Fprintln(w, line)
	}

	if summary.DryRun {
		_, _ = fmt.Fprintf(w, "%d steps planned, nothing was run\n", summary.Count(model.StatusPlanned))
		return
	}
	_, _ = fmt.Fprintln(w, FormatCounts(summary))
}

// statusLabel shortens the status for the text table.
func statusLabel(s model.StepStatus) string {
	if s == model.StatusSucceeded {
		return "ok"
	}
	return s.String()
}

// FormatCounts summarizes a run as "N succeeded, N failed, ...", listing
// only the statuses that occurred.
func FormatCounts(summary *model.RunSummary) string {
	order := []model.StepStatus{
		model.StatusSucceeded,
		model.StatusIgnored,
		model.StatusFailed,
		model.StatusSkipped,
		model.StatusPlanned,
	}

	out := ""
	for _, status := range order {
		n := summary.Count(status)
		if n == 0 {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%d %s", n, status)
	}
	if out == "" {
		return "no steps"
	}
	return out
}

// FormatDuration rounds a step duration for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

