// clean.go implements the "caserun clean" command.
//
// The clean command resets a case to its pre-run state: time directories
// after the initial one, processor directories, logs, postProcessing and
// the marker file. --mesh and --templates widen the reset.

package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/caserun/internal/casedir"
	"github.com/shinji-kodama/caserun/internal/model"
	"github.com/shinji-kodama/caserun/internal/pipeline"
)

// cleanFlags holds the flag values for the clean command.
type cleanFlags struct {
	mesh        bool
	templates   bool
	keepInitial bool
	dryRun      bool
}

// NewCleanCommand creates the "clean" cobra command.
func NewCleanCommand() *cobra.Command {
	flags := &cleanFlags{}

	cmd := &cobra.Command{
		Use:   "clean [case-dir]",
		Short: "Remove the results of earlier runs",
		Long: `Remove the results of earlier runs from a case directory. Paths that
do not exist are ignored, so cleaning a clean case changes nothing.

Examples:
  caserun clean
  caserun clean ./damBreak --mesh --templates
  caserun clean --dry-run`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd.Context(), caseDirArg(args), flags, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&flags.mesh, "mesh", false, "Also remove the generated mesh (constant/polyMesh)")
	cmd.Flags().BoolVar(&flags.templates, "templates", false, "Also remove initial fields created from <field>.org templates")
	cmd.Flags().BoolVar(&flags.keepInitial, "keep-initial", true, "Keep the initial time directory 0")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print what would be removed")

	return cmd
}

// runClean builds the remove steps and runs them through the executor,
// so cleaning reports the same way a workflow run does.
func runClean(ctx context.Context, caseDir string, flags *cleanFlags, stdout io.Writer) error {
	if err := casedir.Validate(caseDir); err != nil {
		return err
	}

	steps, err := casedir.CleanSteps(caseDir, casedir.CleanOptions{
		KeepInitial: flags.keepInitial,
		Mesh:        flags.mesh,
		Templates:   flags.templates,
	})
	if err != nil {
		return model.WrapCLIError(model.ExitCaseInvalid, "failed to list case contents", err)
	}
	VerboseLog("Cleaning %s with %d remove steps", caseDir, len(steps))

	exec := &pipeline.Executor{
		Logger:  Logger(),
		DryRun:  flags.dryRun,
		Runtime: pipeline.RuntimeLocal,
	}
	summary, runErr := exec.Run(ctx, caseDir, steps)
	if summary != nil {
		summary.Workflow = "clean"
		if err := printRunSummary(stdout, summary); err != nil {
			return err
		}
	}
	return runErr
}
