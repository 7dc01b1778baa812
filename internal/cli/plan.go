// plan.go implements the "caserun plan" command.

package cli

import (
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/caserun/internal/pipeline"
)

// NewPlanCommand creates the "plan" cobra command. It resolves the same
// workflow as run and prints the command sequence without executing it
// or requiring the solver launcher to be installed.
func NewPlanCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "plan [case-dir]",
		Short: "Print the resolved command sequence",
		Long: `Print the steps a run would execute, with the exact command line of
every utility invocation. Nothing in the case directory is changed.

Examples:
  caserun plan
  caserun plan ./damBreak --preset setfields-parallel --json`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			flags.dryRun = true
			flags.runtime = pipeline.RuntimeLocal
			return runRun(cmd.Context(), caseDirArg(args), flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	addWorkflowFlags(cmd, flags)

	return cmd
}
