// presets.go implements the "caserun presets" command.

package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/caserun/internal/workflow"
)

// NewPresetsCommand creates the "presets" cobra command.
func NewPresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the built-in workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printPresets(cmd.OutOrStdout(), workflow.Presets())
		},
	}
}

// printPresets outputs the preset list as a table or as JSON:
//
//	NAME                DEFAULT SOLVER  STEPS
//	parallel            simpleSolver    mesh, decompose, solve in parallel, ...
func printPresets(w io.Writer, infos []workflow.PresetInfo) error {
	if IsJSONOutput() {
		return printJSON(w, map[string]interface{}{"presets": infos})
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tDEFAULT SOLVER\tSTEPS")
	for _, p := range infos {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.DefaultSolver, p.Description)
	}
	return tw.Flush()
}
