// clone.go implements the "caserun clone" command.

package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/caserun/internal/casedir"
	"github.com/shinji-kodama/caserun/internal/model"
)

// NewCloneCommand creates the "clone" cobra command.
func NewCloneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clone <tutorial-dir> <run-dir>",
		Short: "Copy a tutorial case into a run directory",
		Long: `Copy a tutorial case into a fresh run directory so the installed
tutorial stays untouched. Results of earlier runs and symbolic links are
not copied. The run directory must not exist or must be empty.

Examples:
  caserun clone $SOLVER_TUTORIALS/multiphase/damBreak ./damBreak`,

		Args: cobra.ExactArgs(2),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runClone(args[0], args[1], cmd.OutOrStdout())
		},
	}
}

func runClone(src, dst string, stdout io.Writer) error {
	if err := casedir.Clone(src, dst); err != nil {
		// Validate already returns a CLIError for a non-case source.
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			return err
		}
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to clone %s into %s", src, dst), err)
	}

	absDst, err := filepath.Abs(dst)
	if err != nil {
		absDst = dst
	}
	VerboseLog("Cloned %s to %s", src, absDst)

	if IsJSONOutput() {
		return printJSON(stdout, map[string]interface{}{
			"source":  src,
			"caseDir": absDst,
		})
	}
	_, _ = fmt.Fprintf(stdout, "Cloned %s into %s\n", src, absDst)
	return nil
}
