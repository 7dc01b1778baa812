// init.go implements the "caserun init" command.
//
// The init command writes a workflow file into a case directory from one
// of the built-in presets, so the steps can be reviewed and edited before
// the first run.

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shinji-kodama/caserun/internal/casedir"
	"github.com/shinji-kodama/caserun/internal/model"
	"github.com/shinji-kodama/caserun/internal/workflow"
)

// initFlags holds the flag values for the init command.
type initFlags struct {
	format   string
	force    bool
	preset   string
	solver   string
	template string
}

// NewInitCommand creates the "init" cobra command.
func NewInitCommand() *cobra.Command {
	flags := &initFlags{}

	cmd := &cobra.Command{
		Use:   "init [case-dir]",
		Short: "Write a workflow file from a preset",
		Long: `Write caserun.yaml (or caserun.json / caserun.toml with --format) into a
case directory. The file starts from a built-in preset and can be edited
freely afterwards.

Examples:
  caserun init --preset parallel --solver pisoSolver
  caserun init ./damBreak --preset setfields --format toml
  caserun init --force`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(caseDirArg(args), flags, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&flags.format, "format", string(workflow.FormatYAML), "File format: yaml, json or toml")
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Overwrite an existing workflow file")
	cmd.Flags().StringVarP(&flags.preset, "preset", "p", "serial", "Preset to start from")
	cmd.Flags().StringVar(&flags.solver, "solver", "", "Solver utility for the preset")
	cmd.Flags().StringVar(&flags.template, "template", "", "Field initialized from 0/<field>.org by setfields presets")

	return cmd
}

func runInit(caseDir string, flags *initFlags, stdout io.Writer) error {
	if err := casedir.Validate(caseDir); err != nil {
		return err
	}

	format, err := workflow.ParseFormat(flags.format)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "invalid --format", err)
	}

	absDir, err := filepath.Abs(caseDir)
	if err != nil {
		return model.WrapCLIError(model.ExitCaseInvalid, "failed to resolve case directory", err)
	}

	wf, err := workflow.Preset(flags.preset, workflow.PresetOptions{
		Name:     model.SanitizeName(filepath.Base(absDir)),
		Marker:   casedir.MarkerName(absDir),
		Solver:   flags.solver,
		Template: flags.template,
	})
	if err != nil {
		return err
	}
	if err := workflow.Check(wf); err != nil {
		return err
	}

	path := filepath.Join(absDir, workflow.DefaultFileName(format))
	if _, err := os.Stat(path); err == nil && !flags.force {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("%s already exists (use --force to overwrite)", path))
	}

	// A file earlier in the search order would shadow the new one.
	if existing, err := workflow.Find(absDir); err == nil && existing != path {
		Logger().Warn("another workflow file takes precedence",
			zap.String("existing", existing),
			zap.String("written", path))
	}

	data, err := workflow.Marshal(wf, format)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to render workflow", err)
	}
	if err := workflow.Write(path, data); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to write workflow file", err)
	}

	if IsJSONOutput() {
		return printJSON(stdout, map[string]interface{}{
			"path":     path,
			"workflow": wf.Name,
			"preset":   flags.preset,
			"format":   string(format),
			"steps":    len(wf.Steps),
		})
	}
	_, _ = fmt.Fprintf(stdout, "Wrote %s (preset %s, %d steps)\n", path, flags.preset, len(wf.Steps))
	return nil
}

