// containers.go implements the "caserun containers" command.
//
// The docker runtime removes every step container when the step ends. A
// run that is killed hard (SIGKILL, a crashed daemon connection) can leave
// containers behind; they keep the caserun labels, so this command lists
// them and --prune removes them.
//
// By default, --prune prompts for confirmation. The --force flag skips it.

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/caserun/internal/docker"
	"github.com/shinji-kodama/caserun/internal/model"
)

// containersFlags holds the flag values for the containers command.
type containersFlags struct {
	// prune removes the listed containers.
	prune bool

	// force skips the interactive confirmation prompt when true.
	force bool
}

// NewContainersCommand creates the "containers" cobra command.
func NewContainersCommand() *cobra.Command {
	flags := &containersFlags{}

	cmd := &cobra.Command{
		Use:   "containers",
		Short: "List or prune containers left by the docker runtime",
		Long: `List containers created by the docker runtime, running or not.

Containers normally disappear when their step ends. Leftovers come from
interrupted runs and can be removed with --prune.

Examples:
  caserun containers
  caserun containers --prune
  caserun containers --prune --force --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runContainers(cmd.Context(), flags, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&flags.prune, "prune", false, "Remove the listed containers")
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Prune without confirmation")

	return cmd
}

func runContainers(ctx context.Context, flags *containersFlags, stdin io.Reader, stdout io.Writer) error {
	// Step 1: Connect to Docker and verify the daemon is available.
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}
	VerboseLog("Connected to Docker daemon")

	// Step 2: Collect the managed containers, oldest first.
	containers, err := docker.ListManagedContainers(ctx, cli)
	if err != nil {
		return err
	}
	sortContainers(containers)
	VerboseLog("Found %d managed containers", len(containers))

	if !flags.prune {
		return printContainers(stdout, containers)
	}

	// Step 3: Confirm and remove.
	if len(containers) > 0 && !flags.force {
		confirmed, err := promptConfirmation(stdin, os.Stderr, containers)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to read user input", err)
		}
		if !confirmed {
			return model.NewCLIError(model.ExitUserCancelled, "operation cancelled by user")
		}
	}

	removed := make([]string, 0, len(containers))
	for _, c := range containers {
		VerboseLog("Removing container %s (%s)...", c.ContainerName, shortContainerID(c.ContainerID))
		// force=true handles containers that are still running.
		if err := docker.RemoveContainer(ctx, cli, c.ContainerID, true); err != nil {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("failed to remove container %q", c.ContainerName), err)
		}
		removed = append(removed, c.ContainerName)
	}

	if IsJSONOutput() {
		return printJSON(stdout, map[string]interface{}{
			"action":  "pruned",
			"removed": removed,
		})
	}
	_, _ = fmt.Fprintf(stdout, "Removed %d container(s)\n", len(removed))
	return nil
}

// sortContainers orders containers by creation time, then name.
func sortContainers(containers []model.ContainerInfo) {
	sort.SliceStable(containers, func(i, j int) bool {
		if !containers[i].CreatedAt.Equal(containers[j].CreatedAt) {
			return containers[i].CreatedAt.Before(containers[j].CreatedAt)
		}
		return containers[i].ContainerName < containers[j].ContainerName
	})
}

// promptConfirmation asks the user to confirm the prune operation.
// It reads a single line and checks for "y" or "yes".
func promptConfirmation(in io.Reader, out io.Writer, containers []model.ContainerInfo) (bool, error) {
	_, _ = fmt.Fprintf(out, "About to remove %d container(s):\n", len(containers))
	for _, c := range containers {
		_, _ = fmt.Fprintf(out, "  - %s (%s)\n", c.ContainerName, c.Status)
	}
	_, _ = fmt.Fprint(out, "\nContinue? [y/N] ")

	// bufio.Scanner handles both LF and CRLF line endings.
	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes", nil
	}

	// Closed stdin counts as "no".
	if err := scanner.Err(); err != nil {
		return false, err
	}
	return false, nil
}

// printContainers outputs the container list as a table or as JSON:
//
//	NAME                               STATUS   STEP       CASE
//	caserun-6f1c2b1e93a4-03-solve      running  solve      /home/user/run/damBreak
func printContainers(w io.Writer, containers []model.ContainerInfo) error {
	if IsJSONOutput() {
		// An empty slice prints [] instead of null.
		if containers == nil {
			containers = []model.ContainerInfo{}
		}
		return printJSON(w, map[string]interface{}{"containers": containers})
	}

	if len(containers) == 0 {
		_, _ = fmt.Fprintln(w, "No caserun containers found.")
		return nil
	}

	_, _ = fmt.Fprintf(w, "%-34s %-8s %-20s %s\n", "NAME", "STATUS", "STEP", "CASE")
	for _, c := range containers {
		_, _ = fmt.Fprintf(w, "%-34s %-8s %-20s %s\n",
			c.ContainerName,
			c.Status,
			orDash(c.Step),
			orDash(c.CaseDir),
		)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortContainerID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
