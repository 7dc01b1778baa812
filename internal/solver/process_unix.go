//go:build !windows

package solver

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setupProcessGroup starts the command in its own process group so the
// launcher and the solver it spawns can be killed together.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// killProcessGroup kills the process and every process in its group.
// Killing only the launcher would leave the solver running and writing
// into the case.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	// With Setpgid the group ID equals the launcher's PID.
	pid := cmd.Process.Pid
	if pgid, err := syscall.Getpgid(pid); err == nil && pgid > 0 {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}

	// Direct kill as a fallback; it fails harmlessly if the group kill
	// already reaped the process.
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
