//go:build windows

package solver

import (
	"os/exec"
	"strconv"
	"syscall"
)

// setupProcessGroup hides the console window of the launcher. Windows has
// no process groups; the tree is killed with taskkill instead.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true
}

// killProcessGroup kills the process tree rooted at the command. Every
// invocation goes through `cmd /C`, so killing only cmd.exe would leave
// the launcher and the solver running.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	killCmd := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(cmd.Process.Pid))
	killCmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	if err := killCmd.Run(); err != nil {
		// Fall back to killing cmd.exe alone.
		return cmd.Process.Kill()
	}
	return nil
}
