package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/caserun/internal/model"
)

// newTestToolchain returns a toolchain pinned to the given OS so the
// platform check can be exercised on any host.
func newTestToolchain(goos string, settings model.Toolchain) *Toolchain {
	tc := NewToolchain(settings)
	tc.Platform = Platform{GOOS: goos}
	return tc
}

// TestUtilityArgs verifies the argument order of the launcher contract:
// log flag, utility, modifier flags, then extra arguments.
func TestUtilityArgs(t *testing.T) {
	tc := newTestToolchain("linux", model.Toolchain{})

	tests := []struct {
		name     string
		step     model.Step
		expected []string
	}{
		{
			name:     "plain utility",
			step:     model.Step{Run: "blockMesh"},
			expected: []string{"-l", "blockMesh"},
		},
		{
			name:     "decompose with force",
			step:     model.Step{Run: "decomposePar", Force: true},
			expected: []string{"-l", "decomposePar", "-force"},
		},
		{
			name:     "parallel solver",
			step:     model.Step{Run: "simpleSolver", Parallel: true},
			expected: []string{"-l", "simpleSolver", "-parallel"},
		},
		{
			name:     "reconstruct latest time",
			step:     model.Step{Run: "reconstructPar", LatestTime: true},
			expected: []string{"-l", "reconstructPar", "-latestTime"},
		},
		{
			name:     "all flags and extra args",
			step:     model.Step{Run: "foo", Force: true, Parallel: true, LatestTime: true, Args: []string{"-region", "fluid"}},
			expected: []string{"-l", "foo", "-force", "-parallel", "-latestTime", "-region", "fluid"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := tc.UtilityArgs(tt.step)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, args)
		})
	}
}

// TestUtilityArgs_NoLog checks that disabling the log flag removes it.
func TestUtilityArgs_NoLog(t *testing.T) {
	tc := newTestToolchain("linux", model.Toolchain{NoLog: true})
	args, err := tc.UtilityArgs(model.Step{Run: "blockMesh"})
	require.NoError(t, err)
	assert.Equal(t, []string{"blockMesh"}, args)
}

// TestUtilityArgs_NotRunStep rejects non-run steps.
func TestUtilityArgs_NotRunStep(t *testing.T) {
	tc := newTestToolchain("linux", model.Toolchain{})
	_, err := tc.UtilityArgs(model.Step{Touch: "case.foam"})
	assert.Error(t, err)
}

// TestCommand_PlatformWrapping covers the platform check: direct exec on
// Unix, `cmd /C` on Windows, `sh -c` when a shell is forced.
func TestCommand_PlatformWrapping(t *testing.T) {
	step := model.Step{Run: "decomposePar", Force: true}

	name, args, err := newTestToolchain("linux", model.Toolchain{}).Command(step)
	require.NoError(t, err)
	assert.Equal(t, "caelus.py", name)
	assert.Equal(t, []string{"-l", "decomposePar", "-force"}, args)

	name, args, err = newTestToolchain("windows", model.Toolchain{}).Command(step)
	require.NoError(t, err)
	assert.Equal(t, "cmd", name)
	assert.Equal(t, []string{"/C", "caelus.py", "-l", "decomposePar", "-force"}, args)

	name, args, err = newTestToolchain("darwin", model.Toolchain{Shell: true}).Command(step)
	require.NoError(t, err)
	assert.Equal(t, "sh", name)
	assert.Equal(t, []string{"-c", "caelus.py -l decomposePar -force"}, args)
}

// TestDisplayCommand verifies the unwrapped command line shown by plan.
func TestDisplayCommand(t *testing.T) {
	tc := newTestToolchain("windows", model.Toolchain{Executable: "caelus"})
	line, err := tc.DisplayCommand(model.Step{Run: "reconstructPar", LatestTime: true})
	require.NoError(t, err)
	assert.Equal(t, "caelus -l reconstructPar -latestTime", line)
}

// TestEnviron checks that environment entries are sorted by key.
func TestEnviron(t *testing.T) {
	tc := newTestToolchain("linux", model.Toolchain{Env: map[string]string{
		"WM_NCOMPPROCS":  "4",
		"CAELUS_PROJECT": "/opt/caelus",
	}})
	assert.Equal(t, []string{"CAELUS_PROJECT=/opt/caelus", "WM_NCOMPPROCS=4"}, tc.Environ())
	assert.Empty(t, newTestToolchain("linux", model.Toolchain{}).Environ())
}

// TestCheckExecutable_Missing reports a toolchain-not-found CLIError.
func TestCheckExecutable_Missing(t *testing.T) {
	tc := newTestToolchain("linux", model.Toolchain{Executable: "caserun-definitely-missing-launcher"})
	err := tc.CheckExecutable()
	require.Error(t, err)

	cliErr, ok := err.(*model.CLIError)
	require.True(t, ok, "expected *model.CLIError, got %T", err)
	assert.Equal(t, model.ExitToolchainNotFound, cliErr.Code)
}

// TestJoinCommand verifies quoting of arguments with shell metacharacters.
func TestJoinCommand(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		args     []string
		expected string
	}{
		{"no args", "blockMesh", nil, "blockMesh"},
		{"simple args", "caelus.py", []string{"-l", "blockMesh"}, "caelus.py -l blockMesh"},
		{"space", "caelus.py", []string{"-case", "my case"}, "caelus.py -case 'my case'"},
		{"single quote", "echo", []string{"it's"}, `echo 'it'"'"'s'`},
		{"empty arg", "echo", []string{""}, "echo ''"},
		{"glob", "ls", []string{"processor*"}, "ls 'processor*'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, JoinCommand(tt.cmd, tt.args))
		})
	}
}
