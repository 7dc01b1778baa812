package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStepKind_IsValid checks that only defined kinds pass validation.
func TestStepKind_IsValid(t *testing.T) {
	assert.True(t, StepRun.IsValid())
	assert.True(t, StepRemove.IsValid())
	assert.True(t, StepCopy.IsValid())
	assert.True(t, StepTouch.IsValid())
	assert.False(t, StepKind("mesh").IsValid())
	assert.False(t, StepKind("").IsValid())
}

// TestParseStepKind verifies string-to-kind conversion,
// including case normalization and error cases.
func TestParseStepKind(t *testing.T) {
	tests := []struct {
		input    string
		expected StepKind
		hasError bool
	}{
		{"run", StepRun, false},
		{"REMOVE", StepRemove, false},
		{"Copy", StepCopy, false},
		{"touch", StepTouch, false},
		{"exec", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseStepKind(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

// TestStep_Kind verifies that the kind is derived from whichever action
// field is set.
func TestStep_Kind(t *testing.T) {
	tests := []struct {
		name     string
		step     Step
		expected StepKind
	}{
		{"run", Step{Run: "blockMesh"}, StepRun},
		{"remove", Step{Remove: []string{"processor*"}}, StepRemove},
		{"copy", Step{Copy: &CopySpec{From: "0/alpha1.org", To: "0/alpha1"}}, StepCopy},
		{"touch", Step{Touch: "damBreak.foam"}, StepTouch},
		{"empty", Step{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.step.Kind())
		})
	}
}

// TestStep_ActionCount counts the action fields, which Validate uses to
// reject ambiguous steps.
func TestStep_ActionCount(t *testing.T) {
	assert.Equal(t, 0, Step{}.ActionCount())
	assert.Equal(t, 1, Step{Run: "blockMesh", Force: true}.ActionCount())
	assert.Equal(t, 2, Step{Run: "blockMesh", Touch: "x.foam"}.ActionCount())
}

// TestStep_IsRequired checks the nil-means-required default.
func TestStep_IsRequired(t *testing.T) {
	assert.True(t, Step{Run: "blockMesh"}.IsRequired())
	assert.True(t, Step{Run: "blockMesh", Required: Bool(true)}.IsRequired())
	assert.False(t, Step{Run: "blockMesh", Required: Bool(false)}.IsRequired())
}

// TestStep_DisplayName verifies the fallback labels used in logs.
func TestStep_DisplayName(t *testing.T) {
	assert.Equal(t, "mesh", Step{Name: "mesh", Run: "blockMesh"}.DisplayName())
	assert.Equal(t, "blockMesh", Step{Run: "blockMesh"}.DisplayName())
	assert.Equal(t, "remove processor* log.*", Step{Remove: []string{"processor*", "log.*"}}.DisplayName())
	assert.Equal(t, "copy 0/alpha1.org -> 0/alpha1",
		Step{Copy: &CopySpec{From: "0/alpha1.org", To: "0/alpha1"}}.DisplayName())
	assert.Equal(t, "touch damBreak.foam", Step{Touch: "damBreak.foam"}.DisplayName())
	assert.Equal(t, "(empty step)", Step{}.DisplayName())
}

// TestToolchain_WithDefaults checks default filling and the NoLog switch.
func TestToolchain_WithDefaults(t *testing.T) {
	tc := Toolchain{}.WithDefaults()
	assert.Equal(t, DefaultExecutable, tc.Executable)
	assert.Equal(t, DefaultLogFlag, tc.LogFlag)

	custom := Toolchain{Executable: "caelus", LogFlag: "--log"}.WithDefaults()
	assert.Equal(t, "caelus", custom.Executable)
	assert.Equal(t, "--log", custom.LogFlag)

	noLog := Toolchain{NoLog: true, LogFlag: "-l"}.WithDefaults()
	assert.Empty(t, noLog.LogFlag)

	// An empty flag is a missing value, not a way to turn logging off.
	empty := Toolchain{Executable: "caelus", LogFlag: ""}.WithDefaults()
	assert.Equal(t, DefaultLogFlag, empty.LogFlag)
	assert.False(t, empty.NoLog)
}

// TestValidateName checks workflow name validation rules.
func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"camel case tutorial", "pitzDaily", false},
		{"underscore", "damBreak_fine", false},
		{"dots and hyphens", "cavity-2.0", false},
		{"single char", "a", false},
		{"empty", "", true},
		{"leading hyphen", "-case", true},
		{"space", "dam break", true},
		{"slash", "tutorials/pitzDaily", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestSanitizeName derives valid names from directory names.
func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"pitzDaily", "pitzDaily"},
		{"dam break", "dam-break"},
		{"my case (copy 2)", "my-case-copy-2"},
		{".hidden", "hidden"},
		{"--run--", "run"},
		{"Tutorial-ü", "Tutorial"},
		{"   ", "case"},
		{"", "case"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := SanitizeName(tt.input)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, ValidateName(got))
		})
	}
}

// TestRunSummary_Succeeded covers the aggregate outcome used for exit codes.
func TestRunSummary_Succeeded(t *testing.T) {
	ok := &RunSummary{Results: []StepResult{
		{Status: StatusSucceeded},
		{Status: StatusIgnored},
		{Status: StatusPlanned},
	}}
	assert.True(t, ok.Succeeded())
	assert.Nil(t, ok.FirstFailure())
	assert.Equal(t, 1, ok.Count(StatusIgnored))

	failed := &RunSummary{Results: []StepResult{
		{Index: 0, Status: StatusSucceeded},
		{Index: 1, Name: "simpleSolver", Status: StatusFailed},
		{Index: 2, Status: StatusSkipped},
	}}
	assert.False(t, failed.Succeeded())
	require.NotNil(t, failed.FirstFailure())
	assert.Equal(t, "simpleSolver", failed.FirstFailure().Name)

	cancelled := &RunSummary{Results: []StepResult{{Status: StatusSkipped}}}
	assert.False(t, cancelled.Succeeded())
}

// TestCLIError verifies message formatting and unwrap behavior.
func TestCLIError(t *testing.T) {
	plain := NewCLIError(ExitCaseInvalid, "not a case directory")
	assert.Equal(t, "not a case directory", plain.Error())
	assert.Equal(t, ExitCaseInvalid, plain.Code)
	assert.Nil(t, plain.Unwrap())

	inner := errors.New("exit status 1")
	wrapped := WrapCLIError(ExitStepFailed, "step blockMesh failed", inner)
	assert.Equal(t, "step blockMesh failed: exit status 1", wrapped.Error())
	assert.True(t, errors.Is(wrapped, inner))

	var target *CLIError
	require.True(t, errors.As(error(wrapped), &target))
	assert.Equal(t, ExitStepFailed, target.Code)
}
