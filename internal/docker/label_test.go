package docker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLabels returns a fully populated RunLabels for table tests.
func testLabels() RunLabels {
	return RunLabels{
		RunID:     "6f1c2b1e-93a4-4c0e-9d55-0d1e5f7b8a90",
		CaseDir:   "/home/user/run/damBreak",
		Workflow:  "damBreak",
		Step:      "decompose",
		CreatedAt: time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC),
	}
}

// TestBuildLabels verifies every key and the RFC3339 timestamp.
func TestBuildLabels(t *testing.T) {
	labels := BuildLabels(testLabels())

	assert.Equal(t, ManagedByValue, labels[LabelManagedBy])
	assert.Equal(t, "6f1c2b1e-93a4-4c0e-9d55-0d1e5f7b8a90", labels[LabelRunID])
	assert.Equal(t, "/home/user/run/damBreak", labels[LabelCase])
	assert.Equal(t, "damBreak", labels[LabelWorkflow])
	assert.Equal(t, "decompose", labels[LabelStep])
	assert.Equal(t, "2026-02-28T10:00:00Z", labels[LabelCreatedAt])
	assert.Len(t, labels, 6)
}

// TestBuildLabels_OptionalOmitted leaves out empty workflow and step.
func TestBuildLabels_OptionalOmitted(t *testing.T) {
	l := testLabels()
	l.Workflow = ""
	l.Step = ""
	labels := BuildLabels(l)

	assert.NotContains(t, labels, LabelWorkflow)
	assert.NotContains(t, labels, LabelStep)
	assert.Len(t, labels, 4)
}

// TestBuildLabels_LocalTimeStoredAsUTC normalizes the timezone.
func TestBuildLabels_LocalTimeStoredAsUTC(t *testing.T) {
	l := testLabels()
	l.CreatedAt = time.Date(2026, 2, 28, 19, 0, 0, 0, time.FixedZone("JST", 9*3600))
	assert.Equal(t, "2026-02-28T10:00:00Z", BuildLabels(l)[LabelCreatedAt])
}

// TestBuildAndParseLabelRoundTrip checks that ParseLabels inverts BuildLabels.
func TestBuildAndParseLabelRoundTrip(t *testing.T) {
	want := testLabels()
	got, err := ParseLabels(BuildLabels(want))
	require.NoError(t, err)
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.CaseDir, got.CaseDir)
	assert.Equal(t, want.Workflow, got.Workflow)
	assert.Equal(t, want.Step, got.Step)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

// TestParseLabels_MissingRequired lists every missing key at once.
func TestParseLabels_MissingRequired(t *testing.T) {
	_, err := ParseLabels(map[string]string{LabelManagedBy: ManagedByValue})
	require.Error(t, err)
	assert.Contains(t, err.Error(), LabelRunID)
	assert.Contains(t, err.Error(), LabelCase)
	assert.Contains(t, err.Error(), LabelCreatedAt)
}

// TestParseLabels_InvalidManagedBy rejects foreign containers.
func TestParseLabels_InvalidManagedBy(t *testing.T) {
	labels := BuildLabels(testLabels())
	labels[LabelManagedBy] = "other-tool"
	_, err := ParseLabels(labels)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected value")
}

// TestParseLabels_InvalidCreatedAt rejects malformed timestamps.
func TestParseLabels_InvalidCreatedAt(t *testing.T) {
	labels := BuildLabels(testLabels())
	labels[LabelCreatedAt] = "yesterday"
	_, err := ParseLabels(labels)
	require.Error(t, err)
	assert.Contains(t, err.Error(), LabelCreatedAt)
}

// TestFilterLabels returns only the management label.
func TestFilterLabels(t *testing.T) {
	assert.Equal(t, map[string]string{"caserun.managed-by": "caserun"}, FilterLabels())
}
