package docker

import (
	"fmt"
	"strings"
	"time"
)

// Label keys recorded on every container started by the docker runtime.
// They make leftovers of interrupted runs discoverable and attributable
// without any state file.
const (
	// LabelPrefix is the common prefix for all caserun labels.
	LabelPrefix = "caserun."

	// LabelManagedBy identifies containers managed by caserun.
	// Key: "caserun.managed-by", Value: always "caserun".
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelRunID stores the run the container belongs to.
	LabelRunID = LabelPrefix + "run-id"

	// LabelCase stores the absolute host path of the case directory.
	LabelCase = LabelPrefix + "case"

	// LabelWorkflow stores the workflow name.
	LabelWorkflow = LabelPrefix + "workflow"

	// LabelStep stores the display name of the step.
	LabelStep = LabelPrefix + "step"

	// LabelCreatedAt stores the RFC3339 creation timestamp.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the constant value for the LabelManagedBy label.
const ManagedByValue = "caserun"

// RunLabels is the metadata carried by the labels of one container.
type RunLabels struct {
	RunID     string
	CaseDir   string
	Workflow  string
	Step      string
	CreatedAt time.Time
}

// BuildLabels constructs the Docker label map for a step container.
// Empty optional values are left out.
func BuildLabels(l RunLabels) map[string]string {
	labels := map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelRunID:     l.RunID,
		LabelCase:      l.CaseDir,
		LabelCreatedAt: l.CreatedAt.UTC().Format(time.RFC3339),
	}
	if l.Workflow != "" {
		labels[LabelWorkflow] = l.Workflow
	}
	if l.Step != "" {
		labels[LabelStep] = l.Step
	}
	return labels
}

// ParseLabels reconstructs RunLabels from Docker container labels. It is
// the inverse of BuildLabels.
//
// Required labels: managed-by, run-id, case, created-at. All missing
// labels are reported at once.
func ParseLabels(labels map[string]string) (*RunLabels, error) {
	requiredKeys := []string{
		LabelManagedBy,
		LabelRunID,
		LabelCase,
		LabelCreatedAt,
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	return &RunLabels{
		RunID:     labels[LabelRunID],
		CaseDir:   labels[LabelCase],
		Workflow:  labels[LabelWorkflow],
		Step:      labels[LabelStep],
		CreatedAt: createdAt,
	}, nil
}

// FilterLabels returns the label filter that selects caserun containers.
func FilterLabels() map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
	}
}
