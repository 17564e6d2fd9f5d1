package domain

import "strings"

// StepStatus is the closed set of step outcomes.
type StepStatus string

const (
	StatusPassed    StepStatus = "PASSED"
	StatusFailed    StepStatus = "FAILED"
	StatusSkipped   StepStatus = "SKIPPED"
	StatusUndefined StepStatus = "UNDEFINED"
	StatusPending   StepStatus = "PENDING"
)

// AllStatuses lists every status in derivation precedence order, PASSED last.
var AllStatuses = []StepStatus{
	StatusFailed,
	StatusUndefined,
	StatusPending,
	StatusSkipped,
	StatusPassed,
}

// ParseStepStatus maps a raw status string onto the closed enum.
// Anything unrecognised, including "ambiguous" and "", becomes UNDEFINED.
func ParseStepStatus(raw string) StepStatus {
	switch StepStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusPassed:
		return StatusPassed
	case StatusFailed:
		return StatusFailed
	case StatusSkipped:
		return StatusSkipped
	case StatusPending:
		return StatusPending
	default:
		return StatusUndefined
	}
}

func (s StepStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s StepStatus) String() string { return string(s) }

// DeriveScenarioStatus applies FAILED > UNDEFINED > PENDING > SKIPPED > PASSED.
// The result does not depend on step order. No steps yields PASSED.
func DeriveScenarioStatus(statuses []StepStatus) StepStatus {
	seen := make(map[StepStatus]bool, len(statuses))
	for _, s := range statuses {
		if !s.Valid() {
			s = StatusUndefined
		}
		seen[s] = true
	}

	for _, s := range AllStatuses[:len(AllStatuses)-1] {
		if seen[s] {
			return s
		}
	}
	return StatusPassed
}
