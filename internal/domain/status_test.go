package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStepStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want StepStatus
	}{
		{"passed", StatusPassed},
		{"FAILED", StatusFailed},
		{" skipped ", StatusSkipped},
		{"pending", StatusPending},
		{"undefined", StatusUndefined},
		{"ambiguous", StatusUndefined},
		{"", StatusUndefined},
		{"exploded", StatusUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStepStatus(tt.raw))
		})
	}
}

func TestDeriveScenarioStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []StepStatus
		want     StepStatus
	}{
		{"no steps", nil, StatusPassed},
		{"all passed", []StepStatus{StatusPassed, StatusPassed}, StatusPassed},
		{"failed wins", []StepStatus{StatusPassed, StatusUndefined, StatusFailed, StatusSkipped}, StatusFailed},
		{"undefined over pending", []StepStatus{StatusPending, StatusUndefined}, StatusUndefined},
		{"pending over skipped", []StepStatus{StatusSkipped, StatusPending, StatusPassed}, StatusPending},
		{"skipped over passed", []StepStatus{StatusPassed, StatusSkipped}, StatusSkipped},
		{"unknown treated as undefined", []StepStatus{"weird", StatusSkipped}, StatusUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveScenarioStatus(tt.statuses))
		})
	}
}

func TestDeriveScenarioStatus_OrderIndependent(t *testing.T) {
	// Every permutation of a multiset must derive the same status.
	base := []StepStatus{StatusPassed, StatusSkipped, StatusPending, StatusUndefined, StatusFailed}

	for size := 1; size <= len(base); size++ {
		set := base[:size]
		want := DeriveScenarioStatus(set)
		permute(set, func(p []StepStatus) {
			assert.Equal(t, want, DeriveScenarioStatus(p), "permutation %v", p)
		})
	}
}

func permute(in []StepStatus, fn func([]StepStatus)) {
	p := append([]StepStatus(nil), in...)
	var rec func(int)
	rec = func(k int) {
		if k == len(p) {
			fn(append([]StepStatus(nil), p...))
			return
		}
		for i := k; i < len(p); i++ {
			p[k], p[i] = p[i], p[k]
			rec(k + 1)
			p[k], p[i] = p[i], p[k]
		}
	}
	rec(0)
}

func TestScenario_Recompute(t *testing.T) {
	s := Scenario{
		Steps: []Step{
			{Status: StatusPassed, Duration: 0.5},
			{Status: StatusFailed, Duration: 1.25},
			{Status: StatusSkipped, Duration: 0},
		},
	}
	s.Recompute()

	assert.Equal(t, StatusFailed, s.Status)
	assert.InDelta(t, 1.75, s.Duration, 1e-9)
}
