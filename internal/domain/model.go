package domain

import (
	"time"

	"github.com/google/uuid"
)

// Step is owned by exactly one Scenario. Duration is in seconds.
type Step struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Keyword      string     `json:"keyword"`
	Status       StepStatus `json:"status"`
	Duration     float64    `json:"duration"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Location     string     `json:"location,omitempty"`
}

// Scenario status and duration are derived from its steps by Recompute.
type Scenario struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"external_id,omitempty"`
	FeatureID   string     `json:"feature_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      StepStatus `json:"status"`
	Duration    float64    `json:"duration"`
	IsFlaky     bool       `json:"is_flaky"`
	Tags        []string   `json:"tags"`
	Steps       []Step     `json:"steps"`
}

// Recompute derives Status and Duration from the steps.
func (s *Scenario) Recompute() {
	statuses := make([]StepStatus, len(s.Steps))
	var total float64
	for i, step := range s.Steps {
		statuses[i] = step.Status
		total += step.Duration
	}
	s.Status = DeriveScenarioStatus(statuses)
	s.Duration = total
}

// FailedSteps returns the FAILED steps that carry an error message.
func (s *Scenario) FailedSteps() []Step {
	var failed []Step
	for _, step := range s.Steps {
		if step.Status == StatusFailed && step.ErrorMessage != "" {
			failed = append(failed, step)
		}
	}
	return failed
}

type Feature struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"external_id,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	URI         string     `json:"uri,omitempty"`
	Tags        []string   `json:"tags"`
	Scenarios   []Scenario `json:"scenarios"`
}

// TestRun is one ingested report. PGID and VectorID are the cross
// references between the relational and vector stores.
type TestRun struct {
	ID          string                 `json:"id"`
	PGID        uint                   `json:"pg_id,omitempty"`
	VectorID    string                 `json:"vector_id,omitempty"`
	Project     string                 `json:"project"`
	Environment string                 `json:"environment"`
	Timestamp   time.Time              `json:"timestamp"`
	BuildID     string                 `json:"build_id,omitempty"`
	Tags        []string               `json:"tags"`
	Metadata    map[string]interface{} `json:"metadata"`
	Features    []Feature              `json:"features"`
}

// NewTestRun creates a run with a fresh id. The timestamp is stored in UTC.
func NewTestRun(project, environment string, timestamp time.Time, features []Feature) *TestRun {
	return &TestRun{
		ID:          uuid.NewString(),
		Project:     project,
		Environment: environment,
		Timestamp:   timestamp.UTC(),
		Tags:        []string{},
		Metadata:    map[string]interface{}{},
		Features:    features,
	}
}

// Totals summarises a run's tree.
type Totals struct {
	Features  int     `json:"features"`
	Scenarios int     `json:"scenarios"`
	Steps     int     `json:"steps"`
	Passed    int     `json:"passed"`
	Failed    int     `json:"failed"`
	Skipped   int     `json:"skipped"`
	Undefined int     `json:"undefined"`
	Pending   int     `json:"pending"`
	Duration  float64 `json:"duration"`
}

func (r *TestRun) Totals() Totals {
	t := Totals{Features: len(r.Features)}
	for _, f := range r.Features {
		for _, s := range f.Scenarios {
			t.Scenarios++
			t.Steps += len(s.Steps)
			t.Duration += s.Duration
			switch s.Status {
			case StatusPassed:
				t.Passed++
			case StatusFailed:
				t.Failed++
			case StatusSkipped:
				t.Skipped++
			case StatusPending:
				t.Pending++
			default:
				t.Undefined++
			}
		}
	}
	return t
}

// Status reports FAILED if any scenario failed, using the step precedence rule.
func (r *TestRun) Status() StepStatus {
	var statuses []StepStatus
	for _, f := range r.Features {
		for _, s := range f.Scenarios {
			statuses = append(statuses, s.Status)
		}
	}
	return DeriveScenarioStatus(statuses)
}

// BuildInfo is independent of any run; a run references at most one.
type BuildInfo struct {
	BuildID     string                 `json:"build_id"`
	BuildNumber string                 `json:"build_number"`
	Branch      string                 `json:"branch"`
	CommitHash  string                 `json:"commit_hash"`
	BuildDate   time.Time              `json:"build_date"`
	BuildURL    string                 `json:"build_url,omitempty"`
	Metadata    map[string]interface{} `json:"metadata"`
}

func (b *BuildInfo) Validate() error {
	if b.BuildID == "" {
		return Validationf("build_id is required")
	}
	if b.BuildNumber == "" {
		return Validationf("build_number is required")
	}
	if b.BuildDate.IsZero() {
		return Validationf("build_date is required")
	}
	return nil
}
