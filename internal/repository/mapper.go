package repository

import (
	"github.com/cukesight/backend/internal/domain"
	"github.com/cukesight/backend/internal/models"
	"gorm.io/datatypes"
)

// ToModel converts a normalized run into its relational tree. Scenario
// tags are the union of feature and scenario tags.
func ToModel(run *domain.TestRun) *models.TestRun {
	totals := run.Totals()
	m := &models.TestRun{
		RunUID:         run.ID,
		Environment:    run.Environment,
		Timestamp:      run.Timestamp.UTC(),
		Status:         run.Status().String(),
		TotalScenarios: totals.Scenarios,
		Passed:         totals.Passed,
		Failed:         totals.Failed,
		Skipped:        totals.Skipped,
		Undefined:      totals.Undefined,
		Pending:        totals.Pending,
		Duration:       totals.Duration,
		Tags:           models.StringArray(domain.UnionTags(run.Tags)),
		Metadata:       datatypes.JSONMap(run.Metadata),
	}
	if run.BuildID != "" {
		buildID := run.BuildID
		m.BuildID = &buildID
	}
	if m.Metadata == nil {
		m.Metadata = datatypes.JSONMap{}
	}

	m.Features = make([]models.Feature, len(run.Features))
	for fi, f := range run.Features {
		feature := models.Feature{
			FeatureUID:  f.ID,
			ExternalID:  f.ExternalID,
			Name:        f.Name,
			Description: f.Description,
			URI:         f.URI,
			Tags:        models.StringArray(domain.UnionTags(f.Tags)),
			Position:    fi,
			Scenarios:   make([]models.Scenario, len(f.Scenarios)),
		}
		for si, s := range f.Scenarios {
			scenario := models.Scenario{
				ScenarioUID: s.ID,
				ExternalID:  s.ExternalID,
				Name:        s.Name,
				Description: s.Description,
				Status:      s.Status.String(),
				Duration:    s.Duration,
				IsFlaky:     s.IsFlaky,
				Position:    si,
				Steps:       make([]models.Step, len(s.Steps)),
			}
			for i, step := range s.Steps {
				scenario.Steps[i] = models.Step{
					StepUID:      step.ID,
					Position:     i,
					Keyword:      step.Keyword,
					Name:         step.Name,
					Status:       step.Status.String(),
					Duration:     step.Duration,
					ErrorMessage: step.ErrorMessage,
					Location:     step.Location,
				}
			}
			for _, tag := range domain.UnionTags(f.Tags, s.Tags) {
				scenario.Tags = append(scenario.Tags, models.ScenarioTag{Tag: tag})
			}
			feature.Scenarios[si] = scenario
		}
		m.Features[fi] = feature
	}
	return m
}

// ToDomain rebuilds a run from its stored tree. Scenario tags come back
// as stored, which already includes the feature tags.
func ToDomain(m *models.TestRun) *domain.TestRun {
	run := &domain.TestRun{
		ID:          m.RunUID,
		PGID:        m.ID,
		Project:     m.Project.Name,
		Environment: m.Environment,
		Timestamp:   m.Timestamp.UTC(),
		Tags:        append([]string{}, m.Tags...),
		Metadata:    map[string]interface{}(m.Metadata),
		Features:    make([]domain.Feature, len(m.Features)),
	}
	if run.Metadata == nil {
		run.Metadata = map[string]interface{}{}
	}
	if m.BuildID != nil {
		run.BuildID = *m.BuildID
	}
	if m.VectorID != nil {
		run.VectorID = *m.VectorID
	}

	for fi, f := range m.Features {
		feature := domain.Feature{
			ID:          f.FeatureUID,
			ExternalID:  f.ExternalID,
			Name:        f.Name,
			Description: f.Description,
			URI:         f.URI,
			Tags:        append([]string{}, f.Tags...),
			Scenarios:   make([]domain.Scenario, len(f.Scenarios)),
		}
		for si, s := range f.Scenarios {
			scenario := domain.Scenario{
				ID:          s.ScenarioUID,
				ExternalID:  s.ExternalID,
				FeatureID:   f.FeatureUID,
				Name:        s.Name,
				Description: s.Description,
				Status:      domain.ParseStepStatus(s.Status),
				Duration:    s.Duration,
				IsFlaky:     s.IsFlaky,
				Tags:        make([]string, 0, len(s.Tags)),
				Steps:       make([]domain.Step, len(s.Steps)),
			}
			for _, t := range s.Tags {
				scenario.Tags = append(scenario.Tags, t.Tag)
			}
			for i, step := range s.Steps {
				scenario.Steps[i] = domain.Step{
					ID:           step.StepUID,
					Name:         step.Name,
					Keyword:      step.Keyword,
					Status:       domain.ParseStepStatus(step.Status),
					Duration:     step.Duration,
					ErrorMessage: step.ErrorMessage,
					Location:     step.Location,
				}
			}
			feature.Scenarios[si] = scenario
		}
		run.Features[fi] = feature
	}
	return run
}

// BuildInfoToModel converts build metadata for storage.
func BuildInfoToModel(b *domain.BuildInfo) *models.BuildInfo {
	metadata := datatypes.JSONMap(b.Metadata)
	if metadata == nil {
		metadata = datatypes.JSONMap{}
	}
	return &models.BuildInfo{
		BuildID:     b.BuildID,
		BuildNumber: b.BuildNumber,
		Branch:      b.Branch,
		CommitHash:  b.CommitHash,
		BuildDate:   b.BuildDate.UTC(),
		BuildURL:    b.BuildURL,
		Metadata:    metadata,
	}
}
