package repository

import (
	"context"
	"strings"
	"time"

	"github.com/cukesight/backend/internal/models"
	"gorm.io/gorm"
)

// StatsRepositoryImpl implements StatsRepository
type StatsRepositoryImpl struct {
	db *gorm.DB
}

func NewStatsRepository(db *gorm.DB) models.StatsRepository {
	return &StatsRepositoryImpl{db: db}
}

func (r *StatsRepositoryImpl) scenarios(ctx context.Context, f models.ScenarioCountFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Table("scenarios").
		Joins("JOIN test_runs ON test_runs.id = scenarios.test_run_id").
		Joins("JOIN features ON features.id = scenarios.feature_id")
	return applyFilter(q, f)
}

func applyFilter(q *gorm.DB, f models.ScenarioCountFilter) *gorm.DB {
	if f.Since != nil {
		q = q.Where("test_runs.timestamp >= ?", f.Since.UTC())
	}
	if f.Status != "" {
		q = q.Where("scenarios.status = ?", strings.ToUpper(f.Status))
	}
	if f.Environment != "" {
		q = q.Where("test_runs.environment = ?", f.Environment)
	}
	if f.Feature != "" {
		q = q.Where("features.name = ?", f.Feature)
	}
	if f.Project != "" {
		q = q.Joins("JOIN projects ON projects.id = test_runs.project_id").
			Where("projects.name = ?", f.Project)
	}
	return q
}

func (r *StatsRepositoryImpl) CountScenarios(ctx context.Context, filter models.ScenarioCountFilter) (int64, error) {
	var count int64
	err := r.scenarios(ctx, filter).Count(&count).Error
	return count, err
}

type scenarioRow struct {
	ScenarioID  uint
	Feature     string
	Environment string
	Status      string
	Timestamp   time.Time
}

type tagRow struct {
	ScenarioID uint
	Tag        string
}

// ListScenarioRecords returns matching scenarios with their tags, ordered
// by run timestamp then scenario id.
func (r *StatsRepositoryImpl) ListScenarioRecords(ctx context.Context, filter models.ScenarioCountFilter) ([]models.ScenarioRecord, error) {
	var rows []scenarioRow
	err := r.scenarios(ctx, filter).
		Select("scenarios.id AS scenario_id, features.name AS feature, test_runs.environment AS environment, scenarios.status AS status, test_runs.timestamp AS timestamp").
		Order("test_runs.timestamp, scenarios.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]models.ScenarioRecord, len(rows))
	index := make(map[uint]int, len(rows))
	ids := make([]uint, len(rows))
	for i, row := range rows {
		records[i] = models.ScenarioRecord{
			ScenarioID:  row.ScenarioID,
			Feature:     row.Feature,
			Environment: row.Environment,
			Status:      row.Status,
			Timestamp:   row.Timestamp.UTC(),
			Tags:        []string{},
		}
		index[row.ScenarioID] = i
		ids[i] = row.ScenarioID
	}

	const batch = 500
	for start := 0; start < len(ids); start += batch {
		end := start + batch
		if end > len(ids) {
			end = len(ids)
		}
		var tags []tagRow
		err := r.db.WithContext(ctx).Table("scenario_tags").
			Select("scenario_id, tag").
			Where("scenario_id IN ?", ids[start:end]).
			Order("id").
			Scan(&tags).Error
		if err != nil {
			return nil, err
		}
		for _, t := range tags {
			i := index[t.ScenarioID]
			records[i].Tags = append(records[i].Tags, t.Tag)
		}
	}

	return records, nil
}

// ListFailedSteps returns the most recent failing steps first.
func (r *StatsRepositoryImpl) ListFailedSteps(ctx context.Context, filter models.ScenarioCountFilter, limit int) ([]models.FailedStepRecord, error) {
	filter.Status = ""
	q := r.db.WithContext(ctx).Table("steps").
		Joins("JOIN scenarios ON scenarios.id = steps.scenario_id").
		Joins("JOIN test_runs ON test_runs.id = scenarios.test_run_id").
		Joins("JOIN features ON features.id = scenarios.feature_id").
		Where("steps.status = ?", "FAILED")

	var records []models.FailedStepRecord
	err := applyFilter(q, filter).
		Select("features.name AS feature, scenarios.name AS scenario, steps.keyword AS keyword, steps.name AS step, steps.error_message AS error_message, test_runs.environment AS environment, test_runs.timestamp AS timestamp").
		Order("test_runs.timestamp DESC, steps.id").
		Limit(limit).
		Scan(&records).Error
	return records, err
}
