package services

import (
	"context"
	"strings"
	"time"

	"github.com/cukesight/backend/internal/aggregation"
	"github.com/cukesight/backend/internal/clock"
	"github.com/cukesight/backend/internal/domain"
	"github.com/cukesight/backend/internal/models"
)

// ScenarioCountRequest narrows a scenario count. All fields are optional.
type ScenarioCountRequest struct {
	Status      string
	Since       string
	Environment string
	Feature     string
	Project     string
}

type StatsService struct {
	engine      *aggregation.Engine
	stats       models.StatsRepository
	defaultDays int
}

func NewStatsService(engine *aggregation.Engine, stats models.StatsRepository, defaultDays int) *StatsService {
	return &StatsService{engine: engine, stats: stats, defaultDays: defaultDays}
}

// GetStatistics recomputes statistics on every call. days <= 0 falls back
// to the configured window.
func (s *StatsService) GetStatistics(ctx context.Context, days int, environment, feature string) (aggregation.Statistics, error) {
	if days <= 0 {
		days = s.defaultDays
	}
	return s.engine.Statistics(ctx, days, environment, feature)
}

func (s *StatsService) CountScenarios(ctx context.Context, req ScenarioCountRequest) (int64, error) {
	filter := models.ScenarioCountFilter{
		Environment: req.Environment,
		Feature:     req.Feature,
		Project:     req.Project,
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		parsed := domain.StepStatus(strings.ToUpper(status))
		if !parsed.Valid() {
			return 0, domain.Validationf("unknown status %q", req.Status)
		}
		filter.Status = parsed.String()
	}
	if strings.TrimSpace(req.Since) != "" {
		since, err := clock.Parse(req.Since)
		if err != nil {
			return 0, domain.Validationf("invalid since: %v", err)
		}
		filter.Since = &since
	}
	return s.stats.CountScenarios(ctx, filter)
}

// sinceDays is the lower bound of a window of days ending at now.
func sinceDays(now time.Time, days int) *time.Time {
	if days <= 0 {
		return nil
	}
	since := now.AddDate(0, 0, -days)
	return &since
}
