package repository

import (
	"context"
	"strings"
	"time"

	"github.com/cukesight/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryLogRepositoryImpl implements QueryLogRepository
type QueryLogRepositoryImpl struct {
	db *gorm.DB
}

func NewQueryLogRepository(db *gorm.DB) models.QueryLogRepository {
	return &QueryLogRepositoryImpl{db: db}
}

func (r *QueryLogRepositoryImpl) Create(ctx context.Context, log *models.QueryLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *QueryLogRepositoryImpl) GetRecent(ctx context.Context, limit int) ([]models.QueryLog, error) {
	var logs []models.QueryLog
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// PopularQueryRepositoryImpl implements PopularQueryRepository
type PopularQueryRepositoryImpl struct {
	db *gorm.DB
}

func NewPopularQueryRepository(db *gorm.DB) models.PopularQueryRepository {
	return &PopularQueryRepositoryImpl{db: db}
}

func normalizeQuery(queryText string) string {
	return strings.ToLower(strings.Join(strings.Fields(queryText), " "))
}

func (r *PopularQueryRepositoryImpl) IncrementCount(queryText string) error {
	now := time.Now().UTC()
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "query_text"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"search_count":  gorm.Expr("popular_queries.search_count + 1"),
			"last_searched": now,
			"updated_at":    now,
		}),
	}).Create(&models.PopularQuery{
		QueryText:    normalizeQuery(queryText),
		SearchCount:  1,
		LastSearched: now,
	}).Error
}

func (r *PopularQueryRepositoryImpl) GetTop(limit int) ([]models.PopularQuery, error) {
	var queries []models.PopularQuery
	err := r.db.Order("search_count DESC").
		Order("last_searched DESC").
		Limit(limit).
		Find(&queries).Error
	return queries, err
}

func (r *PopularQueryRepositoryImpl) UpdateStats(queryText string, sourcesCount float64, responseTime int) error {
	return r.db.Exec(`
		UPDATE popular_queries
		SET
			avg_sources_count = (avg_sources_count * (search_count - 1) + ?) / search_count,
			avg_response_time_ms = (avg_response_time_ms * (search_count - 1) + ?) / search_count,
			updated_at = ?
		WHERE query_text = ?
	`, sourcesCount, responseTime, time.Now().UTC(), normalizeQuery(queryText)).Error
}

// FindRelated returns popular queries sharing at least one word with
// queryText, excluding the query itself.
func (r *PopularQueryRepositoryImpl) FindRelated(ctx context.Context, queryText string, limit int) ([]models.PopularQuery, error) {
	normalized := normalizeQuery(queryText)

	var words []string
	for _, w := range strings.Fields(normalized) {
		if len(w) > 3 {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return []models.PopularQuery{}, nil
	}

	query := r.db.WithContext(ctx).Where("query_text <> ?", normalized)
	conditions := r.db.Where("query_text LIKE ?", "%"+words[0]+"%")
	for _, w := range words[1:] {
		conditions = conditions.Or("query_text LIKE ?", "%"+w+"%")
	}

	var queries []models.PopularQuery
	err := query.Where(conditions).
		Order("search_count DESC").
		Limit(limit).
		Find(&queries).Error
	return queries, err
}

// SystemHealthRepositoryImpl implements SystemHealthRepository
type SystemHealthRepositoryImpl struct {
	db *gorm.DB
}

func NewSystemHealthRepository(db *gorm.DB) models.SystemHealthRepository {
	return &SystemHealthRepositoryImpl{db: db}
}

// UpdateServiceHealth keeps one row per service holding its latest check.
func (r *SystemHealthRepositoryImpl) UpdateServiceHealth(serviceName, status string, responseTime int, errorMsg string) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "service_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "response_time_ms", "error_message", "checked_at"}),
	}).Create(&models.SystemHealth{
		ServiceName:    serviceName,
		Status:         status,
		ResponseTimeMs: responseTime,
		ErrorMessage:   errorMsg,
		CheckedAt:      time.Now().UTC(),
	}).Error
}

func (r *SystemHealthRepositoryImpl) GetServiceHealth(serviceName string) (*models.SystemHealth, error) {
	var health models.SystemHealth
	err := r.db.Where("service_name = ?", serviceName).
		First(&health).Error
	if err != nil {
		return nil, err
	}
	return &health, nil
}

func (r *SystemHealthRepositoryImpl) GetAllServicesHealth() ([]models.SystemHealth, error) {
	var health []models.SystemHealth
	err := r.db.Order("service_name").Find(&health).Error
	return health, err
}

func (r *SystemHealthRepositoryImpl) GetUnhealthyServices() ([]models.SystemHealth, error) {
	var health []models.SystemHealth
	err := r.db.Where("status <> ?", "healthy").
		Order("service_name").
		Find(&health).Error
	return health, err
}

// RepositoryManager bundles all repositories
type RepositoryManager struct {
	Project      models.ProjectRepository
	TestRun      models.TestRunRepository
	BuildInfo    models.BuildInfoRepository
	Stats        models.StatsRepository
	QueryLog     models.QueryLogRepository
	PopularQuery models.PopularQueryRepository
	SystemHealth models.SystemHealthRepository
}

func NewRepositoryManager(db *gorm.DB) *RepositoryManager {
	return &RepositoryManager{
		Project:      NewProjectRepository(db),
		TestRun:      NewTestRunRepository(db),
		BuildInfo:    NewBuildInfoRepository(db),
		Stats:        NewStatsRepository(db),
		QueryLog:     NewQueryLogRepository(db),
		PopularQuery: NewPopularQueryRepository(db),
		SystemHealth: NewSystemHealthRepository(db),
	}
}
