package models

import (
	"context"
	"time"
)

// Database interfaces for repository pattern

type ProjectRepository interface {
	GetOrCreate(ctx context.Context, name string) (*Project, error)
	List(ctx context.Context) ([]Project, error)
}

type TestRunRepository interface {
	// CreateTree writes the run and its whole feature tree in one
	// transaction, parents before children. Any error rolls back every row.
	CreateTree(ctx context.Context, run *TestRun, projectName string) error
	GetTree(ctx context.Context, id uint) (*TestRun, error)
	SetVectorID(ctx context.Context, id uint, vectorID string) error
	ListMissingVectorRefs(ctx context.Context, limit int) ([]uint, error)
	CountMissingVectorRefs(ctx context.Context) (int64, error)
	// ListUnindexed returns linked runs whose chunks never reached the
	// vector store.
	ListUnindexed(ctx context.Context, limit int) ([]uint, error)
	SetChunksIndexed(ctx context.Context, id uint) error
}

type BuildInfoRepository interface {
	Upsert(ctx context.Context, info *BuildInfo) error
	GetByBuildID(ctx context.Context, buildID string) (*BuildInfo, error)
	SetVectorID(ctx context.Context, buildID, vectorID string) error
}

// ScenarioCountFilter narrows scenario counts. Zero values do not filter.
type ScenarioCountFilter struct {
	Since       *time.Time
	Status      string
	Environment string
	Feature     string
	Project     string
}

// ScenarioRecord is one scenario flattened with its run's context.
type ScenarioRecord struct {
	ScenarioID  uint
	Feature     string
	Environment string
	Status      string
	Timestamp   time.Time
	Tags        []string
}

type StatsRepository interface {
	CountScenarios(ctx context.Context, filter ScenarioCountFilter) (int64, error)
	ListScenarioRecords(ctx context.Context, filter ScenarioCountFilter) ([]ScenarioRecord, error)
	ListFailedSteps(ctx context.Context, filter ScenarioCountFilter, limit int) ([]FailedStepRecord, error)
}

// FailedStepRecord describes one failing step for failure analysis.
type FailedStepRecord struct {
	Feature      string
	Scenario     string
	Keyword      string
	Step         string
	ErrorMessage string
	Environment  string
	Timestamp    time.Time
}

type QueryLogRepository interface {
	Create(ctx context.Context, log *QueryLog) error
	GetRecent(ctx context.Context, limit int) ([]QueryLog, error)
}

type PopularQueryRepository interface {
	IncrementCount(queryText string) error
	GetTop(limit int) ([]PopularQuery, error)
	UpdateStats(queryText string, sourcesCount float64, responseTime int) error
	FindRelated(ctx context.Context, queryText string, limit int) ([]PopularQuery, error)
}

type SystemHealthRepository interface {
	UpdateServiceHealth(serviceName, status string, responseTime int, errorMsg string) error
	GetServiceHealth(serviceName string) (*SystemHealth, error)
	GetAllServicesHealth() ([]SystemHealth, error)
	GetUnhealthyServices() ([]SystemHealth, error)
}
