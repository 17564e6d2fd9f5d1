package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cukesight/backend/internal/aggregation"
	"github.com/cukesight/backend/internal/answer"
	"github.com/cukesight/backend/internal/archive"
	"github.com/cukesight/backend/internal/chunker"
	"github.com/cukesight/backend/internal/clock"
	"github.com/cukesight/backend/internal/config"
	"github.com/cukesight/backend/internal/database"
	"github.com/cukesight/backend/internal/domain"
	"github.com/cukesight/backend/internal/dualstore"
	"github.com/cukesight/backend/internal/health"
	"github.com/cukesight/backend/internal/ingestion"
	"github.com/cukesight/backend/internal/llm"
	"github.com/cukesight/backend/internal/normalizer"
	"github.com/cukesight/backend/internal/reconcile"
	"github.com/cukesight/backend/internal/repository"
	"github.com/cukesight/backend/internal/retrieval"
	"github.com/cukesight/backend/internal/retry"
	"github.com/cukesight/backend/internal/services"
	"github.com/cukesight/backend/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// App holds every long-lived component built from one Config.
type App struct {
	Config *config.Config
	Logger *logrus.Logger

	DB       *database.Manager
	Repos    *repository.RepositoryManager
	Cache    *database.Cache
	Store    vectordb.Store
	Embedder llm.Embedder

	Ingest     *services.IngestService
	Query      *services.QueryService
	Stats      *services.StatsService
	Reconciler *reconcile.Job
	Health     *health.HealthChecker
}

// New connects to every backend and fails fast on invalid settings.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	unit, err := normalizer.ParseDurationUnit(cfg.Ingestion.DurationUnit)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	textChunker, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbManager, err := database.NewManager(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}
	a := &App{Config: cfg, Logger: logger, DB: dbManager}

	if err := dbManager.Migrate(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	a.Repos = repository.NewRepositoryManager(dbManager.DB)
	a.Cache = database.NewCache(dbManager.Redis, logger)

	a.Store = newStore(cfg.Vector, logger)
	if err := a.Store.EnsureCollection(ctx, cfg.Vector.Dimension); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to prepare vector collection: %w", err)
	}

	a.Embedder, err = llm.NewEmbedder(cfg.LLM, cfg.Vector.Dimension)
	if err != nil {
		a.Close()
		return nil, err
	}
	if dbManager.Redis != nil {
		a.Embedder = llm.NewCachingEmbedder(a.Embedder, a.Cache, cfg.Redis.EmbeddingTTL, logger)
	}

	generator, err := llm.NewGenerator(cfg.LLM)
	if err != nil {
		a.Close()
		return nil, err
	}

	archiver := archive.New(logger, cfg.Archive)
	if err := archiver.Preflight(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("archive preflight failed: %w", err)
	}

	retriever, err := retrieval.NewEngine(a.Store, cfg.RAG.SimilarityThreshold, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	clk := clock.System{}
	writer := dualstore.NewWriter(a.Repos.TestRun, a.Repos.BuildInfo, a.Store, a.Embedder, logger)
	pipeline := ingestion.NewPipeline(textChunker, a.Embedder, a.Store, logger)
	statsEngine := aggregation.NewEngine(statsSource(cfg.RAG, a.Repos, a.Store), clk, cfg.RAG.TopTags, cfg.RAG.StrictTimestamps)
	answers := answer.NewGenerator(generator, cfg.LLM.MaxTokens, cfg.LLM.Temperature, logger)

	a.Ingest = services.NewIngestService(normalizer.New(unit, logger), writer, pipeline, archiver, clk, cfg.Ingestion, logger)
	a.Query = services.NewQueryService(a.Embedder, retriever, statsEngine, answers, a.Repos, clk, cfg.RAG, logger)
	a.Stats = services.NewStatsService(statsEngine, a.Repos.Stats, cfg.RAG.StatsDays)
	a.Reconciler = reconcile.NewJob(a.Repos.TestRun, writer, pipeline, a.Store, cfg.Reconcile, logger)
	a.Health = health.NewHealthChecker(a.Repos.SystemHealth, a.Cache, logger, a.probes()...)

	logger.WithFields(logrus.Fields{
		"database":  cfg.Database.Driver,
		"vector":    cfg.Vector.Backend,
		"embedding": a.Embedder.Model(),
		"generator": generator.Model(),
		"archive":   cfg.Archive.Enabled,
	}).Info("Components initialized")

	return a, nil
}

func newStore(cfg config.VectorConfig, logger *logrus.Logger) vectordb.Store {
	if cfg.Backend == "memory" {
		return vectordb.NewMemoryStore()
	}
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = 3
	retryCfg.BaseDelay = 500 * time.Millisecond
	retryCfg.Retryable = domain.IsRetryable
	return vectordb.NewQdrantStore(cfg.URL, cfg.APIKey, cfg.Collection, cfg.Timeout, logger).WithRetry(retryCfg)
}

func statsSource(cfg config.RAGConfig, repos *repository.RepositoryManager, store vectordb.Store) aggregation.Source {
	if cfg.StatsSource == "vector" {
		return aggregation.NewVectorSource(store)
	}
	return aggregation.NewRelationalSource(repos.Stats)
}

func (a *App) probes() []health.Probe {
	probes := []health.Probe{
		{Name: "database", Critical: true, Check: a.DB.PingDatabase},
		{Name: "vector_store", Critical: true, Check: a.Store.Ping},
		{Name: "embedding", Check: func(ctx context.Context) error {
			_, err := a.Embedder.Embed(ctx, "health check")
			return err
		}},
	}
	if a.DB.Redis != nil {
		probes = append(probes, health.Probe{Name: "redis", Check: a.DB.PingRedis})
	}
	return probes
}

// Close releases database and cache connections.
func (a *App) Close() {
	if a.DB == nil {
		return
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.WithError(err).Warn("Failed to close database connections")
	}
}
