package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cukesight/backend/internal/config"
	"github.com/cukesight/backend/internal/health"
	"github.com/cukesight/backend/internal/services"
	"github.com/cukesight/backend/internal/vectordb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "app.db")}
	cfg.Vector = config.VectorConfig{Backend: "memory", Collection: "reports", Dimension: 32}
	cfg.LLM = config.LLMConfig{Provider: "ollama", EmbeddingProvider: "hash", OllamaURL: "http://127.0.0.1:1", Timeout: time.Second, MaxTokens: 64}
	cfg.RAG = config.RAGConfig{ChunkSize: 500, ChunkOverlap: 50, SimilarityThreshold: 0.1, MaxResults: 5, StatsDays: 7, TopTags: 5}
	cfg.Ingestion = config.IngestionConfig{DurationUnit: "nanoseconds", DefaultProject: "default", DefaultEnvironment: "unknown"}
	cfg.Reconcile = config.ReconcileConfig{Interval: time.Minute, Concurrency: 1, BatchSize: 10}
	return cfg
}

func TestNewWiresOfflineStack(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	ctx := context.Background()

	a, err := New(ctx, offlineConfig(t), log)
	require.NoError(t, err)
	defer a.Close()

	report, err := os.ReadFile("../normalizer/testdata/login.json")
	require.NoError(t, err)

	resp, err := a.Ingest.Ingest(ctx, [][]byte{report}, services.IngestMetadata{Environment: "staging"})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	// the generator backend is unreachable, so the answer degrades
	answer, err := a.Query.Query(ctx, "which scenarios failed", nil, services.QueryMeta{})
	require.NoError(t, err)
	assert.True(t, answer.Degraded)
	require.NotNil(t, answer.Statistics)
	assert.Equal(t, 2, answer.Statistics.Total)

	overall := a.Health.CheckAll(ctx)
	assert.Equal(t, health.StatusHealthy, overall.Status)
	assert.Len(t, overall.Services, 3)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	cfg := offlineConfig(t)
	cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize
	_, err := New(context.Background(), cfg, log)
	assert.Error(t, err)

	cfg = offlineConfig(t)
	cfg.Ingestion.DurationUnit = "fortnights"
	_, err = New(context.Background(), cfg, log)
	assert.Error(t, err)
}

func TestStatsSourceSelection(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	cfg := offlineConfig(t)
	cfg.RAG.StatsSource = "vector"
	a, err := New(context.Background(), cfg, log)
	require.NoError(t, err)
	defer a.Close()

	stats, err := a.Stats.GetStatistics(context.Background(), 0, "", "")
	require.NoError(t, err)
	assert.True(t, stats.Empty())
}

func TestStrictTimestampsReachStatistics(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	for _, strict := range []bool{false, true} {
		cfg := offlineConfig(t)
		cfg.RAG.StatsSource = "vector"
		cfg.RAG.StrictTimestamps = strict
		a, err := New(context.Background(), cfg, log)
		require.NoError(t, err)

		vector := make([]float32, cfg.Vector.Dimension)
		vector[0] = 1
		require.NoError(t, a.Store.Upsert(context.Background(), []vectordb.Point{{
			ID:     "b7a4c1de-0000-4000-8000-000000000001",
			Vector: vector,
			Payload: map[string]interface{}{
				"type":        "scenario",
				"status":      "FAILED",
				"feature":     "Login",
				"environment": "ci",
				"timestamp":   "garbage",
				"chunk_index": 0,
			},
		}}))

		stats, err := a.Stats.GetStatistics(context.Background(), 7, "", "")
		require.NoError(t, err)
		if strict {
			assert.Zero(t, stats.Total)
			assert.Zero(t, stats.Unparsed)
		} else {
			assert.Equal(t, 1, stats.Total)
			assert.Equal(t, 1, stats.Unparsed)
		}
		a.Close()
	}
}
