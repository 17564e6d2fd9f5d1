package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cukesight/backend/internal/chunker"
	"github.com/cukesight/backend/internal/domain"
	"github.com/cukesight/backend/internal/llm"
	"github.com/cukesight/backend/internal/vectordb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginRun() *domain.TestRun {
	passing := domain.Scenario{
		ID:   "login;valid",
		Name: "Valid login",
		Tags: []string{"smoke"},
		Steps: []domain.Step{
			{ID: "login;valid;0", Keyword: "Given", Name: "a registered user", Status: domain.StatusPassed},
			{ID: "login;valid;1", Keyword: "When", Name: "they sign in", Status: domain.StatusPassed},
			{ID: "login;valid;2", Keyword: "Then", Name: "the dashboard opens", Status: domain.StatusPassed},
		},
	}
	failing := domain.Scenario{
		ID:   "login;locked",
		Name: "Locked account",
		Tags: []string{"smoke", "critical"},
		Steps: []domain.Step{
			{ID: "login;locked;0", Keyword: "Given", Name: "a locked user", Status: domain.StatusPassed},
			{ID: "login;locked;1", Keyword: "Then", Name: "an error is shown", Status: domain.StatusFailed, ErrorMessage: "element #error not found"},
		},
	}
	passing.Recompute()
	failing.Recompute()

	run := domain.NewTestRun("shop", "staging", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), []domain.Feature{{
		ID:          "login",
		Name:        "Login",
		Description: "Users sign in",
		Tags:        []string{"smoke"},
		Scenarios:   []domain.Scenario{passing, failing},
	}})
	run.PGID = 7
	return run
}

func newPipeline(t *testing.T, embedder llm.Embedder) (*Pipeline, *vectordb.MemoryStore) {
	t.Helper()
	c, err := chunker.New(1000, 200)
	require.NoError(t, err)
	store := vectordb.NewMemoryStore()
	require.NoError(t, store.EnsureCollection(context.Background(), embedder.Dimension()))
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return NewPipeline(c, embedder, store, log), store
}

func TestChunkTexts(t *testing.T) {
	run := loginRun()
	f := run.Features[0]

	assert.Equal(t, "Feature: Login\n\nUsers sign in", FeatureText(f))
	assert.Equal(t,
		"Scenario: Locked account\n\nGiven a locked user\nThen an error is shown",
		ScenarioText(f.Scenarios[1]))
	assert.Equal(t,
		"Error in 'Then an error is shown': element #error not found",
		ErrorText(f.Scenarios[1].Steps[1]))
}

func TestBuildChunks(t *testing.T) {
	chunks := BuildChunks(loginRun())
	require.Len(t, chunks, 4)

	types := make([]domain.ChunkType, len(chunks))
	for i, c := range chunks {
		types[i] = c.Metadata.ChunkType
		require.NoError(t, c.Metadata.Validate())
	}
	assert.Equal(t, []domain.ChunkType{
		domain.ChunkFeature, domain.ChunkScenario, domain.ChunkScenario, domain.ChunkError,
	}, types)

	assert.Equal(t, []string{"smoke"}, chunks[0].Metadata.Tags)
	assert.Equal(t, []string{"smoke", "critical"}, chunks[2].Metadata.Tags)
	assert.Equal(t, []string{"smoke", "critical"}, chunks[3].Metadata.Tags)

	payload := chunks[3].Metadata.Payload()
	assert.Equal(t, "error", payload[domain.KeyType])
	assert.Equal(t, "login;locked", payload[domain.KeyScenarioID])
	assert.Equal(t, uint(7), payload[domain.KeyPGID])
	assert.Equal(t, "staging", payload[domain.KeyEnvironment])
}

func TestIndexRun(t *testing.T) {
	p, store := newPipeline(t, llm.NewHashEmbedder(64))

	summary := p.IndexRun(context.Background(), loginRun())
	assert.True(t, summary.Success())
	assert.Equal(t, 4, summary.ChunksStored)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 1, summary.ByType[domain.ChunkFeature])
	assert.Equal(t, 2, summary.ByType[domain.ChunkScenario])
	assert.Equal(t, 1, summary.ByType[domain.ChunkError])
	assert.Len(t, summary.EmbeddingIDs, 4)

	count, err := store.Count(context.Background(), vectordb.NewFilter().With(domain.KeyType, "error"))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	point, ok := store.Get(summary.EmbeddingIDs[0])
	require.True(t, ok)
	assert.Equal(t, "Feature: Login\n\nUsers sign in", point.Payload[domain.KeyText])
	assert.Equal(t, 0, point.Payload[domain.KeyChunkIndex])
}

func TestIndexSplitsLongChunks(t *testing.T) {
	c, err := chunker.New(20, 5)
	require.NoError(t, err)
	store := vectordb.NewMemoryStore()
	p := NewPipeline(c, llm.NewHashEmbedder(32), store, logrus.New())

	meta := domain.NewChunkMetadata("run-1", nil, domain.FeatureChunkRef{FeatureID: "f", FeatureName: "F"})
	text := strings.Repeat("abcdefghij", 5)
	summary := p.Index(context.Background(), []domain.TextChunk{{Text: text, Metadata: meta}})

	assert.Equal(t, len(c.Split(text)), summary.ChunksStored)
	assert.Greater(t, summary.ChunksStored, 1)
	assert.Equal(t, summary.ChunksStored, store.Len())
}

type failingEmbedder struct {
	llm.Embedder
	match string
}

func (f failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, f.match) {
		return nil, domain.Unavailable("test", errors.New("connection refused"))
	}
	return f.Embedder.Embed(ctx, text)
}

func TestIndexRunPartialFailure(t *testing.T) {
	p, store := newPipeline(t, failingEmbedder{Embedder: llm.NewHashEmbedder(64), match: "Error in"})

	summary := p.IndexRun(context.Background(), loginRun())
	assert.True(t, summary.Success())
	assert.Equal(t, 3, summary.ChunksStored)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	assert.True(t, domain.IsRetryable(summary.Errors[0]))
	assert.Zero(t, summary.ByType[domain.ChunkError])
	assert.Equal(t, 3, store.Len())
}

func TestIndexRunAllFail(t *testing.T) {
	p, store := newPipeline(t, failingEmbedder{Embedder: llm.NewHashEmbedder(64), match: ""})

	summary := p.IndexRun(context.Background(), loginRun())
	assert.False(t, summary.Success())
	assert.Equal(t, 4, summary.Failed)
	assert.Zero(t, store.Len())
}
