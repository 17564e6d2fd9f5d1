package retrieval

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/cukesight/backend/internal/domain"
	"github.com/cukesight/backend/internal/vectordb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T) *vectordb.MemoryStore {
	t.Helper()
	store := vectordb.NewMemoryStore()
	require.NoError(t, store.EnsureCollection(context.Background(), 2))
	require.NoError(t, store.Upsert(context.Background(), []vectordb.Point{
		{ID: "p1", Vector: []float32{1, 0}, Payload: map[string]interface{}{
			"type": "scenario", "scenario": "Locked account", "text": "Scenario: Locked account",
		}},
		{ID: "p2", Vector: []float32{0.8, 0.6}, Payload: map[string]interface{}{
			"type": "feature", "feature": "Login", "text": "Feature: Login",
		}},
		{ID: "p3", Vector: []float32{0, 1}, Payload: map[string]interface{}{
			"type": "error", "scenario": "Locked account", "text": "Error in 'Then x': boom",
		}},
	}))
	return store
}

func TestRetrieveAppliesThreshold(t *testing.T) {
	engine, err := NewEngine(seededStore(t), 0.7, logrus.New())
	require.NoError(t, err)

	results, err := engine.Retrieve(context.Background(), []float32{1, 0}, vectordb.NewFilter(), 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "p1", results[0].ID)
	assert.Equal(t, "scenario:Locked account", results[0].Source)
	assert.Equal(t, "feature:Login", results[1].Source)
	assert.InDelta(t, 0.8, results[1].Score, 1e-6)
}

func TestRetrieveWithFilter(t *testing.T) {
	engine, err := NewEngine(seededStore(t), 0, logrus.New())
	require.NoError(t, err)

	results, err := engine.Retrieve(context.Background(), []float32{1, 0},
		vectordb.NewFilter().With(domain.KeyType, "error"), 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p3", results[0].ID)
}

func TestRetrieveNeverReturnsBelowThreshold(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	store := vectordb.NewMemoryStore()
	var points []vectordb.Point
	for i := 0; i < 50; i++ {
		points = append(points, vectordb.Point{
			ID:      fmt.Sprintf("p%d", i),
			Vector:  []float32{rng.Float32()*2 - 1, rng.Float32()*2 - 1, rng.Float32()*2 - 1},
			Payload: map[string]interface{}{"type": "scenario", "text": "t"},
		})
	}
	require.NoError(t, store.Upsert(context.Background(), points))

	for _, threshold := range []float64{0, 0.25, 0.5, 0.75, 0.9, 1} {
		engine, err := NewEngine(store, threshold, logrus.New())
		require.NoError(t, err)
		results, err := engine.Retrieve(context.Background(), []float32{1, 0.5, -0.2}, vectordb.NewFilter(), 20)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), 20)
		for _, r := range results {
			assert.GreaterOrEqual(t, r.Score, threshold)
		}
	}
}

func TestNewEngineRejectsBadThreshold(t *testing.T) {
	_, err := NewEngine(vectordb.NewMemoryStore(), 1.5, logrus.New())
	assert.Error(t, err)
	_, err = NewEngine(vectordb.NewMemoryStore(), -0.1, logrus.New())
	assert.Error(t, err)
}

func TestRetrieveRejectsNonPositiveLimit(t *testing.T) {
	engine, err := NewEngine(vectordb.NewMemoryStore(), 0.5, logrus.New())
	require.NoError(t, err)
	_, err = engine.Retrieve(context.Background(), []float32{1}, vectordb.NewFilter(), 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "", Format(nil))
	assert.Equal(t, "", Format([]Result{}))

	results := []Result{
		{Text: "Scenario: Locked account", Source: "scenario:Locked account", Score: 0.91234},
		{Text: "Feature: Login", Source: "feature:Login", Score: 0.7},
	}
	out := Format(results)
	assert.Equal(t,
		"[1] Scenario: Locked account (Source: scenario:Locked account, Relevance: 0.91)\n\n"+
			"[2] Feature: Login (Source: feature:Login, Relevance: 0.70)",
		out)
	assert.Equal(t, 2, strings.Count(out, "Source:"))
	assert.Equal(t, 2, strings.Count(out, "Relevance:"))
	assert.Equal(t, Format(results), out)
}

func TestSourceOf(t *testing.T) {
	assert.Equal(t, "build_info:b-1", sourceOf("x", map[string]interface{}{"type": "build_info", "build_id": "b-1"}))
	assert.Equal(t, "report:run-1", sourceOf("x", map[string]interface{}{"type": "report", "test_run_id": "run-1"}))
	assert.Equal(t, "feature:x", sourceOf("x", map[string]interface{}{"type": "feature"}))
	assert.Equal(t, "x", sourceOf("x", map[string]interface{}{}))
}

func TestSources(t *testing.T) {
	results := []Result{{Source: "a"}, {Source: "b"}, {Source: "a"}}
	assert.Equal(t, []string{"a", "b"}, Sources(results))
	assert.Equal(t, []string{}, Sources(nil))
}
