package vectordb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemory(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	require.NoError(t, store.EnsureCollection(context.Background(), 2))
	require.NoError(t, store.Upsert(context.Background(), []Point{
		{ID: "a", Vector: []float32{1, 0}, Payload: map[string]interface{}{"type": "scenario", "tags": []string{"smoke"}, "status": "FAILED"}},
		{ID: "b", Vector: []float32{0, 1}, Payload: map[string]interface{}{"type": "scenario", "tags": []string{"api"}, "status": "PASSED"}},
		{ID: "c", Vector: []float32{1, 1}, Payload: map[string]interface{}{"type": "feature", "tags": []interface{}{"smoke", "api"}}},
		{ID: "d", Vector: []float32{1, 0}, Payload: map[string]interface{}{"type": "report", "pg_id": uint(12)}},
	}))
	return store
}

func TestMemoryStore_SearchRanksAndFilters(t *testing.T) {
	store := seedMemory(t)
	ctx := context.Background()

	results, err := store.Search(ctx, []float32{1, 0}, NewFilter(), 10)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "d", results[1].ID, "ties keep insertion order")
	assert.Equal(t, "c", results[2].ID)

	results, err = store.Search(ctx, []float32{1, 0}, NewFilter().With("type", "scenario"), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestMemoryStore_TagFilterMatchesAny(t *testing.T) {
	store := seedMemory(t)

	count, err := store.Count(context.Background(), NewFilter().With("tags", []string{"smoke"}))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = store.Count(context.Background(), NewFilter().With("pg_id", 12))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStore_Scroll(t *testing.T) {
	store := seedMemory(t)
	ctx := context.Background()

	var ids []string
	offset := ""
	for {
		page, next, err := store.Scroll(ctx, NewFilter().With("type", "scenario"), 1, offset)
		require.NoError(t, err)
		for _, p := range page {
			ids = append(ids, p.ID)
		}
		if next == "" {
			break
		}
		offset = next
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestMemoryStore_UpsertReplaces(t *testing.T) {
	store := seedMemory(t)
	require.NoError(t, store.Upsert(context.Background(), []Point{
		{ID: "a", Vector: []float32{0, 1}, Payload: map[string]interface{}{"type": "scenario"}},
	}))

	assert.Equal(t, 4, store.Len())
	p, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, p.Vector)
}

func TestMemoryStore_RejectsWrongDimension(t *testing.T) {
	store := seedMemory(t)
	err := store.Upsert(context.Background(), []Point{{ID: "z", Vector: []float32{1, 2, 3}}})
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}
