package aggregation

import (
	"context"
	"testing"
	"time"

	"github.com/cukesight/backend/internal/clock"
	"github.com/cukesight/backend/internal/domain"
	"github.com/cukesight/backend/internal/models"
	"github.com/cukesight/backend/internal/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func records() []Record {
	return []Record{
		{Timestamp: "2024-03-09T10:00:00Z", Status: domain.StatusPassed, Tags: []string{"smoke", "login"}, Feature: "Login", Environment: "staging"},
		{Timestamp: "2024-03-09T11:00:00+02:00", Status: domain.StatusFailed, Tags: []string{"login", "smoke"}, Feature: "Login", Environment: "staging"},
		{Timestamp: "2024-03-08T00:00:00z", Status: domain.StatusSkipped, Tags: []string{"checkout"}, Feature: "Checkout", Environment: "prod"},
		{Timestamp: "2024-01-01T00:00:00Z", Status: domain.StatusFailed, Tags: []string{"old"}, Feature: "Login", Environment: "staging"},
		{Timestamp: "not a date", Status: domain.StatusPassed, Tags: []string{"legacy"}, Feature: "Login", Environment: "staging"},
	}
}

func TestComputeFailOpen(t *testing.T) {
	stats := Compute(records(), Options{Days: 7, Now: now, TopN: 5})

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Passed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Unparsed)
	assert.InDelta(t, 0.5, stats.PassRate, 1e-9)
	assert.Equal(t, "last 7 days", stats.TimePeriod)
	assert.Equal(t, []TagCount{
		{Tag: "smoke", Count: 2},
		{Tag: "login", Count: 2},
		{Tag: "checkout", Count: 1},
		{Tag: "legacy", Count: 1},
	}, stats.TopTags)
}

func TestComputeStrict(t *testing.T) {
	stats := Compute(records(), Options{Days: 7, Now: now, Strict: true})
	assert.Equal(t, 3, stats.Total)
	assert.Zero(t, stats.Unparsed)
}

func TestComputeFilters(t *testing.T) {
	stats := Compute(records(), Options{Days: 7, Now: now, Environment: "prod"})
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Skipped)

	stats = Compute(records(), Options{Feature: "Login", Now: now})
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, "all time", stats.TimePeriod)
}

func TestComputeTopN(t *testing.T) {
	stats := Compute(records(), Options{Days: 7, Now: now, TopN: 1})
	assert.Equal(t, []TagCount{{Tag: "smoke", Count: 2}}, stats.TopTags)
}

func TestComputeEmpty(t *testing.T) {
	stats := Compute(nil, Options{Days: 7, Now: now})
	assert.True(t, stats.Empty())
	assert.Zero(t, stats.PassRate)
	assert.Equal(t, []TagCount{}, stats.TopTags)
}

func TestPassRate(t *testing.T) {
	assert.Zero(t, PassRate(0, 0))
	assert.Zero(t, PassRate(5, 0))
	assert.InDelta(t, 0.75, PassRate(3, 4), 1e-9)
}

type stubStats struct {
	models.StatsRepository
	got  models.ScenarioCountFilter
	rows []models.ScenarioRecord
}

func (s *stubStats) ListScenarioRecords(_ context.Context, f models.ScenarioCountFilter) ([]models.ScenarioRecord, error) {
	s.got = f
	return s.rows, nil
}

func TestEngineWithRelationalSource(t *testing.T) {
	repo := &stubStats{rows: []models.ScenarioRecord{
		{Feature: "Login", Environment: "ci", Status: "PASSED", Timestamp: now.Add(-time.Hour), Tags: []string{"smoke"}},
		{Feature: "Login", Environment: "ci", Status: "FAILED", Timestamp: now.Add(-2 * time.Hour), Tags: []string{"smoke"}},
	}}
	engine := NewEngine(NewRelationalSource(repo), clock.Fixed(now), 5, false)

	stats, err := engine.Statistics(context.Background(), 3, "ci", "")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.InDelta(t, 0.5, stats.PassRate, 1e-9)
	assert.Equal(t, []TagCount{{Tag: "smoke", Count: 2}}, stats.TopTags)

	require.NotNil(t, repo.got.Since)
	assert.True(t, repo.got.Since.Equal(now.AddDate(0, 0, -3)))
	assert.Equal(t, "ci", repo.got.Environment)
}

func TestVectorSource(t *testing.T) {
	store := vectordb.NewMemoryStore()
	ctx := context.Background()
	var points []vectordb.Point
	for i, p := range []map[string]interface{}{
		{"type": "scenario", "status": "PASSED", "feature": "Login", "environment": "ci", "timestamp": "2024-03-09T00:00:00Z", "tags": []interface{}{"smoke"}, "chunk_index": 0},
		{"type": "scenario", "status": "PASSED", "feature": "Login", "environment": "ci", "timestamp": "2024-03-09T00:00:00Z", "tags": []interface{}{"smoke"}, "chunk_index": 1},
		{"type": "scenario", "status": "FAILED", "feature": "Login", "environment": "ci", "timestamp": "garbage", "tags": []string{"smoke"}, "chunk_index": 0},
		{"type": "feature", "feature": "Login", "environment": "ci"},
		{"type": "scenario", "status": "PASSED", "feature": "Login", "environment": "prod", "timestamp": "2024-03-09T00:00:00Z"},
	} {
		points = append(points, vectordb.Point{ID: string(rune('a' + i)), Vector: []float32{1}, Payload: p})
	}
	require.NoError(t, store.Upsert(ctx, points))

	source := NewVectorSource(store)
	source.pageSize = 1

	records, err := source.Records(ctx, Query{Environment: "ci"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"smoke"}, records[0].Tags)

	engine := NewEngine(source, clock.Fixed(now), 5, false)
	stats, err := engine.Statistics(ctx, 7, "ci", "")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Unparsed)
}
