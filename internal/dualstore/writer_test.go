package dualstore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cukesight/backend/internal/domain"
	"github.com/cukesight/backend/internal/llm"
	"github.com/cukesight/backend/internal/models"
	"github.com/cukesight/backend/internal/repository"
	"github.com/cukesight/backend/internal/vectordb"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// countingStore records upserts and can be switched to fail them.
type countingStore struct {
	*vectordb.MemoryStore
	upserts atomic.Int32
	fail    atomic.Bool
}

func (s *countingStore) Upsert(ctx context.Context, points []vectordb.Point) error {
	s.upserts.Add(1)
	if s.fail.Load() {
		return domain.Unavailable("vector store", errors.New("connection refused"))
	}
	return s.MemoryStore.Upsert(ctx, points)
}

type fixture struct {
	db     *gorm.DB
	repos  *repository.RepositoryManager
	store  *countingStore
	writer *Writer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	repos := repository.NewRepositoryManager(db)
	store := &countingStore{MemoryStore: vectordb.NewMemoryStore()}
	return &fixture{
		db:     db,
		repos:  repos,
		store:  store,
		writer: NewWriter(repos.TestRun, repos.BuildInfo, store, llm.NewHashEmbedder(32), log),
	}
}

func sampleRun(scenarios int) *domain.TestRun {
	feature := domain.Feature{ID: "checkout", Name: "Checkout", Tags: []string{"payments"}}
	for i := 0; i < scenarios; i++ {
		s := domain.Scenario{
			ID:   "checkout;" + string(rune('a'+i)),
			Name: "Scenario " + string(rune('A'+i)),
			Steps: []domain.Step{
				{ID: "s0", Keyword: "Given", Name: "a cart", Status: domain.StatusPassed, Duration: 0.2},
			},
		}
		s.Recompute()
		feature.Scenarios = append(feature.Scenarios, s)
	}
	return domain.NewTestRun("shop", "ci", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), []domain.Feature{feature})
}

func TestWriteLinksBothStores(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	run := sampleRun(2)

	result, err := f.writer.Write(ctx, run)
	require.NoError(t, err)
	assert.True(t, result.Consistent())
	assert.NotZero(t, result.PGID)
	assert.Equal(t, ReportPointID(result.PGID), result.VectorID)
	assert.Equal(t, result.PGID, run.PGID)
	assert.Equal(t, result.VectorID, run.VectorID)

	point, ok := f.store.Get(result.VectorID)
	require.True(t, ok)
	assert.Equal(t, "report", point.Payload[domain.KeyType])
	assert.Equal(t, result.PGID, point.Payload[domain.KeyPGID])
	assert.Equal(t, run.ID, point.Payload[domain.KeyTestRunID])

	row, err := f.repos.TestRun.GetTree(ctx, result.PGID)
	require.NoError(t, err)
	require.NotNil(t, row.VectorID)
	assert.Equal(t, result.VectorID, *row.VectorID)
}

func TestWriteRelationalFailureSkipsVectorStore(t *testing.T) {
	for k := 1; k <= 3; k++ {
		f := setup(t)
		inserted := 0
		failAt := k
		err := f.db.Callback().Create().Before("gorm:create").Register("test:fail_scenario", func(tx *gorm.DB) {
			if tx.Statement.Table != "scenarios" {
				return
			}
			inserted++
			if inserted == failAt {
				tx.AddError(errors.New("disk full"))
			}
		})
		require.NoError(t, err)

		_, err = f.writer.Write(context.Background(), sampleRun(3))
		require.Error(t, err, "k=%d", k)
		assert.Zero(t, f.store.upserts.Load(), "k=%d", k)
		assert.Zero(t, f.store.Len(), "k=%d", k)

		var runs int64
		require.NoError(t, f.db.Model(&models.TestRun{}).Count(&runs).Error)
		assert.Zero(t, runs, "k=%d", k)
	}
}

func TestWriteVectorFailureIsWarningAndSyncRepairs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.store.fail.Store(true)

	result, err := f.writer.Write(ctx, sampleRun(1))
	require.NoError(t, err)
	assert.False(t, result.Consistent())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], domain.ErrDataInconsistency.Error())

	missing, err := f.repos.TestRun.ListMissingVectorRefs(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{result.PGID}, missing)

	f.store.fail.Store(false)
	run, err := f.writer.Sync(ctx, result.PGID)
	require.NoError(t, err)
	assert.Equal(t, ReportPointID(result.PGID), run.VectorID)

	_, err = f.writer.Sync(ctx, result.PGID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.Len())

	missing, err = f.repos.TestRun.ListMissingVectorRefs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestSyncUnknownRun(t *testing.T) {
	f := setup(t)
	_, err := f.writer.Sync(context.Background(), 42)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestWriteBuildInfo(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.writer.WriteBuildInfo(ctx, domain.BuildInfo{BuildID: "b-1"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	info := domain.BuildInfo{
		BuildID:     "b-1",
		BuildNumber: "1",
		Branch:      "main",
		CommitHash:  "abc",
		BuildDate:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	result, err := f.writer.WriteBuildInfo(ctx, info)
	require.NoError(t, err)
	assert.Equal(t, BuildPointID("b-1"), result.VectorID)

	point, ok := f.store.Get(result.VectorID)
	require.True(t, ok)
	assert.Equal(t, "build_info", point.Payload[domain.KeyType])
	assert.Equal(t, "b-1", point.Payload[domain.KeyBuildID])

	stored, err := f.repos.BuildInfo.GetByBuildID(ctx, "b-1")
	require.NoError(t, err)
	require.NotNil(t, stored.VectorID)
	assert.Equal(t, result.VectorID, *stored.VectorID)
}
