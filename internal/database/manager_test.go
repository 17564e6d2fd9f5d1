package database

import (
	"context"
	"testing"

	"github.com/cukesight/backend/internal/config"
	"github.com/cukesight/backend/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:"},
		Redis:    config.RedisConfig{Enabled: false},
	}
}

func TestManagerWithSQLite(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	m, err := NewManager(testConfig(), log)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Migrate())
	assert.True(t, m.DB.Migrator().HasTable(&models.TestRun{}))
	assert.NoError(t, m.PingDatabase(context.Background()))
	assert.ErrorIs(t, m.PingRedis(context.Background()), ErrRedisDisabled)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql"}, logrus.New())
	assert.Error(t, err)
}

func TestCacheWithoutRedis(t *testing.T) {
	cache := NewCache(nil, logrus.New())
	ctx := context.Background()

	require.NoError(t, cache.SetEmbedding(ctx, "k", []float32{1, 2}, 0))
	_, err := cache.GetEmbedding(ctx, "k")
	assert.ErrorIs(t, err, redis.Nil)

	_, err = cache.GetCacheStats(ctx)
	assert.ErrorIs(t, err, ErrRedisDisabled)
}

func TestExtractStat(t *testing.T) {
	info := "# Stats\r\nkeyspace_hits:12\r\nkeyspace_misses:3\r\n"
	assert.Equal(t, "12", extractStat(info, "keyspace_hits"))
	assert.Equal(t, "3", extractStat(info, "keyspace_misses"))
	assert.Equal(t, "0", extractStat(info, "used_memory"))
}
