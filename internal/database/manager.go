package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdlog "log"
	"strings"
	"time"

	"github.com/cukesight/backend/internal/config"
	"github.com/cukesight/backend/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrRedisDisabled is returned by redis operations when no client is configured.
var ErrRedisDisabled = errors.New("redis is disabled")

// Database connection manager
type Manager struct {
	DB     *gorm.DB
	Redis  *redis.Client
	logger *logrus.Logger
}

func gormLogger(level string, log *logrus.Logger) logger.Interface {
	switch level {
	case "debug":
		return logger.New(
			stdlog.New(log.WriterLevel(logrus.DebugLevel), "", 0),
			logger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  logger.Info,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		)
	case "warn":
		return logger.New(
			stdlog.New(log.WriterLevel(logrus.WarnLevel), "", 0),
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		)
	default:
		return logger.Default.LogMode(logger.Silent)
	}
}

// Open connects to the relational store selected by cfg.Driver.
func Open(cfg config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.URL)
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:      gormLogger(cfg.LogLevel, log),
		PrepareStmt: cfg.Driver == "postgres",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// one writer; a ":memory:" database lives on a single connection
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
		sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewManager opens the relational store and, when enabled, Redis.
func NewManager(cfg *config.Config, log *logrus.Logger) (*Manager, error) {
	db, err := Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}

	m := &Manager{DB: db, logger: log}
	if !cfg.Redis.Enabled {
		log.WithField("driver", cfg.Database.Driver).Info("Database connection established, redis disabled")
		return m, nil
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.PoolSize = 20
	redisOpts.MinIdleConns = 5
	redisOpts.MaxConnAge = time.Hour
	redisOpts.IdleTimeout = 30 * time.Minute
	redisOpts.IdleCheckFrequency = 30 * time.Second

	m.Redis = redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.Redis.Ping(ctx).Err(); err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.WithField("driver", cfg.Database.Driver).Info("Database and Redis connections established successfully")
	return m, nil
}

// Migrate runs database migrations
func (m *Manager) Migrate() error {
	m.logger.Info("Running database migrations...")
	return m.DB.AutoMigrate(models.All()...)
}

// Close closes all database connections
func (m *Manager) Close() error {
	if m.Redis != nil {
		if err := m.Redis.Close(); err != nil {
			m.logger.WithError(err).Error("Failed to close Redis connection")
		}
	}

	if m.DB != nil {
		sqlDB, err := m.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}

	return nil
}

// Health check methods
func (m *Manager) PingDatabase(ctx context.Context) error {
	sqlDB, err := m.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (m *Manager) PingRedis(ctx context.Context) error {
	if m.Redis == nil {
		return ErrRedisDisabled
	}
	return m.Redis.Ping(ctx).Err()
}

// Cache wraps Redis for embeddings, popular queries and health snapshots.
// A Cache built on a nil client misses on every read and drops writes.
type Cache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewCache(client *redis.Client, logger *logrus.Logger) *Cache {
	return &Cache{
		client: client,
		logger: logger,
	}
}

// Cache key constants
const (
	EmbeddingKey      = "embedding:%s"
	PopularQueriesKey = "popular:queries"
	SystemHealthKey   = "system:health"
)

func (c *Cache) set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if c.client == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

func (c *Cache) get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return redis.Nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// GetEmbedding returns a cached vector or redis.Nil on a miss.
func (c *Cache) GetEmbedding(ctx context.Context, key string) ([]float32, error) {
	var vector []float32
	if err := c.get(ctx, fmt.Sprintf(EmbeddingKey, key), &vector); err != nil {
		return nil, err
	}
	return vector, nil
}

func (c *Cache) SetEmbedding(ctx context.Context, key string, vector []float32, expiration time.Duration) error {
	return c.set(ctx, fmt.Sprintf(EmbeddingKey, key), vector, expiration)
}

// CachePopularQueries caches popular queries list
func (c *Cache) CachePopularQueries(ctx context.Context, queries []models.PopularQuery, expiration time.Duration) error {
	return c.set(ctx, PopularQueriesKey, queries, expiration)
}

// GetCachedPopularQueries retrieves cached popular queries
func (c *Cache) GetCachedPopularQueries(ctx context.Context) ([]models.PopularQuery, error) {
	var queries []models.PopularQuery
	err := c.get(ctx, PopularQueriesKey, &queries)
	return queries, err
}

// CacheSystemHealth caches system health status
func (c *Cache) CacheSystemHealth(ctx context.Context, health []models.SystemHealth, expiration time.Duration) error {
	return c.set(ctx, SystemHealthKey, health, expiration)
}

// GetCachedSystemHealth retrieves cached system health
func (c *Cache) GetCachedSystemHealth(ctx context.Context) ([]models.SystemHealth, error) {
	var health []models.SystemHealth
	err := c.get(ctx, SystemHealthKey, &health)
	return health, err
}

// Cache statistics
func (c *Cache) GetCacheStats(ctx context.Context) (map[string]interface{}, error) {
	if c.client == nil {
		return nil, ErrRedisDisabled
	}
	info, err := c.client.Info(ctx, "stats", "memory", "clients").Result()
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"keyspace_hits":     extractStat(info, "keyspace_hits"),
		"keyspace_misses":   extractStat(info, "keyspace_misses"),
		"used_memory":       extractStat(info, "used_memory"),
		"connected_clients": extractStat(info, "connected_clients"),
	}, nil
}

func extractStat(info, key string) string {
	for _, line := range strings.Split(info, "\r\n") {
		if strings.HasPrefix(line, key+":") {
			return strings.TrimPrefix(line, key+":")
		}
	}
	return "0"
}
