package llm

import (
	"context"
	"time"

	"github.com/cukesight/backend/pkg/utils"
	"github.com/sirupsen/logrus"
)

// VectorCache stores embeddings by key. A miss returns an error.
type VectorCache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, error)
	SetEmbedding(ctx context.Context, key string, vector []float32, expiration time.Duration) error
}

// CachingEmbedder serves repeated texts from a cache. Cache failures are
// logged and fall through to the wrapped embedder.
type CachingEmbedder struct {
	Embedder
	cache  VectorCache
	ttl    time.Duration
	logger logrus.FieldLogger
}

func NewCachingEmbedder(inner Embedder, cache VectorCache, ttl time.Duration, logger logrus.FieldLogger) *CachingEmbedder {
	return &CachingEmbedder{
		Embedder: inner,
		cache:    cache,
		ttl:      ttl,
		logger:   logger.WithField("component", "embedding_cache"),
	}
}

func (c *CachingEmbedder) cacheKey(text string) string {
	return utils.MD5Hash(c.Model() + "\x00" + text)
}

func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}

	key := c.cacheKey(text)
	if vector, err := c.cache.GetEmbedding(ctx, key); err == nil && len(vector) > 0 {
		c.logger.Debug("Embedding served from cache")
		return vector, nil
	}

	vector, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetEmbedding(ctx, key, vector, c.ttl); err != nil {
		c.logger.WithError(err).Warn("Failed to cache embedding")
	}
	return vector, nil
}
