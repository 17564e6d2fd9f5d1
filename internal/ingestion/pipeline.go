package ingestion

import (
	"context"
	"fmt"

	"github.com/cukesight/backend/internal/chunker"
	"github.com/cukesight/backend/internal/domain"
	"github.com/cukesight/backend/internal/llm"
	"github.com/cukesight/backend/internal/vectordb"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// Summary aggregates one indexing pass. A failed chunk never aborts its
// siblings; it is counted in Failed and its error kept in Errors.
type Summary struct {
	ChunksBuilt  int                      `json:"chunks_built"`
	ChunksStored int                      `json:"chunks_stored"`
	ByType       map[domain.ChunkType]int `json:"by_type"`
	Failed       int                      `json:"failed"`
	EmbeddingIDs []string                 `json:"embedding_ids"`
	Errors       []error                  `json:"-"`
}

// Success reports whether anything was indexed.
func (s Summary) Success() bool { return s.ChunksStored > 0 }

// Pipeline turns domain trees into embedded, stored chunks.
type Pipeline struct {
	chunker     *chunker.Chunker
	embedder    llm.Embedder
	store       vectordb.Store
	logger      logrus.FieldLogger
	concurrency int
}

func NewPipeline(c *chunker.Chunker, embedder llm.Embedder, store vectordb.Store, logger logrus.FieldLogger) *Pipeline {
	return &Pipeline{
		chunker:     c,
		embedder:    embedder,
		store:       store,
		logger:      logger.WithField("component", "ingestion"),
		concurrency: defaultConcurrency,
	}
}

// WithConcurrency bounds the number of chunks embedded at once.
func (p *Pipeline) WithConcurrency(n int) *Pipeline {
	if n > 0 {
		p.concurrency = n
	}
	return p
}

// IndexRun builds, splits, embeds and stores every chunk of run.
func (p *Pipeline) IndexRun(ctx context.Context, run *domain.TestRun) Summary {
	return p.Index(ctx, BuildChunks(run))
}

// Index splits the given chunks and stores each window independently.
func (p *Pipeline) Index(ctx context.Context, chunks []domain.TextChunk) Summary {
	var windows []domain.TextChunk
	for _, chunk := range chunks {
		for i, text := range p.chunker.Split(chunk.Text) {
			windows = append(windows, domain.TextChunk{
				Text:     text,
				Index:    i,
				Metadata: chunk.Metadata,
			})
		}
	}

	ids := make([]string, len(windows))
	errs := make([]error, len(windows))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i := range windows {
		i := i
		g.Go(func() error {
			ids[i], errs[i] = p.indexWindow(ctx, windows[i])
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{
		ChunksBuilt:  len(windows),
		ByType:       map[domain.ChunkType]int{},
		EmbeddingIDs: []string{},
	}
	for i, w := range windows {
		if errs[i] != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, errs[i])
			p.logger.WithError(errs[i]).WithFields(logrus.Fields{
				"chunk_type":  w.Metadata.ChunkType,
				"source":      w.Source(),
				"chunk_index": w.Index,
			}).Warn("Failed to index chunk")
			continue
		}
		summary.ChunksStored++
		summary.ByType[w.Metadata.ChunkType]++
		summary.EmbeddingIDs = append(summary.EmbeddingIDs, ids[i])
	}

	p.logger.WithFields(logrus.Fields{
		"built":  summary.ChunksBuilt,
		"stored": summary.ChunksStored,
		"failed": summary.Failed,
	}).Info("Chunks indexed")

	return summary
}

// indexWindow embeds and upserts a single window.
func (p *Pipeline) indexWindow(ctx context.Context, chunk domain.TextChunk) (string, error) {
	if err := chunk.Metadata.Validate(); err != nil {
		return "", err
	}

	vector, err := p.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return "", fmt.Errorf("embedding %s chunk %d: %w", chunk.Source(), chunk.Index, err)
	}

	embedding := domain.NewTextEmbedding(chunk, vector)
	err = p.store.Upsert(ctx, []vectordb.Point{{
		ID:      embedding.ID,
		Vector:  embedding.Vector,
		Payload: embedding.Payload(),
	}})
	if err != nil {
		return "", fmt.Errorf("storing %s chunk %d: %w", chunk.Source(), chunk.Index, err)
	}
	return embedding.ID, nil
}
