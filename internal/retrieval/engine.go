package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/cukesight/backend/internal/domain"
	"github.com/cukesight/backend/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// Result is one context snippet that passed the similarity threshold.
type Result struct {
	ID        string                 `json:"id"`
	Text      string                 `json:"text"`
	Source    string                 `json:"source"`
	Score     float64                `json:"score"`
	ChunkType string                 `json:"chunk_type"`
	Payload   map[string]interface{} `json:"-"`
}

// Engine fetches nearest neighbours and applies a hard score cutoff.
type Engine struct {
	store     vectordb.Store
	threshold float64
	logger    logrus.FieldLogger
}

// NewEngine fails if threshold is outside [0, 1].
func NewEngine(store vectordb.Store, threshold float64, logger logrus.FieldLogger) (*Engine, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("similarity threshold must be in [0, 1], got %v", threshold)
	}
	return &Engine{
		store:     store,
		threshold: threshold,
		logger:    logger.WithField("component", "retrieval"),
	}, nil
}

// Retrieve returns up to maxResults points scoring at least the threshold,
// best first. Points below the threshold are dropped, never re-ranked.
func (e *Engine) Retrieve(ctx context.Context, query []float32, filter vectordb.Filter, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		return nil, domain.Validationf("max results must be positive, got %d", maxResults)
	}

	points, err := e.store.Search(ctx, query, filter, maxResults)
	if err != nil {
		return nil, fmt.Errorf("searching vector store: %w", err)
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		if p.Score < e.threshold {
			continue
		}
		results = append(results, toResult(p))
		if len(results) == maxResults {
			break
		}
	}

	e.logger.WithFields(logrus.Fields{
		"candidates": len(points),
		"kept":       len(results),
		"threshold":  e.threshold,
	}).Debug("Retrieved context")

	return results, nil
}

func toResult(p vectordb.ScoredPoint) Result {
	r := Result{
		ID:        p.ID,
		Text:      payloadString(p.Payload, domain.KeyText),
		Score:     p.Score,
		ChunkType: payloadString(p.Payload, domain.KeyType),
		Payload:   p.Payload,
	}
	r.Source = sourceOf(p.ID, p.Payload)
	return r
}

// sourceOf names a point "<type>:<name>" from its payload, falling back to
// the point id.
func sourceOf(id string, payload map[string]interface{}) string {
	kind := payloadString(payload, domain.KeyType)
	var name string
	switch domain.ChunkType(kind) {
	case domain.ChunkFeature:
		name = payloadString(payload, domain.KeyFeatureName)
	case domain.ChunkScenario, domain.ChunkError:
		name = payloadString(payload, domain.KeyScenario)
	case domain.ChunkBuildInfo:
		name = payloadString(payload, domain.KeyBuildID)
	default:
		if domain.PayloadType(kind) == domain.PayloadReport {
			name = payloadString(payload, domain.KeyTestRunID)
		}
	}
	if kind == "" {
		return id
	}
	if name == "" {
		name = id
	}
	return kind + ":" + name
}

func payloadString(payload map[string]interface{}, key string) string {
	if v, ok := payload[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

// Format renders results as numbered lines for a prompt. No results
// render as "".
func Format(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = fmt.Sprintf("[%d] %s (Source: %s, Relevance: %.2f)", i+1, r.Text, r.Source, r.Score)
	}
	return strings.Join(lines, "\n\n")
}

// Sources lists the distinct sources of results in rank order.
func Sources(results []Result) []string {
	seen := make(map[string]bool, len(results))
	sources := make([]string, 0, len(results))
	for _, r := range results {
		if seen[r.Source] {
			continue
		}
		seen[r.Source] = true
		sources = append(sources, r.Source)
	}
	return sources
}
