package aggregation

import (
	"context"
	"fmt"
	"time"

	"github.com/cukesight/backend/internal/clock"
	"github.com/cukesight/backend/internal/domain"
	"github.com/cukesight/backend/internal/models"
	"github.com/cukesight/backend/internal/vectordb"
)

// Query selects the records a source loads. Sources may prefilter; the
// engine applies the same conditions again.
type Query struct {
	Since       *time.Time
	Environment string
	Feature     string
	Project     string
}

// Source yields scenario records for the engine.
type Source interface {
	Records(ctx context.Context, q Query) ([]Record, error)
}

// RelationalSource reads scenario rows. It is authoritative.
type RelationalSource struct {
	stats models.StatsRepository
}

func NewRelationalSource(stats models.StatsRepository) *RelationalSource {
	return &RelationalSource{stats: stats}
}

func (s *RelationalSource) Records(ctx context.Context, q Query) ([]Record, error) {
	rows, err := s.stats.ListScenarioRecords(ctx, models.ScenarioCountFilter{
		Since:       q.Since,
		Environment: q.Environment,
		Feature:     q.Feature,
		Project:     q.Project,
	})
	if err != nil {
		return nil, fmt.Errorf("listing scenario records: %w", err)
	}

	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = Record{
			Timestamp:   clock.Format(row.Timestamp),
			Status:      domain.ParseStepStatus(row.Status),
			Tags:        row.Tags,
			Feature:     row.Feature,
			Environment: row.Environment,
		}
	}
	return records, nil
}

// VectorSource scrolls scenario points. Their timestamps are free text,
// so the engine's lenient time filter applies.
type VectorSource struct {
	store    vectordb.Store
	pageSize int
}

func NewVectorSource(store vectordb.Store) *VectorSource {
	return &VectorSource{store: store, pageSize: 256}
}

func (s *VectorSource) Records(ctx context.Context, q Query) ([]Record, error) {
	filter := vectordb.NewFilter().
		With(domain.KeyType, string(domain.PayloadScenario)).
		With(domain.KeyEnvironment, q.Environment).
		With(domain.KeyFeatureName, q.Feature).
		With(domain.KeyProject, q.Project)

	var records []Record
	offset := ""
	for {
		points, next, err := s.store.Scroll(ctx, filter, s.pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("scrolling scenario points: %w", err)
		}
		for _, p := range points {
			// scenario chunks longer than one window are stored once per window
			if idx, ok := p.Payload[domain.KeyChunkIndex]; ok && fmt.Sprint(idx) != "0" {
				continue
			}
			records = append(records, recordFromPayload(p.Payload))
		}
		if next == "" {
			return records, nil
		}
		offset = next
	}
}

func recordFromPayload(payload map[string]interface{}) Record {
	r := Record{
		Status:      domain.ParseStepStatus(stringValue(payload[domain.KeyStatus])),
		Feature:     stringValue(payload[domain.KeyFeatureName]),
		Environment: stringValue(payload[domain.KeyEnvironment]),
		Timestamp:   stringValue(payload[domain.KeyTimestamp]),
	}
	switch tags := payload[domain.KeyTags].(type) {
	case []string:
		r.Tags = tags
	case []interface{}:
		for _, t := range tags {
			r.Tags = append(r.Tags, stringValue(t))
		}
	}
	return r
}

func stringValue(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Engine loads records from a source and computes statistics over them.
type Engine struct {
	source Source
	clock  clock.Clock
	topN   int
	strict bool
}

func NewEngine(source Source, clk clock.Clock, topN int, strict bool) *Engine {
	return &Engine{source: source, clock: clk, topN: topN, strict: strict}
}

// Statistics covers the last days days; environment and feature are
// optional exact matches.
func (e *Engine) Statistics(ctx context.Context, days int, environment, feature string) (Statistics, error) {
	now := e.clock.Now()
	q := Query{Environment: environment, Feature: feature}
	if days > 0 {
		since := now.AddDate(0, 0, -days)
		q.Since = &since
	}

	records, err := e.source.Records(ctx, q)
	if err != nil {
		return Statistics{}, err
	}

	return Compute(records, Options{
		Days:        days,
		Now:         now,
		Strict:      e.strict,
		TopN:        e.topN,
		Environment: environment,
		Feature:     feature,
	}), nil
}
