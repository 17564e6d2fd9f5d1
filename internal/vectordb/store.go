package vectordb

import (
	"context"
	"fmt"
	"sort"
)

// Point is one stored vector. Payload always carries a "type" discriminator.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector,omitempty"`
	Payload map[string]interface{} `json:"payload"`
}

type ScoredPoint struct {
	ID      string                 `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

// Filter holds exact-match conditions that must all hold. A string, number
// or bool value matches equal payload values. A []string value matches when
// the payload value (or any element of a payload list) equals any entry.
type Filter struct {
	Must map[string]interface{}
}

// NewFilter returns a filter with no conditions.
func NewFilter() Filter {
	return Filter{Must: map[string]interface{}{}}
}

// With returns a copy of f with one more condition. Empty values are ignored.
func (f Filter) With(key string, value interface{}) Filter {
	out := Filter{Must: make(map[string]interface{}, len(f.Must)+1)}
	for k, v := range f.Must {
		out.Must[k] = v
	}
	switch v := value.(type) {
	case nil:
		return out
	case string:
		if v == "" {
			return out
		}
	case []string:
		if len(v) == 0 {
			return out
		}
	}
	out.Must[key] = value
	return out
}

func (f Filter) IsEmpty() bool { return len(f.Must) == 0 }

func (f Filter) keys() []string {
	keys := make([]string, 0, len(f.Must))
	for k := range f.Must {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Matches evaluates the filter against a payload.
func (f Filter) Matches(payload map[string]interface{}) bool {
	for key, want := range f.Must {
		got, ok := payload[key]
		if !ok {
			return false
		}
		switch w := want.(type) {
		case []string:
			if !matchesAny(got, w) {
				return false
			}
		default:
			if !matchesAny(got, []string{fmt.Sprint(w)}) {
				return false
			}
		}
	}
	return true
}

func matchesAny(got interface{}, want []string) bool {
	var values []string
	switch g := got.(type) {
	case []string:
		values = g
	case []interface{}:
		for _, v := range g {
			values = append(values, fmt.Sprint(v))
		}
	default:
		values = []string{fmt.Sprint(g)}
	}
	for _, v := range values {
		for _, w := range want {
			if v == w {
				return true
			}
		}
	}
	return false
}

// Store is the vector index. Implementations are safe for concurrent use.
type Store interface {
	EnsureCollection(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]ScoredPoint, error)
	Count(ctx context.Context, filter Filter) (int, error)
	// Scroll pages through points matching filter. An empty next offset
	// means the last page was returned.
	Scroll(ctx context.Context, filter Filter, limit int, offset string) ([]Point, string, error)
	Ping(ctx context.Context) error
}
