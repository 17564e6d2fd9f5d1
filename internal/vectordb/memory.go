package vectordb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
)

// MemoryStore keeps points in process. Used for development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	order     []string
	points    map[string]Point
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[string]Point)}
}

func (m *MemoryStore) EnsureCollection(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dimension)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimension = dimension
	return nil
}

func (m *MemoryStore) Upsert(ctx context.Context, points []Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("point id is required")
		}
		if m.dimension > 0 && len(p.Vector) != m.dimension {
			return fmt.Errorf("point %s has %d dimensions, expected %d", p.ID, len(p.Vector), m.dimension)
		}
		if _, exists := m.points[p.ID]; !exists {
			m.order = append(m.order, p.ID)
		}
		m.points[p.ID] = Point{ID: p.ID, Vector: append([]float32(nil), p.Vector...), Payload: copyPayload(p.Payload)}
	}
	return nil
}

// Search ranks by cosine similarity. Equal scores keep insertion order.
func (m *MemoryStore) Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]ScoredPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []ScoredPoint
	for _, id := range m.order {
		p := m.points[id]
		if !filter.Matches(p.Payload) {
			continue
		}
		results = append(results, ScoredPoint{
			ID:      p.ID,
			Score:   CosineSimilarity(vector, p.Vector),
			Payload: copyPayload(p.Payload),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MemoryStore) Count(ctx context.Context, filter Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, id := range m.order {
		if filter.Matches(m.points[id].Payload) {
			count++
		}
	}
	return count, nil
}

// Scroll uses the position among matching points as the offset.
func (m *MemoryStore) Scroll(ctx context.Context, filter Filter, limit int, offset string) ([]Point, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 100
	}
	start := 0
	if offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			return nil, "", fmt.Errorf("invalid scroll offset %q", offset)
		}
		start = n
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []Point
	for _, id := range m.order {
		p := m.points[id]
		if filter.Matches(p.Payload) {
			matched = append(matched, Point{ID: p.ID, Payload: copyPayload(p.Payload)})
		}
	}
	if start >= len(matched) {
		return []Point{}, "", nil
	}

	end := start + limit
	next := strconv.Itoa(end)
	if end >= len(matched) {
		end = len(matched)
		next = ""
	}
	return matched[start:end], next, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Get returns a stored point by id.
func (m *MemoryStore) Get(id string) (Point, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.points[id]
	return p, ok
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

func copyPayload(payload map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

// CosineSimilarity returns 0 for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Store = (*MemoryStore)(nil)
