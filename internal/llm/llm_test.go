package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cukesight/backend/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req["model"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder("test-key", server.URL, "", 3, 5*time.Second)
	vector, err := embedder.Embed(context.Background(), "login fails")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
}

func TestOpenAIEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		dim     int
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, 3, domain.ErrUpstreamUnavailable},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit"}}`, 3, domain.ErrUpstreamUnavailable},
		{"empty data", http.StatusOK, `{"object":"list","data":[]}`, 3, domain.ErrInvalidResponse},
		{"wrong dimension", http.StatusOK, `{"object":"list","data":[{"index":0,"embedding":[0.1]}]}`, 3, domain.ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			embedder := NewOpenAIEmbedder("test-key", server.URL, "", tt.dim, 5*time.Second)
			_, err := embedder.Embed(context.Background(), "text")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestEmbedders_RejectEmptyText(t *testing.T) {
	embedders := []Embedder{
		NewOpenAIEmbedder("k", "http://127.0.0.1:1", "", 3, time.Second),
		NewOllamaEmbedder("http://127.0.0.1:1", "", 3, time.Second),
		NewHashEmbedder(8),
	}
	for _, e := range embedders {
		_, err := e.Embed(context.Background(), "   ")
		assert.ErrorIs(t, err, domain.ErrEmptyText)
	}
}

func TestOllamaEmbedder_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewOllamaEmbedder(url, "", 3, time.Second).Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "hello", req.Prompt)
		json.NewEncoder(w).Encode(ollamaEmbeddingResponse{Embedding: []float64{1, 2}})
	}))
	defer server.Close()

	vector, err := NewOllamaEmbedder(server.URL, "", 2, time.Second).Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vector)
}

func TestOllamaEmbedder_EmptyVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":[]}`))
	}))
	defer server.Close()

	_, err := NewOllamaEmbedder(server.URL, "", 0, time.Second).Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrInvalidResponse)
}

func TestOllamaGenerator_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "be terse", req.System)
		assert.False(t, req.Stream)
		assert.Equal(t, 64, req.Options.NumPredict)
		w.Write([]byte(`{"response":"All green."}`))
	}))
	defer server.Close()

	out, err := NewOllamaGenerator(server.URL, "", time.Second).Generate(context.Background(), GenerateRequest{
		Prompt:        "status?",
		SystemMessage: "be terse",
		MaxTokens:     64,
	})
	require.NoError(t, err)
	assert.Equal(t, "All green.", out)
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		messages := req["messages"].([]interface{})
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Two failures."},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	out, err := NewOpenAIGenerator("test-key", server.URL, "", time.Second).Generate(context.Background(), GenerateRequest{
		Prompt:        "how many failures?",
		SystemMessage: "answer from context only",
	})
	require.NoError(t, err)
	assert.Equal(t, "Two failures.", out)
}

func TestHashEmbedder(t *testing.T) {
	h := NewHashEmbedder(64)
	a, err := h.Embed(context.Background(), "login scenario failed with timeout")
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), "login scenario failed with timeout")
	require.NoError(t, err)
	c, err := h.Embed(context.Background(), "checkout payment")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
	assert.NotEqual(t, a, c)
}

type mapCache struct {
	data map[string][]float32
	sets int
}

func (m *mapCache) GetEmbedding(_ context.Context, key string) ([]float32, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return v, nil
}

func (m *mapCache) SetEmbedding(_ context.Context, key string, vector []float32, _ time.Duration) error {
	m.data[key] = vector
	m.sets++
	return nil
}

type countingEmbedder struct {
	*HashEmbedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.HashEmbedder.Embed(ctx, text)
}

func TestCachingEmbedder(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}
	cache := &mapCache{data: map[string][]float32{}}
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	embedder := NewCachingEmbedder(inner, cache, time.Minute, log)

	first, err := embedder.Embed(context.Background(), "show recent failures")
	require.NoError(t, err)
	second, err := embedder.Embed(context.Background(), "show recent failures")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 16, embedder.Dimension())
}

// hangingServer accepts requests and never answers until the client gives up.
func hangingServer(t *testing.T) string {
	t.Helper()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })
	return server.URL
}

func TestBackends_TimeoutIsUnavailable(t *testing.T) {
	const timeout = 50 * time.Millisecond
	url := hangingServer(t)

	tests := []struct {
		name string
		call func(ctx context.Context) error
	}{
		{"openai embedder", func(ctx context.Context) error {
			_, err := NewOpenAIEmbedder("test-key", url, "", 3, timeout).Embed(ctx, "login fails")
			return err
		}},
		{"openai generator", func(ctx context.Context) error {
			_, err := NewOpenAIGenerator("test-key", url, "", timeout).Generate(ctx, GenerateRequest{Prompt: "status?"})
			return err
		}},
		{"ollama embedder", func(ctx context.Context) error {
			_, err := NewOllamaEmbedder(url, "", 3, timeout).Embed(ctx, "login fails")
			return err
		}},
		{"ollama generator", func(ctx context.Context) error {
			_, err := NewOllamaGenerator(url, "", timeout).Generate(ctx, GenerateRequest{Prompt: "status?"})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			err := tt.call(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
			assert.True(t, domain.IsRetryable(err))
			assert.Less(t, time.Since(start), 2*time.Second)
		})
	}
}
