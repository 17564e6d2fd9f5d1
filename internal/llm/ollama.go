package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cukesight/backend/internal/domain"
)

const (
	defaultOllamaURL            = "http://localhost:11434"
	defaultOllamaEmbeddingModel = "nomic-embed-text"
	defaultOllamaChatModel      = "llama3.1:8b"
)

type ollamaClient struct {
	url    string
	client *http.Client
}

func newOllamaClient(url string, timeout time.Duration) ollamaClient {
	if url == "" {
		url = defaultOllamaURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return ollamaClient{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (c ollamaClient) post(ctx context.Context, endpoint string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return transportError(ctx, "ollama", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return statusError("ollama", resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(respBody))))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: decoding ollama response: %v", domain.ErrInvalidResponse, err)
	}
	return nil
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// OllamaEmbedder uses a local Ollama server's /api/embeddings endpoint.
type OllamaEmbedder struct {
	ollamaClient
	model     string
	dimension int
}

func NewOllamaEmbedder(url, model string, dimension int, timeout time.Duration) *OllamaEmbedder {
	if model == "" {
		model = defaultOllamaEmbeddingModel
	}
	return &OllamaEmbedder{
		ollamaClient: newOllamaClient(url, timeout),
		model:        model,
		dimension:    dimension,
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}

	var result ollamaEmbeddingResponse
	if err := e.post(ctx, "/api/embeddings", ollamaEmbeddingRequest{Model: e.model, Prompt: text}, &result); err != nil {
		return nil, err
	}

	vector := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		vector[i] = float32(v)
	}
	if err := checkVector("ollama", vector, e.dimension); err != nil {
		return nil, err
	}
	return vector, nil
}

func (e *OllamaEmbedder) Dimension() int { return e.dimension }
func (e *OllamaEmbedder) Model() string  { return e.model }

type ollamaGenerateOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string                `json:"model"`
	Prompt  string                `json:"prompt"`
	System  string                `json:"system,omitempty"`
	Stream  bool                  `json:"stream"`
	Options ollamaGenerateOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

type OllamaGenerator struct {
	ollamaClient
	model string
}

func NewOllamaGenerator(url, model string, timeout time.Duration) *OllamaGenerator {
	if model == "" {
		model = defaultOllamaChatModel
	}
	return &OllamaGenerator{
		ollamaClient: newOllamaClient(url, timeout),
		model:        model,
	}
}

func (g *OllamaGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	var result ollamaGenerateResponse
	err := g.post(ctx, "/api/generate", ollamaGenerateRequest{
		Model:  g.model,
		Prompt: req.Prompt,
		System: req.SystemMessage,
		Options: ollamaGenerateOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}, &result)
	if err != nil {
		return "", err
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama error: %s", result.Error)
	}
	return result.Response, nil
}

func (g *OllamaGenerator) Model() string { return g.model }
