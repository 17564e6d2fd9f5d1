package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cukesight/backend/internal/domain"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicGenerator implements Generator with the Messages API.
// Anthropic offers no embedding endpoint, so there is no embedder.
type AnthropicGenerator struct {
	client  *anthropic.Client
	model   string
	timeout time.Duration
}

func NewAnthropicGenerator(apiKey, baseURL, model string, timeout time.Duration) *AnthropicGenerator {
	if model == "" {
		model = defaultAnthropicModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicGenerator{
		client:  &client,
		model:   model,
		timeout: timeout,
	}
}

func (a *AnthropicGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	ctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(req.Temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemMessage != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemMessage}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", statusError("anthropic", apiErr.StatusCode, err)
		}
		return "", transportError(ctx, "anthropic", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: no text content in anthropic response", domain.ErrInvalidResponse)
}

func (a *AnthropicGenerator) Model() string { return a.model }
