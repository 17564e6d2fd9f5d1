package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cukesight/backend/internal/aggregation"
	"github.com/cukesight/backend/internal/domain"
	"github.com/cukesight/backend/internal/llm"
	"github.com/sirupsen/logrus"
)

// Confidence values. They are a coarse signal, not a calibrated probability.
const (
	GroundedConfidence   = 0.8
	UngroundedConfidence = 0.35
)

// Confidence reports how well grounded an answer can be.
func Confidence(contextPresent, statsPresent bool) float64 {
	if contextPresent || statsPresent {
		return GroundedConfidence
	}
	return UngroundedConfidence
}

func hasStats(stats *aggregation.Statistics) bool {
	return stats != nil && !stats.Empty()
}

type Input struct {
	Query   string
	Context string
	Stats   *aggregation.Statistics
	Sources []string
}

// Answer always carries the sources it was given. Degraded is set when the
// backend failed and Text was assembled locally.
type Answer struct {
	Text       string   `json:"answer"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources"`
	Degraded   bool     `json:"degraded"`
}

type Generator struct {
	backend     llm.Generator
	maxTokens   int
	temperature float32
	logger      logrus.FieldLogger
}

func NewGenerator(backend llm.Generator, maxTokens int, temperature float32, logger logrus.FieldLogger) *Generator {
	return &Generator{
		backend:     backend,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger.WithField("component", "answer"),
	}
}

// Generate never returns an error: a backend failure yields a degraded answer.
func (g *Generator) Generate(ctx context.Context, in Input) Answer {
	contextPresent := strings.TrimSpace(in.Context) != ""
	statsPresent := hasStats(in.Stats)

	sources := append([]string{}, in.Sources...)
	answer := Answer{
		Confidence: Confidence(contextPresent, statsPresent),
		Sources:    sources,
	}

	prompt, err := BuildPrompt(in.Query, in.Context, in.Stats)
	if err == nil {
		answer.Text, err = g.backend.Generate(ctx, llm.GenerateRequest{
			Prompt:        prompt,
			SystemMessage: systemMessage,
			MaxTokens:     g.maxTokens,
			Temperature:   g.temperature,
		})
	}
	if err == nil && strings.TrimSpace(answer.Text) == "" {
		err = fmt.Errorf("%w: empty answer", domain.ErrInvalidResponse)
	}
	if err != nil {
		g.logger.WithError(err).Warn("Answer generation failed, returning degraded answer")
		answer.Text = degradedText(in, contextPresent, statsPresent)
		answer.Degraded = true
		return answer
	}

	answer.Text = strings.TrimSpace(answer.Text)
	return answer
}

func degradedText(in Input, contextPresent, statsPresent bool) string {
	parts := []string{"[degraded] The answer service is unavailable, so no summary could be generated."}
	if statsPresent {
		parts = append(parts, "Statistics:\n"+FormatStatistics(*in.Stats))
	}
	if contextPresent {
		parts = append(parts, "Most relevant test results:\n"+in.Context)
	}
	if !contextPresent && !statsPresent {
		parts = append(parts, "No matching test results were found.")
	}
	return strings.Join(parts, "\n\n")
}

// FailureInput describes one failing step to analyze.
type FailureInput struct {
	Feature      string `json:"feature"`
	Scenario     string `json:"scenario"`
	Step         string `json:"step"`
	ErrorMessage string `json:"error_message"`
	Context      string `json:"-"`
}

// Analysis is the structured result of AnalyzeFailure. When the backend
// output cannot be parsed, Analyzed is false and Raw holds the text.
type Analysis struct {
	Analyzed    bool     `json:"analyzed"`
	RootCause   string   `json:"root_cause"`
	Category    string   `json:"category"`
	Suggestions []string `json:"suggestions"`
	Confidence  float64  `json:"confidence"`
	Raw         string   `json:"raw,omitempty"`
	Message     string   `json:"message,omitempty"`
}

type analysisResponse struct {
	RootCause   string   `json:"root_cause"`
	Category    string   `json:"category"`
	Suggestions []string `json:"suggestions"`
	Confidence  float64  `json:"confidence"`
}

var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\\s*```")

// parseAnalysis reads the JSON analysis, stripping markdown fences.
func parseAnalysis(raw string) (*analysisResponse, error) {
	cleaned := strings.TrimSpace(raw)
	if matches := codeFenceRe.FindStringSubmatch(cleaned); len(matches) > 1 {
		cleaned = strings.TrimSpace(matches[1])
	}

	var resp analysisResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrBackendAnswerFormat, err)
	}
	if strings.TrimSpace(resp.RootCause) == "" {
		return nil, fmt.Errorf("%w: missing root_cause", domain.ErrBackendAnswerFormat)
	}
	if resp.Confidence < 0 {
		resp.Confidence = 0
	}
	if resp.Confidence > 1 {
		resp.Confidence = 1
	}
	if resp.Suggestions == nil {
		resp.Suggestions = []string{}
	}
	return &resp, nil
}

// AnalyzeFailure asks the backend for a root cause. Unparsable output is
// retried once with a stricter prompt, then reported as "could not analyze".
func (g *Generator) AnalyzeFailure(ctx context.Context, in FailureInput) (Analysis, error) {
	prompt, err := BuildAnalysisPrompt(in)
	if err != nil {
		return Analysis{}, domain.Validationf("%v", err)
	}

	req := llm.GenerateRequest{
		Prompt:        prompt,
		SystemMessage: systemMessage,
		MaxTokens:     g.maxTokens,
		Temperature:   0,
	}

	raw, err := g.backend.Generate(ctx, req)
	if err != nil {
		return Analysis{}, fmt.Errorf("analyzing failure: %w", err)
	}

	resp, err := parseAnalysis(raw)
	if err != nil {
		req.Prompt = prompt + retryPromptSuffix
		retryRaw, retryErr := g.backend.Generate(ctx, req)
		if retryErr == nil {
			raw = retryRaw
			resp, err = parseAnalysis(retryRaw)
		}
	}
	if err != nil {
		g.logger.WithError(err).Warn("Could not parse failure analysis")
		return Analysis{
			Analyzed:    false,
			Suggestions: []string{},
			Raw:         raw,
			Message:     "could not analyze: the response was not valid analysis JSON",
		}, nil
	}

	return Analysis{
		Analyzed:    true,
		RootCause:   resp.RootCause,
		Category:    resp.Category,
		Suggestions: resp.Suggestions,
		Confidence:  resp.Confidence,
	}, nil
}
