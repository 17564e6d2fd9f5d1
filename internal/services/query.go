package services

import (
	"context"
	"strings"
	"time"

	"github.com/cukesight/backend/internal/aggregation"
	"github.com/cukesight/backend/internal/answer"
	"github.com/cukesight/backend/internal/clock"
	"github.com/cukesight/backend/internal/config"
	"github.com/cukesight/backend/internal/domain"
	"github.com/cukesight/backend/internal/llm"
	"github.com/cukesight/backend/internal/models"
	"github.com/cukesight/backend/internal/repository"
	"github.com/cukesight/backend/internal/retrieval"
	"github.com/cukesight/backend/internal/vectordb"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

const (
	maxQueryLength     = 2000
	relatedQueryLimit  = 5
	defaultFailureScan = 5
	statisticsSource   = "statistics"
)

type QueryResponse struct {
	Answer          string                  `json:"answer"`
	Confidence      float64                 `json:"confidence"`
	Sources         []string                `json:"sources"`
	RelatedQueries  []string                `json:"related_queries"`
	ExecutionTimeMs int64                   `json:"execution_time_ms"`
	Degraded        bool                    `json:"degraded"`
	Statistics      *aggregation.Statistics `json:"statistics,omitempty"`
}

// QueryMeta carries request details recorded in query analytics.
type QueryMeta struct {
	RequestID string
	IPAddress string
}

type QueryService struct {
	embedder  llm.Embedder
	retriever *retrieval.Engine
	stats     *aggregation.Engine
	answers   *answer.Generator
	repos     *repository.RepositoryManager
	clock     clock.Clock
	cfg       config.RAGConfig
	logger    *logrus.Logger
}

func NewQueryService(
	embedder llm.Embedder,
	retriever *retrieval.Engine,
	stats *aggregation.Engine,
	answers *answer.Generator,
	repos *repository.RepositoryManager,
	clk clock.Clock,
	cfg config.RAGConfig,
	logger *logrus.Logger,
) *QueryService {
	return &QueryService{
		embedder:  embedder,
		retriever: retriever,
		stats:     stats,
		answers:   answers,
		repos:     repos,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
	}
}

// VectorFilter maps query filters onto vector payload conditions.
func VectorFilter(f *models.QueryFilters) vectordb.Filter {
	filter := vectordb.NewFilter()
	if f == nil {
		return filter
	}
	return filter.
		With(domain.KeyType, strings.ToLower(f.ChunkType)).
		With(domain.KeyTestRunID, f.TestRunID).
		With(domain.KeyProject, f.Project).
		With(domain.KeyEnvironment, f.Environment).
		With(domain.KeyFeatureName, f.Feature).
		With(domain.KeyStatus, strings.ToUpper(f.Status)).
		With(domain.KeyTags, domain.UnionTags(f.Tags))
}

// Query answers a question from retrieved chunks and statistics. Retrieval
// and statistics run in parallel and each degrades on its own.
func (s *QueryService) Query(ctx context.Context, text string, filters *models.QueryFilters, meta QueryMeta) (*QueryResponse, error) {
	start := time.Now()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.Validationf("query cannot be empty")
	}
	if len(text) > maxQueryLength {
		return nil, domain.Validationf("query too long (max %d characters)", maxQueryLength)
	}

	days := s.cfg.StatsDays
	var environment, feature string
	if filters != nil {
		if filters.Days > 0 {
			days = filters.Days
		}
		environment, feature = filters.Environment, filters.Feature
	}

	var (
		results []retrieval.Result
		stats   aggregation.Statistics
		related []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vector, err := s.embedder.Embed(gctx, text)
		if err != nil {
			s.logger.WithError(err).Warn("Query embedding failed, answering without retrieved context")
			return nil
		}
		results, err = s.retriever.Retrieve(gctx, vector, VectorFilter(filters), s.cfg.MaxResults)
		if err != nil {
			s.logger.WithError(err).Warn("Retrieval failed, answering without retrieved context")
			results = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		stats, err = s.stats.Statistics(gctx, days, environment, feature)
		if err != nil {
			s.logger.WithError(err).Warn("Statistics failed, answering without statistics")
			stats = aggregation.Statistics{}
		}
		return nil
	})
	g.Go(func() error {
		related = s.relatedQueries(gctx, text)
		return nil
	})
	_ = g.Wait()

	sources := retrieval.Sources(results)
	var statsInput *aggregation.Statistics
	if !stats.Empty() {
		statsInput = &stats
		sources = append(sources, statisticsSource)
	}

	ans := s.answers.Generate(ctx, answer.Input{
		Query:   text,
		Context: retrieval.Format(results),
		Stats:   statsInput,
		Sources: sources,
	})

	response := &QueryResponse{
		Answer:          ans.Text,
		Confidence:      ans.Confidence,
		Sources:         ans.Sources,
		RelatedQueries:  related,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Degraded:        ans.Degraded,
		Statistics:      statsInput,
	}

	s.track(ctx, text, filters, response, meta)

	s.logger.WithFields(logrus.Fields{
		"sources":       len(response.Sources),
		"confidence":    response.Confidence,
		"degraded":      response.Degraded,
		"response_time": response.ExecutionTimeMs,
	}).Info("Query answered")

	return response, nil
}

func (s *QueryService) relatedQueries(ctx context.Context, text string) []string {
	related := []string{}
	queries, err := s.repos.PopularQuery.FindRelated(ctx, text, relatedQueryLimit)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load related queries")
		return related
	}
	for _, q := range queries {
		related = append(related, q.QueryText)
	}
	return related
}

// track records analytics. Failures are logged only.
func (s *QueryService) track(ctx context.Context, text string, filters *models.QueryFilters, resp *QueryResponse, meta QueryMeta) {
	filterMap := datatypes.JSONMap{}
	if filters != nil {
		filterMap = datatypes.JSONMap{
			"chunk_type":  filters.ChunkType,
			"test_run_id": filters.TestRunID,
			"project":     filters.Project,
			"environment": filters.Environment,
			"feature":     filters.Feature,
			"status":      filters.Status,
			"tags":        filters.Tags,
			"days":        filters.Days,
		}
	}

	log := &models.QueryLog{
		QueryText:      text,
		Filters:        filterMap,
		SourcesCount:   len(resp.Sources),
		Confidence:     resp.Confidence,
		Degraded:       resp.Degraded,
		ResponseTimeMs: int(resp.ExecutionTimeMs),
		RequestID:      meta.RequestID,
		IPAddress:      meta.IPAddress,
	}
	if err := s.repos.QueryLog.Create(ctx, log); err != nil {
		s.logger.WithError(err).Error("Failed to track query")
	}

	if err := s.repos.PopularQuery.IncrementCount(text); err != nil {
		s.logger.WithError(err).Error("Failed to increment popular query count")
		return
	}
	if err := s.repos.PopularQuery.UpdateStats(text, float64(len(resp.Sources)), int(resp.ExecutionTimeMs)); err != nil {
		s.logger.WithError(err).Error("Failed to update popular query stats")
	}
}

// FailureAnalysis pairs a failing step with its analysis.
type FailureAnalysis struct {
	Feature      string          `json:"feature"`
	Scenario     string          `json:"scenario"`
	Step         string          `json:"step"`
	ErrorMessage string          `json:"error_message"`
	Environment  string          `json:"environment"`
	Timestamp    time.Time       `json:"timestamp"`
	Sources      []string        `json:"sources"`
	Analysis     answer.Analysis `json:"analysis"`
	Error        string          `json:"error,omitempty"`
}

// AnalyzeFailures explains the most recent failing steps. Each analysis is
// grounded on similar error chunks from earlier runs.
func (s *QueryService) AnalyzeFailures(ctx context.Context, req models.AnalyzeRequest) ([]FailureAnalysis, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultFailureScan
	}
	filter := models.ScenarioCountFilter{
		Environment: req.Environment,
		Feature:     req.Feature,
		Since:       sinceDays(s.clock.Now().UTC(), req.Days),
	}

	failures, err := s.repos.Stats.ListFailedSteps(ctx, filter, limit)
	if err != nil {
		return nil, err
	}

	analyses := make([]FailureAnalysis, len(failures))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i, f := range failures {
		i, f := i, f
		g.Go(func() error {
			step := strings.TrimSpace(f.Keyword + " " + f.Step)
			out := FailureAnalysis{
				Feature:      f.Feature,
				Scenario:     f.Scenario,
				Step:         step,
				ErrorMessage: f.ErrorMessage,
				Environment:  f.Environment,
				Timestamp:    f.Timestamp,
				Sources:      []string{},
			}

			var related []retrieval.Result
			if vector, err := s.embedder.Embed(gctx, f.ErrorMessage); err == nil {
				related, _ = s.retriever.Retrieve(gctx, vector,
					vectordb.NewFilter().With(domain.KeyType, string(domain.ChunkError)), s.cfg.MaxResults)
			}
			out.Sources = append(out.Sources, retrieval.Sources(related)...)

			analysis, err := s.answers.AnalyzeFailure(gctx, answer.FailureInput{
				Feature:      f.Feature,
				Scenario:     f.Scenario,
				Step:         step,
				ErrorMessage: f.ErrorMessage,
				Context:      retrieval.Format(related),
			})
			if err != nil {
				out.Error = err.Error()
				out.Analysis = answer.Analysis{Suggestions: []string{}, Message: "could not analyze: " + err.Error()}
			} else {
				out.Analysis = analysis
			}
			analyses[i] = out
			return nil
		})
	}
	_ = g.Wait()

	return analyses, nil
}
