package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cukesight/backend/internal/archive"
	"github.com/cukesight/backend/internal/clock"
	"github.com/cukesight/backend/internal/config"
	"github.com/cukesight/backend/internal/domain"
	"github.com/cukesight/backend/internal/dualstore"
	"github.com/cukesight/backend/internal/ingestion"
	"github.com/cukesight/backend/internal/normalizer"
	"github.com/sirupsen/logrus"
)

// IngestMetadata applies to every report of one ingestion.
type IngestMetadata struct {
	Project     string
	Environment string
	BuildID     string
	Timestamp   string
	Tags        []string
	Metadata    map[string]interface{}
}

type IngestResponse struct {
	Success            bool           `json:"success"`
	TestRunID          string         `json:"test_run_id,omitempty"`
	PGID               uint           `json:"pg_id,omitempty"`
	VectorID           string         `json:"vector_id,omitempty"`
	ProcessedFeatures  int            `json:"processed_features"`
	ProcessedScenarios int            `json:"processed_scenarios"`
	ChunksStored       int            `json:"chunks_stored"`
	ChunksByType       map[string]int `json:"chunks_by_type"`
	Message            string         `json:"message"`
	Warnings           []string       `json:"warnings,omitempty"`
	ArchiveLocation    string         `json:"archive_location,omitempty"`
}

type BuildInfoResponse struct {
	Success  bool     `json:"success"`
	BuildID  string   `json:"build_id"`
	VectorID string   `json:"vector_id,omitempty"`
	Message  string   `json:"message"`
	Warnings []string `json:"warnings,omitempty"`
}

type IngestService struct {
	normalizer *normalizer.Normalizer
	writer     *dualstore.Writer
	pipeline   *ingestion.Pipeline
	archiver   archive.Archiver
	clock      clock.Clock
	cfg        config.IngestionConfig
	logger     *logrus.Logger
}

func NewIngestService(
	norm *normalizer.Normalizer,
	writer *dualstore.Writer,
	pipeline *ingestion.Pipeline,
	archiver archive.Archiver,
	clk clock.Clock,
	cfg config.IngestionConfig,
	logger *logrus.Logger,
) *IngestService {
	if archiver == nil {
		archiver = archive.Noop{}
	}
	return &IngestService{
		normalizer: norm,
		writer:     writer,
		pipeline:   pipeline,
		archiver:   archiver,
		clock:      clk,
		cfg:        cfg,
		logger:     logger,
	}
}

// Ingest normalizes the payloads into one test run, makes it durable and
// indexes its chunks. Malformed input that leaves nothing to store is
// reported with Success=false rather than an error. Errors are returned
// for invalid metadata and for a failed relational write.
func (s *IngestService) Ingest(ctx context.Context, payloads [][]byte, meta IngestMetadata) (*IngestResponse, error) {
	if len(payloads) == 0 {
		return nil, domain.Validationf("at least one report payload is required")
	}

	var warnings []string
	timestamp := s.clock.Now()
	if strings.TrimSpace(meta.Timestamp) != "" {
		parsed, err := clock.Parse(meta.Timestamp)
		switch {
		case err == nil:
			timestamp = parsed
		case s.cfg.StrictTimestamps:
			return nil, domain.Validationf("invalid timestamp: %v", err)
		default:
			warnings = append(warnings, fmt.Sprintf("invalid timestamp %q, using ingestion time", meta.Timestamp))
		}
	}

	project := firstNonEmpty(meta.Project, s.cfg.DefaultProject, "default")
	environment := firstNonEmpty(meta.Environment, s.cfg.DefaultEnvironment, "unknown")

	result := s.normalizer.Normalize(payloads)
	for _, pe := range result.PayloadErrors {
		warnings = append(warnings, pe.Error())
	}

	response := &IngestResponse{
		ProcessedFeatures:  result.FeaturesProcessed,
		ProcessedScenarios: result.ScenariosProcessed,
		ChunksByType:       map[string]int{},
		Warnings:           warnings,
	}

	if result.AllFailed(len(payloads)) {
		response.Message = fmt.Sprintf("all %d report payloads were malformed", len(payloads))
		return response, nil
	}
	if len(result.Features) == 0 {
		response.Message = "reports contained no features"
		return response, nil
	}

	run := domain.NewTestRun(project, environment, timestamp, result.Features)
	run.BuildID = strings.TrimSpace(meta.BuildID)
	run.Tags = domain.UnionTags(meta.Tags)
	for k, v := range meta.Metadata {
		run.Metadata[k] = v
	}
	response.TestRunID = run.ID

	location, err := s.archiver.Archive(ctx, archive.Request{
		RunID:     run.ID,
		Project:   project,
		Timestamp: timestamp,
		Payloads:  payloads,
	})
	if err != nil {
		s.logger.WithError(err).WithField("test_run_id", run.ID).Warn("Failed to archive reports")
		response.Warnings = append(response.Warnings, fmt.Sprintf("archive failed: %v", err))
	} else if location != "" {
		run.Metadata["archive"] = location
		response.ArchiveLocation = location
	}

	written, err := s.writer.Write(ctx, run)
	if err != nil {
		s.logger.WithError(err).WithField("test_run_id", run.ID).Error("Failed to store test run")
		return nil, err
	}
	response.PGID = written.PGID
	response.VectorID = written.VectorID
	response.Warnings = append(response.Warnings, written.Warnings...)

	summary := s.pipeline.IndexRun(ctx, run)
	response.ChunksStored = summary.ChunksStored
	for chunkType, n := range summary.ByType {
		response.ChunksByType[string(chunkType)] = n
	}
	if summary.Failed > 0 {
		response.Warnings = append(response.Warnings, fmt.Sprintf("%d of %d chunks failed to index", summary.Failed, summary.ChunksBuilt))
	}

	response.Success = summary.Success()
	if response.Success {
		if err := s.writer.MarkIndexed(ctx, written.PGID); err != nil {
			s.logger.WithError(err).WithField("pg_id", written.PGID).Warn("Failed to mark test run as indexed")
		}
		response.Message = fmt.Sprintf("ingested %d features and %d scenarios", response.ProcessedFeatures, response.ProcessedScenarios)
	} else {
		response.Message = "test run stored but no chunks could be indexed; reconciliation will retry"
		if len(summary.Errors) > 0 {
			response.Message += ": " + summary.Errors[0].Error()
		}
	}

	s.logger.WithFields(logrus.Fields{
		"test_run_id": run.ID,
		"pg_id":       written.PGID,
		"features":    response.ProcessedFeatures,
		"scenarios":   response.ProcessedScenarios,
		"chunks":      response.ChunksStored,
		"warnings":    len(response.Warnings),
	}).Info("Ingestion completed")

	return response, nil
}

// IngestBuildInfo stores build metadata in both stores.
func (s *IngestService) IngestBuildInfo(ctx context.Context, info domain.BuildInfo, metadata map[string]interface{}) (*BuildInfoResponse, error) {
	if info.Metadata == nil {
		info.Metadata = map[string]interface{}{}
	}
	for k, v := range metadata {
		info.Metadata[k] = v
	}

	written, err := s.writer.WriteBuildInfo(ctx, info)
	if err != nil {
		if !errors.Is(err, domain.ErrValidation) {
			s.logger.WithError(err).WithField("build_id", info.BuildID).Error("Failed to store build info")
		}
		return nil, err
	}

	response := &BuildInfoResponse{
		Success:  true,
		BuildID:  info.BuildID,
		VectorID: written.VectorID,
		Message:  fmt.Sprintf("build %s stored", info.BuildID),
		Warnings: written.Warnings,
	}
	if len(written.Warnings) > 0 {
		response.Message = fmt.Sprintf("build %s stored, vector index pending", info.BuildID)
	}
	return response, nil
}

// ParseBuildInfo validates a build request.
func ParseBuildInfo(buildID, buildNumber, branch, commitHash, buildDate, buildURL string) (domain.BuildInfo, error) {
	date, err := clock.Parse(buildDate)
	if err != nil {
		return domain.BuildInfo{}, domain.Validationf("invalid build_date: %v", err)
	}
	info := domain.BuildInfo{
		BuildID:     strings.TrimSpace(buildID),
		BuildNumber: strings.TrimSpace(buildNumber),
		Branch:      branch,
		CommitHash:  commitHash,
		BuildDate:   date,
		BuildURL:    buildURL,
		Metadata:    map[string]interface{}{},
	}
	return info, info.Validate()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
