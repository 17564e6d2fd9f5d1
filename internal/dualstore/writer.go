package dualstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/cukesight/backend/internal/clock"
	"github.com/cukesight/backend/internal/domain"
	"github.com/cukesight/backend/internal/ingestion"
	"github.com/cukesight/backend/internal/llm"
	"github.com/cukesight/backend/internal/models"
	"github.com/cukesight/backend/internal/repository"
	"github.com/cukesight/backend/internal/vectordb"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// pointNamespace seeds deterministic point ids so a retried sync
// overwrites the same point.
var pointNamespace = uuid.MustParse("6f1c3e7a-4a53-4b8e-9d0e-2f6f3b0c1d5a")

// ReportPointID is the vector point id of the run stored under pgID.
func ReportPointID(pgID uint) string {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("report:%d", pgID))).String()
}

// BuildPointID is the vector point id of a build.
func BuildPointID(buildID string) string {
	return uuid.NewSHA1(pointNamespace, []byte("build:"+buildID)).String()
}

// WriteResult carries the cross references of a durable write. Warnings
// are set when the relational write succeeded but the vector side did not.
type WriteResult struct {
	PGID     uint     `json:"pg_id"`
	VectorID string   `json:"vector_id,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Consistent reports whether both stores reference each other.
func (r WriteResult) Consistent() bool { return r.VectorID != "" && len(r.Warnings) == 0 }

// Writer is the only path that makes a TestRun durable. The relational
// store is written first and is authoritative; the vector store is a
// derived index that Sync can rebuild.
type Writer struct {
	runs     models.TestRunRepository
	builds   models.BuildInfoRepository
	store    vectordb.Store
	embedder llm.Embedder
	logger   logrus.FieldLogger
}

func NewWriter(
	runs models.TestRunRepository,
	builds models.BuildInfoRepository,
	store vectordb.Store,
	embedder llm.Embedder,
	logger logrus.FieldLogger,
) *Writer {
	return &Writer{
		runs:     runs,
		builds:   builds,
		store:    store,
		embedder: embedder,
		logger:   logger.WithField("component", "dualstore"),
	}
}

// Write stores run relationally, then as a report point, then writes the
// point id back. A relational failure returns an error and nothing reaches
// the vector store. A vector-side failure is reported as a warning.
func (w *Writer) Write(ctx context.Context, run *domain.TestRun) (WriteResult, error) {
	row := repository.ToModel(run)
	if err := w.runs.CreateTree(ctx, row, run.Project); err != nil {
		return WriteResult{}, fmt.Errorf("writing test run %s: %w", run.ID, err)
	}

	run.PGID = row.ID
	if run.Metadata == nil {
		run.Metadata = map[string]interface{}{}
	}
	run.Metadata[domain.KeyPGID] = row.ID

	result := WriteResult{PGID: row.ID}
	vectorID, err := w.link(ctx, run)
	if err != nil {
		w.logger.WithError(err).WithFields(logrus.Fields{
			"test_run_id": run.ID,
			"pg_id":       row.ID,
		}).Warn("Test run stored without vector reference")
		result.Warnings = append(result.Warnings, err.Error())
		return result, nil
	}

	run.VectorID = vectorID
	result.VectorID = vectorID
	return result, nil
}

// Load rebuilds a stored run from the relational store.
func (w *Writer) Load(ctx context.Context, pgID uint) (*domain.TestRun, error) {
	row, err := w.runs.GetTree(ctx, pgID)
	if err != nil {
		return nil, fmt.Errorf("loading test run %d: %w", pgID, err)
	}

	run := repository.ToDomain(row)
	run.Metadata[domain.KeyPGID] = pgID
	return run, nil
}

// MarkIndexed records that the chunks of a stored run are searchable.
func (w *Writer) MarkIndexed(ctx context.Context, pgID uint) error {
	return w.runs.SetChunksIndexed(ctx, pgID)
}

// Sync repeats the vector side of Write for a stored run. It is idempotent.
func (w *Writer) Sync(ctx context.Context, pgID uint) (*domain.TestRun, error) {
	run, err := w.Load(ctx, pgID)
	if err != nil {
		return nil, err
	}

	vectorID, err := w.link(ctx, run)
	if err != nil {
		return nil, err
	}
	run.VectorID = vectorID
	return run, nil
}

// link upserts the report point and records its id on the relational row.
func (w *Writer) link(ctx context.Context, run *domain.TestRun) (string, error) {
	vectorID := ReportPointID(run.PGID)

	vector, err := w.embedder.Embed(ctx, ReportText(run))
	if err != nil {
		return "", fmt.Errorf("%w: embedding report %d: %v", domain.ErrDataInconsistency, run.PGID, err)
	}

	point := vectordb.Point{ID: vectorID, Vector: vector, Payload: ReportPayload(run)}
	if err := w.store.Upsert(ctx, []vectordb.Point{point}); err != nil {
		return "", fmt.Errorf("%w: storing report %d: %v", domain.ErrDataInconsistency, run.PGID, err)
	}

	if err := w.runs.SetVectorID(ctx, run.PGID, vectorID); err != nil {
		return "", fmt.Errorf("%w: linking report %d to %s: %v", domain.ErrDataInconsistency, run.PGID, vectorID, err)
	}
	return vectorID, nil
}

// WriteBuildInfo upserts the build relationally, then stores its
// build_info point. The same warning policy as Write applies.
func (w *Writer) WriteBuildInfo(ctx context.Context, info domain.BuildInfo) (WriteResult, error) {
	if err := info.Validate(); err != nil {
		return WriteResult{}, err
	}

	row := repository.BuildInfoToModel(&info)
	if err := w.builds.Upsert(ctx, row); err != nil {
		return WriteResult{}, err
	}
	result := WriteResult{PGID: row.ID}

	vectorID, err := w.linkBuild(ctx, info)
	if err != nil {
		w.logger.WithError(err).WithField("build_id", info.BuildID).Warn("Build stored without vector reference")
		result.Warnings = append(result.Warnings, err.Error())
		return result, nil
	}
	result.VectorID = vectorID
	return result, nil
}

func (w *Writer) linkBuild(ctx context.Context, info domain.BuildInfo) (string, error) {
	meta := domain.NewChunkMetadata("", nil, domain.BuildChunkRef{BuildID: info.BuildID})
	meta.Context[domain.KeyTimestamp] = clock.Format(info.BuildDate)
	meta.Context["branch"] = info.Branch
	meta.Context["commit_hash"] = info.CommitHash
	chunk := domain.TextChunk{Text: ingestion.BuildInfoText(info), Metadata: meta}

	vector, err := w.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return "", fmt.Errorf("%w: embedding build %s: %v", domain.ErrDataInconsistency, info.BuildID, err)
	}

	embedding := domain.TextEmbedding{ID: BuildPointID(info.BuildID), Chunk: chunk, Vector: vector}
	point := vectordb.Point{ID: embedding.ID, Vector: vector, Payload: embedding.Payload()}
	if err := w.store.Upsert(ctx, []vectordb.Point{point}); err != nil {
		return "", fmt.Errorf("%w: storing build %s: %v", domain.ErrDataInconsistency, info.BuildID, err)
	}

	if err := w.builds.SetVectorID(ctx, info.BuildID, embedding.ID); err != nil {
		return "", fmt.Errorf("%w: linking build %s: %v", domain.ErrDataInconsistency, info.BuildID, err)
	}
	return embedding.ID, nil
}

// ReportText summarises a run for the report point's embedding.
func ReportText(run *domain.TestRun) string {
	t := run.Totals()
	var b strings.Builder
	fmt.Fprintf(&b, "Test run %s for %s in %s at %s: %s\n",
		run.ID, run.Project, run.Environment, clock.Format(run.Timestamp), run.Status())
	fmt.Fprintf(&b, "%d features, %d scenarios: %d passed, %d failed, %d skipped, %d undefined, %d pending",
		t.Features, t.Scenarios, t.Passed, t.Failed, t.Skipped, t.Undefined, t.Pending)
	for _, f := range run.Features {
		fmt.Fprintf(&b, "\nFeature: %s", f.Name)
	}
	return b.String()
}

// ReportPayload is the payload of a run's top-level report point.
func ReportPayload(run *domain.TestRun) map[string]interface{} {
	t := run.Totals()
	payload := ingestion.RunContext(run)
	payload[domain.KeyType] = string(domain.PayloadReport)
	payload[domain.KeyTestRunID] = run.ID
	payload[domain.KeyStatus] = run.Status().String()
	payload[domain.KeyTags] = domain.UnionTags(run.Tags)
	payload[domain.KeyText] = ReportText(run)
	payload["totals"] = map[string]interface{}{
		"features":  t.Features,
		"scenarios": t.Scenarios,
		"passed":    t.Passed,
		"failed":    t.Failed,
		"skipped":   t.Skipped,
		"undefined": t.Undefined,
		"pending":   t.Pending,
		"duration":  t.Duration,
	}
	if len(run.Metadata) > 0 {
		payload["metadata"] = run.Metadata
	}
	return payload
}
