package reconcile

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cukesight/backend/internal/config"
	"github.com/cukesight/backend/internal/domain"
	"github.com/cukesight/backend/internal/dualstore"
	"github.com/cukesight/backend/internal/ingestion"
	"github.com/cukesight/backend/internal/models"
	"github.com/cukesight/backend/internal/vectordb"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var chunkTypes = []string{
	string(domain.ChunkFeature),
	string(domain.ChunkScenario),
	string(domain.ChunkError),
}

// Report summarises one reconciliation pass.
type Report struct {
	Checked   int `json:"checked"`
	Repaired  int `json:"repaired"`
	Reindexed int `json:"reindexed"`
	Failed    int `json:"failed"`
}

// Job links test runs whose vector write failed after the relational
// commit and re-chunks runs whose chunks never reached the vector store.
type Job struct {
	runs     models.TestRunRepository
	writer   *dualstore.Writer
	pipeline *ingestion.Pipeline
	store    vectordb.Store
	cfg      config.ReconcileConfig
	logger   logrus.FieldLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewJob(
	runs models.TestRunRepository,
	writer *dualstore.Writer,
	pipeline *ingestion.Pipeline,
	store vectordb.Store,
	cfg config.ReconcileConfig,
	logger logrus.FieldLogger,
) *Job {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Job{
		runs:     runs,
		writer:   writer,
		pipeline: pipeline,
		store:    store,
		cfg:      cfg,
		logger:   logger.WithField("component", "reconcile"),
	}
}

// Start runs a pass every interval until Stop is called or ctx ends.
func (j *Job) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report, err := j.RunOnce(ctx)
				if err != nil {
					j.logger.WithError(err).Error("Reconciliation pass failed")
					continue
				}
				if report.Checked > 0 {
					j.logger.WithFields(logrus.Fields{
						"checked":   report.Checked,
						"repaired":  report.Repaired,
						"reindexed": report.Reindexed,
						"failed":    report.Failed,
					}).Info("Reconciliation pass completed")
				}
			}
		}
	}()
}

func (j *Job) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}

// RunOnce repairs up to one batch of unlinked runs and one batch of linked
// runs whose chunks were never stored. Per-run failures are counted, not
// returned.
func (j *Job) RunOnce(ctx context.Context) (Report, error) {
	unlinked, err := j.runs.ListMissingVectorRefs(ctx, j.cfg.BatchSize)
	if err != nil {
		return Report{}, err
	}
	unindexed, err := j.runs.ListUnindexed(ctx, j.cfg.BatchSize)
	if err != nil {
		return Report{}, err
	}

	var repaired, reindexed, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Concurrency)
	for _, id := range unlinked {
		id := id
		g.Go(func() error {
			run, err := j.writer.Sync(gctx, id)
			if err != nil {
				failed.Add(1)
				j.logger.WithError(err).WithField("pg_id", id).Warn("Failed to link test run")
				return nil
			}
			repaired.Add(1)

			ok, err := j.index(gctx, run)
			if err != nil {
				j.logger.WithError(err).WithField("pg_id", id).Warn("Failed to index linked test run")
			}
			if ok {
				reindexed.Add(1)
			}
			return nil
		})
	}
	for _, id := range unindexed {
		id := id
		g.Go(func() error {
			run, err := j.writer.Load(gctx, id)
			if err == nil {
				var ok bool
				if ok, err = j.index(gctx, run); ok {
					reindexed.Add(1)
				}
			}
			if err != nil {
				failed.Add(1)
				j.logger.WithError(err).WithField("pg_id", id).Warn("Failed to index test run")
			}
			return nil
		})
	}
	_ = g.Wait()

	return Report{
		Checked:   len(unlinked) + len(unindexed),
		Repaired:  int(repaired.Load()),
		Reindexed: int(reindexed.Load()),
		Failed:    int(failed.Load()),
	}, nil
}

// index stores the chunks of run unless the vector store already holds
// some, then marks the run indexed. It reports whether chunks were written.
func (j *Job) index(ctx context.Context, run *domain.TestRun) (bool, error) {
	existing, err := j.store.Count(ctx, vectordb.NewFilter().
		With(domain.KeyTestRunID, run.ID).
		With(domain.KeyType, chunkTypes))
	if err != nil {
		return false, err
	}

	written := false
	if existing == 0 {
		summary := j.pipeline.IndexRun(ctx, run)
		if summary.ChunksBuilt > 0 && !summary.Success() {
			return false, fmt.Errorf("indexing test run %d: %d of %d chunks failed", run.PGID, summary.Failed, summary.ChunksBuilt)
		}
		written = summary.Success()
	}

	if err := j.writer.MarkIndexed(ctx, run.PGID); err != nil {
		return written, err
	}
	return written, nil
}
