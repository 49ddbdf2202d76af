// Package worker runs queued import batches in the background: it picks
// them up from the broker or by polling, feeds their stored source through
// the import pipeline, publishes live progress, and fails batches that a
// crashed worker left in processing.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/listvault/internal/datanorm"
	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/importer"
	"github.com/ignite/listvault/internal/pkg/logger"
	"github.com/ignite/listvault/internal/storage"
)

// BatchReader loads batch rows.
type BatchReader interface {
	GetBatch(ctx context.Context, id int64) (*domain.ImportBatch, error)
}

// ImportRunner runs one stored batch end to end.
type ImportRunner struct {
	repo     importer.Repository
	batches  BatchReader
	files    storage.FileStore
	progress ProgressTracker
	pipeline *importer.Pipeline
	timeout  time.Duration
	now      func() time.Time
}

// NewImportRunner wires a pipeline over repo that reports into progress.
// A timeout <= 0 leaves batches bounded only by the caller's context.
func NewImportRunner(repo importer.Repository, batches BatchReader, files storage.FileStore, progress ProgressTracker, opts importer.Options, timeout time.Duration) *ImportRunner {
	r := &ImportRunner{
		repo:     repo,
		batches:  batches,
		files:    files,
		progress: progress,
		timeout:  timeout,
		now:      time.Now,
	}
	opts.Progress = r.reportProgress
	r.pipeline = importer.NewPipeline(repo, opts)
	return r
}

// Run processes batchID. A batch that is no longer queued is skipped with
// importer.ErrBatchNotQueued; an unreadable source fails the batch unless
// another worker claimed it first.
func (r *ImportRunner) Run(ctx context.Context, batchID int64) (domain.BatchResult, error) {
	b, err := r.batches.GetBatch(ctx, batchID)
	if err != nil {
		return domain.BatchResult{BatchID: batchID}, err
	}
	if b.Status != domain.BatchQueued {
		return domain.BatchResult{BatchID: batchID}, importer.ErrBatchNotQueued
	}

	started := r.now()
	r.update(ctx, Progress{BatchID: batchID, Phase: PhaseReading, StartedAt: started})

	rows, err := r.readRows(ctx, b)
	if err != nil {
		if ferr := r.failUnread(ctx, b, err); errors.Is(ferr, importer.ErrBatchNotQueued) {
			logger.Info("source unreadable but batch already claimed", "batch_id", batchID, "error", err)
			return domain.BatchResult{BatchID: batchID}, ferr
		}
		return domain.BatchResult{BatchID: batchID}, err
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.update(ctx, Progress{BatchID: batchID, Phase: PhaseImporting, Total: len(rows), StartedAt: started})
	res, err := r.pipeline.ProcessBatch(runCtx, batchID, rows)
	if err != nil {
		if !errors.Is(err, importer.ErrBatchNotQueued) {
			r.update(ctx, Progress{BatchID: batchID, Phase: PhaseFailed, Total: len(rows), Error: err.Error(), StartedAt: started})
		}
		return res, err
	}

	r.update(ctx, Progress{BatchID: batchID, Phase: PhaseCompleted, Processed: len(rows), Total: len(rows), StartedAt: started})
	return res, nil
}

// Handle adapts Run to a queue handler. Batches another worker already took
// are acknowledged, as are batches that failed inside the pipeline: they are
// recorded failed and only a resubmit runs them again.
func (r *ImportRunner) Handle(ctx context.Context, batchID int64) error {
	_, err := r.Run(ctx, batchID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, importer.ErrBatchNotQueued), errors.Is(err, importer.ErrBatchNotFound):
		logger.Info("skipping batch", "batch_id", batchID, "reason", err.Error())
		return nil
	case r.isRecordedFailure(ctx, batchID):
		return nil
	default:
		return err
	}
}

func (r *ImportRunner) isRecordedFailure(ctx context.Context, batchID int64) bool {
	b, err := r.batches.GetBatch(context.WithoutCancel(ctx), batchID)
	return err == nil && b.Status == domain.BatchFailed
}

func (r *ImportRunner) readRows(ctx context.Context, b *domain.ImportBatch) ([]string, error) {
	if b.SourcePath == "" {
		return nil, errors.New("batch has no stored source")
	}
	rc, err := r.files.Open(ctx, b.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer rc.Close()

	rows, err := datanorm.ReadRows(rc, b.SourceType)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	return rows, nil
}

// failUnread fails b only while it is still queued: a worker that claimed
// it in the meantime owns its status and progress.
func (r *ImportRunner) failUnread(ctx context.Context, b *domain.ImportBatch, cause error) error {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	err := r.repo.FailQueued(failCtx, b.ID, cause.Error())
	switch {
	case errors.Is(err, importer.ErrBatchNotQueued):
		return err
	case err != nil:
		logger.Error("failed to mark unreadable batch failed", "batch_id", b.ID, "error", err)
	default:
		logger.Warn("import batch source unreadable", "batch_id", b.ID, "path", b.SourcePath, "error", cause)
	}
	r.update(ctx, Progress{BatchID: b.ID, Phase: PhaseFailed, Error: cause.Error(), StartedAt: r.now()})
	return err
}

func (r *ImportRunner) reportProgress(batchID int64, processed, total int) {
	r.update(context.Background(), Progress{BatchID: batchID, Phase: PhaseImporting, Processed: processed, Total: total})
}

// update never fails the batch; progress is advisory.
func (r *ImportRunner) update(ctx context.Context, p Progress) {
	if r.progress == nil {
		return
	}
	p.UpdatedAt = r.now()
	if p.StartedAt.IsZero() {
		if prev, ok, _ := r.progress.Get(ctx, p.BatchID); ok {
			p.StartedAt = prev.StartedAt
		}
	}
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := r.progress.Update(uctx, p); err != nil {
		logger.Warn("progress update failed", "batch_id", p.BatchID, "error", err)
	}
}
