package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/metrics"
	"github.com/ignite/listvault/internal/pkg/logger"
	"github.com/ignite/listvault/internal/storage"
)

// ErrJobNotFound is returned for unknown export job ids.
var ErrJobNotFound = errors.New("export job not found")

// JobStore persists background export jobs.
type JobStore interface {
	Create(ctx context.Context, j *domain.ExportJob) error
	Get(ctx context.Context, publicID string) (*domain.ExportJob, error)
	// MarkRunning reports false if the job was no longer queued.
	MarkRunning(ctx context.Context, id int64) (bool, error)
	Complete(ctx context.Context, id, rowCount int64, f domain.FileRecord) error
	Fail(ctx context.Context, id int64, msg string) error
}

// JobRunner runs exports in the background and keeps the result in a
// FileStore.
type JobRunner struct {
	jobs     JobStore
	streamer *Streamer
	files    storage.FileStore
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewJobRunner creates a JobRunner.
func NewJobRunner(jobs JobStore, streamer *Streamer, files storage.FileStore) *JobRunner {
	return &JobRunner{jobs: jobs, streamer: streamer, files: files, now: time.Now}
}

// Start records a queued job and runs it on its own goroutine. The job
// outlives ctx's cancellation; use Wait to drain running jobs on shutdown.
func (r *JobRunner) Start(ctx context.Context, format domain.ExportFormat, f Filter) (*domain.ExportJob, error) {
	job := &domain.ExportJob{Format: format, Filters: f.Values().Encode()}
	if err := r.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.Run(bg, job); err != nil {
			logger.Error("export job failed", "job", job.PublicID, "error", err)
		}
	}()
	return job, nil
}

// Wait blocks until every job started by Start has finished.
func (r *JobRunner) Wait() { r.wg.Wait() }

// Run executes a queued job synchronously. A job another runner already
// claimed is skipped.
func (r *JobRunner) Run(ctx context.Context, job *domain.ExportJob) error {
	claimed, err := r.jobs.MarkRunning(ctx, job.ID)
	if err != nil {
		return err
	}
	if !claimed {
		logger.Info("export job already claimed", "job", job.PublicID)
		return nil
	}

	start := r.now()
	rows, rec, err := r.write(ctx, job)
	if err != nil {
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if ferr := r.jobs.Fail(failCtx, job.ID, err.Error()); ferr != nil {
			logger.Error("failed to mark export job failed", "job", job.PublicID, "error", ferr)
		}
		return fmt.Errorf("export %s: %w", job.PublicID, err)
	}

	if err := r.jobs.Complete(ctx, job.ID, rows, rec); err != nil {
		return err
	}
	metrics.AddExportRows(string(job.Format), rows)
	logger.Info("export job completed",
		"job", job.PublicID,
		"format", job.Format,
		"rows", rows,
		"bytes", rec.Size,
		"duration", r.now().Sub(start).String())
	return nil
}

func (r *JobRunner) write(ctx context.Context, job *domain.ExportJob) (int64, domain.FileRecord, error) {
	q, err := url.ParseQuery(job.Filters)
	if err != nil {
		q = url.Values{}
	}
	filter := ParseFilter(q)

	pr, pw := io.Pipe()
	w, err := NewWriter(job.Format, pw)
	if err != nil {
		return 0, domain.FileRecord{}, err
	}

	type result struct {
		rows int64
		err  error
	}
	done := make(chan result, 1)
	go func() {
		n, err := r.streamer.Stream(ctx, filter, w.Write)
		if err == nil {
			err = w.Flush()
		}
		pw.CloseWithError(err)
		done <- result{rows: n, err: err}
	}()

	key := storage.ExportKey(job.PublicID, Extension(job.Format), r.now())
	rec, putErr := r.files.Put(ctx, key, pr)
	// Unblock the producer if Put gave up before EOF.
	pr.CloseWithError(io.ErrClosedPipe)
	res := <-done

	// A producer cut off by a failed Put only sees the closed pipe; the
	// storage error is the cause.
	if putErr != nil && (res.err == nil || errors.Is(res.err, io.ErrClosedPipe)) {
		return 0, domain.FileRecord{}, putErr
	}
	if res.err != nil {
		return 0, domain.FileRecord{}, res.err
	}
	rec.Filename = "export-" + job.PublicID + "." + Extension(job.Format)
	return res.rows, rec, nil
}

// Get returns a job by its public id.
func (r *JobRunner) Get(ctx context.Context, publicID string) (*domain.ExportJob, error) {
	return r.jobs.Get(ctx, publicID)
}

// Open returns the finished file of a completed job.
func (r *JobRunner) Open(ctx context.Context, job *domain.ExportJob) (io.ReadCloser, error) {
	if job.Status != domain.ExportCompleted || job.File == nil {
		return nil, fmt.Errorf("export %s is %s: %w", job.PublicID, job.Status, storage.ErrNotFound)
	}
	return r.files.Open(ctx, job.File.Path)
}
