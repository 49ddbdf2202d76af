package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/pkg/logger"
	"github.com/ignite/listvault/internal/queue"
	"github.com/ignite/listvault/internal/service/category"
	"github.com/ignite/listvault/internal/storage"
)

// CategoryLookup resolves the target category of a submission.
type CategoryLookup interface {
	Get(ctx context.Context, id int64) (*domain.Category, error)
}

// SubmitRequest is one upload into a category.
type SubmitRequest struct {
	CategoryID int64
	SourceType domain.SourceType
	Filename   string
	Body       io.Reader
}

// Submitter turns uploads into queued batches.
type Submitter struct {
	categories CategoryLookup
	batches    BatchStore
	files      storage.FileStore
	dispatcher queue.Dispatcher
	now        func() time.Time
}

// NewSubmitter creates a Submitter. dispatcher may be nil, in which case
// queued batches wait for a worker's poller.
func NewSubmitter(categories CategoryLookup, batches BatchStore, files storage.FileStore, dispatcher queue.Dispatcher) *Submitter {
	return &Submitter{
		categories: categories,
		batches:    batches,
		files:      files,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// SourceFromFilename guesses the source type from a file extension.
func SourceFromFilename(name string) domain.SourceType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv":
		return domain.SourceCSV
	}
	return domain.SourceText
}

// Submit stores the upload and queues a batch for it. A dispatch failure is
// logged but not returned: the batch is already durable and will be picked
// up by polling.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (*domain.ImportBatch, error) {
	if req.SourceType == "" {
		req.SourceType = SourceFromFilename(req.Filename)
	}
	if req.SourceType != domain.SourceText && req.SourceType != domain.SourceCSV {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, req.SourceType)
	}
	if req.Body == nil {
		return nil, errors.New("import body is required")
	}
	if _, err := s.categories.Get(ctx, req.CategoryID); err != nil {
		if errors.Is(err, category.ErrNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}

	key := storage.UploadKey(req.Filename, s.now())
	rec, err := s.files.Put(ctx, key, req.Body)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	b := &domain.ImportBatch{
		CategoryID: req.CategoryID,
		SourceType: req.SourceType,
		SourcePath: rec.Path,
	}
	if err := s.batches.CreateBatch(ctx, b); err != nil {
		if derr := s.files.Delete(context.WithoutCancel(ctx), rec.Path); derr != nil {
			logger.Warn("failed to remove orphaned upload", "path", rec.Path, "error", derr)
		}
		return nil, err
	}

	logger.Info("import batch queued",
		"batch_id", b.ID,
		"category_id", b.CategoryID,
		"source_type", b.SourceType,
		"bytes", rec.Size)

	s.dispatch(ctx, b.ID)
	return b, nil
}

// Resubmit queues a fresh batch over a failed batch's stored source.
func (s *Submitter) Resubmit(ctx context.Context, failedID int64) (*domain.ImportBatch, error) {
	b, err := s.batches.ResubmitBatch(ctx, failedID)
	if err != nil {
		return nil, err
	}
	logger.Info("import batch resubmitted", "batch_id", b.ID, "resubmitted_of", failedID)
	s.dispatch(ctx, b.ID)
	return b, nil
}

func (s *Submitter) dispatch(ctx context.Context, batchID int64) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, batchID); err != nil {
		logger.Warn("batch dispatch failed, leaving it to the poller", "batch_id", batchID, "error", err)
	}
}
