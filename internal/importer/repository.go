package importer

import (
	"context"

	"github.com/ignite/listvault/internal/domain"
)

// Repository is the persistence contract of the pipeline. StartBatch and
// the Fail methods commit on their own; everything a batch writes happens inside
// WithinTx so a failed run leaves no trace besides its failed status.
type Repository interface {
	// StartBatch moves a batch from queued to processing and returns it.
	// Returns ErrBatchNotQueued if the batch is in any other state.
	StartBatch(ctx context.Context, batchID int64) (*domain.ImportBatch, error)

	// ListSuppressedDomains returns every domain-scope suppression entry.
	ListSuppressedDomains(ctx context.Context) ([]string, error)

	// WithinTx runs fn in one transaction, committing if fn returns nil
	// and rolling back otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// FailBatch marks a queued or processing batch failed with msg and a
	// completion time.
	FailBatch(ctx context.Context, batchID int64, msg string) error

	// FailQueued marks a batch failed only while it is still queued.
	// Returns ErrBatchNotQueued once any worker has claimed it.
	FailQueued(ctx context.Context, batchID int64, msg string) error
}

// Tx is the set of writes and reads a batch performs inside its transaction.
type Tx interface {
	// LookupEmail resolves an existing identity and whether it carries a
	// global suppression entry. Nothing is created.
	LookupEmail(ctx context.Context, email string) (domain.EmailLookup, error)

	// FindOrCreateEmail returns the identity for parts.Email, creating it
	// with is_valid=true if absent. Concurrent callers converge on one row.
	FindOrCreateEmail(ctx context.Context, parts domain.EmailParts) (int64, error)

	// Attach adds the email to the category or bumps times_added on the
	// existing membership, atomically.
	Attach(ctx context.Context, categoryID, emailID int64) (domain.AttachOutcome, error)

	// InsertItems persists audit rows. The slice is not retained.
	InsertItems(ctx context.Context, items []domain.ImportItem) error

	// CompleteBatch writes final counters and the completed status.
	// Returns ErrBatchNotProcessing if the batch left processing.
	CompleteBatch(ctx context.Context, batchID int64, counters domain.BatchCounters, preview []domain.InvalidPreview) error
}

// BatchStore creates and reads batches for submitters and runners.
type BatchStore interface {
	CreateBatch(ctx context.Context, b *domain.ImportBatch) error
	GetBatch(ctx context.Context, id int64) (*domain.ImportBatch, error)
	ResubmitBatch(ctx context.Context, failedID int64) (*domain.ImportBatch, error)
}
