package importer

import "errors"

// Sentinel errors for batch processing.
var (
	// ErrBatchNotQueued is returned when a batch cannot move to processing
	// because another run already claimed it or it has finished.
	ErrBatchNotQueued = errors.New("import batch is not queued")

	// ErrBatchNotProcessing is returned when completing a batch whose status
	// changed underneath the run (e.g. a recovery sweep marked it failed).
	ErrBatchNotProcessing = errors.New("import batch is not processing")

	// ErrBatchNotFound is returned for unknown batch ids.
	ErrBatchNotFound = errors.New("import batch not found")

	// ErrBatchNotFailed is returned when resubmitting a batch that did not fail.
	ErrBatchNotFailed = errors.New("only failed batches can be resubmitted")

	// ErrCategoryNotFound rejects submissions into a missing category.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrUnsupportedSource rejects unknown source types.
	ErrUnsupportedSource = errors.New("unsupported source type")
)
