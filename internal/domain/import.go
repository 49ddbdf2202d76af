package domain

import "time"

// SourceType describes how a batch's raw input should be split into rows.
type SourceType string

const (
	SourceText SourceType = "text"
	SourceCSV  SourceType = "csv"
)

// BatchStatus is the lifecycle state of an import batch. Transitions are
// monotonic: queued -> processing -> completed | failed.
type BatchStatus string

const (
	BatchQueued     BatchStatus = "queued"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// ItemStatus is the single terminal outcome recorded for one input row.
type ItemStatus string

const (
	ItemInvalid    ItemStatus = "invalid"
	ItemDuplicate  ItemStatus = "duplicate"
	ItemSuppressed ItemStatus = "suppressed"
	ItemInserted   ItemStatus = "inserted"
)

// BatchCounters are the aggregate row outcomes of a batch.
type BatchCounters struct {
	Total      int `json:"total" db:"total_rows"`
	Valid      int `json:"valid" db:"valid_rows"`
	Invalid    int `json:"invalid" db:"invalid_rows"`
	Duplicate  int `json:"duplicate" db:"duplicate_rows"`
	Inserted   int `json:"inserted" db:"inserted_rows"`
	Suppressed int `json:"suppressed" db:"suppressed_rows"`
}

// Add records one row outcome.
func (c *BatchCounters) Add(status ItemStatus) {
	c.Total++
	switch status {
	case ItemInvalid:
		c.Invalid++
		return
	case ItemDuplicate:
		c.Duplicate++
	case ItemSuppressed:
		c.Suppressed++
	case ItemInserted:
		c.Inserted++
	}
	c.Valid++
}

// InvalidPreview is a sample of a rejected row kept for display.
type InvalidPreview struct {
	RowNumber  int    `json:"row_number"`
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
	Reason     string `json:"reason"`
}

// ImportBatch is one discrete import submission into a category.
type ImportBatch struct {
	ID             int64            `json:"id" db:"id"`
	CategoryID     int64            `json:"category_id" db:"category_id"`
	SourceType     SourceType       `json:"source_type" db:"source_type"`
	SourcePath     string           `json:"source_path,omitempty" db:"source_path"`
	Status         BatchStatus      `json:"status" db:"status"`
	Counters       BatchCounters    `json:"counters"`
	InvalidPreview []InvalidPreview `json:"invalid_preview,omitempty" db:"invalid_preview"`
	ErrorMessage   string           `json:"error_message,omitempty" db:"error_message"`
	ResubmittedOf  *int64           `json:"resubmitted_of,omitempty" db:"resubmitted_of"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	StartedAt      *time.Time       `json:"started_at,omitempty" db:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
}

// ImportItem is the write-once audit record for one input row.
type ImportItem struct {
	BatchID         int64      `json:"batch_id" db:"batch_id"`
	RowNumber       int        `json:"row_number" db:"row_number"`
	RawEmail        string     `json:"raw_email" db:"raw_email"`
	NormalizedEmail string     `json:"normalized_email,omitempty" db:"normalized_email"`
	Domain          string     `json:"domain,omitempty" db:"domain"`
	Status          ItemStatus `json:"status" db:"status"`
	Reason          string     `json:"reason,omitempty" db:"reason"`
	EmailID         *int64     `json:"email_id,omitempty" db:"email_id"`
}

// BatchResult is what ProcessBatch hands back to its caller.
type BatchResult struct {
	BatchID        int64            `json:"batch_id"`
	Counters       BatchCounters    `json:"counters"`
	InvalidPreview []InvalidPreview `json:"invalid_preview"`
}
