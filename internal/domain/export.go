package domain

import "time"

// ExportRow is one record of an export stream.
type ExportRow struct {
	ID            int64  `json:"-" db:"id"`
	Email         string `json:"email" db:"email"`
	Domain        string `json:"domain" db:"domain"`
	IsValid       bool   `json:"is_valid" db:"is_valid"`
	InvalidReason string `json:"invalid_reason,omitempty" db:"invalid_reason"`
}

// ExportFormat selects the file rendering of an export.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatTXT  ExportFormat = "txt"
	FormatJSON ExportFormat = "json"
)

// ValidityFilter restricts exports by CanonicalEmail.IsValid.
type ValidityFilter string

const (
	ValidityAll     ValidityFilter = "all"
	ValidityValid   ValidityFilter = "valid"
	ValidityInvalid ValidityFilter = "invalid"
)

// ExportStatus is the lifecycle of a background export job.
type ExportStatus string

const (
	ExportQueued    ExportStatus = "queued"
	ExportRunning   ExportStatus = "running"
	ExportCompleted ExportStatus = "completed"
	ExportFailed    ExportStatus = "failed"
)

// FileRecord describes a file persisted to a storage disk.
type FileRecord struct {
	Disk     string `json:"disk" db:"file_disk"`
	Path     string `json:"path" db:"file_path"`
	Filename string `json:"filename" db:"file_name"`
	Size     int64  `json:"size" db:"file_size"`
}

// ExportJob is a background export whose output is written to storage.
type ExportJob struct {
	ID           int64        `json:"id" db:"id"`
	PublicID     string       `json:"public_id" db:"public_id"`
	Format       ExportFormat `json:"format" db:"format"`
	Filters      string       `json:"filters" db:"filters"`
	Status       ExportStatus `json:"status" db:"status"`
	RowCount     int64        `json:"row_count" db:"row_count"`
	File         *FileRecord  `json:"file,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
}
