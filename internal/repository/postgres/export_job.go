package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/export"
)

const exportJobColumns = `id, public_id, format, filters, status, row_count,
	file_disk, file_path, file_name, file_size, COALESCE(error_message, ''), created_at, completed_at`

// ExportJobRepo tracks background exports. It implements export.JobStore.
type ExportJobRepo struct{ db DBTX }

// NewExportJobRepo creates a Postgres-backed export job repository.
func NewExportJobRepo(db DBTX) *ExportJobRepo { return &ExportJobRepo{db: db} }

func scanExportJob(row interface{ Scan(...interface{}) error }) (*domain.ExportJob, error) {
	j := &domain.ExportJob{}
	var (
		disk, path, name sql.NullString
		size             sql.NullInt64
	)
	err := row.Scan(&j.ID, &j.PublicID, &j.Format, &j.Filters, &j.Status, &j.RowCount,
		&disk, &path, &name, &size, &j.ErrorMessage, &j.CreatedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	if path.Valid {
		j.File = &domain.FileRecord{Disk: disk.String, Path: path.String, Filename: name.String, Size: size.Int64}
	}
	return j, nil
}

// Create inserts a queued job, assigning its public id.
func (r *ExportJobRepo) Create(ctx context.Context, j *domain.ExportJob) error {
	if j.PublicID == "" {
		j.PublicID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO export_jobs (public_id, format, filters)
		VALUES ($1, $2, $3)
		RETURNING id, status, created_at
	`, j.PublicID, string(j.Format), j.Filters).Scan(&j.ID, &j.Status, &j.CreatedAt)
	if err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

func (r *ExportJobRepo) Get(ctx context.Context, publicID string) (*domain.ExportJob, error) {
	if _, err := uuid.Parse(publicID); err != nil {
		return nil, export.ErrJobNotFound
	}
	j, err := scanExportJob(r.db.QueryRowContext(ctx,
		`SELECT `+exportJobColumns+` FROM export_jobs WHERE public_id = $1`, publicID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, export.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get export job: %w", err)
	}
	return j, nil
}

// MarkRunning claims a queued job. It reports false if the job was not queued.
func (r *ExportJobRepo) MarkRunning(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE export_jobs SET status = 'running' WHERE id = $1 AND status = 'queued'`, id)
	if err != nil {
		return false, fmt.Errorf("mark export running: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *ExportJobRepo) Complete(ctx context.Context, id, rowCount int64, f domain.FileRecord) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE export_jobs
		SET status = 'completed', row_count = $2,
		    file_disk = $3, file_path = $4, file_name = $5, file_size = $6,
		    completed_at = NOW()
		WHERE id = $1 AND status = 'running'
	`, id, rowCount, f.Disk, f.Path, f.Filename, f.Size)
	if err != nil {
		return fmt.Errorf("complete export job: %w", err)
	}
	return nil
}

func (r *ExportJobRepo) Fail(ctx context.Context, id int64, msg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE export_jobs
		SET status = 'failed', error_message = $2, completed_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'running')
	`, id, msg)
	if err != nil {
		return fmt.Errorf("fail export job: %w", err)
	}
	return nil
}
