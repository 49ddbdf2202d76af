package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/importer"
)

const batchColumns = `id, category_id, source_type, source_path, status,
	total_rows, valid_rows, invalid_rows, duplicate_rows, inserted_rows, suppressed_rows,
	invalid_preview, COALESCE(error_message, ''), resubmitted_of, created_at, started_at, completed_at`

var itemColumns = []string{
	"batch_id", "row_number", "raw_email", "normalized_email", "domain", "status", "reason", "email_id",
}

// BatchRepo persists import batches and their audit items. It implements
// importer.Repository and importer.BatchStore.
type BatchRepo struct{ db *sql.DB }

// NewBatchRepo creates a Postgres-backed batch repository.
func NewBatchRepo(db *sql.DB) *BatchRepo { return &BatchRepo{db: db} }

func scanBatch(row interface{ Scan(...interface{}) error }) (*domain.ImportBatch, error) {
	b := &domain.ImportBatch{}
	var preview []byte
	err := row.Scan(
		&b.ID, &b.CategoryID, &b.SourceType, &b.SourcePath, &b.Status,
		&b.Counters.Total, &b.Counters.Valid, &b.Counters.Invalid,
		&b.Counters.Duplicate, &b.Counters.Inserted, &b.Counters.Suppressed,
		&preview, &b.ErrorMessage, &b.ResubmittedOf, &b.CreatedAt, &b.StartedAt, &b.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(preview) > 0 {
		if err := json.Unmarshal(preview, &b.InvalidPreview); err != nil {
			return nil, fmt.Errorf("decode invalid preview: %w", err)
		}
	}
	return b, nil
}

func (r *BatchRepo) CreateBatch(ctx context.Context, b *domain.ImportBatch) error {
	if b.SourceType == "" {
		b.SourceType = domain.SourceText
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO import_batches (category_id, source_type, source_path, resubmitted_of)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at
	`, b.CategoryID, string(b.SourceType), b.SourcePath, b.ResubmittedOf).Scan(&b.ID, &b.Status, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

func (r *BatchRepo) GetBatch(ctx context.Context, id int64) (*domain.ImportBatch, error) {
	b, err := scanBatch(r.db.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM import_batches WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, importer.ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

// ResubmitBatch clones a failed batch into a new queued one over the same
// source. The failed batch is left as it is.
func (r *BatchRepo) ResubmitBatch(ctx context.Context, failedID int64) (*domain.ImportBatch, error) {
	b, err := scanBatch(r.db.QueryRowContext(ctx, `
		INSERT INTO import_batches (category_id, source_type, source_path, resubmitted_of)
		SELECT category_id, source_type, source_path, id
		FROM import_batches
		WHERE id = $1 AND status = 'failed'
		RETURNING `+batchColumns, failedID))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resubmit batch: %w", err)
	}
	if _, err := r.GetBatch(ctx, failedID); err != nil {
		return nil, err
	}
	return nil, importer.ErrBatchNotFailed
}

// StartBatch is the claim: only one caller can move a batch out of queued.
func (r *BatchRepo) StartBatch(ctx context.Context, id int64) (*domain.ImportBatch, error) {
	b, err := scanBatch(r.db.QueryRowContext(ctx, `
		UPDATE import_batches
		SET status = 'processing', started_at = NOW()
		WHERE id = $1 AND status = 'queued'
		RETURNING `+batchColumns, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, importer.ErrBatchNotQueued
	}
	if err != nil {
		return nil, fmt.Errorf("start batch: %w", err)
	}
	return b, nil
}

func (r *BatchRepo) FailBatch(ctx context.Context, id int64, msg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE import_batches
		SET status = 'failed', error_message = $2, completed_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'processing')
	`, id, msg)
	if err != nil {
		return fmt.Errorf("fail batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return importer.ErrBatchNotProcessing
	}
	return nil
}

// FailQueued fails a batch nobody has claimed yet. A claimed batch belongs
// to its worker and is left alone.
func (r *BatchRepo) FailQueued(ctx context.Context, id int64, msg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE import_batches
		SET status = 'failed', error_message = $2, completed_at = NOW()
		WHERE id = $1 AND status = 'queued'
	`, id, msg)
	if err != nil {
		return fmt.Errorf("fail queued batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return importer.ErrBatchNotQueued
	}
	return nil
}

func (r *BatchRepo) ListSuppressedDomains(ctx context.Context) ([]string, error) {
	return listSuppressedDomains(ctx, r.db)
}

// WithinTx runs fn in a transaction, rolling back on error or panic.
func (r *BatchRepo) WithinTx(ctx context.Context, fn func(tx importer.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&batchTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListQueued returns the oldest queued batch ids. The caller claims each
// with StartBatch; losing a race is reported there.
func (r *BatchRepo) ListQueued(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM import_batches WHERE status = 'queued' ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list queued batches: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FailStale marks batches stuck in processing for longer than olderThan as
// failed and returns their ids.
func (r *BatchRepo) FailStale(ctx context.Context, olderThan time.Duration, msg string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE import_batches
		SET status = 'failed', error_message = $2, completed_at = NOW()
		WHERE status = 'processing'
		  AND started_at < NOW() - make_interval(secs => $1)
		RETURNING id
	`, olderThan.Seconds(), msg)
	if err != nil {
		return nil, fmt.Errorf("fail stale batches: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BatchFilter selects batches for listing.
type BatchFilter struct {
	CategoryID int64
	Status     domain.BatchStatus
	Limit      int
	Offset     int
}

func (r *BatchRepo) ListBatches(ctx context.Context, f BatchFilter) ([]domain.ImportBatch, error) {
	q := `SELECT ` + batchColumns + ` FROM import_batches WHERE 1=1`
	var args []interface{}
	if f.CategoryID > 0 {
		args = append(args, f.CategoryID)
		q += fmt.Sprintf(" AND category_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []domain.ImportBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// ItemFilter pages through a batch's audit trail.
type ItemFilter struct {
	Status domain.ItemStatus
	Limit  int
	Offset int
}

// ListItems returns items in row order and the total matching count.
func (r *BatchRepo) ListItems(ctx context.Context, batchID int64, f ItemFilter) ([]domain.ImportItem, int, error) {
	where := ` WHERE batch_id = $1`
	args := []interface{}{batchID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where += ` AND status = $2`
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM import_items`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count items: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)
	rows, err := r.db.QueryContext(ctx, `
		SELECT batch_id, row_number, raw_email, normalized_email, domain, status, reason, email_id
		FROM import_items`+where+
		fmt.Sprintf(` ORDER BY row_number LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []domain.ImportItem
	for rows.Next() {
		var it domain.ImportItem
		if err := rows.Scan(&it.BatchID, &it.RowNumber, &it.RawEmail, &it.NormalizedEmail,
			&it.Domain, &it.Status, &it.Reason, &it.EmailID); err != nil {
			return nil, 0, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, total, rows.Err()
}

// batchTx is the importer.Tx of one batch run.
type batchTx struct{ tx *sql.Tx }

func (t *batchTx) LookupEmail(ctx context.Context, email string) (domain.EmailLookup, error) {
	return lookupEmail(ctx, t.tx, email)
}

func (t *batchTx) FindOrCreateEmail(ctx context.Context, parts domain.EmailParts) (int64, error) {
	e, err := findOrCreateEmail(ctx, t.tx, parts)
	if err != nil {
		return 0, err
	}
	return e.ID, nil
}

func (t *batchTx) Attach(ctx context.Context, categoryID, emailID int64) (domain.AttachOutcome, error) {
	out, _, err := attach(ctx, t.tx, categoryID, emailID)
	return out, err
}

// InsertItems streams the chunk with COPY.
func (t *batchTx) InsertItems(ctx context.Context, items []domain.ImportItem) error {
	if len(items) == 0 {
		return nil
	}
	stmt, err := t.tx.PrepareContext(ctx, pq.CopyIn("import_items", itemColumns...))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		var emailID interface{}
		if it.EmailID != nil {
			emailID = *it.EmailID
		}
		if _, err := stmt.ExecContext(ctx,
			it.BatchID, it.RowNumber, it.RawEmail, it.NormalizedEmail,
			it.Domain, string(it.Status), it.Reason, emailID,
		); err != nil {
			return fmt.Errorf("copy item %d: %w", it.RowNumber, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flush copy: %w", err)
	}
	return nil
}

func (t *batchTx) CompleteBatch(ctx context.Context, id int64, c domain.BatchCounters, preview []domain.InvalidPreview) error {
	if preview == nil {
		preview = []domain.InvalidPreview{}
	}
	raw, err := json.Marshal(preview)
	if err != nil {
		return fmt.Errorf("encode invalid preview: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE import_batches
		SET status = 'completed',
		    total_rows = $2, valid_rows = $3, invalid_rows = $4,
		    duplicate_rows = $5, inserted_rows = $6, suppressed_rows = $7,
		    invalid_preview = $8::jsonb, completed_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, id, c.Total, c.Valid, c.Invalid, c.Duplicate, c.Inserted, c.Suppressed, string(raw))
	if err != nil {
		return fmt.Errorf("complete batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return importer.ErrBatchNotProcessing
	}
	return nil
}
