package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/listvault/internal/domain"
)

// DefaultPageSize is the keyset page size when none is configured.
const DefaultPageSize = 1000

// ErrStop may be returned by a stream callback to end the stream early
// without an error.
var ErrStop = errors.New("stop export stream")

// Querier is the read side of *sql.DB.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Streamer reads export rows page by page.
type Streamer struct {
	db       Querier
	pageSize int
}

// NewStreamer creates a Streamer. A pageSize <= 0 selects DefaultPageSize.
func NewStreamer(db Querier, pageSize int) *Streamer {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Streamer{db: db, pageSize: pageSize}
}

// Stream calls fn for every row matching f, newest first, and returns how
// many rows fn accepted. At most one page is held in memory at a time.
func (s *Streamer) Stream(ctx context.Context, f Filter, fn func(domain.ExportRow) error) (int64, error) {
	qb := NewQueryBuilder(f)
	var (
		afterID int64
		total   int64
	)

	for {
		page, err := s.page(ctx, qb, afterID)
		if err != nil {
			return total, err
		}

		for _, row := range page {
			if err := fn(row); err != nil {
				if errors.Is(err, ErrStop) {
					return total, nil
				}
				return total, err
			}
			total++
		}

		if len(page) < s.pageSize {
			return total, nil
		}
		afterID = page[len(page)-1].ID
	}
}

func (s *Streamer) page(ctx context.Context, qb *QueryBuilder, afterID int64) ([]domain.ExportRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query, args := qb.Build(afterID, s.pageSize)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("export page after %d: %w", afterID, err)
	}
	defer rows.Close()

	page := make([]domain.ExportRow, 0, s.pageSize)
	for rows.Next() {
		var r domain.ExportRow
		if err := rows.Scan(&r.ID, &r.Email, &r.Domain, &r.IsValid, &r.InvalidReason); err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}
		page = append(page, r)
	}
	return page, rows.Err()
}

// Count returns how many rows f matches.
func (s *Streamer) Count(ctx context.Context, f Filter) (int64, error) {
	query, args := NewQueryBuilder(f).BuildCount()
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count export rows: %w", err)
	}
	return n, nil
}
