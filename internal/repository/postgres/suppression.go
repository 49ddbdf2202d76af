package postgres

import (
	"context"
	"fmt"

	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
type SuppressionRepo struct{ db DBTX }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db DBTX) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) FindOrCreateEmail(ctx context.Context, parts domain.EmailParts) (domain.CanonicalEmail, error) {
	return findOrCreateEmail(ctx, r.db, parts)
}

func (r *SuppressionRepo) FindEmail(ctx context.Context, email string) (domain.CanonicalEmail, error) {
	return NewEmailRepo(r.db).GetByEmail(ctx, email)
}

func (r *SuppressionRepo) SuppressEmail(ctx context.Context, emailID int64, reason domain.SuppressionReason) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO suppressions (scope, email_id, reason)
		VALUES ('global', $1, $2)
		ON CONFLICT (email_id) WHERE scope = 'global' DO NOTHING
	`, emailID, string(reason))
	if err != nil {
		return false, fmt.Errorf("suppress email: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *SuppressionRepo) SuppressDomain(ctx context.Context, d string, reason domain.SuppressionReason) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO suppressions (scope, domain, reason)
		VALUES ('domain', $1, $2)
		ON CONFLICT (domain) WHERE scope = 'domain' DO NOTHING
	`, d, string(reason))
	if err != nil {
		return false, fmt.Errorf("suppress domain: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *SuppressionRepo) RemoveEmail(ctx context.Context, emailID int64) error {
	return r.remove(ctx, `DELETE FROM suppressions WHERE scope = 'global' AND email_id = $1`, emailID)
}

func (r *SuppressionRepo) RemoveDomain(ctx context.Context, d string) error {
	return r.remove(ctx, `DELETE FROM suppressions WHERE scope = 'domain' AND domain = $1`, d)
}

func (r *SuppressionRepo) remove(ctx context.Context, q string, arg interface{}) error {
	res, err := r.db.ExecContext(ctx, q, arg)
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

func (r *SuppressionRepo) List(ctx context.Context, f suppression.ListFilter) ([]domain.SuppressionEntry, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	if f.Scope != "" {
		args = append(args, string(f.Scope))
		where += fmt.Sprintf(" AND s.scope = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where += fmt.Sprintf(" AND (e.email ILIKE $%d OR s.domain ILIKE $%d)", len(args), len(args))
	}

	from := ` FROM suppressions s LEFT JOIN emails e ON e.id = s.email_id`

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)
	q := `SELECT s.id, s.scope, s.email_id, COALESCE(e.email, ''), COALESCE(s.domain, ''), s.reason, s.created_at` +
		from + where +
		fmt.Sprintf(" ORDER BY s.created_at DESC, s.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.SuppressionEntry
	for rows.Next() {
		var s domain.SuppressionEntry
		if err := rows.Scan(&s.ID, &s.Scope, &s.EmailID, &s.Email, &s.Domain, &s.Reason, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *SuppressionRepo) CountByScope(ctx context.Context) (map[domain.SuppressionScope]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT scope, COUNT(*) FROM suppressions GROUP BY scope`)
	if err != nil {
		return nil, fmt.Errorf("count suppressions: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.SuppressionScope]int, 2)
	for rows.Next() {
		var (
			scope domain.SuppressionScope
			n     int
		)
		if err := rows.Scan(&scope, &n); err != nil {
			return nil, err
		}
		out[scope] = n
	}
	return out, rows.Err()
}

// ListSuppressedDomains feeds the import pipeline's domain index.
func (r *SuppressionRepo) ListSuppressedDomains(ctx context.Context) ([]string, error) {
	return listSuppressedDomains(ctx, r.db)
}

func listSuppressedDomains(ctx context.Context, q DBTX) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT domain FROM suppressions WHERE scope = 'domain' ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("list suppressed domains: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
