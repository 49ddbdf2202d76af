package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/service/suppression"
)

const emailColumns = `id, email, local_part, domain, is_valid, COALESCE(invalid_reason, ''), created_at`

// EmailRepo is the canonical email store.
type EmailRepo struct{ db DBTX }

// NewEmailRepo creates a Postgres-backed email store.
func NewEmailRepo(db DBTX) *EmailRepo { return &EmailRepo{db: db} }

func scanEmail(row interface{ Scan(...interface{}) error }) (domain.CanonicalEmail, error) {
	var e domain.CanonicalEmail
	err := row.Scan(&e.ID, &e.Email, &e.LocalPart, &e.Domain, &e.IsValid, &e.InvalidReason, &e.CreatedAt)
	return e, err
}

// FindOrCreate returns the identity for parts.Email, inserting it with
// is_valid=true when absent. Concurrent callers converge on the same row.
func (r *EmailRepo) FindOrCreate(ctx context.Context, parts domain.EmailParts) (domain.CanonicalEmail, error) {
	return findOrCreateEmail(ctx, r.db, parts)
}

func findOrCreateEmail(ctx context.Context, q DBTX, parts domain.EmailParts) (domain.CanonicalEmail, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		e, err := scanEmail(q.QueryRowContext(ctx, `
			INSERT INTO emails (email, local_part, domain, is_valid)
			VALUES ($1, $2, $3, TRUE)
			ON CONFLICT (email) DO NOTHING
			RETURNING `+emailColumns,
			parts.Email, parts.LocalPart, parts.Domain,
		))
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, sql.ErrNoRows) && !isUniqueViolation(err) {
			return domain.CanonicalEmail{}, fmt.Errorf("insert email: %w", err)
		}

		// Someone else owns the row; read theirs.
		e, err = scanEmail(q.QueryRowContext(ctx,
			`SELECT `+emailColumns+` FROM emails WHERE email = $1`, parts.Email))
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return domain.CanonicalEmail{}, fmt.Errorf("select email: %w", err)
		}
		lastErr = err
	}
	return domain.CanonicalEmail{}, fmt.Errorf("find or create email %q: %w", parts.Email, lastErr)
}

// LookupEmail resolves an identity and its global suppression flag without
// creating anything.
func (r *EmailRepo) LookupEmail(ctx context.Context, email string) (domain.EmailLookup, error) {
	return lookupEmail(ctx, r.db, email)
}

func lookupEmail(ctx context.Context, q DBTX, email string) (domain.EmailLookup, error) {
	var l domain.EmailLookup
	err := q.QueryRowContext(ctx, `
		SELECT e.id,
		       EXISTS(SELECT 1 FROM suppressions s WHERE s.scope = 'global' AND s.email_id = e.id)
		FROM emails e
		WHERE e.email = $1
	`, email).Scan(&l.ID, &l.GloballySuppressed)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EmailLookup{}, nil
	}
	if err != nil {
		return domain.EmailLookup{}, fmt.Errorf("lookup email: %w", err)
	}
	l.Found = true
	return l, nil
}

func (r *EmailRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM emails WHERE email = $1)`, email,
	).Scan(&exists)
	return exists, err
}

// GetByEmail returns suppression.ErrNotFound for unknown addresses.
func (r *EmailRepo) GetByEmail(ctx context.Context, email string) (domain.CanonicalEmail, error) {
	e, err := scanEmail(r.db.QueryRowContext(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CanonicalEmail{}, suppression.ErrNotFound
	}
	if err != nil {
		return domain.CanonicalEmail{}, fmt.Errorf("get email: %w", err)
	}
	return e, nil
}

// Delete removes identities in bulk. Memberships and global entries go with
// them; audit items keep their rows with email_id cleared.
func (r *EmailRepo) Delete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM emails WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete emails: %w", err)
	}
	return res.RowsAffected()
}
