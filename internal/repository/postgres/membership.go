package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/listvault/internal/domain"
)

// MembershipRepo manages category_emails.
type MembershipRepo struct{ db DBTX }

// NewMembershipRepo creates a Postgres-backed membership repository.
func NewMembershipRepo(db DBTX) *MembershipRepo { return &MembershipRepo{db: db} }

// Attach inserts the membership or bumps times_added in one statement. The
// conflict path takes the row lock, so concurrent attaches serialize and
// no increment is lost. xmax is 0 only on a freshly inserted tuple.
func (r *MembershipRepo) Attach(ctx context.Context, categoryID, emailID int64) (domain.AttachOutcome, int, error) {
	return attach(ctx, r.db, categoryID, emailID)
}

func attach(ctx context.Context, q DBTX, categoryID, emailID int64) (domain.AttachOutcome, int, error) {
	var (
		inserted bool
		times    int
	)
	err := q.QueryRowContext(ctx, `
		INSERT INTO category_emails (category_id, email_id)
		VALUES ($1, $2)
		ON CONFLICT (category_id, email_id) DO UPDATE
		SET times_added = category_emails.times_added + 1,
		    last_added_at = NOW()
		RETURNING (xmax = 0), times_added
	`, categoryID, emailID).Scan(&inserted, &times)
	if err != nil {
		return "", 0, fmt.Errorf("attach email %d to category %d: %w", emailID, categoryID, err)
	}
	if inserted {
		return domain.AttachInserted, times, nil
	}
	return domain.AttachDuplicate, times, nil
}

func (r *MembershipRepo) Count(ctx context.Context, categoryID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM category_emails WHERE category_id = $1`, categoryID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

func (r *MembershipRepo) Get(ctx context.Context, categoryID, emailID int64) (*domain.Membership, error) {
	m := &domain.Membership{}
	err := r.db.QueryRowContext(ctx, `
		SELECT category_id, email_id, times_added, first_added_at, last_added_at
		FROM category_emails
		WHERE category_id = $1 AND email_id = $2
	`, categoryID, emailID).Scan(&m.CategoryID, &m.EmailID, &m.TimesAdded, &m.FirstAddedAt, &m.LastAddedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Detach removes the given emails from a category.
func (r *MembershipRepo) Detach(ctx context.Context, categoryID int64, emailIDs []int64) (int64, error) {
	if len(emailIDs) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM category_emails WHERE category_id = $1 AND email_id = ANY($2)`,
		categoryID, pq.Array(emailIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("detach emails: %w", err)
	}
	return res.RowsAffected()
}
