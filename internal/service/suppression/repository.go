package suppression

import (
	"context"

	"github.com/ignite/listvault/internal/domain"
)

// Repository defines the data access contract for suppression entries.
type Repository interface {
	// FindOrCreateEmail resolves the canonical identity for an address,
	// creating it if needed. Global entries hang off this identity.
	FindOrCreateEmail(ctx context.Context, parts domain.EmailParts) (domain.CanonicalEmail, error)

	// FindEmail returns the identity for an address or ErrNotFound.
	FindEmail(ctx context.Context, email string) (domain.CanonicalEmail, error)

	// SuppressEmail adds a global entry. Idempotent: returns false if the
	// entry already existed.
	SuppressEmail(ctx context.Context, emailID int64, reason domain.SuppressionReason) (bool, error)

	// SuppressDomain adds a domain entry. Idempotent like SuppressEmail.
	SuppressDomain(ctx context.Context, d string, reason domain.SuppressionReason) (bool, error)

	// RemoveEmail deletes the global entry for an identity. The identity
	// itself is kept. Returns ErrNotFound if there was no entry.
	RemoveEmail(ctx context.Context, emailID int64) error

	// RemoveDomain deletes a domain entry. Returns ErrNotFound if absent.
	RemoveDomain(ctx context.Context, d string) error

	// List returns entries matching the filter and the total match count.
	List(ctx context.Context, filter ListFilter) ([]domain.SuppressionEntry, int, error)

	// CountByScope returns the number of entries per scope.
	CountByScope(ctx context.Context) (map[domain.SuppressionScope]int, error)
}

// ListFilter controls pagination and filtering for suppression lists.
type ListFilter struct {
	Scope  domain.SuppressionScope
	Search string
	Limit  int
	Offset int
}
