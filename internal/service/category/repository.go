package category

import (
	"context"

	"github.com/ignite/listvault/internal/domain"
)

// Repository defines the data access contract for categories.
type Repository interface {
	// Create inserts c and fills in ID and CreatedAt. Returns ErrExists on a
	// name or slug collision.
	Create(ctx context.Context, c *domain.Category) error

	// Get returns a category by id or ErrNotFound.
	Get(ctx context.Context, id int64) (*domain.Category, error)

	// GetBySlug returns a category by slug or ErrNotFound.
	GetBySlug(ctx context.Context, slug string) (*domain.Category, error)

	// List returns all categories ordered by name.
	List(ctx context.Context) ([]domain.Category, error)

	// MemberCount returns the number of emails attached to a category.
	MemberCount(ctx context.Context, id int64) (int, error)
}
