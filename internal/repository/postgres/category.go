package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/service/category"
)

// CategoryRepo implements category.Repository against PostgreSQL.
type CategoryRepo struct{ db DBTX }

// NewCategoryRepo creates a Postgres-backed category repository.
func NewCategoryRepo(db DBTX) *CategoryRepo { return &CategoryRepo{db: db} }

func (r *CategoryRepo) Create(ctx context.Context, c *domain.Category) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, slug, notes)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, c.Name, c.Slug, c.Notes).Scan(&c.ID, &c.CreatedAt)
	if isUniqueViolation(err) {
		return category.ErrExists
	}
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

func (r *CategoryRepo) Get(ctx context.Context, id int64) (*domain.Category, error) {
	return r.getBy(ctx, `id = $1`, id)
}

func (r *CategoryRepo) GetBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	return r.getBy(ctx, `slug = $1`, slug)
}

func (r *CategoryRepo) getBy(ctx context.Context, where string, arg interface{}) (*domain.Category, error) {
	c := &domain.Category{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, slug, notes, created_at FROM categories WHERE `+where, arg,
	).Scan(&c.ID, &c.Name, &c.Slug, &c.Notes, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, category.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r *CategoryRepo) List(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, slug, notes, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Notes, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CategoryRepo) MemberCount(ctx context.Context, id int64) (int, error) {
	return NewMembershipRepo(r.db).Count(ctx, id)
}
