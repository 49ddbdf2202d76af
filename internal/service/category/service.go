// Package category manages the named buckets emails are imported into.
package category

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ignite/listvault/internal/datanorm"
	"github.com/ignite/listvault/internal/domain"
)

// Service implements category business logic.
type Service struct {
	repo Repository
}

// NewService creates a category service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create adds a category. The slug is derived from the name.
func (s *Service) Create(ctx context.Context, name, notes string) (*domain.Category, error) {
	name = datanorm.CategoryName(name)
	slug := datanorm.Slugify(name)
	if name == "" || slug == "" {
		return nil, ErrNameRequired
	}
	c := &domain.Category{Name: name, Slug: slug, Notes: strings.TrimSpace(notes)}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns a category by id.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Category, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Resolve finds a category by numeric id or by slug, whichever ref is.
func (s *Service) Resolve(ctx context.Context, ref string) (*domain.Category, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.Get(ctx, id)
	}
	slug := datanorm.Slugify(ref)
	if slug == "" {
		return nil, ErrNotFound
	}
	return s.repo.GetBySlug(ctx, slug)
}

// List returns all categories.
func (s *Service) List(ctx context.Context) ([]domain.Category, error) {
	return s.repo.List(ctx)
}

// Summary is a category with its member count.
type Summary struct {
	domain.Category
	Members int `json:"members"`
}

// Summarize returns a category together with its member count.
func (s *Service) Summarize(ctx context.Context, id int64) (*Summary, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := s.repo.MemberCount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	return &Summary{Category: *c, Members: n}, nil
}
