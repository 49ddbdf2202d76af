package suppression

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/listvault/internal/datanorm"
	"github.com/ignite/listvault/internal/domain"
)

// Service implements suppression business logic. It is safe for concurrent use.
type Service struct {
	repo Repository
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SuppressEmail adds a global entry for an address, creating its canonical
// identity first if it has never been seen. Idempotent.
func (s *Service) SuppressEmail(ctx context.Context, raw string, reason domain.SuppressionReason) (domain.SuppressionEntry, error) {
	email := datanorm.NormalizeEmail(raw)
	if email == "" {
		return domain.SuppressionEntry{}, ErrEmailRequired
	}
	if v := datanorm.ValidateEmail(email); !v.Valid {
		return domain.SuppressionEntry{}, fmt.Errorf("%w: %s", ErrInvalidEmail, v.Reason)
	}
	local, d, _ := datanorm.CheckParts(email)
	if reason == "" {
		reason = domain.ReasonManual
	}

	rec, err := s.repo.FindOrCreateEmail(ctx, domain.EmailParts{Email: email, LocalPart: local, Domain: d})
	if err != nil {
		return domain.SuppressionEntry{}, fmt.Errorf("resolve email: %w", err)
	}
	if _, err := s.repo.SuppressEmail(ctx, rec.ID, reason); err != nil {
		return domain.SuppressionEntry{}, fmt.Errorf("suppress email: %w", err)
	}

	id := rec.ID
	return domain.SuppressionEntry{Scope: domain.ScopeGlobal, EmailID: &id, Email: email, Reason: reason}, nil
}

// SuppressDomain adds a domain entry. "@Example.com" and "example.com" are
// the same domain. Idempotent.
func (s *Service) SuppressDomain(ctx context.Context, raw string, reason domain.SuppressionReason) (domain.SuppressionEntry, error) {
	d, err := normalizeDomain(raw)
	if err != nil {
		return domain.SuppressionEntry{}, err
	}
	if reason == "" {
		reason = domain.ReasonUnsubscribe
	}
	if _, err := s.repo.SuppressDomain(ctx, d, reason); err != nil {
		return domain.SuppressionEntry{}, fmt.Errorf("suppress domain: %w", err)
	}
	return domain.SuppressionEntry{Scope: domain.ScopeDomain, Domain: d, Reason: reason}, nil
}

// Remove deletes an entry of the given scope. For global scope value is an
// email address; its canonical record is never deleted.
func (s *Service) Remove(ctx context.Context, scope domain.SuppressionScope, value string) error {
	switch scope {
	case domain.ScopeGlobal:
		email := datanorm.NormalizeEmail(value)
		if email == "" {
			return ErrEmailRequired
		}
		rec, err := s.repo.FindEmail(ctx, email)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("resolve email: %w", err)
		}
		return s.repo.RemoveEmail(ctx, rec.ID)
	case domain.ScopeDomain:
		d, err := normalizeDomain(value)
		if err != nil {
			return err
		}
		return s.repo.RemoveDomain(ctx, d)
	default:
		return ErrInvalidScope
	}
}

// List returns suppression entries matching the given filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.SuppressionEntry, int, error) {
	if filter.Scope != "" && !filter.Scope.Valid() {
		return nil, 0, ErrInvalidScope
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

// Stats returns aggregate counts grouped by scope.
type Stats struct {
	Total   int `json:"total"`
	Global  int `json:"global"`
	Domains int `json:"domains"`
}

// GetStats computes aggregate suppression statistics.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := s.repo.CountByScope(ctx)
	if err != nil {
		return nil, fmt.Errorf("count suppressions: %w", err)
	}
	st := &Stats{Global: counts[domain.ScopeGlobal], Domains: counts[domain.ScopeDomain]}
	st.Total = st.Global + st.Domains
	return st, nil
}

// normalizeDomain canonicalizes a bare domain and checks it could appear
// after the "@" of a valid address.
func normalizeDomain(raw string) (string, error) {
	d := datanorm.NormalizeDomain(raw)
	if d == "" {
		return "", ErrDomainRequired
	}
	if v := datanorm.ValidateEmail("x@" + d); !v.Valid {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, d)
	}
	return d, nil
}
