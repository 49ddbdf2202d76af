package suppression

import (
	"context"
	"fmt"

	"github.com/ignite/listvault/internal/domain"
)

// DomainSource loads the current domain-scope suppression entries.
type DomainSource interface {
	ListSuppressedDomains(ctx context.Context) ([]string, error)
}

// IdentityLookup resolves a canonical email to its identity and global
// suppression state without creating anything. The import pipeline passes
// its transaction here so the lookup sees the batch's own writes.
type IdentityLookup interface {
	LookupEmail(ctx context.Context, email string) (domain.EmailLookup, error)
}

// Decision is the outcome of a suppression check. Lookup is populated
// whenever the identity lookup ran, so callers can reuse it.
type Decision struct {
	Suppressed bool
	Scope      domain.SuppressionScope
	Lookup     domain.EmailLookup
	LookedUp   bool
}

// Index is the per-batch suppression view. Domain entries are frozen at
// construction; entries added afterwards apply to later batches only.
type Index struct {
	domains *DomainSet
}

// NewIndex snapshots the domain-scope entries from src.
func NewIndex(ctx context.Context, src DomainSource) (*Index, error) {
	domains, err := src.ListSuppressedDomains(ctx)
	if err != nil {
		return nil, fmt.Errorf("load suppressed domains: %w", err)
	}
	return &Index{domains: NewDomainSet(domains)}, nil
}

// NewIndexFromDomains builds an index over a fixed domain list.
func NewIndexFromDomains(domains []string) *Index {
	return &Index{domains: NewDomainSet(domains)}
}

// DomainSuppressed is the cheap check against the preloaded set.
func (ix *Index) DomainSuppressed(d string) bool {
	return ix.domains.Contains(d)
}

// DomainCount returns how many domains the snapshot holds.
func (ix *Index) DomainCount() int {
	return ix.domains.Len()
}

// Check decides suppression for one normalized email. The domain set is
// consulted first and needs no store access. The global check can only match
// an email that already has an identity: a never-seen address is not
// globally suppressed on its first import, because global entries are keyed
// by identity and are created against existing records.
func (ix *Index) Check(ctx context.Context, lookup IdentityLookup, email, d string) (Decision, error) {
	if ix.DomainSuppressed(d) {
		return Decision{Suppressed: true, Scope: domain.ScopeDomain}, nil
	}

	res, err := lookup.LookupEmail(ctx, email)
	if err != nil {
		return Decision{}, fmt.Errorf("lookup %s: %w", d, err)
	}
	dec := Decision{Lookup: res, LookedUp: true}
	if res.Found && res.GloballySuppressed {
		dec.Suppressed = true
		dec.Scope = domain.ScopeGlobal
	}
	return dec, nil
}

// IsSuppressed is Check reduced to a boolean.
func (ix *Index) IsSuppressed(ctx context.Context, lookup IdentityLookup, email, d string) (bool, error) {
	dec, err := ix.Check(ctx, lookup, email, d)
	if err != nil {
		return false, err
	}
	return dec.Suppressed, nil
}
