// Package export streams canonical emails out of the store, filtered by
// category, domain, validity and suppression, and renders them as CSV, plain
// text or JSON lines.
package export

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/ignite/listvault/internal/datanorm"
	"github.com/ignite/listvault/internal/domain"
)

// Filter selects the rows of an export. The zero value exports everything,
// suppressed rows included; use DefaultFilter for the usual behaviour.
type Filter struct {
	CategoryID                int64                 `json:"category_id,omitempty"`
	Domain                    string                `json:"domain,omitempty"`
	Valid                     domain.ValidityFilter `json:"valid"`
	ExcludeGlobalSuppression  bool                  `json:"exclude_global_suppression"`
	ExcludeDomainUnsubscribes bool                  `json:"exclude_domain_unsubscribes"`
}

// DefaultFilter returns a filter over all categories that leaves out
// suppressed rows.
func DefaultFilter() Filter {
	return Filter{
		Valid:                     domain.ValidityAll,
		ExcludeGlobalSuppression:  true,
		ExcludeDomainUnsubscribes: true,
	}
}

// ParseFilter reads a filter from query parameters. It never fails:
// malformed values fall back to their defaults.
func ParseFilter(q url.Values) Filter {
	f := DefaultFilter()

	if v := q.Get("category_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			f.CategoryID = id
		}
	}
	if v := q.Get("domain"); v != "" {
		f.Domain = datanorm.NormalizeDomain(v)
	}
	switch domain.ValidityFilter(strings.ToLower(strings.TrimSpace(q.Get("valid")))) {
	case domain.ValidityValid:
		f.Valid = domain.ValidityValid
	case domain.ValidityInvalid:
		f.Valid = domain.ValidityInvalid
	}
	if v, ok := parseBool(q.Get("exclude_global_suppression")); ok {
		f.ExcludeGlobalSuppression = v
	}
	if v, ok := parseBool(q.Get("exclude_domain_unsubscribes")); ok {
		f.ExcludeDomainUnsubscribes = v
	}
	return f
}

// Values is the inverse of ParseFilter.
func (f Filter) Values() url.Values {
	q := url.Values{}
	if f.CategoryID > 0 {
		q.Set("category_id", strconv.FormatInt(f.CategoryID, 10))
	}
	if f.Domain != "" {
		q.Set("domain", f.Domain)
	}
	if f.Valid != "" && f.Valid != domain.ValidityAll {
		q.Set("valid", string(f.Valid))
	}
	q.Set("exclude_global_suppression", strconv.FormatBool(f.ExcludeGlobalSuppression))
	q.Set("exclude_domain_unsubscribes", strconv.FormatBool(f.ExcludeDomainUnsubscribes))
	return q
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}
