package domain

import "time"

// SuppressionScope selects what a suppression entry is keyed by.
type SuppressionScope string

const (
	// ScopeGlobal entries are keyed by canonical email identity.
	ScopeGlobal SuppressionScope = "global"
	// ScopeDomain entries are keyed by a bare domain string.
	ScopeDomain SuppressionScope = "domain"
)

// Valid reports whether s is a known scope.
func (s SuppressionScope) Valid() bool {
	return s == ScopeGlobal || s == ScopeDomain
}

// SuppressionReason enumerates why an entry was added.
type SuppressionReason string

const (
	ReasonManual      SuppressionReason = "manual"
	ReasonUnsubscribe SuppressionReason = "unsubscribe"
	ReasonComplaint   SuppressionReason = "spam_complaint"
	ReasonHardBounce  SuppressionReason = "hard_bounce"
)

// Known reports whether r is one of the defined reasons. The empty reason
// is accepted and replaced by a per-scope default.
func (r SuppressionReason) Known() bool {
	switch r {
	case "", ReasonManual, ReasonUnsubscribe, ReasonComplaint, ReasonHardBounce:
		return true
	}
	return false
}

// SuppressionEntry is a standing rule that blocks an email (global scope) or
// every email at a domain (domain scope). EmailID is set only for global
// entries, Domain only for domain entries.
type SuppressionEntry struct {
	ID        int64             `json:"id" db:"id"`
	Scope     SuppressionScope  `json:"scope" db:"scope"`
	EmailID   *int64            `json:"email_id,omitempty" db:"email_id"`
	Email     string            `json:"email,omitempty" db:"-"`
	Domain    string            `json:"domain,omitempty" db:"domain"`
	Reason    SuppressionReason `json:"reason" db:"reason"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}
