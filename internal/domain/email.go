package domain

import "time"

// CanonicalEmail is the single deduplicated identity for an email address.
// Email is unique across the whole system and never changes once created.
type CanonicalEmail struct {
	ID            int64     `json:"id" db:"id"`
	Email         string    `json:"email" db:"email"`
	LocalPart     string    `json:"local_part" db:"local_part"`
	Domain        string    `json:"domain" db:"domain"`
	IsValid       bool      `json:"is_valid" db:"is_valid"`
	InvalidReason string    `json:"invalid_reason,omitempty" db:"invalid_reason"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// EmailParts is a normalized, validated address split into its components.
// It is the input to find-or-create.
type EmailParts struct {
	Email     string
	LocalPart string
	Domain    string
}

// EmailLookup is the result of resolving a canonical string against the
// store without creating anything.
type EmailLookup struct {
	ID                 int64
	Found              bool
	GloballySuppressed bool
}
