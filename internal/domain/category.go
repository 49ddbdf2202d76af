package domain

import "time"

// Category is a named bucket of emails. Name and Slug are both unique.
type Category struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	Notes     string    `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Membership is the join row between a category and a canonical email.
// Exactly one exists per (CategoryID, EmailID); TimesAdded counts every
// submission of the email into the category.
type Membership struct {
	CategoryID   int64     `json:"category_id" db:"category_id"`
	EmailID      int64     `json:"email_id" db:"email_id"`
	TimesAdded   int       `json:"times_added" db:"times_added"`
	FirstAddedAt time.Time `json:"first_added_at" db:"first_added_at"`
	LastAddedAt  time.Time `json:"last_added_at" db:"last_added_at"`
}

// AttachOutcome reports whether attach created the membership or bumped an
// existing one.
type AttachOutcome string

const (
	AttachInserted  AttachOutcome = "inserted"
	AttachDuplicate AttachOutcome = "duplicate"
)
