// Package suppression implements administration of the suppression list.
//
// Two scopes exist. Global entries block one canonical email and are keyed by
// its identity, so suppressing an address that has never been imported first
// creates its CanonicalEmail record. Domain entries block every address at a
// bare domain and need no identity.
//
// The import pipeline only reads suppression state (see internal/suppression);
// every write goes through this service. Edits apply to batches that start
// afterwards.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package suppression
