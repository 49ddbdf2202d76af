package export

import (
	"fmt"
	"strings"

	"github.com/ignite/listvault/internal/domain"
)

// QueryBuilder builds the keyset-paged export query for a Filter.
// It is not safe for concurrent use; every Build call resets its state.
type QueryBuilder struct {
	filter     Filter
	args       []interface{}
	argCounter int
}

// NewQueryBuilder creates a QueryBuilder for f.
func NewQueryBuilder(f Filter) *QueryBuilder {
	return &QueryBuilder{
		filter:     f,
		args:       make([]interface{}, 0),
		argCounter: 1,
	}
}

// nextArg returns the next argument placeholder
func (qb *QueryBuilder) nextArg(value interface{}) string {
	qb.args = append(qb.args, value)
	placeholder := fmt.Sprintf("$%d", qb.argCounter)
	qb.argCounter++
	return placeholder
}

func (qb *QueryBuilder) reset() {
	qb.args = make([]interface{}, 0)
	qb.argCounter = 1
}

func (qb *QueryBuilder) whereConditions() []string {
	f := qb.filter
	whereConditions := []string{"1=1"}

	if f.CategoryID > 0 {
		whereConditions = append(whereConditions, fmt.Sprintf(`EXISTS (
				SELECT 1 FROM category_emails ce
				WHERE ce.email_id = e.id AND ce.category_id = %s
			)`, qb.nextArg(f.CategoryID)))
	}

	if f.Domain != "" {
		whereConditions = append(whereConditions, fmt.Sprintf("e.domain = %s", qb.nextArg(strings.ToLower(f.Domain))))
	}

	switch f.Valid {
	case domain.ValidityValid:
		whereConditions = append(whereConditions, "e.is_valid = TRUE")
	case domain.ValidityInvalid:
		whereConditions = append(whereConditions, "e.is_valid = FALSE")
	}

	if f.ExcludeGlobalSuppression {
		whereConditions = append(whereConditions, `NOT EXISTS (
				SELECT 1 FROM suppressions gs
				WHERE gs.scope = 'global' AND gs.email_id = e.id
			)`)
	}

	if f.ExcludeDomainUnsubscribes {
		whereConditions = append(whereConditions, `NOT EXISTS (
				SELECT 1 FROM suppressions ds
				WHERE ds.scope = 'domain' AND ds.domain = e.domain
			)`)
	}

	return whereConditions
}

// Build returns one page of at most limit rows with ids below afterID,
// newest first. An afterID of 0 starts from the top.
func (qb *QueryBuilder) Build(afterID int64, limit int) (string, []interface{}) {
	qb.reset()

	whereConditions := qb.whereConditions()
	if afterID > 0 {
		whereConditions = append(whereConditions, fmt.Sprintf("e.id < %s", qb.nextArg(afterID)))
	}

	query := `
		SELECT e.id, e.email, e.domain, e.is_valid, COALESCE(e.invalid_reason, '')
		FROM emails e`
	query += "\nWHERE " + strings.Join(whereConditions, "\n  AND ")
	query += "\nORDER BY e.id DESC"
	if limit > 0 {
		query += "\nLIMIT " + qb.nextArg(limit)
	}

	return query, qb.args
}

// BuildCount builds a COUNT query over the same filter.
func (qb *QueryBuilder) BuildCount() (string, []interface{}) {
	qb.reset()

	query := "SELECT COUNT(*) FROM emails e"
	query += "\nWHERE " + strings.Join(qb.whereConditions(), "\n  AND ")

	return query, qb.args
}
