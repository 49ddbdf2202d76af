package datanorm

import "strings"

// emailColumnAliases are lowercase header names that identify the email
// column of an uploaded CSV.
var emailColumnAliases = map[string]bool{
	"email":          true,
	"email_address":  true,
	"emailaddress":   true,
	"e-mail":         true,
	"mail":           true,
	"plaintextemail": true,
	"address":        true,
	"rcpt":           true,
}

// ColumnMapping is the resolved location of the email column in a CSV.
type ColumnMapping struct {
	EmailIdx  int
	HasHeader bool
}

// MapColumns looks for the email column in a header row. It returns nil if
// the row does not look like a header.
func MapColumns(header []string) *ColumnMapping {
	for i, h := range header {
		normalized := strings.Trim(strings.ToLower(strings.TrimSpace(h)), "\"'")
		if emailColumnAliases[normalized] {
			return &ColumnMapping{EmailIdx: i, HasHeader: true}
		}
	}
	// Fallback: any header containing "email" that is not itself an address
	for i, h := range header {
		lower := strings.ToLower(h)
		if strings.Contains(lower, "email") && !LooksLikeEmail(h) {
			return &ColumnMapping{EmailIdx: i, HasHeader: true}
		}
	}
	return nil
}

// LooksLikeEmail returns true if the value appears to be an email address.
// Used to detect headerless CSVs where the first row is data, not column names.
func LooksLikeEmail(val string) bool {
	v := strings.TrimSpace(val)
	if len(v) < 5 || len(v) > maxEmailLength {
		return false
	}
	at := strings.LastIndex(v, "@")
	if at < 1 || at >= len(v)-1 {
		return false
	}
	domain := v[at+1:]
	return strings.Contains(domain, ".") && len(domain) >= 3
}

// MapColumnsHeaderless picks the first email-shaped cell of a data row. With
// nothing email-shaped it falls back to the first column so every row still
// reaches the pipeline and gets classified.
func MapColumnsHeaderless(firstRow []string) *ColumnMapping {
	for i, val := range firstRow {
		if LooksLikeEmail(val) {
			return &ColumnMapping{EmailIdx: i}
		}
	}
	return &ColumnMapping{EmailIdx: 0}
}
