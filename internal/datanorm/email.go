// Package datanorm turns raw import input into canonical email strings and
// classifies them as valid or invalid.
package datanorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Rejection reasons recorded on invalid rows.
const (
	ReasonEmpty         = "Empty"
	ReasonInvalidFormat = "Invalid format"
	ReasonInvalidParts  = "Invalid parts"
)

// maxEmailLength is the RFC 5321 path limit.
const maxEmailLength = 254

// emailPattern is a dot-atom local part, an "@", and a dotted domain whose
// labels do not start or end with a dash and whose TLD is alphabetic.
// Unicode letters are accepted on both sides since input is case-folded, not
// ASCII-only.
var emailPattern = regexp.MustCompile(
	`^[\p{L}\p{N}!#$%&'*+/=?^_{|}~-]+(\.[\p{L}\p{N}!#$%&'*+/=?^_{|}~-]+)*` +
		`@([\p{L}\p{N}]([\p{L}\p{N}-]*[\p{L}\p{N}])?\.)+\p{L}{2,}$`)

// NormalizeEmail strips surrounding whitespace, control characters and the
// list separators "," and ";" from raw, then applies a Unicode case fold.
// It returns "" when nothing is left.
func NormalizeEmail(raw string) string {
	s := strings.TrimFunc(raw, isSeparator)
	if s == "" {
		return ""
	}
	// cases.Caser carries state, so one per call.
	return cases.Fold().String(s)
}

func isSeparator(r rune) bool {
	return r == ',' || r == ';' || unicode.IsSpace(r) || unicode.IsControl(r) || r == '\uFEFF'
}

// Validation is the verdict on a normalized candidate.
type Validation struct {
	Valid  bool
	Reason string
}

// ValidateEmail applies, in order: empty check, grammar check ("Invalid
// format"), then the split-on-first-@ part check ("Invalid parts"). The
// grammar already requires both parts, so "@b.com" is "Invalid format".
func ValidateEmail(s string) Validation {
	if s == "" {
		return Validation{Reason: ReasonEmpty}
	}
	if len(s) > maxEmailLength || !emailPattern.MatchString(s) {
		return Validation{Reason: ReasonInvalidFormat}
	}
	if _, _, ok := CheckParts(s); !ok {
		return Validation{Reason: ReasonInvalidParts}
	}
	return Validation{Valid: true}
}

// CheckParts splits s on the first "@" and reports whether both the local
// part and the domain are non-empty after trimming.
func CheckParts(s string) (local, domain string, ok bool) {
	at := strings.IndexByte(s, '@')
	if at < 0 {
		return "", "", false
	}
	local = strings.TrimSpace(s[:at])
	domain = strings.TrimSpace(s[at+1:])
	return local, domain, local != "" && domain != ""
}

// DomainOf returns everything after the first "@", or "" if there is none.
func DomainOf(s string) string {
	_, domain, _ := CheckParts(s)
	return domain
}

// NormalizeDomain canonicalizes a bare domain the same way emails are, and
// drops a leading "@" so "@Example.com" and "example.com" match.
func NormalizeDomain(raw string) string {
	d := NormalizeEmail(raw)
	return strings.TrimPrefix(d, "@")
}
