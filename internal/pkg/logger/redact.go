package logger

import "strings"

// RedactEmail masks an email address for safe logging, keeping the domain
// and at most the first two characters of the local part:
//
//	"john.doe@example.com" → "jo***@example.com"
//	"ab@example.com"       → "***@example.com"
//	"élodie@exemple.fr"    → "él***@exemple.fr"
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	runes := []rune(local)
	if len(runes) > 2 {
		return string(runes[:2]) + "***@" + domain
	}
	return "***@" + domain
}
