package datanorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CategoryName tidies an admin-entered category name: inner whitespace is
// collapsed and each word is title-cased.
func CategoryName(raw string) string {
	return cases.Title(language.English, cases.NoLower).String(strings.Join(strings.Fields(raw), " "))
}

// Slugify derives a URL-safe slug from a category name: case-folded letters
// and digits, with every other run of characters collapsed to one dash.
func Slugify(name string) string {
	folded := cases.Fold().String(strings.TrimSpace(name))
	var b strings.Builder
	dash := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
