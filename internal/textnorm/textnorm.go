// Package textnorm holds the string normalization rules shared by name
// matching, header detection and slug generation.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var lower = cases.Lower(language.Und)

// Name normalizes an entity name for exact-match grouping: NFC, lower case, trimmed.
// Inner whitespace is left alone so "Red  Wine" and "Red Wine" stay distinct.
func Name(s string) string {
	return strings.TrimSpace(lower.String(norm.NFC.String(s)))
}

// Header normalizes a column header for substring pattern matching.
// Any run of separators or punctuation collapses to one space.
func Header(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = lower.String(norm.NFKC.String(s))

	var b strings.Builder
	space := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// Key converts a header into a snake_case column key ("Name Primary" -> "name_primary").
func Key(s string) string {
	return strings.ReplaceAll(Header(s), " ", "_")
}

// Slug builds a URL-safe identifier: diacritics removed, lower case, dash separated.
func Slug(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ReplaceAll(Header(folded), " ", "-")
}
