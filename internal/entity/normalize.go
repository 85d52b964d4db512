package entity

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	nonSlugRunes = regexp.MustCompile(`[^a-z0-9]+`)
	nonNameRunes = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// ligatures that NFD does not decompose.
var ligatureReplacer = strings.NewReplacer(
	"æ", "ae", "Æ", "Ae",
	"œ", "oe", "Œ", "Oe",
	"ß", "ss",
	"ø", "o", "Ø", "O",
	"đ", "d", "Đ", "D",
	"ł", "l", "Ł", "L",
	"þ", "th", "Þ", "Th",
	"ð", "d", "Ð", "D",
)

// Fold strips diacritics: "Ōkuninushi" becomes "Okuninushi", "Óðinn"
// becomes "Odinn".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return ligatureReplacer.Replace(out)
}

// Slugify converts a display name to a document id.
func Slugify(s string) string {
	s = strings.ToLower(Fold(s))
	s = nonSlugRunes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// IsSlug reports whether s is already a valid document id.
func IsSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// NormalizeName returns the comparison form of a name: folded, lowercase,
// punctuation collapsed to single spaces.
func NormalizeName(s string) string {
	s = strings.ToLower(Fold(s))
	s = nonNameRunes.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// TitleCase renders a slug such as "ancient-egyptian" as "Ancient Egyptian".
// Casers are stateful, so each call builds its own.
func TitleCase(slug string) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(slug, "-", " "))
}
