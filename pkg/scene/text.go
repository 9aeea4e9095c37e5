package scene

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeID trims and lower-cases a concept id.
func NormalizeID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Transliterate strips combining marks, so "Zürich" becomes "Zurich".
func Transliterate(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// PlaceID builds the composite id of a city node.
func PlaceID(city, country string) string {
	return NormalizeID(Transliterate(city)) + "|" + NormalizeID(Transliterate(country))
}
