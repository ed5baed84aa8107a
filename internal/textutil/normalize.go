package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var featuringMarkers = []string{" feat. ", " feat ", " ft. ", " ft ", " featuring ", " with "}

// Normalize folds text into the comparison form used by every similarity
// check: diacritics stripped, case folded, "&" spelled out, apostrophes
// dropped, and all other punctuation collapsed to single spaces.
func Normalize(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	// Transformers and casers carry state and must not be shared across goroutines.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, text)
	if err != nil {
		folded = text
	}
	folded = cases.Fold().String(folded)
	folded = strings.ReplaceAll(folded, "&", " and ")

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'' || r == '’':
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// PrimaryArtist trims an artist credit to its first named artist so that
// "Delerium feat. Sarah McLachlan" and "Delerium, Tiësto" compare equal.
func PrimaryArtist(artist string) string {
	s := strings.TrimSpace(artist)
	for _, sep := range []string{",", ";", " / "} {
		if idx := strings.Index(s, sep); idx > 0 {
			s = strings.TrimSpace(s[:idx])
		}
	}
	lower := strings.ToLower(s)
	for _, marker := range featuringMarkers {
		if idx := strings.Index(lower, marker); idx > 0 {
			s = strings.TrimSpace(s[:idx])
			lower = strings.ToLower(s)
		}
	}
	return s
}

// TitleCase renders parsed free text for display.
func TitleCase(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}
	return cases.Title(language.Und).String(text)
}
