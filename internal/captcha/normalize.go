package captcha

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// homoglyphs collapses characters OCR commonly confuses onto one canonical digit.
// Applied after case folding, so only lower-case forms are listed.
var homoglyphs = strings.NewReplacer(
	"o", "0", "q", "0",
	"i", "1", "l", "1", "|", "1",
	"z", "2",
	"s", "5",
	"b", "8",
)

// Normalize canonicalizes recognized text so that tiles and target compare equal
// when they show the same glyphs. Compatibility forms are folded (NFKC), then
// case, then whitespace is dropped and confusable letters collapse to digits.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = cases.Fold().String(text)
	text = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	return homoglyphs.Replace(text)
}
