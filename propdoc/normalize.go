package propdoc

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// tatweel is the Arabic Tatweel character (ARABIC TATWEEL, U+0640), used as
// a purely cosmetic elongation mark that normalization must strip.
const tatweel = 'ـ'

// diacriticStripper decomposes to NFD and removes combining marks, so
// precomposed letters like "é" normalize the same as their base letter.
var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases name, strips diacritics, drops the Arabic tatweel
// character, and collapses any run of non-letter/non-digit separators into
// a single space, per spec §4.4.
func Normalize(name string) string {
	stripped, _, err := transform.String(diacriticStripper, name)
	if err != nil {
		stripped = name
	}

	var b strings.Builder
	b.Grow(len(stripped))
	lastWasSpace := false
	for _, r := range strings.ToLower(stripped) {
		switch {
		case r == tatweel:
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastWasSpace = false
		default:
			if !lastWasSpace {
				b.WriteRune(' ')
				lastWasSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokenize splits a normalized string on whitespace for manual text
// matching (spec §4.6 TextSearch fallback).
func Tokenize(normalized string) []string {
	return strings.Fields(normalized)
}
