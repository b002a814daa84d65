// Package textnorm normalizes Japanese technical text for indexing and
// querying. The same transformation is applied to chunk text and incoming
// queries; any asymmetry between the two paths is a correctness bug.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies the standard normalization for Japanese technical
// documents: Unicode NFKC (full-width alphanumerics to half-width, circled
// numbers to ASCII digits) followed by whitespace collapsing. Kanji and
// kana pass through unchanged; ASCII letters are lowercased so that unit
// spellings like "KV" and "kV" index identically.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	s := norm.NFKC.String(text)
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		// U+3000 ideographic space is already mapped to U+0020 by NFKC.
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			space = false
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}

	return strings.TrimSpace(b.String())
}

// NormalizeQuery normalizes a query with the same rules as indexed text.
// Kept as a named entry point so index-time and query-time call sites stay
// symmetric and greppable.
func NormalizeQuery(text string) string {
	return Normalize(text)
}
