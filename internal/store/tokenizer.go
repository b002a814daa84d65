package store

import (
	"strings"

	"github.com/hayakawa-lab/jprag/internal/textnorm"
)

// DefaultNgramSize is the default character n-gram length. Trigrams work
// well for Japanese text without a morphological analyzer.
const DefaultNgramSize = 3

// TokenizeNgrams splits text into overlapping character n-grams with step 1.
// Spaces are removed first so that n-grams never straddle a token boundary
// artifact left by normalization. No deduplication: term frequency matters
// for BM25. Text shorter than n yields a single token equal to the whole
// text; empty text yields nil.
//
// The same function is applied to indexed chunk text and to queries.
func TokenizeNgrams(text string, n int) []string {
	if n < 1 {
		return nil
	}

	s := strings.ReplaceAll(textnorm.Normalize(text), " ", "")
	if s == "" {
		return nil
	}

	runes := []rune(s)
	if len(runes) <= n {
		return []string{string(runes)}
	}

	tokens := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		tokens = append(tokens, string(runes[i:i+n]))
	}
	return tokens
}
