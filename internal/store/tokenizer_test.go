package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeNgrams(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want []string
	}{
		{
			name: "japanese trigrams",
			text: "トランス",
			n:    3,
			want: []string{"トラン", "ランス"},
		},
		{
			name: "text shorter than n yields whole text",
			text: "変圧",
			n:    3,
			want: []string{"変圧"},
		},
		{
			name: "text exactly n yields single token",
			text: "変圧器",
			n:    3,
			want: []string{"変圧器"},
		},
		{
			name: "empty text",
			text: "",
			n:    3,
			want: nil,
		},
		{
			name: "whitespace only",
			text: "  　 ",
			n:    3,
			want: nil,
		},
		{
			name: "invalid n",
			text: "トランス",
			n:    0,
			want: nil,
		},
		{
			name: "fullwidth latin is normalized and lowercased",
			text: "ＡＢＣＤ",
			n:    3,
			want: []string{"abc", "bcd"},
		},
		{
			name: "halfwidth katakana is widened",
			text: "ﾄﾗﾝｽ",
			n:    3,
			want: []string{"トラン", "ランス"},
		},
		{
			name: "spaces removed before windowing",
			text: "変圧 器の",
			n:    3,
			want: []string{"変圧器", "圧器の"},
		},
		{
			name: "unigrams",
			text: "損失",
			n:    1,
			want: []string{"損", "失"},
		},
		{
			name: "bigrams keep duplicates",
			text: "ああああ",
			n:    2,
			want: []string{"ああ", "ああ", "ああ"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TokenizeNgrams(tt.text, tt.n))
		})
	}
}

// Queries and chunk text must pass through the identical pipeline, otherwise
// surface-form differences (width, case) silently break matching.
func TestTokenizeNgramsSymmetry(t *testing.T) {
	doc := "変圧器の鉄損はＢ級絶縁で測定する"
	query := "変圧器の鉄損はB級絶縁で測定する"

	assert.Equal(t, TokenizeNgrams(doc, 3), TokenizeNgrams(query, 3))
}
