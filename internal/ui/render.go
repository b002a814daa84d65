package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-isatty"

	"github.com/hayakawa-lab/jprag/internal/eval"
	"github.com/hayakawa-lab/jprag/internal/search"
	"github.com/hayakawa-lab/jprag/internal/sweep"
)

// snippetRunes caps result text shown per hit.
const snippetRunes = 80

// Renderer writes human-readable output.
type Renderer struct {
	w      io.Writer
	styles Styles
}

// NewRenderer creates a renderer for w. Color is enabled only when w is a
// terminal and noColor is false.
func NewRenderer(w io.Writer, noColor bool) *Renderer {
	return &Renderer{w: w, styles: GetStyles(noColor || !isTerminal(w))}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SearchResults prints ranked hits with provenance and a text snippet.
func (r *Renderer) SearchResults(query string, results []*search.Result) {
	s := r.styles
	fmt.Fprintf(r.w, "%s %s\n", s.Label.Render("query:"), s.Header.Render(query))
	if len(results) == 0 {
		fmt.Fprintln(r.w, s.Dim.Render("no results"))
		return
	}

	for _, res := range results {
		loc := fmt.Sprintf("%s p.%d", res.DocID, res.Page)
		fmt.Fprintf(r.w, "%s %s %s\n",
			s.Rank.Render(fmt.Sprintf("%2d.", res.Rank)),
			s.Value.Render(loc),
			s.Dim.Render(fmt.Sprintf("(score %.4f, %s)", res.Score, res.ChunkID)))
		if res.Text != "" {
			fmt.Fprintf(r.w, "    %s\n", s.Label.Render(snippet(res.Text)))
		}
	}
}

// EvalSummary prints the aggregate metrics of one evaluation run.
func (r *Renderer) EvalSummary(sum eval.Summary) {
	s := r.styles
	fmt.Fprintln(r.w, s.Header.Render(fmt.Sprintf("evaluation @ k=%d", sum.K)))
	fmt.Fprintf(r.w, "  %s %s\n", s.Label.Render("queries: "), s.Value.Render(
		fmt.Sprintf("%d evaluated, %d malformed excluded", sum.Evaluated, sum.Malformed)))
	fmt.Fprintf(r.w, "  %s %s\n", s.Label.Render("recall:  "), s.Value.Render(fmt.Sprintf("%.4f", sum.Recall)))
	fmt.Fprintf(r.w, "  %s %s\n", s.Label.Render("hit rate:"), s.Value.Render(fmt.Sprintf("%.4f", sum.HitRate)))
	fmt.Fprintf(r.w, "  %s %s\n", s.Label.Render("mrr:     "), s.Value.Render(fmt.Sprintf("%.4f", sum.MRR)))
	fmt.Fprintf(r.w, "  %s %s\n", s.Label.Render("ndcg:    "), s.Value.Render(fmt.Sprintf("%.4f", sum.NDCG)))
}

// SweepResults prints one line per configuration plus a footer count.
func (r *Renderer) SweepResults(results []sweep.Result) {
	s := r.styles
	fmt.Fprintln(r.w, s.Header.Render("sweep results"))

	succeeded, failed := 0, 0
	for _, res := range results {
		label := res.Config.Label()
		switch res.State {
		case sweep.StateSucceeded:
			succeeded++
			metrics := ""
			if res.Summary != nil {
				metrics = fmt.Sprintf("recall=%.4f mrr=%.4f ndcg=%.4f", res.Summary.Recall, res.Summary.MRR, res.Summary.NDCG)
			}
			marker := s.Success.Render("ok  ")
			if res.Skipped {
				marker = s.Dim.Render("skip")
			}
			fmt.Fprintf(r.w, "  %s %s %s\n", marker, s.Value.Render(label), s.Label.Render(metrics))
		case sweep.StateFailed:
			failed++
			detail := res.Message
			if res.Stage != "" {
				detail = res.Stage + ": " + detail
			}
			fmt.Fprintf(r.w, "  %s %s %s\n",
				s.Error.Render("fail"), s.Value.Render(label), s.Warning.Render(detail))
		}
	}

	fmt.Fprintf(r.w, "%s\n", s.Label.Render(
		fmt.Sprintf("%d succeeded, %d failed", succeeded, failed)))
}

func snippet(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	if utf8.RuneCountInString(text) <= snippetRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:snippetRunes]) + "…"
}
