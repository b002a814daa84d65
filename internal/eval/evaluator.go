package eval

import (
	"context"
	"log/slog"

	"github.com/hayakawa-lab/jprag/internal/errors"
)

// SearchFunc runs one query and returns ranked chunk IDs, best first.
// Usually an adapter over the search engine; tests inject fixed rankings.
type SearchFunc func(ctx context.Context, query string) ([]string, error)

// Report is the full outcome of one evaluation run.
type Report struct {
	Summary  Summary        `json:"summary"`
	PerQuery []QueryMetrics `json:"per_query"`
}

// Evaluator scores a retrieval configuration against a gold set.
type Evaluator struct {
	search SearchFunc
	k      int
	logger *slog.Logger
}

// NewEvaluator creates an evaluator with cutoff k.
func NewEvaluator(search SearchFunc, k int, logger *slog.Logger) (*Evaluator, error) {
	if search == nil {
		return nil, errors.ConfigErrorf("evaluator requires a search function")
	}
	if k < 1 {
		return nil, errors.ConfigErrorf("evaluation cutoff k must be >= 1, got %d", k)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{search: search, k: k, logger: logger}, nil
}

// Evaluate scores every gold query. Queries without any gold target are
// excluded from aggregation and counted as malformed; they never drag the
// averages down. A search failure aborts the run, a higher layer decides
// whether that fails just one sweep configuration or the whole command.
func (e *Evaluator) Evaluate(ctx context.Context, golds []*GoldQuery) (*Report, error) {
	if len(golds) == 0 {
		return nil, errors.Newf(errors.ErrCodeMalformedGold, "gold set is empty")
	}

	perQuery := make([]QueryMetrics, 0, len(golds))
	malformed := 0
	for _, gold := range golds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !gold.HasGold() {
			malformed++
			e.logger.Warn("excluding gold query without targets", "query_id", gold.ID)
			continue
		}

		retrieved, err := e.search(ctx, gold.Question)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSearchFailed, err).
				WithDetail("query_id", gold.ID)
		}

		perQuery = append(perQuery, scoreQuery(retrieved, gold, e.k, MatcherFor(gold)))
	}

	if len(perQuery) == 0 {
		return nil, errors.Newf(errors.ErrCodeMalformedGold,
			"all %d gold queries lack targets, nothing to evaluate", len(golds))
	}

	report := &Report{
		Summary:  summarize(e.k, perQuery, malformed),
		PerQuery: perQuery,
	}
	e.logger.Info("evaluation complete",
		"evaluated", report.Summary.Evaluated,
		"malformed", report.Summary.Malformed,
		"recall", report.Summary.Recall,
		"mrr", report.Summary.MRR,
		"ndcg", report.Summary.NDCG)
	return report, nil
}
