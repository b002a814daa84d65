package eval

import "math"

// QueryMetrics are the per-query scores at a fixed cutoff k.
type QueryMetrics struct {
	QueryID string `json:"query_id"`

	// Recall is the fraction of distinct gold targets found in the top k.
	Recall float64 `json:"recall"`

	// HitRate is 1 when any gold target appears in the top k, else 0.
	HitRate float64 `json:"hit_rate"`

	// MRR is the reciprocal rank of the first relevant hit over the whole
	// retrieved list, 0 when nothing relevant was retrieved.
	MRR float64 `json:"mrr"`

	// NDCG is binary nDCG at k: 0 when the ideal DCG is 0.
	NDCG float64 `json:"ndcg"`

	// Retrieved is the length of the retrieved list.
	Retrieved int `json:"retrieved"`
}

// scoreQuery computes all metrics for one query against one ranked list of
// chunk IDs. retrieved is in rank order, best first.
func scoreQuery(retrieved []string, gold *GoldQuery, k int, m Matcher) QueryMetrics {
	qm := QueryMetrics{QueryID: gold.ID, Retrieved: len(retrieved)}

	goldSize := m.GoldSize(gold)
	if goldSize == 0 || k <= 0 {
		return qm
	}

	matchedInK := make(map[string]struct{})
	firstHit := 0
	for i, id := range retrieved {
		key, ok := m.Match(id, gold)
		if !ok {
			continue
		}
		if firstHit == 0 {
			firstHit = i + 1
		}
		if i < k {
			matchedInK[key] = struct{}{}
		}
	}

	qm.Recall = float64(len(matchedInK)) / float64(goldSize)
	if len(matchedInK) > 0 {
		qm.HitRate = 1
	}
	if firstHit > 0 {
		qm.MRR = 1 / float64(firstHit)
	}
	qm.NDCG = ndcgAtK(retrieved, gold, k, m, goldSize)
	return qm
}

// ndcgAtK computes binary nDCG: gains are 1 for relevant positions, the
// ideal ranking places min(goldSize, k) relevant items first. Returns 0
// when the ideal DCG is 0 rather than dividing by zero.
func ndcgAtK(retrieved []string, gold *GoldQuery, k int, m Matcher, goldSize int) float64 {
	limit := k
	if len(retrieved) < limit {
		limit = len(retrieved)
	}

	var dcg float64
	for i := 0; i < limit; i++ {
		if _, ok := m.Match(retrieved[i], gold); ok {
			dcg += 1 / math.Log2(float64(i)+2)
		}
	}

	ideal := goldSize
	if ideal > k {
		ideal = k
	}
	var idcg float64
	for i := 0; i < ideal; i++ {
		idcg += 1 / math.Log2(float64(i)+2)
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

// Summary aggregates per-query metrics with unweighted means over the
// evaluated (non-malformed) queries.
type Summary struct {
	K         int     `json:"k"`
	Evaluated int     `json:"evaluated"`
	Malformed int     `json:"malformed"`
	Recall    float64 `json:"recall"`
	HitRate   float64 `json:"hit_rate"`
	MRR       float64 `json:"mrr"`
	NDCG      float64 `json:"ndcg"`
}

func summarize(k int, perQuery []QueryMetrics, malformed int) Summary {
	s := Summary{K: k, Evaluated: len(perQuery), Malformed: malformed}
	if len(perQuery) == 0 {
		return s
	}
	for _, q := range perQuery {
		s.Recall += q.Recall
		s.HitRate += q.HitRate
		s.MRR += q.MRR
		s.NDCG += q.NDCG
	}
	n := float64(len(perQuery))
	s.Recall /= n
	s.HitRate /= n
	s.MRR /= n
	s.NDCG /= n
	return s
}
