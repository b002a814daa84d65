package search

import "sort"

// Fuse combines ranked candidate lists by weighted reciprocal rank:
//
//	fused(d) = sum over lists r containing d of  w_r / (rrfK + rank_r(d))
//
// Ranks are 1-based list positions; a document absent from a list simply
// contributes nothing for that list. The fused list covers the union of all
// input lists, sorted by descending fused score with ties broken by
// ascending chunk ID. Lists without a weight entry default to weight 1;
// an explicit zero weight still registers its documents so the union is
// preserved. A non-positive rrfK falls back to DefaultRRFK.
func Fuse(lists map[string][]Candidate, weights map[string]float64, rrfK int) []Candidate {
	if rrfK <= 0 {
		rrfK = DefaultRRFK
	}

	scores := make(map[string]float64)
	for name, list := range lists {
		w, ok := weights[name]
		if !ok {
			w = 1
		}
		for i, c := range list {
			// Position in the slice is authoritative; the Rank field on
			// input candidates is ignored.
			scores[c.ChunkID] += w / float64(rrfK+i+1)
		}
	}

	fused := make([]Candidate, 0, len(scores))
	for id, s := range scores {
		fused = append(fused, Candidate{ChunkID: id, Score: s})
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ChunkID < fused[j].ChunkID
	})

	for i := range fused {
		fused[i].Rank = i + 1
	}
	return fused
}
