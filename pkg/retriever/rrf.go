package retriever

import "sort"

// rrfEntry accumulates a document's fused RRF score across however many
// ranked lists it appeared in.
type rrfEntry struct {
	doc        RankedDoc
	score      float64
	collection string
}

// rrfFuseRankers combines two per-collection rankers (dense, sparse) by
// Reciprocal Rank Fusion: score(d) = Σ 1/(K + rank_r(d)), ranks 1-indexed,
// ties broken by dense score (§4.L2 "hybrid score fusion").
func rrfFuseRankers(dense, sparse []RankedDoc) []RankedDoc {
	byID := make(map[string]*rrfEntry, len(dense)+len(sparse))

	for rank, hit := range dense {
		e, ok := byID[hit.Doc.ID]
		if !ok {
			e = &rrfEntry{doc: hit}
			byID[hit.Doc.ID] = e
		}
		e.score += 1.0 / float64(rrfK+rank+1)
	}
	for rank, hit := range sparse {
		e, ok := byID[hit.Doc.ID]
		if !ok {
			e = &rrfEntry{doc: hit}
			byID[hit.Doc.ID] = e
		}
		e.score += 1.0 / float64(rrfK+rank+1)
	}

	out := make([]RankedDoc, 0, len(byID))
	for _, e := range byID {
		out = append(out, RankedDoc{Doc: e.doc.Doc, Score: e.score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return denseScoreOf(dense, out[i].Doc.ID) > denseScoreOf(dense, out[j].Doc.ID)
	})

	return out
}

func denseScoreOf(dense []RankedDoc, docID string) float64 {
	for _, d := range dense {
		if d.Doc.ID == docID {
			return d.Score
		}
	}
	return 0
}

// federatedFuse treats each collection's already-fused ranked list as a
// single ranker and re-runs RRF across per-collection rank positions,
// truncating to the global k (§4.L2 "federated fusion").
func federatedFuse(byCollection map[string][]RankedDoc, k int) []rrfEntry {
	entries := make(map[string]*rrfEntry)

	for collection, hits := range byCollection {
		for rank, hit := range hits {
			key := collection + "/" + hit.Doc.ID
			e := &rrfEntry{doc: hit, collection: collection}
			e.score = 1.0 / float64(rrfK+rank+1)
			entries[key] = e
		}
	}

	out := make([]rrfEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].doc.Score > out[j].doc.Score
	})

	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
