package graph

import (
	"context"
	"sort"
)

// Hybrid search weights. Vector similarity carries most of the signal;
// the text leg rescues exact-term matches the embedding misses.
const (
	DefaultTextWeight   = 0.3
	DefaultVectorWeight = 0.7

	// hybridMinVectorScore mirrors the retrieval threshold used by the
	// vector leg when over-fetching candidates.
	hybridMinVectorScore = 0.5
)

// HybridSearch combines vector similarity and full-text relevance with a
// weighted sum. Both legs over-fetch at twice the limit; a hit found by
// only one leg scores 0 on the other. Results are sorted by combined
// score descending and truncated to limit.
func (s *Store) HybridSearch(ctx context.Context, queryText string, embedding []float32, targetType NodeType, limit int, textWeight, vectorWeight float64) ([]Scored, error) {
	if limit <= 0 {
		limit = 10
	}
	if textWeight == 0 && vectorWeight == 0 {
		textWeight = DefaultTextWeight
		vectorWeight = DefaultVectorWeight
	}

	// No embedding degrades to a pure text search rather than erroring.
	var vectorResults []Scored
	if len(embedding) > 0 {
		var err error
		vectorResults, err = s.VectorSearch(embedding, targetType, limit*2, hybridMinVectorScore)
		if err != nil {
			return nil, err
		}
	}

	textHits, err := s.text.Search(ctx, queryText, targetType, limit*2)
	if err != nil {
		return nil, err
	}

	combined := make(map[string]*Scored, len(vectorResults)+len(textHits))
	for i := range vectorResults {
		r := vectorResults[i]
		combined[r.ID] = &r
	}

	for _, hit := range textHits {
		if r, ok := combined[hit.ID]; ok {
			r.TextScore = hit.Score
			continue
		}
		node, err := s.GetNode(hit.ID)
		if err != nil {
			// Index entry outlived its node.
			continue
		}
		combined[hit.ID] = &Scored{Node: *node, TextScore: hit.Score}
	}

	results := make([]Scored, 0, len(combined))
	for _, r := range combined {
		r.Score = vectorWeight*r.VectorScore + textWeight*r.TextScore
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
