package retrieval

import (
	"context"
	"log"

	"github.com/ragstack/ragserve/internal/rag"
)

// SupportsKeywordSearch reports whether a standalone keyword index is
// available. The store has no full-text index, so hybrid search
// degrades to vector-only with keyword-overlap reranking.
func (r *Retriever) SupportsKeywordSearch() bool {
	return false
}

// keywordSearch would query a dedicated keyword index.
func (r *Retriever) keywordSearch(ctx context.Context, query string, topK int) ([]rag.SearchResult, error) {
	return nil, rag.ErrKeywordSearchUnavailable
}

// HybridSearch merges vector search results with keyword search
// results, deduplicating by document ID with vector results taking
// precedence, and returns them with the assembled prompt context.
// When keyword search is unavailable it falls back to vector-only
// search.
func (r *Retriever) HybridSearch(ctx context.Context, query string, cfg rag.RetrievalConfig, filter map[string]any) ([]rag.SearchResult, string) {
	vectorResults := r.Search(ctx, query, cfg, filter)

	if !r.SupportsKeywordSearch() {
		return vectorResults, r.BuildContext(vectorResults)
	}

	keywordResults, err := r.keywordSearch(ctx, query, cfg.TopK)
	if err != nil {
		log.Printf("keyword search unavailable, using vector results only: %v", err)
		return vectorResults, r.BuildContext(vectorResults)
	}

	seen := make(map[string]bool, len(vectorResults))
	for _, res := range vectorResults {
		seen[res.ID] = true
	}

	merged := vectorResults
	for _, res := range keywordResults {
		if seen[res.ID] {
			continue
		}
		seen[res.ID] = true
		merged = append(merged, res)
	}

	if len(merged) > cfg.TopK {
		merged = merged[:cfg.TopK]
	}

	return merged, r.BuildContext(merged)
}
