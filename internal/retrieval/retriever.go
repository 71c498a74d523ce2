package retrieval

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/ragstack/ragserve/internal/embedding"
	"github.com/ragstack/ragserve/internal/rag"
	"github.com/ragstack/ragserve/internal/store"
)

// Rerank weights: semantic similarity dominates, keyword overlap
// breaks ties between close candidates.
const (
	rerankSimilarityWeight = 0.7
	rerankKeywordWeight    = 0.3
)

// Retriever orchestrates query embedding, vector search, threshold
// filtering, and optional keyword-overlap reranking.
type Retriever struct {
	collection *store.Collection
	embedder   *embedding.Service
	defaults   rag.RetrievalConfig
	maxContext int
}

// NewRetriever creates a retriever over the given collection.
// maxContextLength caps BuildContext output; zero or negative falls
// back to 4000.
func NewRetriever(collection *store.Collection, embedder *embedding.Service, defaults rag.RetrievalConfig, maxContextLength int) *Retriever {
	if maxContextLength <= 0 {
		maxContextLength = 4000
	}
	return &Retriever{
		collection: collection,
		embedder:   embedder,
		defaults:   defaults,
		maxContext: maxContextLength,
	}
}

// Defaults returns the retriever's default retrieval configuration.
func (r *Retriever) Defaults() rag.RetrievalConfig {
	return r.defaults
}

// Search runs the retrieval pipeline for a query. Failures anywhere in
// the pipeline degrade to an empty result list rather than an error,
// so a flaky embedding backend never takes down a chat request.
func (r *Retriever) Search(ctx context.Context, query string, cfg rag.RetrievalConfig, filter map[string]any) []rag.SearchResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	queryVector := r.embedder.EmbedQuery(ctx, query)

	// Over-fetch when reranking so keyword overlap can promote
	// candidates from beyond the final topK.
	candidates := cfg.TopK
	if cfg.EnableReranking && cfg.RerankTopK > candidates {
		candidates = cfg.RerankTopK
	}

	results, err := r.collection.SearchSimilar(ctx, queryVector, candidates, filter)
	if err != nil {
		log.Printf("vector search failed for query %q: %v", query, err)
		return nil
	}

	filtered := results[:0]
	for _, res := range results {
		if res.Similarity >= cfg.SimilarityThreshold {
			filtered = append(filtered, res)
		}
	}
	results = filtered

	// Rerank only when more candidates than topK survived the
	// threshold; otherwise the similarity order already stands.
	if cfg.EnableReranking && len(results) > cfg.TopK {
		results = rerank(query, results)
	}

	if len(results) > cfg.TopK {
		results = results[:cfg.TopK]
	}

	return results
}

// rerank orders results by a weighted blend of vector similarity and
// keyword overlap. The stamped scores stay on the results for callers
// that surface them.
func rerank(query string, results []rag.SearchResult) []rag.SearchResult {
	for i := range results {
		keyword := keywordScore(query, results[i].Content)
		results[i].KeywordScore = keyword
		results[i].RerankScore = results[i].Similarity*rerankSimilarityWeight + keyword*rerankKeywordWeight
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RerankScore > results[j].RerankScore
	})

	return results
}

// keywordScore is the fraction of query tokens present in the content,
// case-insensitive substring match.
func keywordScore(query, content string) float32 {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return 0
	}

	content = strings.ToLower(content)
	matched := 0
	for _, token := range tokens {
		if strings.Contains(content, token) {
			matched++
		}
	}

	return float32(matched) / float32(len(tokens))
}

// BuildContext assembles retrieved documents into a prompt context
// block. Documents are added in order until the next one would push
// the output past the retriever's max context length.
func (r *Retriever) BuildContext(results []rag.SearchResult) string {
	return BuildContext(results, r.maxContext)
}

// BuildContext formats results as numbered document blocks joined with
// blank lines, never exceeding maxLength runes.
func BuildContext(results []rag.SearchResult, maxLength int) string {
	var (
		parts  []string
		length int
	)

	const separator = "\n"

	for i, res := range results {
		part := fmt.Sprintf("[Document %d] (similarity: %.3f)\n%s\n", i+1, res.Similarity, res.Content)

		cost := len([]rune(part))
		if len(parts) > 0 {
			cost += len(separator)
		}
		if length+cost > maxLength {
			break
		}

		parts = append(parts, part)
		length += cost
	}

	return strings.Join(parts, separator)
}
