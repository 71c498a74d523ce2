// Package rag defines the domain types shared across the retrieval
// pipeline: documents, search results, and the configuration value
// objects passed into chunking and retrieval calls.
package rag

import "fmt"

// EmbeddingDimension is the vector dimension produced by the embedding
// model (bge-m3). Every embedding in the system has exactly this length.
const EmbeddingDimension = 1024

// EmbeddingModel is the name of the external embedding model. Stamped
// into index metadata so stored vectors are traceable to the model that
// produced them.
const EmbeddingModel = "bge-m3"

// SimilarityMetric is the distance space the index is configured for.
// It must not change after a collection is created, since stored
// embeddings are not re-normalized for a different metric.
const SimilarityMetric = "cosine"

// Document is an immutable (content, metadata) pair. Each pipeline
// stage produces new Documents rather than mutating its input.
type Document struct {
	Content  string
	Metadata map[string]any
}

// NewDocument creates a Document with a copy of the given metadata.
func NewDocument(content string, metadata map[string]any) Document {
	return Document{Content: content, Metadata: CopyMetadata(metadata)}
}

// CopyMetadata returns a shallow copy of a metadata map. Values are
// scalars, so a shallow copy is a full copy.
func CopyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SearchResult is one retrieved entry. Similarity is always 1-Distance
// and lies in [0,1]; 1 means identical. RerankScore and KeywordScore
// are populated only when reranking ran.
type SearchResult struct {
	ID           string         `json:"id"`
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata"`
	Distance     float32        `json:"distance"`
	Similarity   float32        `json:"similarity"`
	RerankScore  float32        `json:"rerank_score,omitempty"`
	KeywordScore float32        `json:"keyword_score,omitempty"`
}

// RetrievalConfig drives a single retrieval call. Construct through
// NewRetrievalConfig; a config that fails validation is never used.
type RetrievalConfig struct {
	TopK                int
	SimilarityThreshold float32
	EnableReranking     bool
	RerankTopK          int
}

// DefaultRetrievalConfig returns the retrieval defaults.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:                5,
		SimilarityThreshold: 0.1,
		EnableReranking:     false,
		RerankTopK:          10,
	}
}

// NewRetrievalConfig validates and constructs a RetrievalConfig.
// RerankTopK is raised to TopK when left below it.
func NewRetrievalConfig(topK int, threshold float32, enableReranking bool, rerankTopK int) (RetrievalConfig, error) {
	if topK < 1 {
		return RetrievalConfig{}, &ValidationError{Msg: fmt.Sprintf("top_k must be positive, got %d", topK)}
	}
	if threshold < 0 || threshold > 1 {
		return RetrievalConfig{}, &ValidationError{Msg: fmt.Sprintf("similarity_threshold must be in [0,1], got %v", threshold)}
	}
	if rerankTopK < topK {
		rerankTopK = topK
	}
	return RetrievalConfig{
		TopK:                topK,
		SimilarityThreshold: threshold,
		EnableReranking:     enableReranking,
		RerankTopK:          rerankTopK,
	}, nil
}

// ChunkingConfig drives the segmentation API call and its fallback.
// SegCnt of -1 leaves the segment count unconstrained.
type ChunkingConfig struct {
	Alpha              float64
	SegCnt             int
	PostProcess        bool
	PostProcessMaxSize int
	PostProcessMinSize int
}

// DefaultChunkingConfig returns the segmentation defaults.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		Alpha:              -100,
		SegCnt:             -1,
		PostProcess:        true,
		PostProcessMaxSize: 2000,
		PostProcessMinSize: 500,
	}
}

// IndexStats is the summary reported by the vector index.
type IndexStats struct {
	CollectionName     string `json:"collection_name"`
	TotalDocuments     int    `json:"total_documents"`
	PersistDirectory   string `json:"persist_directory"`
	SimilarityMetric   string `json:"similarity_metric"`
	EmbeddingDimension int    `json:"embedding_dimension"`
	EmbeddingModel     string `json:"embedding_model"`
}
