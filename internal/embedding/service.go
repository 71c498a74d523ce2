package embedding

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/ragstack/ragserve/internal/config"
)

// Service provides embedding generation functionality
type Service struct {
	cfg    config.EmbeddingConfig
	client Client
}

// Client is the interface for embedding API clients
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// NewService creates a new embedding service backed by the CLOVA
// Studio embedding API.
func NewService(clova config.ClovaConfig, cfg config.EmbeddingConfig) (*Service, error) {
	client, err := NewClovaClient(clova, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	return &Service{cfg: cfg, client: client}, nil
}

// NewServiceWithClient creates a service around an existing client.
// Used by tests and by callers that bring their own transport.
func NewServiceWithClient(cfg config.EmbeddingConfig, client Client) *Service {
	return &Service{cfg: cfg, client: client}
}

// Dimensions returns the dimension of the embeddings
func (s *Service) Dimensions() int {
	return s.client.Dimensions()
}

// truncate caps input text at the configured length budget. The budget
// is a proxy for the model's token budget (1 Hangul char ~ 1 token).
func (s *Service) truncate(text string) string {
	budget := s.cfg.MaxTextLength
	if budget <= 0 {
		budget = 8000
	}
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	log.Printf("embedding input exceeds %d chars, truncating", budget)
	return string(runes[:budget])
}

// EmbedQuery embeds a single query string. It never returns an error:
// on failure it returns a zero vector of the correct dimension, so a
// failed query degrades to "no useful matches" instead of breaking the
// request path.
func (s *Service) EmbedQuery(ctx context.Context, text string) []float32 {
	vector, err := s.client.Embed(ctx, s.truncate(text))
	if err != nil {
		log.Printf("query embedding failed, falling back to zero vector: %v", err)
		return make([]float32, s.client.Dimensions())
	}
	return vector
}

// EmbedDocuments embeds a batch of texts sequentially, with a fixed
// delay between calls to respect the service's rate limits. A failed
// item is skipped rather than failing the whole batch; the returned
// skipped slice lists the input indices that produced no vector, so
// callers can drop the corresponding documents and keep the 1:1
// documents/embeddings correspondence.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, skipped []int) {
	for i, text := range texts {
		vector, err := s.client.Embed(ctx, s.truncate(text))
		if err != nil {
			log.Printf("embedding document %d/%d failed, skipping: %v", i+1, len(texts), err)
			skipped = append(skipped, i)
		} else {
			vectors = append(vectors, vector)
		}

		if i < len(texts)-1 {
			select {
			case <-time.After(s.cfg.RequestDelay):
			case <-ctx.Done():
				for j := i + 1; j < len(texts); j++ {
					skipped = append(skipped, j)
				}
				return vectors, skipped
			}
		}
	}

	log.Printf("embedded %d/%d documents", len(vectors), len(texts))
	return vectors, skipped
}

// Similarity computes cosine similarity between two vectors, remapped
// from [-1,1] to [0,1] so that every similarity value in the system
// lies in [0,1] with 1 meaning identical. A zero vector yields 0.
func Similarity(a, b []float32) float32 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vector dimension mismatch: %d vs %d", len(a), len(b)))
	}

	var dotProduct float32
	var normA float32
	var normB float32

	for i := 0; i < len(a); i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	cos := dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
	return (cos + 1) / 2
}
