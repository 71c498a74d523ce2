package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ragstack/ragserve/internal/config"
	"github.com/ragstack/ragserve/internal/rag"
)

// ClovaClient implements Client for the CLOVA Studio embedding API
// (bge-m3, /v1/api-tools/embedding/v2).
type ClovaClient struct {
	apiKey     string
	requestID  string
	url        string
	dimensions int
	client     *http.Client
}

// clovaEmbeddingRequest is the request format for the embedding API
type clovaEmbeddingRequest struct {
	Text string `json:"text"`
}

// clovaEmbeddingResponse is the response from the embedding API.
// Status code "20000" is the only success status.
type clovaEmbeddingResponse struct {
	Status struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	Result struct {
		Embedding   []float32 `json:"embedding"`
		InputTokens int       `json:"inputTokens"`
	} `json:"result"`
}

// NewClovaClient creates a new CLOVA Studio embedding client
func NewClovaClient(clova config.ClovaConfig, cfg config.EmbeddingConfig) (*ClovaClient, error) {
	if clova.APIKey == "" {
		return nil, fmt.Errorf("CLOVA_STUDIO_API_KEY is required")
	}

	return &ClovaClient{
		apiKey:     clova.APIKey,
		requestID:  clova.RequestID,
		url:        clova.BaseURL + cfg.Endpoint,
		dimensions: cfg.Dimensions,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// Embed generates an embedding for a single text. The returned vector
// is guaranteed to have exactly Dimensions() elements.
func (c *ClovaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(clovaEmbeddingRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.requestID != "" {
		httpReq.Header.Set("X-NCP-CLOVASTUDIO-REQUEST-ID", c.requestID)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &rag.ExternalServiceError{Service: "embedding", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &rag.ExternalServiceError{
			Service: "embedding",
			Err:     fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}

	var apiResp clovaEmbeddingResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if apiResp.Status.Code != "20000" {
		return nil, &rag.ExternalServiceError{Service: "embedding", Status: apiResp.Status.Code}
	}

	if len(apiResp.Result.Embedding) != c.dimensions {
		return nil, &rag.ValidationError{
			Msg: fmt.Sprintf("embedding dimension mismatch: got %d, want %d",
				len(apiResp.Result.Embedding), c.dimensions),
		}
	}

	return apiResp.Result.Embedding, nil
}

// Dimensions returns the dimension of the embeddings
func (c *ClovaClient) Dimensions() int {
	return c.dimensions
}
