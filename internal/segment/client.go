// Package segment splits normalized document text into topic-coherent
// chunks. The primary path calls the CLOVA Studio segmentation API; on
// any failure it falls back to a local sentence-accumulation splitter
// so ingestion never fails on the segmentation dependency.
package segment

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

// Client is the interface for topic-segmentation API clients
type Client interface {
	Segment(ctx context.Context, text string, cfg rag.ChunkingConfig) ([][]string, error)
}

// ClovaClient implements Client for the CLOVA Studio segmentation API
type ClovaClient struct {
	apiKey    string
	requestID string
	url       string
	client    *http.Client
}

// clovaSegmentationRequest is the request format for the segmentation API
type clovaSegmentationRequest struct {
	Text               string  `json:"text"`
	Alpha              float64 `json:"alpha"`
	SegCnt             int     `json:"segCnt"`
	PostProcess        bool    `json:"postProcess"`
	PostProcessMaxSize int     `json:"postProcessMaxSize"`
	PostProcessMinSize int     `json:"postProcessMinSize"`
}

// clovaSegmentationResponse is the response from the segmentation API.
// topicSeg is an ordered list of segments, each an ordered list of
// sentence-like units.
type clovaSegmentationResponse struct {
	Status struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	Result struct {
		TopicSeg [][]string `json:"topicSeg"`
	} `json:"result"`
}

// NewClovaClient creates a new CLOVA Studio segmentation client. A
// missing API key is not an error here: Segment fails on use and the
// caller falls back to the local splitter.
func NewClovaClient(clova config.ClovaConfig, cfg config.SegmentationConfig) *ClovaClient {
	return &ClovaClient{
		apiKey:    clova.APIKey,
		requestID: clova.RequestID,
		url:       clova.BaseURL + cfg.Endpoint,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Segment sends text to the segmentation API and returns the raw topic
// segments.
func (c *ClovaClient) Segment(ctx context.Context, text string, cfg rag.ChunkingConfig) ([][]string, error) {
	if c.apiKey == "" {
		return nil, &rag.ExternalServiceError{
			Service: "segmentation",
			Err:     fmt.Errorf("CLOVA_STUDIO_API_KEY is not set"),
		}
	}

	reqBody, err := json.Marshal(clovaSegmentationRequest{
		Text:               text,
		Alpha:              cfg.Alpha,
		SegCnt:             cfg.SegCnt,
		PostProcess:        cfg.PostProcess,
		PostProcessMaxSize: cfg.PostProcessMaxSize,
		PostProcessMinSize: cfg.PostProcessMinSize,
	})
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
		return nil, &rag.ExternalServiceError{Service: "segmentation", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &rag.ExternalServiceError{
			Service: "segmentation",
			Err:     fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}

	var apiResp clovaSegmentationResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if apiResp.Status.Code != "20000" {
		return nil, &rag.ExternalServiceError{Service: "segmentation", Status: apiResp.Status.Code}
	}

	return apiResp.Result.TopicSeg, nil
}
