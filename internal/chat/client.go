// Package chat is a thin client for the CLOVA Studio chat completions
// API. Responses pass through untouched; this package adds nothing to
// the model's output beyond transport.
package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ragstack/ragserve/internal/config"
	"github.com/ragstack/ragserve/internal/rag"
)

const serviceName = "clova-chat"

// SupportedModels lists the chat models the proxy accepts.
var SupportedModels = []string{"HCX-005", "HCX-DASH-002"}

// Message is one chat turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the chat completion request body, passed through to the
// upstream API.
type Request struct {
	Messages          []Message `json:"messages"`
	Temperature       *float64  `json:"temperature,omitempty"`
	TopP              *float64  `json:"topP,omitempty"`
	TopK              *int      `json:"topK,omitempty"`
	MaxTokens         *int      `json:"maxTokens,omitempty"`
	RepetitionPenalty *float64  `json:"repetitionPenalty,omitempty"`
	StopBefore        []string  `json:"stopBefore,omitempty"`
}

// Response is the upstream chat completion response.
type Response struct {
	Status struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	Result struct {
		Message      Message `json:"message"`
		StopReason   string  `json:"stopReason,omitempty"`
		InputLength  int     `json:"inputLength,omitempty"`
		OutputLength int     `json:"outputLength,omitempty"`
	} `json:"result"`
}

// Client calls the CLOVA Studio chat completions API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	requestID  string
}

// NewClient creates a chat client. The API key must be set.
func NewClient(clova config.ClovaConfig) (*Client, error) {
	if clova.APIKey == "" {
		return nil, &rag.ExternalServiceError{
			Service: serviceName,
			Err:     fmt.Errorf("CLOVA_STUDIO_API_KEY is not set"),
		}
	}

	return &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    strings.TrimSuffix(clova.BaseURL, "/"),
		apiKey:     clova.APIKey,
		requestID:  clova.RequestID,
	}, nil
}

// ValidateModel rejects model names the upstream API does not serve.
func ValidateModel(model string) error {
	for _, m := range SupportedModels {
		if model == m {
			return nil
		}
	}
	return &rag.ValidationError{
		Msg: fmt.Sprintf("unsupported model %q, supported: %s", model, strings.Join(SupportedModels, ", ")),
	}
}

func (c *Client) newRequest(ctx context.Context, model string, req *Request, stream bool) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := c.baseURL + "/v3/chat-completions/" + model
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.requestID != "" {
		httpReq.Header.Set("X-NCP-CLOVASTUDIO-REQUEST-ID", c.requestID)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	return httpReq, nil
}

// Complete sends a non-streaming chat completion request.
func (c *Client) Complete(ctx context.Context, model string, req *Request) (*Response, error) {
	if err := ValidateModel(model); err != nil {
		return nil, err
	}

	httpReq, err := c.newRequest(ctx, model, req, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &rag.ExternalServiceError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &rag.ExternalServiceError{
			Service: serviceName,
			Status:  fmt.Sprintf("%d", resp.StatusCode),
			Err:     fmt.Errorf("unexpected HTTP status: %s", strings.TrimSpace(string(data))),
		}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &rag.ExternalServiceError{
			Service: serviceName,
			Err:     fmt.Errorf("failed to decode response: %w", err),
		}
	}

	if out.Status.Code != "20000" {
		return nil, &rag.ExternalServiceError{
			Service: serviceName,
			Status:  out.Status.Code,
			Err:     fmt.Errorf("api error: %s", out.Status.Message),
		}
	}

	return &out, nil
}

// Stream sends a streaming chat completion request and copies the SSE
// event lines to w as they arrive. Returns after the upstream closes
// the stream or ctx is cancelled.
func (c *Client) Stream(ctx context.Context, model string, req *Request, w io.Writer) error {
	if err := ValidateModel(model); err != nil {
		return err
	}

	httpReq, err := c.newRequest(ctx, model, req, true)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &rag.ExternalServiceError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &rag.ExternalServiceError{
			Service: serviceName,
			Status:  fmt.Sprintf("%d", resp.StatusCode),
			Err:     fmt.Errorf("unexpected HTTP status: %s", strings.TrimSpace(string(data))),
		}
	}

	flusher, _ := w.(http.Flusher)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		// Pass SSE framing through untouched.
		if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
			return err
		}
		if line == "" && flusher != nil {
			flusher.Flush()
		}
	}
	if flusher != nil {
		flusher.Flush()
	}

	if err := scanner.Err(); err != nil {
		return &rag.ExternalServiceError{Service: serviceName, Err: err}
	}
	return nil
}
