package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ragstack/ragserve/internal/config"
	"github.com/ragstack/ragserve/internal/rag"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(config.ClovaConfig{
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		RequestID: "req-1",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestValidateModel(t *testing.T) {
	if err := ValidateModel("HCX-005"); err != nil {
		t.Errorf("HCX-005 should be supported: %v", err)
	}
	if err := ValidateModel("HCX-DASH-002"); err != nil {
		t.Errorf("HCX-DASH-002 should be supported: %v", err)
	}

	err := ValidateModel("gpt-4")
	var vErr *rag.ValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("expected ValidationError for unknown model, got %v", err)
	}
}

func TestComplete(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/chat-completions/HCX-005" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		if r.Header.Get("X-NCP-CLOVASTUDIO-REQUEST-ID") != "req-1" {
			t.Errorf("missing request id header")
		}

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		fmt.Fprint(w, `{
			"status": {"code": "20000", "message": "OK"},
			"result": {"message": {"role": "assistant", "content": "hi"}, "stopReason": "stop_before"}
		}`)
	})

	resp, err := client.Complete(context.Background(), "HCX-005", &Request{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Result.Message.Content != "hi" {
		t.Errorf("content = %q", resp.Result.Message.Content)
	}
}

func TestCompleteAPIError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": {"code": "40100", "message": "unauthorized"}}`)
	})

	_, err := client.Complete(context.Background(), "HCX-005", &Request{})
	var svcErr *rag.ExternalServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if svcErr.Status != "40100" {
		t.Errorf("status = %q, want 40100", svcErr.Status)
	}
}

func TestCompleteHTTPError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := client.Complete(context.Background(), "HCX-005", &Request{})
	var svcErr *rag.ExternalServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if svcErr.Status != "502" {
		t.Errorf("status = %q, want 502", svcErr.Status)
	}
}

func TestStreamPassthrough(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("missing event-stream accept header")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "id: 1\nevent: token\ndata: {\"content\": \"hi\"}\n\n")
		fmt.Fprint(w, "event: result\ndata: {\"stopReason\": \"stop\"}\n\n")
	})

	var buf strings.Builder
	if err := client.Stream(context.Background(), "HCX-005", &Request{}, &buf); err != nil {
		t.Fatalf("Stream: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"id: 1\n", "event: token\n", "data: {\"content\": \"hi\"}\n", "event: result\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("stream output missing %q:\n%s", want, out)
		}
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(config.ClovaConfig{BaseURL: "https://example.com"})
	var svcErr *rag.ExternalServiceError
	if !errors.As(err, &svcErr) {
		t.Errorf("expected ExternalServiceError for missing key, got %v", err)
	}
}
