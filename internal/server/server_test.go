package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ragstack/ragserve/internal/chat"
	"github.com/ragstack/ragserve/internal/config"
	"github.com/ragstack/ragserve/internal/embedding"
	"github.com/ragstack/ragserve/internal/ingest"
	"github.com/ragstack/ragserve/internal/memory"
	"github.com/ragstack/ragserve/internal/rag"
	"github.com/ragstack/ragserve/internal/retrieval"
	"github.com/ragstack/ragserve/internal/segment"
	"github.com/ragstack/ragserve/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// axisEmbedder maps known texts to unit vectors; everything else gets
// the first axis.
type axisEmbedder struct {
	axes map[string]int
}

func (e *axisEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, rag.EmbeddingDimension)
	if axis, ok := e.axes[text]; ok {
		v[axis] = 1
	} else {
		v[0] = 1
	}
	return v, nil
}

func (e *axisEmbedder) Dimensions() int {
	return rag.EmbeddingDimension
}

type passthroughSegmenter struct{}

func (passthroughSegmenter) Segment(ctx context.Context, text string, cfg rag.ChunkingConfig) ([][]string, error) {
	return [][]string{{text}}, nil
}

func newTestServer(t *testing.T, chatUpstream http.HandlerFunc) (*Server, *store.Collection) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	coll, err := store.OpenCollection(db, "rag_documents")
	if err != nil {
		t.Fatalf("OpenCollection: %v", err)
	}

	embedder := embedding.NewServiceWithClient(
		config.EmbeddingConfig{MaxTextLength: 8000}, &axisEmbedder{})
	splitter := segment.NewSplitterWithClient(rag.DefaultChunkingConfig(), passthroughSegmenter{})
	retriever := retrieval.NewRetriever(coll, embedder, rag.DefaultRetrievalConfig(), 4000)
	pipeline := ingest.NewPipeline(splitter, embedder, coll, nil)
	mem := memory.NewStore(10, 0)

	var chatClient *chat.Client
	if chatUpstream != nil {
		srv := httptest.NewServer(chatUpstream)
		t.Cleanup(srv.Close)
		chatClient, err = chat.NewClient(config.ClovaConfig{BaseURL: srv.URL, APIKey: "test-key"})
		if err != nil {
			t.Fatalf("chat.NewClient: %v", err)
		}
	}

	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("config.Default: %v", err)
	}
	return New(cfg, coll, embedder, retriever, pipeline, mem, chatClient), coll
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func seedDocuments(t *testing.T, coll *store.Collection) {
	t.Helper()

	v := make([]float32, rag.EmbeddingDimension)
	v[0] = 1

	seeds := []struct {
		content string
		source  string
	}{
		{"Paris is the capital of France.", "geo.pdf"},
		{"Seoul is the capital of Korea.", "asia.pdf"},
	}
	for _, seed := range seeds {
		if _, err := coll.AddDocuments(context.Background(),
			[]rag.Document{{Content: seed.content}}, [][]float32{v}, seed.source); err != nil {
			t.Fatalf("AddDocuments: %v", err)
		}
	}
}

func TestSearchEndpoint(t *testing.T) {
	s, coll := newTestServer(t, nil)
	seedDocuments(t, coll)

	w := doRequest(t, s, http.MethodPost, "/api/v1/rag/search",
		map[string]any{"query": "capital of France", "top_k": 5})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp searchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.TotalResults != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if !strings.Contains(resp.Context, "[Document 1]") {
		t.Errorf("context missing document block: %q", resp.Context)
	}
}

func TestSearchValidation(t *testing.T) {
	s, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing query", map[string]any{"top_k": 5}},
		{"bad threshold", map[string]any{"query": "q", "similarity_threshold": 1.5}},
		{"bad top_k", map[string]any{"query": "q", "top_k": -1}},
		{"bad context length", map[string]any{"query": "q", "max_context_length": 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, s, http.MethodPost, "/api/v1/rag/search", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestSimpleSearchEndpoint(t *testing.T) {
	s, coll := newTestServer(t, nil)
	seedDocuments(t, coll)

	w := doRequest(t, s, http.MethodGet, "/api/v1/rag/search/capital?top_k=1&threshold=0.5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp searchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalResults != 1 {
		t.Errorf("total results = %d, want 1", resp.TotalResults)
	}
}

func TestSearchRerankOverfetch(t *testing.T) {
	s, coll := newTestServer(t, nil)
	ctx := context.Background()

	// Unit vector whose raw cosine against the query axis is cos.
	vec := func(cos float64) []float32 {
		v := make([]float32, rag.EmbeddingDimension)
		v[0] = float32(cos)
		v[1] = float32(math.Sqrt(1 - cos*cos))
		return v
	}

	seeds := []struct {
		content string
		source  string
		cos     float64
	}{
		{"unrelated text about embedded databases", "db.pdf", 0.9},
		{"paris is the capital of france", "geo.pdf", 0.8},
	}
	for _, seed := range seeds {
		if _, err := coll.AddDocuments(ctx,
			[]rag.Document{{Content: seed.content}}, [][]float32{vec(seed.cos)}, seed.source); err != nil {
			t.Fatalf("AddDocuments: %v", err)
		}
	}

	// With top_k=1 the keyword match only surfaces if the handler
	// over-fetches rerank_top_k candidates before reranking.
	w := doRequest(t, s, http.MethodPost, "/api/v1/rag/search",
		map[string]any{"query": "paris capital", "top_k": 1, "enable_reranking": true})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp searchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalResults != 1 {
		t.Fatalf("total results = %d, want 1", resp.TotalResults)
	}
	if !strings.Contains(resp.Results[0].Content, "paris") {
		t.Errorf("top result = %q, want the keyword match", resp.Results[0].Content)
	}
}

func TestUploadEndpoint(t *testing.T) {
	s, coll := newTestServer(t, nil)

	makeUpload := func(filename, source, content string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fmt.Fprint(fw, content)
		if source != "" {
			mw.WriteField("document_source", source)
		}
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/rag/documents/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		s.Router().ServeHTTP(w, req)
		return w
	}

	t.Run("csv upload", func(t *testing.T) {
		w := makeUpload("people.csv", "people-dataset", "name,age\nAlice,30\nBob,25\n")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}

		var resp map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp["chunk_count"].(float64) != 2 {
			t.Errorf("chunk_count = %v, want 2", resp["chunk_count"])
		}

		count, err := coll.Count(context.Background())
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if count != 2 {
			t.Errorf("stored count = %d, want 2", count)
		}
	})

	t.Run("missing source", func(t *testing.T) {
		w := makeUpload("people.csv", "", "name\nAlice\n")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		w := makeUpload("notes.txt", "notes", "hello")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestDeleteBySourceEndpoint(t *testing.T) {
	s, coll := newTestServer(t, nil)
	seedDocuments(t, coll)

	w := doRequest(t, s, http.MethodDelete, "/api/v1/rag/documents/geo.pdf", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doRequest(t, s, http.MethodDelete, "/api/v1/rag/documents/geo.pdf", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestStatsResetHealth(t *testing.T) {
	s, coll := newTestServer(t, nil)
	seedDocuments(t, coll)

	w := doRequest(t, s, http.MethodGet, "/api/v1/rag/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "\"total_documents\":2") {
		t.Errorf("stats body = %s", w.Body.String())
	}

	w = doRequest(t, s, http.MethodDelete, "/api/v1/rag/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d", w.Code)
	}
	count, err := coll.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("count after reset = %d", count)
	}

	w = doRequest(t, s, http.MethodGet, "/api/v1/rag/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/rag/stats", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != 204 {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS header")
	}
}

func TestChatCompletionWithMemory(t *testing.T) {
	var lastMessages []chat.Message

	upstream := func(w http.ResponseWriter, r *http.Request) {
		var req chat.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode upstream request: %v", err)
		}
		lastMessages = req.Messages

		fmt.Fprint(w, `{
			"status": {"code": "20000", "message": "OK"},
			"result": {"message": {"role": "assistant", "content": "answer"}}
		}`)
	}

	s, _ := newTestServer(t, upstream)

	body := map[string]any{
		"messages":  []map[string]string{{"role": "user", "content": "first question"}},
		"sessionId": "sess-1",
	}
	w := doRequest(t, s, http.MethodPost, "/api/v1/chat/completions/HCX-005", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(lastMessages) != 1 {
		t.Fatalf("first call upstream messages = %d, want 1", len(lastMessages))
	}

	// The second request carries the first exchange from memory.
	body["messages"] = []map[string]string{{"role": "user", "content": "second question"}}
	w = doRequest(t, s, http.MethodPost, "/api/v1/chat/completions/HCX-005", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(lastMessages) != 3 {
		t.Fatalf("second call upstream messages = %d, want 3", len(lastMessages))
	}
	if lastMessages[0].Content != "first question" || lastMessages[1].Content != "answer" {
		t.Errorf("history not replayed: %+v", lastMessages)
	}
}

func TestChatRAGAugmentation(t *testing.T) {
	upstream := func(w http.ResponseWriter, r *http.Request) {
		var req chat.Request
		json.NewDecoder(r.Body).Decode(&req)

		if len(req.Messages) < 2 || req.Messages[0].Role != "system" {
			t.Errorf("expected leading system context message, got %+v", req.Messages)
		} else if !strings.Contains(req.Messages[0].Content, "[Document 1]") {
			t.Errorf("system message lacks retrieved context: %q", req.Messages[0].Content)
		}

		fmt.Fprint(w, `{
			"status": {"code": "20000", "message": "OK"},
			"result": {"message": {"role": "assistant", "content": "ok"}}
		}`)
	}

	s, coll := newTestServer(t, upstream)
	seedDocuments(t, coll)

	body := map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "what is the capital of France"}},
		"useRag":   true,
	}
	w := doRequest(t, s, http.MethodPost, "/api/v1/chat/completions/HCX-005", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestChatValidation(t *testing.T) {
	s, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	t.Run("unsupported model", func(t *testing.T) {
		body := map[string]any{"messages": []map[string]string{{"role": "user", "content": "hi"}}}
		w := doRequest(t, s, http.MethodPost, "/api/v1/chat/completions/gpt-4", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("chat not configured", func(t *testing.T) {
		noChat, _ := newTestServer(t, nil)
		body := map[string]any{"messages": []map[string]string{{"role": "user", "content": "hi"}}}
		w := doRequest(t, noChat, http.MethodPost, "/api/v1/chat/completions/HCX-005", body)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})
}
