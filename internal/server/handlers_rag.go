package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ragstack/ragserve/internal/loader"
	"github.com/ragstack/ragserve/internal/rag"
	"github.com/ragstack/ragserve/internal/retrieval"
)

type searchRequest struct {
	Query               string   `json:"query" binding:"required"`
	TopK                int      `json:"top_k"`
	SimilarityThreshold *float32 `json:"similarity_threshold"`
	EnableReranking     bool     `json:"enable_reranking"`
	FilterSource        string   `json:"filter_source"`
	MaxContextLength    int      `json:"max_context_length"`
}

type searchResponse struct {
	Success      bool               `json:"success"`
	Query        string             `json:"query"`
	Results      []rag.SearchResult `json:"results"`
	Context      string             `json:"context"`
	TotalResults int                `json:"total_results"`
}

// handleUpload accepts a multipart PDF or CSV upload and runs it
// through the full ingestion pipeline.
func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	file, err := c.FormFile("file")
	if err != nil {
		abortWithError(c, &rag.ValidationError{Msg: "file field is required: " + err.Error()})
		return
	}
	if file.Size > maxUploadSize {
		abortWithError(c, &rag.ValidationError{Msg: "file exceeds the 50MB limit"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".pdf" && ext != ".csv" {
		abortWithError(c, &rag.UnsupportedFormatError{Ext: ext})
		return
	}

	source := c.PostForm("document_source")
	if source == "" {
		abortWithError(c, &rag.ValidationError{Msg: "document_source field is required"})
		return
	}

	chunkCfg := rag.DefaultChunkingConfig()
	if v := c.PostForm("alpha"); v != "" {
		if chunkCfg.Alpha, err = strconv.ParseFloat(v, 64); err != nil {
			abortWithError(c, &rag.ValidationError{Msg: "invalid alpha value"})
			return
		}
	}
	if v := c.PostForm("post_process_max_size"); v != "" {
		if chunkCfg.PostProcessMaxSize, err = strconv.Atoi(v); err != nil {
			abortWithError(c, &rag.ValidationError{Msg: "invalid post_process_max_size value"})
			return
		}
	}
	if v := c.PostForm("post_process_min_size"); v != "" {
		if chunkCfg.PostProcessMinSize, err = strconv.Atoi(v); err != nil {
			abortWithError(c, &rag.ValidationError{Msg: "invalid post_process_min_size value"})
			return
		}
	}

	tmpFile, err := os.CreateTemp("", "upload-*"+ext)
	if err != nil {
		abortWithError(c, fmt.Errorf("failed to create temp file: %w", err))
		return
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	if err := c.SaveUploadedFile(file, tmpPath); err != nil {
		abortWithError(c, fmt.Errorf("failed to save upload: %w", err))
		return
	}

	docs, err := loader.LoadAndPreprocess(tmpPath)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if len(docs) == 0 {
		abortWithError(c, &rag.ValidationError{Msg: "no content extracted from document"})
		return
	}

	result, err := s.pipeline.IngestDocuments(c.Request.Context(), source, docs, chunkCfg)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        fmt.Sprintf("indexed document %q", file.Filename),
		"document_count": result.DocumentsLoaded,
		"chunk_count":    result.ChunksCreated,
		"indexed_ids":    result.DocumentIDs,
	})
}

func (s *Server) handleSearch(c *gin.Context) {
	req := searchRequest{TopK: 5, MaxContextLength: 4000}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, &rag.ValidationError{Msg: err.Error()})
		return
	}

	threshold := float32(0.1)
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
	}
	if req.MaxContextLength < 100 || req.MaxContextLength > 10000 {
		abortWithError(c, &rag.ValidationError{Msg: "max_context_length must be in [100,10000]"})
		return
	}

	cfg, err := rag.NewRetrievalConfig(req.TopK, threshold, req.EnableReranking, s.cfg.Retrieval.RerankTopK)
	if err != nil {
		abortWithError(c, err)
		return
	}

	var filter map[string]any
	if req.FilterSource != "" {
		filter = map[string]any{"document_source": req.FilterSource}
	}

	results := s.retriever.Search(c.Request.Context(), req.Query, cfg, filter)
	if results == nil {
		results = []rag.SearchResult{}
	}

	c.JSON(http.StatusOK, searchResponse{
		Success:      true,
		Query:        req.Query,
		Results:      results,
		Context:      retrieval.BuildContext(results, req.MaxContextLength),
		TotalResults: len(results),
	})
}

func (s *Server) handleSimpleSearch(c *gin.Context) {
	req := searchRequest{
		Query:            c.Param("query"),
		TopK:             5,
		MaxContextLength: 4000,
	}

	if v := c.Query("top_k"); v != "" {
		topK, err := strconv.Atoi(v)
		if err != nil {
			abortWithError(c, &rag.ValidationError{Msg: "invalid top_k value"})
			return
		}
		req.TopK = topK
	}
	if v := c.Query("threshold"); v != "" {
		threshold, err := strconv.ParseFloat(v, 32)
		if err != nil {
			abortWithError(c, &rag.ValidationError{Msg: "invalid threshold value"})
			return
		}
		f := float32(threshold)
		req.SimilarityThreshold = &f
	}

	cfg, err := rag.NewRetrievalConfig(req.TopK, thresholdOrDefault(req.SimilarityThreshold), false, s.cfg.Retrieval.RerankTopK)
	if err != nil {
		abortWithError(c, err)
		return
	}

	results := s.retriever.Search(c.Request.Context(), req.Query, cfg, nil)
	if results == nil {
		results = []rag.SearchResult{}
	}

	c.JSON(http.StatusOK, searchResponse{
		Success:      true,
		Query:        req.Query,
		Results:      results,
		Context:      retrieval.BuildContext(results, req.MaxContextLength),
		TotalResults: len(results),
	})
}

func thresholdOrDefault(t *float32) float32 {
	if t == nil {
		return 0.1
	}
	return *t
}

func (s *Server) handleDeleteBySource(c *gin.Context) {
	source := c.Param("source")

	deleted, err := s.collection.DeleteBySource(c.Request.Context(), source)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if deleted == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   fmt.Sprintf("no documents found for source %q", source),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       fmt.Sprintf("deleted %d documents for source %q", deleted, source),
		"deleted_count": deleted,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.collection.Stats(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"stats":    stats,
		"sessions": s.memory.Stats(),
	})
}

func (s *Server) handleReset(c *gin.Context) {
	if err := s.collection.Reset(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "collection reset",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	// A zero vector back from the embedder means the backend failed.
	vector := s.embedder.EmbedQuery(c.Request.Context(), "health check")
	embeddingOK := false
	for _, v := range vector {
		if v != 0 {
			embeddingOK = true
			break
		}
	}

	_, err := s.collection.Count(c.Request.Context())
	storeOK := err == nil

	status := gin.H{
		"success":           embeddingOK && storeOK,
		"embedding_service": embeddingOK,
		"vector_db":         storeOK,
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	}

	if !embeddingOK || !storeOK {
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}
