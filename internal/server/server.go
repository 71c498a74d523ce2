// Package server exposes the RAG pipeline over HTTP: document upload
// and indexing, search, collection management, and a chat completions
// proxy with optional retrieval augmentation and session memory.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ragstack/ragserve/internal/chat"
	"github.com/ragstack/ragserve/internal/config"
	"github.com/ragstack/ragserve/internal/embedding"
	"github.com/ragstack/ragserve/internal/ingest"
	"github.com/ragstack/ragserve/internal/memory"
	"github.com/ragstack/ragserve/internal/rag"
	"github.com/ragstack/ragserve/internal/retrieval"
	"github.com/ragstack/ragserve/internal/store"
)

// maxUploadSize caps document uploads at 50MB.
const maxUploadSize = 50 << 20

// Server wires the HTTP layer to the RAG components.
type Server struct {
	cfg        *config.Config
	collection *store.Collection
	embedder   *embedding.Service
	retriever  *retrieval.Retriever
	pipeline   *ingest.Pipeline
	memory     *memory.Store
	chatClient *chat.Client
}

// New creates a server. chatClient may be nil when no API key is
// configured; chat routes then answer 503.
func New(
	cfg *config.Config,
	collection *store.Collection,
	embedder *embedding.Service,
	retriever *retrieval.Retriever,
	pipeline *ingest.Pipeline,
	mem *memory.Store,
	chatClient *chat.Client,
) *Server {
	return &Server{
		cfg:        cfg,
		collection: collection,
		embedder:   embedder,
		retriever:  retriever,
		pipeline:   pipeline,
		memory:     mem,
		chatClient: chatClient,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	api := r.Group("/api/v1")
	{
		ragGroup := api.Group("/rag")
		{
			ragGroup.POST("/documents/upload", s.handleUpload)
			ragGroup.POST("/search", s.handleSearch)
			ragGroup.GET("/search/:query", s.handleSimpleSearch)
			ragGroup.DELETE("/documents/:source", s.handleDeleteBySource)
			ragGroup.GET("/stats", s.handleStats)
			ragGroup.DELETE("/reset", s.handleReset)
			ragGroup.GET("/health", s.handleHealth)
		}

		chatGroup := api.Group("/chat")
		{
			chatGroup.POST("/completions/:model", s.handleChatCompletion)
			chatGroup.POST("/completions/:model/stream", s.handleChatStream)
		}
	}

	return r
}

// Run serves HTTP on the configured host and port until the listener
// fails.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	return s.Router().Run(addr)
}

// errorStatus maps the error taxonomy onto HTTP status codes:
// caller mistakes become 4xx, upstream failures 502, the rest 500.
func errorStatus(err error) int {
	var (
		validationErr *rag.ValidationError
		formatErr     *rag.UnsupportedFormatError
		decodingErr   *rag.DecodingError
		serviceErr    *rag.ExternalServiceError
	)

	switch {
	case errors.Is(err, rag.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &validationErr), errors.As(err, &formatErr), errors.As(err, &decodingErr):
		return http.StatusBadRequest
	case errors.As(err, &serviceErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{"success": false, "error": err.Error()})
}
