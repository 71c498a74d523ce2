package main

import (
	"fmt"

	"github.com/ragstack/ragserve/internal/config"
	"github.com/ragstack/ragserve/internal/embedding"
	"github.com/ragstack/ragserve/internal/ingest"
	"github.com/ragstack/ragserve/internal/rag"
	"github.com/ragstack/ragserve/internal/retrieval"
	"github.com/ragstack/ragserve/internal/segment"
	"github.com/ragstack/ragserve/internal/store"
)

// app holds the components shared by the subcommands. The embedding
// service is built on demand so commands that never call the API
// (stats, delete, reset) work without credentials.
type app struct {
	cfg        *config.Config
	db         *store.DB
	collection *store.Collection
}

func newApp(cfg *config.Config) (*app, error) {
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	collection, err := store.OpenCollection(db, cfg.Store.Collection)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}

	return &app{cfg: cfg, db: db, collection: collection}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) embedder() (*embedding.Service, error) {
	return embedding.NewService(a.cfg.Clova, a.cfg.Embedding)
}

func (a *app) splitter() *segment.Splitter {
	return segment.NewSplitter(a.cfg.Clova, a.cfg.Segmentation)
}

func (a *app) retriever(embedder *embedding.Service) *retrieval.Retriever {
	defaults := rag.RetrievalConfig{
		TopK:                a.cfg.Retrieval.TopK,
		SimilarityThreshold: a.cfg.Retrieval.SimilarityThreshold,
		EnableReranking:     a.cfg.Retrieval.EnableReranking,
		RerankTopK:          a.cfg.Retrieval.RerankTopK,
	}
	return retrieval.NewRetriever(a.collection, embedder, defaults, a.cfg.Retrieval.MaxContextLength)
}

func (a *app) pipeline(embedder *embedding.Service, progress ingest.ProgressReporter) *ingest.Pipeline {
	return ingest.NewPipeline(a.splitter(), embedder, a.collection, progress)
}
