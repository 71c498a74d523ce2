package ingest

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/ragstack/ragserve/internal/embedding"
	"github.com/ragstack/ragserve/internal/loader"
	"github.com/ragstack/ragserve/internal/rag"
	"github.com/ragstack/ragserve/internal/segment"
	"github.com/ragstack/ragserve/internal/store"
)

// Pipeline runs the full ingestion flow: load, chunk, embed, index.
type Pipeline struct {
	splitter   *segment.Splitter
	embedder   *embedding.Service
	collection *store.Collection
	progress   ProgressReporter
}

// Result summarizes one ingested file.
type Result struct {
	SourceFile      string   `json:"source_file"`
	DocumentsLoaded int      `json:"documents_loaded"`
	ChunksCreated   int      `json:"chunks_created"`
	ChunksIndexed   int      `json:"chunks_indexed"`
	ChunksSkipped   int      `json:"chunks_skipped"`
	DocumentIDs     []string `json:"document_ids,omitempty"`
}

// NewPipeline creates an ingestion pipeline. progress may be nil.
func NewPipeline(splitter *segment.Splitter, embedder *embedding.Service, collection *store.Collection, progress ProgressReporter) *Pipeline {
	return &Pipeline{
		splitter:   splitter,
		embedder:   embedder,
		collection: collection,
		progress:   progress,
	}
}

// IngestFile loads a single PDF or CSV file, chunks it, embeds the
// chunks, and indexes them. Chunks whose embedding fails are dropped
// so the stored documents and vectors stay aligned.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*Result, error) {
	result := &Result{SourceFile: filepath.Base(path)}

	docs, err := loader.LoadAndPreprocess(path)
	if err != nil {
		return nil, err
	}
	result.DocumentsLoaded = len(docs)
	if len(docs) == 0 {
		log.Printf("no content extracted from %s", result.SourceFile)
		return result, nil
	}

	chunks := p.splitter.SplitDocuments(ctx, docs, p.splitter.Defaults())
	result.ChunksCreated = len(chunks)
	if len(chunks) == 0 {
		return result, nil
	}

	return p.indexChunks(ctx, result, chunks)
}

// IngestDocuments chunks, embeds, and indexes already-loaded
// documents under the given source name, using the supplied chunking
// configuration. Used by the upload endpoint.
func (p *Pipeline) IngestDocuments(ctx context.Context, source string, docs []rag.Document, cfg rag.ChunkingConfig) (*Result, error) {
	result := &Result{SourceFile: source, DocumentsLoaded: len(docs)}
	if len(docs) == 0 {
		return result, nil
	}

	chunks := p.splitter.SplitDocuments(ctx, docs, cfg)
	result.ChunksCreated = len(chunks)
	if len(chunks) == 0 {
		return result, nil
	}

	return p.indexChunks(ctx, result, chunks)
}

func (p *Pipeline) indexChunks(ctx context.Context, result *Result, chunks []rag.Document) (*Result, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, skipped := p.embedder.EmbedDocuments(ctx, texts)
	result.ChunksSkipped = len(skipped)

	kept := dropSkipped(chunks, skipped)
	if len(kept) == 0 {
		log.Printf("all %d chunks from %s failed to embed", len(chunks), result.SourceFile)
		return result, nil
	}

	ids, err := p.collection.AddDocuments(ctx, kept, vectors, result.SourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to index %s: %w", result.SourceFile, err)
	}

	result.ChunksIndexed = len(ids)
	result.DocumentIDs = ids
	return result, nil
}

// dropSkipped removes the chunks at the skipped indices, preserving
// order, so the remainder aligns one-to-one with the vectors.
func dropSkipped(chunks []rag.Document, skipped []int) []rag.Document {
	if len(skipped) == 0 {
		return chunks
	}

	skip := make(map[int]bool, len(skipped))
	for _, idx := range skipped {
		skip[idx] = true
	}

	kept := make([]rag.Document, 0, len(chunks)-len(skipped))
	for i, chunk := range chunks {
		if skip[i] {
			continue
		}
		kept = append(kept, chunk)
	}
	return kept
}

// IngestDirectory walks root for files matching the include patterns
// and ingests each one. Per-file failures are logged and skipped so
// one bad file does not abort a batch run.
func (p *Pipeline) IngestDirectory(ctx context.Context, root string, include, exclude []string) ([]Result, error) {
	startTime := time.Now()

	files, err := loader.FindFiles(root, include, exclude)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		log.Printf("no matching files under %s", root)
		return nil, nil
	}

	if p.progress != nil {
		p.progress.Start(len(files))
		defer p.progress.Finish()
	}

	results := make([]Result, 0, len(files))
	for _, relPath := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, err := p.IngestFile(ctx, filepath.Join(root, relPath))
		if err != nil {
			log.Printf("skipping %s: %v", relPath, err)
		} else {
			results = append(results, *result)
		}

		if p.progress != nil {
			p.progress.Increment()
		}
	}

	var indexed int
	for _, r := range results {
		indexed += r.ChunksIndexed
	}
	log.Printf("ingested %d files, %d chunks in %v", len(results), indexed, time.Since(startTime))

	return results, nil
}
