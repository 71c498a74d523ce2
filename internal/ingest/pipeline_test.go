package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ragstack/ragserve/internal/config"
	"github.com/ragstack/ragserve/internal/embedding"
	"github.com/ragstack/ragserve/internal/rag"
	"github.com/ragstack/ragserve/internal/segment"
	"github.com/ragstack/ragserve/internal/store"
)

// passthroughSegmenter returns each input text as a single segment.
type passthroughSegmenter struct{}

func (passthroughSegmenter) Segment(ctx context.Context, text string, cfg rag.ChunkingConfig) ([][]string, error) {
	return [][]string{{text}}, nil
}

// flakyEmbedder fails for texts containing the poison marker.
type flakyEmbedder struct {
	poison string
}

func (c *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.poison != "" && strings.Contains(text, c.poison) {
		return nil, errors.New("embedding backend rejected input")
	}
	v := make([]float32, rag.EmbeddingDimension)
	v[0] = 1
	return v, nil
}

func (c *flakyEmbedder) Dimensions() int {
	return rag.EmbeddingDimension
}

func newTestPipeline(t *testing.T, poison string) (*Pipeline, *store.Collection) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "ingest.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	coll, err := store.OpenCollection(db, "rag_documents")
	if err != nil {
		t.Fatalf("OpenCollection: %v", err)
	}

	splitter := segment.NewSplitterWithClient(rag.DefaultChunkingConfig(), passthroughSegmenter{})
	embedder := embedding.NewServiceWithClient(
		config.EmbeddingConfig{MaxTextLength: 8000}, &flakyEmbedder{poison: poison})

	return NewPipeline(splitter, embedder, coll, nil), coll
}

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestIngestFile(t *testing.T) {
	p, coll := newTestPipeline(t, "")
	ctx := context.Background()

	dir := t.TempDir()
	path := writeCSV(t, dir, "people.csv", "name,age\nAlice,30\nBob,25\n")

	result, err := p.IngestFile(ctx, path)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}

	if result.DocumentsLoaded != 2 {
		t.Errorf("documents loaded = %d, want 2", result.DocumentsLoaded)
	}
	if result.ChunksIndexed != 2 {
		t.Errorf("chunks indexed = %d, want 2", result.ChunksIndexed)
	}
	if result.ChunksSkipped != 0 {
		t.Errorf("chunks skipped = %d, want 0", result.ChunksSkipped)
	}

	count, err := coll.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("stored count = %d, want 2", count)
	}

	doc, err := coll.GetDocument(ctx, result.DocumentIDs[0])
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Metadata["document_source"] != "people.csv" {
		t.Errorf("document_source = %v", doc.Metadata["document_source"])
	}
	if doc.Metadata["chunk_method"] == nil {
		t.Error("chunk_method stamp missing")
	}
}

func TestIngestFileDropsFailedEmbeddings(t *testing.T) {
	p, coll := newTestPipeline(t, "Bob")
	ctx := context.Background()

	dir := t.TempDir()
	path := writeCSV(t, dir, "people.csv", "name\nAlice\nBob\nCarol\n")

	result, err := p.IngestFile(ctx, path)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}

	if result.ChunksSkipped != 1 {
		t.Errorf("chunks skipped = %d, want 1", result.ChunksSkipped)
	}
	if result.ChunksIndexed != 2 {
		t.Errorf("chunks indexed = %d, want 2", result.ChunksIndexed)
	}

	// The failed chunk never makes it into the store.
	for _, id := range result.DocumentIDs {
		doc, err := coll.GetDocument(ctx, id)
		if err != nil {
			t.Fatalf("GetDocument: %v", err)
		}
		if strings.Contains(doc.Content, "Bob") {
			t.Errorf("failed chunk was indexed: %q", doc.Content)
		}
	}
}

func TestIngestFileErrors(t *testing.T) {
	p, _ := newTestPipeline(t, "")
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := p.IngestFile(ctx, filepath.Join(dir, "missing.csv"))
		if !errors.Is(err, rag.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("unsupported format", func(t *testing.T) {
		path := writeCSV(t, dir, "notes.txt", "hello")
		_, err := p.IngestFile(ctx, path)
		var formatErr *rag.UnsupportedFormatError
		if !errors.As(err, &formatErr) {
			t.Errorf("expected UnsupportedFormatError, got %v", err)
		}
	})

	t.Run("empty file is a no-op", func(t *testing.T) {
		path := writeCSV(t, dir, "empty.csv", "name\n")
		result, err := p.IngestFile(ctx, path)
		if err != nil {
			t.Fatalf("IngestFile: %v", err)
		}
		if result.DocumentsLoaded != 0 || result.ChunksIndexed != 0 {
			t.Errorf("expected no-op result, got %+v", result)
		}
	})
}

func TestIngestDirectory(t *testing.T) {
	p, coll := newTestPipeline(t, "")
	ctx := context.Background()

	dir := t.TempDir()
	writeCSV(t, dir, "a.csv", "name\nAlice\n")
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeCSV(t, filepath.Join(dir, "sub"), "b.csv", "name\nBob\n")
	writeCSV(t, dir, "skip.txt", "ignored")

	results, err := p.IngestDirectory(ctx, dir, []string{"**/*.csv"}, nil)
	if err != nil {
		t.Fatalf("IngestDirectory: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	count, err := coll.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("stored count = %d, want 2", count)
	}
}

func TestDropSkipped(t *testing.T) {
	chunks := []rag.Document{
		{Content: "a"}, {Content: "b"}, {Content: "c"}, {Content: "d"},
	}

	kept := dropSkipped(chunks, []int{1, 3})
	if len(kept) != 2 {
		t.Fatalf("kept = %d, want 2", len(kept))
	}
	if kept[0].Content != "a" || kept[1].Content != "c" {
		t.Errorf("wrong chunks kept: %v", kept)
	}

	if got := dropSkipped(chunks, nil); len(got) != 4 {
		t.Errorf("no skips should keep all chunks, got %d", len(got))
	}
}
