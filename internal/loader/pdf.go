// Package loader extracts normalized text documents from source files.
// PDF files yield one merged Document per file; CSV files yield one
// Document per row.
package loader

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/ragstack/ragserve/internal/rag"
)

// LoadPDF extracts text per page and returns one Document per
// non-empty page, carrying the file's provenance metadata.
func LoadPDF(path string) ([]rag.Document, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", rag.ErrNotFound, path)
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".pdf" {
		return nil, &rag.UnsupportedFormatError{Ext: ext}
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	documents := make([]rag.Document, 0, totalPages)

	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Printf("failed to extract page %d of %s: %v", pageNum, path, err)
			continue
		}

		documents = append(documents, rag.Document{
			Content: text,
			Metadata: map[string]any{
				"source_file": filepath.Base(path),
				"file_type":   "pdf",
				"loader_type": "pdf",
				"page":        pageNum,
				"total_pages": totalPages,
			},
		})
	}

	log.Printf("loaded %d pages from %s", len(documents), filepath.Base(path))
	return documents, nil
}

// MergePages normalizes each page and merges all pages of one file
// into a single Document, concatenated with blank-line separators.
// Pages that normalize to nothing are dropped; a file with no
// surviving text yields no documents.
func MergePages(documents []rag.Document) []rag.Document {
	if len(documents) == 0 {
		return nil
	}

	metadata := rag.CopyMetadata(documents[0].Metadata)
	delete(metadata, "page")

	var parts []string
	for _, doc := range documents {
		if text := Normalize(doc.Content); text != "" {
			parts = append(parts, text)
		}
	}

	if len(parts) == 0 {
		return nil
	}

	return []rag.Document{{
		Content:  strings.Join(parts, "\n\n"),
		Metadata: metadata,
	}}
}

// LoadAndPreprocessPDF loads a PDF, normalizes its pages, and merges
// them into one Document per file.
func LoadAndPreprocessPDF(path string) ([]rag.Document, error) {
	documents, err := LoadPDF(path)
	if err != nil {
		return nil, err
	}
	return MergePages(documents), nil
}
