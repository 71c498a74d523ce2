package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ragstack/ragserve/internal/rag"
)

// LoadAndPreprocess dispatches on the file extension and returns
// normalized Documents: one per PDF file, one per CSV row. Documents
// whose text is empty after normalization are dropped.
func LoadAndPreprocess(path string) ([]rag.Document, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", rag.ErrNotFound, path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		return LoadAndPreprocessPDF(path)
	case ".csv":
		return LoadAndPreprocessCSV(path)
	default:
		return nil, &rag.UnsupportedFormatError{Ext: ext}
	}
}

// FindFiles walks root and returns the relative paths matching any
// include pattern and no exclude pattern. Patterns use doublestar
// globs ("**/*.pdf"). Results are sorted for deterministic ingestion
// order.
func FindFiles(root string, include, exclude []string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if !matchesAny(include, relPath) {
			return nil
		}
		if matchesAny(exclude, relPath) {
			return nil
		}

		files = append(files, relPath)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

func matchesAny(patterns []string, relPath string) bool {
	for _, pattern := range patterns {
		if matched, _ := doublestar.Match(pattern, relPath); matched {
			return true
		}
		if matched, _ := doublestar.Match(pattern, filepath.Base(relPath)); matched {
			return true
		}
	}
	return false
}
