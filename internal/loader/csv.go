package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"

	"github.com/ragstack/ragserve/internal/rag"
)

// fallbackEncodings is the decode sequence tried after UTF-8 fails.
// x/text's EUC-KR table is Code Page 949, covering both the cp949 and
// euc-kr attempts; Latin-1 is the last resort and always decodes.
var fallbackEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"cp949", korean.EUCKR},
	{"euc-kr", korean.EUCKR},
	{"latin-1", charmap.ISO8859_1},
}

// LoadCSV reads a CSV file and returns one Document per row. Row text
// is "col: value | col: value" over non-blank cells; metadata carries
// the row index, total row count, and a per-column snapshot.
func LoadCSV(path string) ([]rag.Document, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", rag.ErrNotFound, path)
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".csv" {
		return nil, &rag.UnsupportedFormatError{Ext: ext}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	decoded, err := decodeText(raw)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(decoded))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}

	if len(records) < 2 {
		log.Printf("csv %s has no data rows", filepath.Base(path))
		return nil, nil
	}

	header := records[0]
	rows := records[1:]
	documents := make([]rag.Document, 0, len(rows))

	for rowIdx, row := range rows {
		var parts []string
		metadata := map[string]any{
			"source_file": filepath.Base(path),
			"file_type":   "csv",
			"loader_type": "csv",
			"row_index":   rowIdx,
			"total_rows":  len(rows),
		}

		for colIdx, col := range header {
			value := ""
			if colIdx < len(row) {
				value = strings.TrimSpace(row[colIdx])
			}
			metadata["col_"+col] = value
			if value != "" {
				parts = append(parts, col+": "+value)
			}
		}

		documents = append(documents, rag.Document{
			Content:  strings.Join(parts, " | "),
			Metadata: metadata,
		})
	}

	log.Printf("loaded %d rows from %s", len(documents), filepath.Base(path))
	return documents, nil
}

// LoadAndPreprocessCSV loads a CSV and drops rows whose text is empty
// after whitespace normalization.
func LoadAndPreprocessCSV(path string) ([]rag.Document, error) {
	documents, err := LoadCSV(path)
	if err != nil {
		return nil, err
	}

	out := make([]rag.Document, 0, len(documents))
	for _, doc := range documents {
		text := strings.TrimSpace(spaceRe.ReplaceAllString(doc.Content, " "))
		if text == "" {
			continue
		}
		out = append(out, rag.Document{Content: text, Metadata: doc.Metadata})
	}
	return out, nil
}

// decodeText decodes raw bytes as UTF-8, then retries the fixed
// fallback encoding sequence before giving up with a DecodingError.
func decodeText(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}

	tried := []string{"utf-8"}
	for _, fb := range fallbackEncodings {
		tried = append(tried, fb.name)
		decoded, err := fb.enc.NewDecoder().Bytes(raw)
		if err != nil {
			continue
		}
		// The Korean decoder substitutes U+FFFD for invalid input
		// instead of erroring; treat that as a failed attempt.
		if bytes.ContainsRune(decoded, utf8.RuneError) {
			continue
		}
		return string(decoded), nil
	}

	return "", &rag.DecodingError{Encodings: tried}
}
