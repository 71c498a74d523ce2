package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ragstack/ragserve/internal/embedding"
	"github.com/ragstack/ragserve/internal/rag"
)

// Collection is a named set of documents with fixed-dimension vectors.
// All similarity search is a brute-force scan over the collection's
// vectors, which is fine for the corpus sizes this serves.
// TODO: For larger datasets, implement approximate nearest neighbor (ANN) indexing
type Collection struct {
	db        *DB
	id        int64
	name      string
	dimension int
	metric    string
	model     string
}

// StoredDocument is a document as persisted, without its vector.
type StoredDocument struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// OpenCollection returns the named collection, creating it on first
// use with the configured embedding dimension and cosine metric.
func OpenCollection(db *DB, name string) (*Collection, error) {
	c := &Collection{
		db:        db,
		name:      name,
		dimension: rag.EmbeddingDimension,
		metric:    rag.SimilarityMetric,
		model:     rag.EmbeddingModel,
	}

	var dimension int
	err := db.sqlDB.QueryRow(
		"SELECT id, dimension, metric, embedding_model FROM collections WHERE name = ?", name,
	).Scan(&c.id, &dimension, &c.metric, &c.model)
	switch {
	case err == sql.ErrNoRows:
		res, err := db.sqlDB.Exec(
			"INSERT INTO collections (name, dimension, metric, embedding_model, created_at) VALUES (?, ?, ?, ?, ?)",
			name, c.dimension, c.metric, c.model, time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create collection %s: %w", name, err)
		}
		c.id, err = res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get collection id: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load collection %s: %w", name, err)
	default:
		if dimension != c.dimension {
			return nil, &rag.ValidationError{
				Msg: fmt.Sprintf("collection %s has dimension %d, expected %d", name, dimension, c.dimension),
			}
		}
	}

	return c, nil
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// AddDocuments stores documents with their vectors and returns the
// generated document IDs. Documents and vectors must align one-to-one.
// Each stored document's metadata is stamped with the indexing time,
// embedding model, similarity metric, and, when source is non-empty,
// the document_source that DeleteBySource matches on.
func (c *Collection) AddDocuments(ctx context.Context, docs []rag.Document, vectors [][]float32, source string) ([]string, error) {
	if len(docs) != len(vectors) {
		return nil, &rag.ValidationError{
			Msg: fmt.Sprintf("document count %d does not match vector count %d", len(docs), len(vectors)),
		}
	}
	if len(docs) == 0 {
		return nil, nil
	}

	for i, vector := range vectors {
		if len(vector) != c.dimension {
			return nil, &rag.ValidationError{
				Msg: fmt.Sprintf("vector %d has dimension %d, expected %d", i, len(vector), c.dimension),
			}
		}
	}

	tx, err := c.db.BeginTx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, collection_id, content, metadata, vector, dimension, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	ids := make([]string, 0, len(docs))

	for i, doc := range docs {
		id := uuid.NewString()

		metadata := rag.CopyMetadata(doc.Metadata)
		metadata["indexed_at"] = now
		metadata["embedding_model"] = c.model
		metadata["similarity_metric"] = c.metric
		if source != "" {
			metadata["document_source"] = source
		}

		metaJSON, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata for document %d: %w", i, err)
		}

		if _, err := stmt.ExecContext(ctx, id, c.id, doc.Content, string(metaJSON), vectorToBlob(vectors[i]), c.dimension, now, now); err != nil {
			return nil, fmt.Errorf("failed to insert document %d: %w", i, err)
		}

		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return ids, nil
}

// SearchSimilar scans the collection and returns the topK documents
// nearest to queryVector by remapped cosine similarity, most similar
// first. filter keeps only documents whose metadata matches every
// key/value pair exactly.
func (c *Collection) SearchSimilar(ctx context.Context, queryVector []float32, topK int, filter map[string]any) ([]rag.SearchResult, error) {
	if len(queryVector) != c.dimension {
		return nil, &rag.ValidationError{
			Msg: fmt.Sprintf("query vector has dimension %d, expected %d", len(queryVector), c.dimension),
		}
	}
	if topK < 1 {
		return nil, &rag.ValidationError{Msg: "topK must be at least 1"}
	}

	rows, err := c.db.sqlDB.QueryContext(ctx,
		"SELECT id, content, metadata, vector FROM documents WHERE collection_id = ?", c.id)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var results []rag.SearchResult

	for rows.Next() {
		var (
			id       string
			content  string
			metaJSON string
			blob     []byte
		)
		if err := rows.Scan(&id, &content, &metaJSON, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		vector, err := blobToVector(blob)
		if err != nil || len(vector) != len(queryVector) {
			continue // Skip malformed vectors
		}

		metadata := map[string]any{}
		if err := json.Unmarshal([]byte(metaJSON), &metadata); err != nil {
			continue
		}
		if !matchesFilter(metadata, filter) {
			continue
		}

		similarity := embedding.Similarity(queryVector, vector)
		results = append(results, rag.SearchResult{
			ID:         id,
			Content:    content,
			Metadata:   metadata,
			Similarity: similarity,
			Distance:   1 - similarity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// matchesFilter reports whether metadata satisfies every filter entry.
// Values are compared by their string form so JSON-decoded numbers
// still match native ints.
func matchesFilter(metadata, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// GetDocument returns a stored document by ID.
func (c *Collection) GetDocument(ctx context.Context, id string) (*StoredDocument, error) {
	var (
		doc       StoredDocument
		metaJSON  string
		createdAt any
		updatedAt any
	)

	err := c.db.sqlDB.QueryRowContext(ctx,
		"SELECT id, content, metadata, created_at, updated_at FROM documents WHERE collection_id = ? AND id = ?",
		c.id, id,
	).Scan(&doc.ID, &doc.Content, &metaJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: document %s", rag.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	if err := json.Unmarshal([]byte(metaJSON), &doc.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if doc.CreatedAt, err = parseTimeValue(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if doc.UpdatedAt, err = parseTimeValue(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &doc, nil
}

// UpdateDocument replaces the content, metadata, and/or vector of a
// document. Nil arguments leave the corresponding field unchanged.
// The metadata update_at stamp always moves forward.
func (c *Collection) UpdateDocument(ctx context.Context, id string, content *string, metadata map[string]any, vector []float32) error {
	existing, err := c.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	newContent := existing.Content
	if content != nil {
		newContent = *content
	}

	newMeta := existing.Metadata
	if metadata != nil {
		newMeta = rag.CopyMetadata(metadata)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	newMeta["updated_at"] = now

	metaJSON, err := json.Marshal(newMeta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	if vector != nil {
		if len(vector) != c.dimension {
			return &rag.ValidationError{
				Msg: fmt.Sprintf("vector has dimension %d, expected %d", len(vector), c.dimension),
			}
		}
		_, err = c.db.sqlDB.ExecContext(ctx,
			"UPDATE documents SET content = ?, metadata = ?, vector = ?, updated_at = ? WHERE collection_id = ? AND id = ?",
			newContent, string(metaJSON), vectorToBlob(vector), now, c.id, id)
	} else {
		_, err = c.db.sqlDB.ExecContext(ctx,
			"UPDATE documents SET content = ?, metadata = ?, updated_at = ? WHERE collection_id = ? AND id = ?",
			newContent, string(metaJSON), now, c.id, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	return nil
}

// DeleteDocument removes a document by ID.
func (c *Collection) DeleteDocument(ctx context.Context, id string) error {
	res, err := c.db.sqlDB.ExecContext(ctx,
		"DELETE FROM documents WHERE collection_id = ? AND id = ?", c.id, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: document %s", rag.ErrNotFound, id)
	}

	return nil
}

// DeleteBySource removes every document whose metadata document_source
// equals source and returns how many were deleted.
func (c *Collection) DeleteBySource(ctx context.Context, source string) (int, error) {
	res, err := c.db.sqlDB.ExecContext(ctx,
		"DELETE FROM documents WHERE collection_id = ? AND json_extract(metadata, '$.document_source') = ?",
		c.id, source)
	if err != nil {
		return 0, fmt.Errorf("failed to delete documents by source: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check delete result: %w", err)
	}

	return int(affected), nil
}

// Count returns the number of documents in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	var count int
	err := c.db.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE collection_id = ?", c.id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// Stats summarizes the collection for the stats endpoint and CLI.
func (c *Collection) Stats(ctx context.Context) (rag.IndexStats, error) {
	count, err := c.Count(ctx)
	if err != nil {
		return rag.IndexStats{}, err
	}

	return rag.IndexStats{
		CollectionName:     c.name,
		TotalDocuments:     count,
		PersistDirectory:   c.db.Path(),
		SimilarityMetric:   c.metric,
		EmbeddingDimension: c.dimension,
		EmbeddingModel:     c.model,
	}, nil
}

// Reset deletes every document in the collection, keeping the
// collection itself.
func (c *Collection) Reset(ctx context.Context) error {
	if _, err := c.db.sqlDB.ExecContext(ctx,
		"DELETE FROM documents WHERE collection_id = ?", c.id); err != nil {
		return fmt.Errorf("failed to reset collection: %w", err)
	}
	return nil
}
