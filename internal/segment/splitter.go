package segment

import (
	"context"
	"log"
	"strings"

	"github.com/ragstack/ragserve/internal/config"
	"github.com/ragstack/ragserve/internal/rag"
)

// maxInputLength caps the text sent to the segmentation service.
// Longer inputs are truncated with a warning.
const maxInputLength = 120000

// fallbackMaxChunkSize bounds chunks produced by the local splitter.
const fallbackMaxChunkSize = 2000

// minSentenceLength is the minimum accumulated length before a
// terminal character closes a sentence in the local splitter.
const minSentenceLength = 10

// Chunk method names stamped into chunk metadata.
const (
	MethodSegmentationAPI  = "segmentation_api"
	MethodSentenceFallback = "sentence_fallback"
)

// Splitter chunks text via the segmentation API with a local fallback
type Splitter struct {
	defaults rag.ChunkingConfig
	client   Client
}

// NewSplitter creates a Splitter backed by the CLOVA segmentation API
func NewSplitter(clova config.ClovaConfig, cfg config.SegmentationConfig) *Splitter {
	defaults := rag.ChunkingConfig{
		Alpha:              cfg.Alpha,
		SegCnt:             cfg.SegCnt,
		PostProcess:        cfg.PostProcess == nil || *cfg.PostProcess,
		PostProcessMaxSize: cfg.PostProcessMaxSize,
		PostProcessMinSize: cfg.PostProcessMinSize,
	}
	return &Splitter{
		defaults: defaults,
		client:   NewClovaClient(clova, cfg),
	}
}

// NewSplitterWithClient creates a Splitter around an existing client.
func NewSplitterWithClient(defaults rag.ChunkingConfig, client Client) *Splitter {
	return &Splitter{defaults: defaults, client: client}
}

// Defaults returns the chunking defaults this splitter was built with.
func (s *Splitter) Defaults() rag.ChunkingConfig {
	return s.defaults
}

// Split chunks text into an ordered sequence of chunk strings, and
// reports the method that produced them. Any failure of the
// segmentation service degrades to the local sentence splitter.
func (s *Splitter) Split(ctx context.Context, text string, cfg rag.ChunkingConfig) ([]string, string) {
	if strings.TrimSpace(text) == "" {
		return nil, MethodSegmentationAPI
	}

	if runes := []rune(text); len(runes) > maxInputLength {
		log.Printf("segmentation input exceeds %d chars, truncating", maxInputLength)
		text = string(runes[:maxInputLength])
	}

	segments, err := s.client.Segment(ctx, text, cfg)
	if err != nil {
		log.Printf("segmentation service failed, using sentence fallback: %v", err)
		return fallbackSplit(text), MethodSentenceFallback
	}

	chunks := make([]string, 0, len(segments))
	for _, seg := range segments {
		chunk := strings.TrimSpace(strings.Join(seg, " "))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}

	log.Printf("segmentation service produced %d chunks", len(chunks))
	return chunks, MethodSegmentationAPI
}

// SplitDocuments chunks each document and emits one chunk Document per
// chunk, carrying the source metadata plus chunk indices and length
// statistics.
func (s *Splitter) SplitDocuments(ctx context.Context, documents []rag.Document, cfg rag.ChunkingConfig) []rag.Document {
	var out []rag.Document

	for _, doc := range documents {
		chunks, method := s.Split(ctx, doc.Content, cfg)

		for i, chunk := range chunks {
			metadata := rag.CopyMetadata(doc.Metadata)
			metadata["chunk_index"] = i
			metadata["total_chunks"] = len(chunks)
			metadata["chunk_method"] = method
			metadata["original_length"] = len([]rune(doc.Content))
			metadata["chunk_length"] = len([]rune(chunk))

			out = append(out, rag.Document{Content: chunk, Metadata: metadata})
		}
	}

	log.Printf("split %d documents into %d chunks", len(documents), len(out))
	return out
}

// fallbackSplit splits text into sentences with a simple terminal-char
// scan, then greedily packs sentences into chunks no larger than
// fallbackMaxChunkSize.
func fallbackSplit(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && len([]rune(strings.TrimSpace(current.String()))) > minSentenceLength {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		sentences = append(sentences, rest)
	}

	var chunks []string
	var chunk strings.Builder

	for _, sentence := range sentences {
		if len([]rune(chunk.String()))+len([]rune(sentence)) <= fallbackMaxChunkSize {
			chunk.WriteString(sentence)
			chunk.WriteString(" ")
		} else {
			if trimmed := strings.TrimSpace(chunk.String()); trimmed != "" {
				chunks = append(chunks, trimmed)
			}
			chunk.Reset()
			chunk.WriteString(sentence)
			chunk.WriteString(" ")
		}
	}
	if trimmed := strings.TrimSpace(chunk.String()); trimmed != "" {
		chunks = append(chunks, trimmed)
	}

	return chunks
}
