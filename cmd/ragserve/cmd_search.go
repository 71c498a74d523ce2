package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ragstack/ragserve/internal/config"
	"github.com/ragstack/ragserve/internal/rag"
	"github.com/ragstack/ragserve/internal/retrieval"
)

// handleSearch implements the search subcommand
func handleSearch(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	var (
		topK        int
		threshold   float64
		rerank      bool
		source      string
		jsonOutput  bool
		showContext bool
	)
	fs.IntVar(&topK, "top-k", cfg.Retrieval.TopK, "Maximum number of results")
	fs.Float64Var(&threshold, "threshold", float64(cfg.Retrieval.SimilarityThreshold), "Similarity threshold in [0,1]")
	fs.BoolVar(&rerank, "rerank", cfg.Retrieval.EnableReranking, "Rerank by keyword overlap")
	fs.StringVar(&source, "source", "", "Only search documents from this source")
	fs.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	fs.BoolVar(&showContext, "context", false, "Print the assembled context block")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    ragserve search [options] <query>

DESCRIPTION:
    Search the indexed documents with a natural language query.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # Basic search
    ragserve search "파이썬 파일 입출력"

    # Stricter matching with reranking
    ragserve search -top-k 3 -threshold 0.6 -rerank "list sorting"
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}
	query := strings.Join(fs.Args(), " ")

	searchCfg, err := rag.NewRetrievalConfig(topK, float32(threshold), rerank, cfg.Retrieval.RerankTopK)
	if err != nil {
		log.Fatalf("Invalid search options: %v", err)
	}

	var filter map[string]any
	if source != "" {
		filter = map[string]any{"document_source": source}
	}

	a, err := newApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	embedder, err := a.embedder()
	if err != nil {
		log.Fatalf("Failed to create embedding service: %v", err)
	}

	retriever := a.retriever(embedder)
	results := retriever.Search(context.Background(), query, searchCfg, filter)

	if jsonOutput {
		out := map[string]any{
			"query":         query,
			"results":       results,
			"total_results": len(results),
		}
		if showContext {
			out["context"] = retriever.BuildContext(results)
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode results: %v", err)
		}
		fmt.Println(string(data))
		return
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}

	for i, res := range results {
		fmt.Printf("%d. [%.3f]", i+1, res.Similarity)
		if res.RerankScore > 0 {
			fmt.Printf(" (rerank %.3f)", res.RerankScore)
		}
		if src, ok := res.Metadata["document_source"].(string); ok {
			fmt.Printf(" %s", src)
		}
		fmt.Println()
		fmt.Printf("   %s\n", truncateLine(res.Content, 200))
	}

	if showContext {
		fmt.Println("\n--- context ---")
		fmt.Println(retrieval.BuildContext(results, cfg.Retrieval.MaxContextLength))
	}
}

func truncateLine(s string, max int) string {
	runes := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "..."
}
