package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ragstack/ragserve/internal/config"
)

// handleStats implements the stats subcommand
func handleStats(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	var jsonOutput bool
	fs.BoolVar(&jsonOutput, "json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    ragserve stats [options]

DESCRIPTION:
    Show statistics about the document collection.

OPTIONS:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	stats, err := a.collection.Stats(context.Background())
	if err != nil {
		log.Fatalf("Failed to read statistics: %v", err)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode statistics: %v", err)
		}
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Collection:       %s\n", stats.CollectionName)
	fmt.Printf("Documents:        %d\n", stats.TotalDocuments)
	fmt.Printf("Database:         %s\n", stats.PersistDirectory)
	fmt.Printf("Similarity:       %s\n", stats.SimilarityMetric)
	fmt.Printf("Embedding model:  %s (%d dims)\n", stats.EmbeddingModel, stats.EmbeddingDimension)
}
