package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ragstack/ragserve/internal/config"
	"github.com/ragstack/ragserve/internal/ingest"
)

// handleIngest implements the ingest subcommand
func handleIngest(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	var (
		include  string
		exclude  string
		progress bool
	)
	fs.StringVar(&include, "include", "", "Comma-separated glob patterns (default from config)")
	fs.StringVar(&exclude, "exclude", "", "Comma-separated glob patterns to skip")
	fs.BoolVar(&progress, "progress", ingest.DefaultProgressEnabled(), "Show a progress bar")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    ragserve ingest [options] <path>

DESCRIPTION:
    Index PDF and CSV documents into the vector store. <path> may be a
    single file or a directory walked with the include/exclude globs.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # Ingest a directory
    ragserve ingest ./docs

    # Ingest one file
    ragserve ingest ./docs/manual.pdf

    # Only CSVs, skipping a subdirectory
    ragserve ingest -include "**/*.csv" -exclude "archive/**" ./data
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	path := fs.Arg(0)

	includePatterns := cfg.Ingest.Include
	if include != "" {
		includePatterns = splitPatterns(include)
	}
	excludePatterns := cfg.Ingest.Exclude
	if exclude != "" {
		excludePatterns = splitPatterns(exclude)
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

	pipeline := a.pipeline(embedder, ingest.NewProgress(progress))
	ctx := context.Background()

	info, err := os.Stat(path)
	if err != nil {
		log.Fatalf("Cannot access %s: %v", path, err)
	}

	var results []ingest.Result
	if info.IsDir() {
		results, err = pipeline.IngestDirectory(ctx, path, includePatterns, excludePatterns)
		if err != nil {
			log.Fatalf("Ingestion failed: %v", err)
		}
	} else {
		result, err := pipeline.IngestFile(ctx, path)
		if err != nil {
			log.Fatalf("Ingestion failed: %v", err)
		}
		results = []ingest.Result{*result}
	}

	var indexed, skipped int
	for _, r := range results {
		fmt.Printf("%-40s %3d documents, %3d chunks indexed", r.SourceFile, r.DocumentsLoaded, r.ChunksIndexed)
		if r.ChunksSkipped > 0 {
			fmt.Printf(" (%d skipped)", r.ChunksSkipped)
		}
		fmt.Println()
		indexed += r.ChunksIndexed
		skipped += r.ChunksSkipped
	}
	fmt.Printf("\nDone: %d files, %d chunks indexed, %d skipped\n", len(results), indexed, skipped)
}

func splitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
