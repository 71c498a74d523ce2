package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ragstack/ragserve/internal/config"
)

// handleDelete implements the delete subcommand
func handleDelete(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    ragserve delete <document-source>

DESCRIPTION:
    Delete every indexed document whose document_source matches.

EXAMPLES:
    ragserve delete manual.pdf
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	source := fs.Arg(0)

	a, err := newApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	deleted, err := a.collection.DeleteBySource(context.Background(), source)
	if err != nil {
		log.Fatalf("Failed to delete documents: %v", err)
	}
	if deleted == 0 {
		fmt.Printf("No documents found for source %q\n", source)
		os.Exit(1)
	}

	fmt.Printf("Deleted %d documents for source %q\n", deleted, source)
}
