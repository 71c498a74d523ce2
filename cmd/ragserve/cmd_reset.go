package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ragstack/ragserve/internal/config"
)

// handleReset implements the reset subcommand
func handleReset(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	var force bool
	fs.BoolVar(&force, "force", false, "Skip the confirmation prompt")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    ragserve reset [options]

DESCRIPTION:
    Delete ALL documents from the collection.

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

	ctx := context.Background()
	count, err := a.collection.Count(ctx)
	if err != nil {
		log.Fatalf("Failed to read collection: %v", err)
	}
	if count == 0 {
		fmt.Println("Collection is already empty.")
		return
	}

	if !force {
		fmt.Printf("Delete all %d documents from %q? [y/N] ", count, a.collection.Name())
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted.")
			return
		}
	}

	if err := a.collection.Reset(ctx); err != nil {
		log.Fatalf("Failed to reset collection: %v", err)
	}

	fmt.Printf("Deleted %d documents.\n", count)
}
