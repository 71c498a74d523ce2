package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ragstack/ragserve/internal/chat"
	"github.com/ragstack/ragserve/internal/config"
	"github.com/ragstack/ragserve/internal/memory"
	"github.com/ragstack/ragserve/internal/server"
)

// handleServe implements the serve subcommand
func handleServe(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var port int
	fs.IntVar(&port, "port", 0, "Override the configured port")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    ragserve serve [options]

DESCRIPTION:
    Run the HTTP API server (document upload, search, chat proxy).

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # Serve on the configured port
    ragserve serve

    # Serve on a different port
    ragserve serve -port 9000
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}
	if port != 0 {
		cfg.Server.Port = port
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

	mem := memory.NewStore(cfg.Memory.MaxTurns, cfg.Memory.TTL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mem.StartReaper(ctx)

	chatClient, err := chat.NewClient(cfg.Clova)
	if err != nil {
		log.Printf("Chat proxy disabled: %v", err)
		chatClient = nil
	}

	srv := server.New(
		cfg,
		a.collection,
		embedder,
		a.retriever(embedder),
		a.pipeline(embedder, nil),
		mem,
		chatClient,
	)

	log.Printf("Serving on %s:%d", cfg.Server.Host, cfg.Server.Port)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
