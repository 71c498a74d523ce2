package internal

import (
	"fmt"
	"os"
)

const Version = "1.0.0"

// PrintUsage writes the top-level usage and subcommand list to stderr.
func PrintUsage() {
	fmt.Fprintf(os.Stderr, `ragserve - RAG pipeline server for PDF and CSV documents

Version: %s

USAGE:
    ragserve [global options] <command> [command options]

GLOBAL OPTIONS:
    -config <path>
        Path to config file (default: ~/.ragserve/config/ragserve.yaml)

    -v, -version
        Show version information

    -h, -help
        Show this help message

COMMANDS:
    serve
        Run the HTTP API server

    ingest
        Index PDF/CSV files from a directory

    search
        Search the indexed documents

    stats
        Show collection statistics

    delete
        Delete indexed documents by source

    reset
        Delete all indexed documents

EXAMPLES:
    # Run the server
    ragserve serve

    # Ingest a directory of documents
    ragserve ingest ./docs

    # Search
    ragserve search "파이썬 리스트 정렬"

    # Show statistics
    ragserve stats -json
`, Version)
}

// PrintConfigExample writes a ready-to-edit config file example to
// stderr.
func PrintConfigExample() {
	homeDir, _ := os.UserHomeDir()

	fmt.Fprintf(os.Stderr, `Create a configuration file at %s/.ragserve/config/ragserve.yaml:

server:
  host: 0.0.0.0
  port: 8000

clova:
  base_url: https://clovastudio.stream.ntruss.com

segmentation:
  alpha: -100
  post_process_max_size: 2000
  post_process_min_size: 500

embedding:
  max_text_length: 8000

retrieval:
  top_k: 5
  similarity_threshold: 0.1

Credentials come from the environment (or a .env file):
  CLOVA_STUDIO_API_KEY=your-api-key
  CLOVA_STUDIO_REQUEST_ID=optional-request-id

Usage:
  1. Create the config file and set CLOVA_STUDIO_API_KEY
  2. Ingest documents: ragserve ingest /path/to/docs
  3. Run the server: ragserve serve
`, homeDir)
}
