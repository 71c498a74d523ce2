package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server,omitempty"`
	Clova        ClovaConfig        `yaml:"clova"`
	Segmentation SegmentationConfig `yaml:"segmentation,omitempty"`
	Embedding    EmbeddingConfig    `yaml:"embedding,omitempty"`
	Store        StoreConfig        `yaml:"store,omitempty"`
	Retrieval    RetrievalConfig    `yaml:"retrieval,omitempty"`
	Memory       MemoryConfig       `yaml:"memory,omitempty"`
	Ingest       IngestConfig       `yaml:"ingest,omitempty"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// ClovaConfig holds credentials and the base URL shared by all CLOVA
// Studio services (segmentation, embedding, chat completions).
// APIKey and RequestID come from the environment
// (CLOVA_STUDIO_API_KEY, CLOVA_STUDIO_REQUEST_ID), never from the
// config file.
type ClovaConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"`
	APIKey    string `yaml:"-"`
	RequestID string `yaml:"-"`
}

// SegmentationConfig holds topic-segmentation service configuration
// and the chunking defaults passed with each request.
type SegmentationConfig struct {
	Endpoint           string        `yaml:"endpoint,omitempty"`
	Timeout            time.Duration `yaml:"timeout,omitempty"`
	Alpha              float64       `yaml:"alpha,omitempty"`
	SegCnt             int           `yaml:"seg_cnt,omitempty"`
	PostProcess        *bool         `yaml:"post_process,omitempty"`
	PostProcessMaxSize int           `yaml:"post_process_max_size,omitempty"`
	PostProcessMinSize int           `yaml:"post_process_min_size,omitempty"`
}

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	Endpoint      string        `yaml:"endpoint,omitempty"`
	Model         string        `yaml:"model,omitempty"`
	Dimensions    int           `yaml:"dimensions,omitempty"`
	MaxTextLength int           `yaml:"max_text_length,omitempty"`
	RequestDelay  time.Duration `yaml:"request_delay,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty"`
}

// StoreConfig holds vector store configuration
type StoreConfig struct {
	// Path to the SQLite database file.
	// Defaults to ~/.ragserve/data/ragserve.db
	Path       string `yaml:"path,omitempty"`
	Collection string `yaml:"collection,omitempty"`
}

// RetrievalConfig holds retrieval defaults applied when a request
// leaves them unset
type RetrievalConfig struct {
	TopK                int     `yaml:"top_k,omitempty"`
	SimilarityThreshold float32 `yaml:"similarity_threshold,omitempty"`
	EnableReranking     bool    `yaml:"enable_reranking,omitempty"`
	RerankTopK          int     `yaml:"rerank_top_k,omitempty"`
	MaxContextLength    int     `yaml:"max_context_length,omitempty"`
}

// MemoryConfig holds session memory bounds
type MemoryConfig struct {
	MaxTurns int           `yaml:"max_turns,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
}

// IngestConfig holds CLI ingestion file selection patterns
type IngestConfig struct {
	Include []string `yaml:"include,omitempty"` // doublestar glob patterns
	Exclude []string `yaml:"exclude,omitempty"`
}

// Load loads configuration from the default config file
// Default location: ~/.ragserve/config/ragserve.yaml
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".ragserve", "config", "ragserve.yaml")
	return LoadFromFile(configPath)
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			homeDir, _ := os.UserHomeDir()
			defaultPath := filepath.Join(homeDir, ".ragserve", "config", "ragserve.yaml")
			return nil, &ConfigNotFoundError{
				RequestedPath: path,
				DefaultPath:   defaultPath,
			}
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.loadEnv()
	if err := cfg.applyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration built purely from defaults and the
// environment, for running without a config file.
func Default() (*Config, error) {
	var cfg Config
	cfg.loadEnv()
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnv reads credentials from the process environment, after giving
// a local .env file a chance to populate it.
func (c *Config) loadEnv() {
	_ = godotenv.Load()
	c.Clova.APIKey = os.Getenv("CLOVA_STUDIO_API_KEY")
	c.Clova.RequestID = os.Getenv("CLOVA_STUDIO_REQUEST_ID")
}

// ConfigNotFoundError is returned when config file is not found
type ConfigNotFoundError struct {
	RequestedPath string
	DefaultPath   string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found at: %s\n\nDefault location: %s\n\nYou can:\n"+
		"  1. Create the config file at the default location\n"+
		"  2. Specify a custom path with -config flag\n"+
		"  3. Run with defaults; only CLOVA_STUDIO_API_KEY is required in the environment",
		e.RequestedPath, e.DefaultPath)
}

// IsConfigNotFound checks if error is config not found
func IsConfigNotFound(err error) bool {
	_, ok := err.(*ConfigNotFoundError)
	return ok
}

// expandPath expands ~ and $HOME to the user's home directory
// Supports both:
//
//	~/.ragserve/data/ragserve.db
//	$HOME/.ragserve/data/ragserve.db
func expandPath(path string) string {
	if strings.HasPrefix(path, "$HOME/") || path == "$HOME" {
		homeDir := os.Getenv("HOME")
		if homeDir == "" {
			var err error
			homeDir, err = os.UserHomeDir()
			if err != nil {
				return path
			}
		}
		if path == "$HOME" {
			return homeDir
		}
		return filepath.Join(homeDir, path[6:])
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return homeDir
		}
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() error {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}

	if c.Clova.BaseURL == "" {
		c.Clova.BaseURL = "https://clovastudio.stream.ntruss.com"
	}

	if c.Segmentation.Endpoint == "" {
		c.Segmentation.Endpoint = "/v1/api-tools/segmentation"
	}
	if c.Segmentation.Timeout == 0 {
		c.Segmentation.Timeout = 30 * time.Second
	}
	if c.Segmentation.Alpha == 0 {
		c.Segmentation.Alpha = -100
	}
	if c.Segmentation.SegCnt == 0 {
		c.Segmentation.SegCnt = -1
	}
	if c.Segmentation.PostProcess == nil {
		enabled := true
		c.Segmentation.PostProcess = &enabled
	}
	if c.Segmentation.PostProcessMaxSize == 0 {
		c.Segmentation.PostProcessMaxSize = 2000
	}
	if c.Segmentation.PostProcessMinSize == 0 {
		c.Segmentation.PostProcessMinSize = 500
	}

	if c.Embedding.Endpoint == "" {
		c.Embedding.Endpoint = "/v1/api-tools/embedding/v2"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "bge-m3"
	}
	if c.Embedding.Dimensions == 0 {
		c.Embedding.Dimensions = 1024
	}
	if c.Embedding.MaxTextLength == 0 {
		c.Embedding.MaxTextLength = 8000
	}
	if c.Embedding.RequestDelay == 0 {
		c.Embedding.RequestDelay = 100 * time.Millisecond
	}
	if c.Embedding.Timeout == 0 {
		c.Embedding.Timeout = 60 * time.Second
	}

	if c.Store.Path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		c.Store.Path = filepath.Join(homeDir, ".ragserve", "data", "ragserve.db")
	} else {
		c.Store.Path = expandPath(c.Store.Path)
	}
	if c.Store.Collection == "" {
		c.Store.Collection = "rag_documents"
	}

	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.SimilarityThreshold == 0 {
		c.Retrieval.SimilarityThreshold = 0.1
	}
	if c.Retrieval.RerankTopK == 0 {
		c.Retrieval.RerankTopK = 10
	}
	if c.Retrieval.MaxContextLength == 0 {
		c.Retrieval.MaxContextLength = 4000
	}

	if c.Memory.MaxTurns == 0 {
		c.Memory.MaxTurns = 10
	}
	if c.Memory.TTL == 0 {
		c.Memory.TTL = 30 * time.Minute
	}

	if len(c.Ingest.Include) == 0 {
		c.Ingest.Include = []string{"**/*.pdf", "**/*.csv"}
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in 1-65535, got: %d", c.Server.Port)
	}

	if c.Embedding.Dimensions != 1024 {
		return fmt.Errorf("dimensions must be 1024 for bge-m3, got: %d", c.Embedding.Dimensions)
	}

	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval top_k must be positive, got: %d", c.Retrieval.TopK)
	}
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got: %v", c.Retrieval.SimilarityThreshold)
	}
	if c.Retrieval.RerankTopK < c.Retrieval.TopK {
		return fmt.Errorf("rerank_top_k (%d) must be >= top_k (%d)", c.Retrieval.RerankTopK, c.Retrieval.TopK)
	}

	if c.Memory.MaxTurns < 1 {
		return fmt.Errorf("memory max_turns must be positive, got: %d", c.Memory.MaxTurns)
	}

	return nil
}

// SaveToFile saves the configuration to a specific file
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

const defaultConfigTemplate = `# ragserve configuration
#
# Copy and edit this file for your environment.
# Default location: $HOME/.ragserve/config/ragserve.yaml
#
# Credentials are environment-only:
#   CLOVA_STUDIO_API_KEY      (used by segmentation/embedding/chat)
#   CLOVA_STUDIO_REQUEST_ID   (optional)

server:
  host: 0.0.0.0
  port: 8000

clova:
  base_url: https://clovastudio.stream.ntruss.com

segmentation:
  alpha: -100
  seg_cnt: -1
  post_process: true
  post_process_max_size: 2000
  post_process_min_size: 500

embedding:
  model: bge-m3
  dimensions: 1024
  max_text_length: 8000
  request_delay: 100ms

store:
  path: ~/.ragserve/data/ragserve.db
  collection: rag_documents

retrieval:
  top_k: 5
  similarity_threshold: 0.1
  enable_reranking: false
  rerank_top_k: 10
  max_context_length: 4000

memory:
  max_turns: 10
  ttl: 30m
`

// WriteDefaultTemplate creates a default configuration file if it does not exist.
// It returns true if a file was created, false if it already existed.
func WriteDefaultTemplate(path string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return false, fmt.Errorf("failed to write config template: %w", err)
	}

	return true, nil
}
