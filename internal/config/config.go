package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvLLMModel       = "GROQ_MODEL"
	EnvEmbeddingModel = "EMBEDDING_MODEL"
	EnvPersistDir     = "DOCQA_PERSIST_DIR"
)

// LLMConfig configures the OpenAI-compatible chat completion backend.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env" toml:"api_key_env"`
	Model       string  `yaml:"model" toml:"model"`
	Temperature float64 `yaml:"temperature" toml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs" toml:"timeout_secs"`
	Concurrency int     `yaml:"concurrency" toml:"concurrency"`
}

// HashingEmbedderConfig configures the local feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension" toml:"dimension"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env" toml:"api_key_env"`
	Model             string  `yaml:"model" toml:"model"`
	TimeoutSecs       int     `yaml:"timeout_secs" toml:"timeout_secs"`
	BatchSize         int     `yaml:"batch_size" toml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type" toml:"type"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty" toml:"hashing,omitempty"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty" toml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string   `yaml:"type" toml:"type"`
	ChunkSize         int      `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap      int      `yaml:"chunk_overlap" toml:"chunk_overlap"`
	Separators        []string `yaml:"separators,omitempty" toml:"separators,omitempty"`
	SentencesPerChunk int      `yaml:"sentences_per_chunk" toml:"sentences_per_chunk"`
	OverlapSentences  int      `yaml:"overlap_sentences" toml:"overlap_sentences"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type            string        `yaml:"type" toml:"type"`
	PersistDir      string        `yaml:"persist_dir" toml:"persist_dir"`
	Collection      string        `yaml:"collection" toml:"collection"`
	BatchSize       int           `yaml:"batch_size" toml:"batch_size"`
	TimeoutSecs     int           `yaml:"timeout_secs" toml:"timeout_secs"`
	KeywordFallback bool          `yaml:"keyword_fallback" toml:"keyword_fallback"`
	Qdrant          *QdrantConfig `yaml:"qdrant,omitempty" toml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url" toml:"url"`
	APIKey      string `yaml:"api_key" toml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// RetrievalConfig configures question answering.
type RetrievalConfig struct {
	K           int `yaml:"k" toml:"k"`
	TimeoutSecs int `yaml:"timeout_secs" toml:"timeout_secs"`
}

// LoaderConfig configures document loading.
type LoaderConfig struct {
	MaxFileSizeMB int    `yaml:"max_file_size_mb" toml:"max_file_size_mb"`
	UploadDir     string `yaml:"upload_dir" toml:"upload_dir"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type" toml:"type"`
	MaxSentences int    `yaml:"max_sentences" toml:"max_sentences"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	LLM         LLMConfig         `yaml:"llm" toml:"llm"`
	Embedder    EmbedderConfig    `yaml:"embedder" toml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker" toml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" toml:"retrieval"`
	Loader      LoaderConfig      `yaml:"loader" toml:"loader"`
	Summarizer  SummarizerConfig  `yaml:"summarizer" toml:"summarizer"`
	Log         LogConfig         `yaml:"log" toml:"log"`
}

// Load reads a config from a specified path. The format follows the file
// extension (.toml, otherwise YAML). Fields absent from the file keep their
// defaults. A missing file yields the defaults.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}
	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml, ./config.toml, then ~/.config/docqa/config.yaml.
// If none exists, it writes defaults to ~/.config/docqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	for _, p := range []string{"config.yaml", "config.toml"} {
		if _, err := os.Stat(p); err == nil {
			cfg, err := Load(p)
			return cfg, p, err
		}
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnv(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the built-in configuration.
func Default() *AppConfig { return defaultConfig() }

func (c LLMConfig) Timeout() time.Duration         { return secs(c.TimeoutSecs) }
func (c VectorStoreConfig) Timeout() time.Duration { return secs(c.TimeoutSecs) }
func (c RetrievalConfig) Timeout() time.Duration   { return secs(c.TimeoutSecs) }
func (c QdrantConfig) Timeout() time.Duration      { return secs(c.TimeoutSecs) }
func (c OpenAIEmbedderConfig) Timeout() time.Duration {
	return secs(c.TimeoutSecs)
}

// MaxFileSize returns the loader limit in bytes.
func (c LoaderConfig) MaxFileSize() int64 { return int64(c.MaxFileSizeMB) << 20 }

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		LLM: LLMConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			APIKeyEnv:   "GROQ_API_KEY",
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.1,
			MaxTokens:   1024,
			TimeoutSecs: 120,
			Concurrency: 4,
		},
		Embedder: EmbedderConfig{Type: "hashing", Hashing: &HashingEmbedderConfig{Dimension: 1024}},
		Chunker: ChunkerConfig{
			Type:              "recursive",
			ChunkSize:         1000,
			ChunkOverlap:      200,
			SentencesPerChunk: 5,
			OverlapSentences:  1,
		},
		VectorStore: VectorStoreConfig{
			Type:            "sqlite",
			PersistDir:      filepath.Join("data", "index"),
			Collection:      "documents",
			BatchSize:       100,
			TimeoutSecs:     60,
			KeywordFallback: true,
		},
		Retrieval:  RetrievalConfig{K: 4, TimeoutSecs: 120},
		Loader:     LoaderConfig{MaxFileSizeMB: 50, UploadDir: filepath.Join("data", "uploads")},
		Summarizer: SummarizerConfig{Type: "frequency", MaxSentences: 5},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Embedder.Type == "hashing" && cfg.Embedder.Hashing == nil {
		cfg.Embedder.Hashing = &HashingEmbedderConfig{}
	}
	if cfg.Embedder.Hashing != nil && cfg.Embedder.Hashing.Dimension == 0 {
		cfg.Embedder.Hashing.Dimension = 1024
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 30
		}
	}
	if cfg.VectorStore.BatchSize <= 0 {
		cfg.VectorStore.BatchSize = 100
	}
	if cfg.Retrieval.K <= 0 {
		cfg.Retrieval.K = 4
	}
	if cfg.LLM.Concurrency <= 0 {
		cfg.LLM.Concurrency = 4
	}
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv(EnvLLMModel); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv(EnvEmbeddingModel); v != "" && cfg.Embedder.OpenAI != nil {
		cfg.Embedder.OpenAI.Model = v
	}
	if v := os.Getenv(EnvPersistDir); v != "" {
		cfg.VectorStore.PersistDir = v
	}
}
