package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/index"
	"docqa/internal/keyword"
	llmopenai "docqa/internal/llm/openai"
	"docqa/internal/loader"
	"docqa/internal/rag"
	"docqa/internal/summarizer"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
	"docqa/internal/vectorstore/qdrant"
	"docqa/internal/vectorstore/sqlite"
)

// App holds the components assembled from one configuration.
type App struct {
	Config     *config.AppConfig
	Logger     *slog.Logger
	Embedder   domain.Embedder
	Chunker    domain.Chunker
	Index      *index.Manager
	Loader     *loader.Loader
	Summarizer domain.Summarizer
	Pipeline   *Pipeline

	// NewLLM builds the language model on first use; tests replace it.
	NewLLM func(config.LLMConfig) (domain.LLM, error)

	llmOnce sync.Once
	llm     domain.LLM
	llmErr  error
}

// Open assembles every component except the language model, which is built
// lazily so that indexing works without an API key.
func Open(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	emb, err := embedding.New(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	ch, target, err := NewChunker(cfg.Chunker)
	if err != nil {
		return nil, err
	}
	opener, err := NewOpener(cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	sum, err := NewSummarizer(cfg.Summarizer)
	if err != nil {
		return nil, err
	}

	persistDir := cfg.VectorStore.PersistDir
	if cfg.VectorStore.Type == "memory" {
		persistDir = ""
	}
	var kw *keyword.Index
	if cfg.VectorStore.KeywordFallback {
		kw, err = keyword.Open(persistDir, cfg.VectorStore.Collection)
		if err != nil {
			// the vector path still works without it
			logger.Warn("keyword index unavailable", "error", err)
			kw = nil
		}
	}

	mgr, err := index.Open(ctx, emb, opener, index.Options{
		PersistDir: persistDir,
		Collection: cfg.VectorStore.Collection,
		BatchSize:  cfg.VectorStore.BatchSize,
		Timeout:    cfg.VectorStore.Timeout(),
		Logger:     logger,
		Keyword:    kw,
	})
	if err != nil {
		if kw != nil {
			_ = kw.Close()
		}
		return nil, err
	}

	ld := loader.New(loader.WithMaxFileSize(cfg.Loader.MaxFileSize()), loader.WithLogger(logger))
	app := &App{
		Config:     cfg,
		Logger:     logger,
		Embedder:   emb,
		Chunker:    ch,
		Index:      mgr,
		Loader:     ld,
		Summarizer: sum,
		NewLLM:     NewLLM,
	}
	app.Pipeline = NewPipeline(PipelineConfig{
		Loader:              ld,
		Chunker:             ch,
		Indexer:             mgr,
		Summarizer:          sum,
		SummaryMaxSentences: cfg.Summarizer.MaxSentences,
		BatchSize:           cfg.VectorStore.BatchSize,
		QualityTarget:       target,
		Logger:              logger,
	})
	return app, nil
}

// Close releases the index.
func (a *App) Close() error {
	return a.Index.Close()
}

// LLM returns the configured language model, building it once.
func (a *App) LLM() (domain.LLM, error) {
	a.llmOnce.Do(func() {
		a.llm, a.llmErr = a.NewLLM(a.Config.LLM)
	})
	return a.llm, a.llmErr
}

// Chain builds an orchestrator over the index with the given k and
// temperature; zero values take the configured defaults.
func (a *App) Chain(k int, temperature *float64) (*rag.Chain, error) {
	llm, err := a.LLM()
	if err != nil {
		return nil, domain.E(domain.KindGeneration, "service.chain", err)
	}
	if k <= 0 {
		k = a.Config.Retrieval.K
	}
	temp := a.Config.LLM.Temperature
	if temperature != nil {
		temp = *temperature
	}
	return rag.New(a.Index, llm,
		rag.WithK(k),
		rag.WithTemperature(temp),
		rag.WithMaxTokens(a.Config.LLM.MaxTokens),
		rag.WithTimeout(a.Config.Retrieval.Timeout()),
		rag.WithLogger(a.Logger),
	)
}

// NewLLM builds the OpenAI-compatible chat client described by cfg.
func NewLLM(cfg config.LLMConfig) (domain.LLM, error) {
	return llmopenai.NewClient(llmopenai.Config{
		BaseURL:     cfg.BaseURL,
		APIKeyEnv:   cfg.APIKeyEnv,
		Model:       cfg.Model,
		Concurrency: cfg.Concurrency,
	})
}

// NewChunker returns the configured chunker and the chunk size its output
// should be measured against.
func NewChunker(cfg config.ChunkerConfig) (domain.Chunker, int, error) {
	switch cfg.Type {
	case "recursive", "":
		c, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap, cfg.Separators...)
		if err != nil {
			return nil, 0, err
		}
		return c, c.Size(), nil
	case "sentence":
		return chunker.NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences), cfg.ChunkSize, nil
	default:
		return nil, 0, fmt.Errorf("unknown chunker: %s", cfg.Type)
	}
}

// NewOpener returns the collection backend selected by cfg.Type.
func NewOpener(cfg config.VectorStoreConfig) (vectorstore.Opener, error) {
	switch cfg.Type {
	case "sqlite", "":
		return sqlite.Open, nil
	case "memory":
		return memory.NewRegistry().Open, nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		return qdrant.Opener(qdrant.Config{
			URL:     cfg.Qdrant.URL,
			APIKey:  cfg.Qdrant.APIKey,
			Timeout: cfg.Qdrant.Timeout(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

// NewSummarizer returns the configured summarizer.
func NewSummarizer(cfg config.SummarizerConfig) (domain.Summarizer, error) {
	switch cfg.Type {
	case "frequency", "":
		return summarizer.NewFrequencySummarizer(), nil
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Type)
	}
}
