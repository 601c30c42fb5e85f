package domain

import "context"

// Embedder converts free text into a fixed-length vector. The same
// embedder must be used for indexing and querying a collection.
type Embedder interface {
	ModelName() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Process(docs []Document) []Chunk
}

// GenerateOptions configures one completion call.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// TokenStream yields incremental completion text. Recv returns io.EOF when
// the model signals completion. Close releases the underlying connection and
// stops backend work; it is safe to call more than once.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// LLM is a language model backend.
type LLM interface {
	ModelName() string
	Complete(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	Stream(ctx context.Context, prompt string, opts GenerateOptions) (TokenStream, error)
	// Batch completes every prompt; any failure fails the whole batch.
	Batch(ctx context.Context, prompts []string, opts GenerateOptions) ([]string, error)
}

// Summarizer produces a brief extractive summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
