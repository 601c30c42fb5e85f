package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/config"
	"docqa/internal/domain"
)

type fixedLLM struct{ reply string }

func (f fixedLLM) ModelName() string { return "fixed" }
func (f fixedLLM) Complete(context.Context, string, domain.GenerateOptions) (string, error) {
	return f.reply, nil
}
func (f fixedLLM) Stream(context.Context, string, domain.GenerateOptions) (domain.TokenStream, error) {
	return nil, errors.New("not streaming")
}
func (f fixedLLM) Batch(_ context.Context, prompts []string, _ domain.GenerateOptions) ([]string, error) {
	out := make([]string, len(prompts))
	for i := range out {
		out[i] = f.reply
	}
	return out, nil
}

func memoryConfig() *config.AppConfig {
	cfg := config.Default()
	cfg.VectorStore.Type = "memory"
	cfg.Chunker.ChunkSize = 200
	cfg.Chunker.ChunkOverlap = 20
	return cfg
}

func openApp(t *testing.T, cfg *config.AppConfig) *App {
	t.Helper()
	app, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "france.txt"), []byte("Paris is the capital of France."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "japan.txt"), []byte("Tokyo is the capital of Japan."), 0o644))
	return dir
}

func TestPipeline_IngestDirectoryAndAnswer(t *testing.T) {
	app := openApp(t, memoryConfig())
	app.NewLLM = func(config.LLMConfig) (domain.LLM, error) { return fixedLLM{reply: "Paris [Source 1]"}, nil }
	dir := writeCorpus(t)

	res, err := app.Pipeline.Ingest(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Len(t, res.Files, 2)
	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, 2, res.Add.DocumentsAdded)
	assert.NotEmpty(t, res.Summary)
	assert.Equal(t, 2, res.Quality.TotalChunks)

	chain, err := app.Chain(1, nil)
	require.NoError(t, err)
	out := chain.Query(context.Background(), "What is the capital of France?", true)
	require.True(t, out.Success, out.Err)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, "france.txt", out.Sources[0].File)
}

func TestPipeline_ReingestIsIdempotent(t *testing.T) {
	app := openApp(t, memoryConfig())
	dir := writeCorpus(t)

	_, err := app.Pipeline.Ingest(context.Background(), []string{filepath.Join(dir, "*.txt")})
	require.NoError(t, err)
	res, err := app.Pipeline.Ingest(context.Background(), []string{filepath.Join(dir, "*.txt")})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Add.DocumentsAdded)
	assert.Equal(t, 2, res.Add.TotalDocuments)
}

func TestPipeline_SkipsBadFiles(t *testing.T) {
	app := openApp(t, memoryConfig())
	dir := writeCorpus(t)
	missing := filepath.Join(dir, "missing.txt")

	res, err := app.Pipeline.Ingest(context.Background(), []string{filepath.Join(dir, "france.txt"), missing})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "france.txt")}, res.Files)
	assert.Contains(t, res.Skipped[missing], "file not found")
}

func TestPipeline_NothingLoadable(t *testing.T) {
	app := openApp(t, memoryConfig())

	_, err := app.Pipeline.IngestFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInput)
	assert.ErrorIs(t, err, domain.ErrNoDocuments)
	assert.Contains(t, err.Error(), "file not found")
}

func TestApp_SQLiteWithKeywordFallback(t *testing.T) {
	cfg := memoryConfig()
	cfg.VectorStore.Type = "sqlite"
	cfg.VectorStore.PersistDir = t.TempDir()
	app := openApp(t, cfg)

	_, err := app.Pipeline.Ingest(context.Background(), []string{writeCorpus(t)})
	require.NoError(t, err)

	stats, err := app.Index.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, []string{"france.txt", "japan.txt"}, stats.SourceFiles)
}

func TestApp_LLMBuiltOnce(t *testing.T) {
	app := openApp(t, memoryConfig())
	calls := 0
	app.NewLLM = func(config.LLMConfig) (domain.LLM, error) {
		calls++
		return fixedLLM{}, nil
	}
	_, err := app.Chain(0, nil)
	require.NoError(t, err)
	temp := 0.0
	c, err := app.Chain(0, &temp)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 4, c.K())
}

func TestApp_MissingAPIKey(t *testing.T) {
	cfg := memoryConfig()
	cfg.LLM.APIKeyEnv = "DOCQA_TEST_KEY_THAT_IS_NOT_SET"
	app := openApp(t, cfg)

	_, err := app.Chain(0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGeneration)
}

func TestFactories_RejectUnknownTypes(t *testing.T) {
	_, _, err := NewChunker(config.ChunkerConfig{Type: "semantic"})
	assert.Error(t, err)
	_, err = NewOpener(config.VectorStoreConfig{Type: "chroma"})
	assert.Error(t, err)
	_, err = NewOpener(config.VectorStoreConfig{Type: "qdrant"})
	assert.Error(t, err)
	_, err = NewSummarizer(config.SummarizerConfig{Type: "llm"})
	assert.Error(t, err)
	_, _, err = NewChunker(config.ChunkerConfig{Type: "recursive", ChunkSize: 10, ChunkOverlap: 10})
	assert.ErrorIs(t, err, domain.ErrInput)
}
