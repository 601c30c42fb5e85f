package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
	assert.Equal(t, 200, cfg.Chunker.ChunkOverlap)
	assert.Equal(t, 4, cfg.Retrieval.K)
	assert.Equal(t, 0.1, cfg.LLM.Temperature)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.LLM.Model)
	assert.Equal(t, int64(50<<20), cfg.Loader.MaxFileSize())
	assert.Equal(t, 60*time.Second, cfg.VectorStore.Timeout())
}

func TestLoad_YAMLKeepsUnsetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chunker:
  chunk_size: 500
embedder:
  type: openai
vector_store:
  type: qdrant
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Chunker.ChunkSize)
	assert.Equal(t, 200, cfg.Chunker.ChunkOverlap)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	require.NotNil(t, cfg.VectorStore.Qdrant)
	assert.Equal(t, "http://localhost:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, "documents", cfg.VectorStore.Collection)
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[retrieval]
k = 7

[llm]
temperature = 0.0
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retrieval.K)
	assert.Equal(t, 0.0, cfg.LLM.Temperature)
	assert.Equal(t, "sqlite", cfg.VectorStore.Type)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvLLMModel, "mixtral")
	t.Setenv(EnvPersistDir, "/tmp/idx")
	t.Setenv(EnvEmbeddingModel, "nomic-embed-text")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder:\n  type: openai\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mixtral", cfg.LLM.Model)
	assert.Equal(t, "/tmp/idx", cfg.VectorStore.PersistDir)
	assert.Equal(t, "nomic-embed-text", cfg.Embedder.OpenAI.Model)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"out.yaml", "out.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := Default()
			cfg.Retrieval.K = 9
			require.NoError(t, Save(path, cfg))

			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, 9, got.Retrieval.K)
			assert.Equal(t, cfg.Chunker, got.Chunker)
		})
	}
}

func TestLoadDefault_WritesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "docqa", "config.yaml"), path)
	assert.FileExists(t, path)
	assert.Equal(t, "recursive", cfg.Chunker.Type)
}
