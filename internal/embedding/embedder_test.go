package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/config"
)

func TestNew(t *testing.T) {
	e, err := New(config.EmbedderConfig{Type: "hashing", Hashing: &config.HashingEmbedderConfig{Dimension: 64}})
	require.NoError(t, err)
	assert.Equal(t, 64, e.Dimension())

	e, err = New(config.EmbedderConfig{Type: "openai", OpenAI: &config.OpenAIEmbedderConfig{BaseURL: "http://localhost:11434/v1", Model: "nomic-embed-text"}})
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", e.ModelName())

	_, err = New(config.EmbedderConfig{Type: "openai"})
	assert.Error(t, err)

	_, err = New(config.EmbedderConfig{Type: "word2vec"})
	assert.Error(t, err)
}
