package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

func embeddingServer(t *testing.T, fail int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		if n <= fail {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		var req embeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		// reversed order: the client must honour the index field
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = item{Object: "embedding", Index: j, Embedding: []float32{float32(len(req.Input[j])), 1, 0}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestEmbedBatch_SplitsAndOrders(t *testing.T) {
	srv, calls := embeddingServer(t, 0)
	c, err := NewClient(Config{BaseURL: srv.URL, Model: "nomic-embed-text", BatchSize: 2})
	require.NoError(t, err)

	out, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, float32(1), out[0][0])
	assert.Equal(t, float32(2), out[1][0])
	assert.Equal(t, float32(3), out[2][0])
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 3, c.Dimension())
	assert.Equal(t, "nomic-embed-text", c.ModelName())
}

func TestEmbed_RetriesRateLimit(t *testing.T) {
	srv, calls := embeddingServer(t, 1)
	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	v, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, float32(5), v[0])
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbed_NonRetryableError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("DOCQA_TEST_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "DOCQA_TEST_KEY"})
	assert.Error(t, err)
}
