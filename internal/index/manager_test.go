package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/embedding/hashing"
	"docqa/internal/keyword"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
	"docqa/internal/vectorstore/sqlite"
)

// stubEmbedder delegates to fn and counts EmbedBatch calls.
type stubEmbedder struct {
	fn      func(ctx context.Context, text string) ([]float32, error)
	batches atomic.Int32
	failAt  int32 // EmbedBatch call number that fails; 0 never
}

func (s *stubEmbedder) ModelName() string { return "stub" }
func (s *stubEmbedder) Dimension() int    { return 2 }
func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.fn(ctx, text)
}
func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if n := s.batches.Add(1); n == s.failAt {
		return nil, errors.New("embedding service unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.fn(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func chunk(content, source string, pos int) domain.Chunk {
	return domain.Chunk{Content: content, Metadata: domain.Metadata{
		domain.MetaSourceFile:    source,
		domain.MetaChunkPosition: pos,
		domain.MetaChunkID:       pos,
	}}
}

func openMemory(t *testing.T, emb domain.Embedder, opts Options) *Manager {
	t.Helper()
	if opts.Collection == "" {
		opts.Collection = "documents"
	}
	m, err := Open(context.Background(), emb, memory.NewRegistry().Open, opts)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(context.Background(), nil, memory.NewRegistry().Open, Options{Collection: "x"})
	assert.True(t, errors.Is(err, domain.ErrInput))

	_, err = Open(context.Background(), hashing.NewEmbedder(8), memory.NewRegistry().Open, Options{})
	assert.True(t, errors.Is(err, domain.ErrInput))

	failing := func(context.Context, string, string) (vectorstore.Collection, error) {
		return nil, errors.New("disk gone")
	}
	_, err = Open(context.Background(), hashing.NewEmbedder(8), failing, Options{Collection: "x"})
	assert.True(t, errors.Is(err, domain.ErrIndex))
}

func TestAdd_EmptyInput(t *testing.T) {
	m := openMemory(t, hashing.NewEmbedder(64), Options{})
	res := m.Add(context.Background(), nil, 0)

	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Err, domain.ErrInput))
	assert.Zero(t, m.Count(context.Background()))
}

func TestAdd_ParisTokyo(t *testing.T) {
	ctx := context.Background()
	m := openMemory(t, hashing.NewEmbedder(0), Options{})

	c, err := chunker.New(100, 0)
	require.NoError(t, err)
	chunks := c.Process([]domain.Document{
		{Content: "Paris is the capital of France.", Metadata: domain.Metadata{domain.MetaSourceFile: "a.txt"}},
		{Content: "Tokyo is the capital of Japan.", Metadata: domain.Metadata{domain.MetaSourceFile: "b.txt"}},
	})
	require.Len(t, chunks, 2)

	res := m.Add(ctx, chunks, 0)
	require.True(t, res.Success, "%v", res.Err)
	assert.Equal(t, 2, res.DocumentsAdded)
	assert.Equal(t, 2, res.TotalDocuments)
	assert.Equal(t, 1, res.BatchesCommitted)

	hits := m.SearchWithScore(ctx, "What is the capital of France?", 1, nil)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.txt", hits[0].Chunk.SourceFile())
	assert.Greater(t, hits[0].Score, 0.0)

	chunks = m.Search(ctx, "capital", 2, vectorstore.Filter{domain.MetaSourceFile: "b.txt"})
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "Tokyo")

	assert.Empty(t, m.Search(ctx, "capital", 0, nil))
}

func TestSearch_NeverReturnsMoreThanCount(t *testing.T) {
	stores := map[string]vectorstore.Opener{
		"memory": memory.NewRegistry().Open,
		"sqlite": sqlite.Open,
	}
	for name, opener := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m, err := Open(ctx, hashing.NewEmbedder(64), opener, Options{PersistDir: t.TempDir(), Collection: "documents"})
			require.NoError(t, err)
			defer m.Close()

			require.True(t, m.Add(ctx, []domain.Chunk{
				chunk("Paris is the capital of France.", "a.txt", 0),
				chunk("Tokyo is the capital of Japan.", "b.txt", 0),
			}, 0).Success)

			hits := m.SearchWithScore(ctx, "capital city", 10, nil)
			assert.Len(t, hits, m.Count(ctx))
			assert.Len(t, m.Search(ctx, "capital city", 10, nil), 2)

			retrieved, err := m.Retrieve(ctx, "capital city", 10, nil)
			require.NoError(t, err)
			assert.Len(t, retrieved, 2)
		})
	}
}

func TestAdd_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := openMemory(t, hashing.NewEmbedder(64), Options{})
	chunks := []domain.Chunk{chunk("alpha", "a.txt", 0), chunk("beta", "a.txt", 1)}

	require.True(t, m.Add(ctx, chunks, 0).Success)
	res := m.Add(ctx, chunks, 0)
	require.True(t, res.Success)
	assert.Zero(t, res.DocumentsAdded)
	assert.Equal(t, 2, res.TotalDocuments)
}

func TestAdd_BatchSizeDoesNotChangeContents(t *testing.T) {
	ctx := context.Background()
	var chunks []domain.Chunk
	for i := range 7 {
		chunks = append(chunks, chunk(fmt.Sprintf("document %d about topic %d", i, i%3), "s.txt", i))
	}

	one := openMemory(t, hashing.NewEmbedder(128), Options{})
	hundred := openMemory(t, hashing.NewEmbedder(128), Options{})
	r1 := one.Add(ctx, chunks, 1)
	r100 := hundred.Add(ctx, chunks, 100)
	require.True(t, r1.Success)
	require.True(t, r100.Success)
	assert.Equal(t, 7, r1.BatchesCommitted)
	assert.Equal(t, 1, r100.BatchesCommitted)
	assert.Equal(t, r1.TotalDocuments, r100.TotalDocuments)

	q := "topic 2"
	assert.Equal(t, one.SearchWithScore(ctx, q, 7, nil), hundred.SearchWithScore(ctx, q, 7, nil))
}

func TestAdd_PartialBatchFailure(t *testing.T) {
	ctx := context.Background()
	emb := &stubEmbedder{fn: func(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }, failAt: 2}
	m := openMemory(t, emb, Options{})

	chunks := []domain.Chunk{chunk("a", "x", 0), chunk("b", "x", 1), chunk("c", "x", 2)}
	res := m.Add(ctx, chunks, 2)

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.BatchesCommitted)
	assert.Equal(t, 2, res.DocumentsAdded)
	assert.True(t, errors.Is(res.Err, domain.ErrPartialBatch))
	assert.True(t, errors.Is(res.Err, domain.ErrEmbedding))
	var de *domain.Error
	require.True(t, errors.As(res.Err, &de))
	assert.Equal(t, 1, de.Committed)
	assert.Equal(t, 2, m.Count(ctx))
}

func TestAdd_FirstBatchFailureIsNotPartial(t *testing.T) {
	emb := &stubEmbedder{fn: func(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }, failAt: 1}
	m := openMemory(t, emb, Options{})

	res := m.Add(context.Background(), []domain.Chunk{chunk("a", "x", 0)}, 0)
	assert.False(t, res.Success)
	assert.Equal(t, domain.KindEmbedding, domain.KindOf(res.Err))
}

func TestRetrieve_Deadline(t *testing.T) {
	emb := &stubEmbedder{fn: func(ctx context.Context, _ string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	m := openMemory(t, emb, Options{Timeout: 20 * time.Millisecond})

	_, err := m.Retrieve(context.Background(), "slow", 3, nil)
	assert.True(t, errors.Is(err, domain.ErrDeadline))
	assert.Empty(t, m.Search(context.Background(), "slow", 3, nil))
}

func TestRetrieve_KeywordFallback(t *testing.T) {
	ctx := context.Background()
	kw, err := keyword.Open("", "documents")
	require.NoError(t, err)

	// documents get a constant vector, queries get none
	emb := &stubEmbedder{fn: func(_ context.Context, text string) ([]float32, error) {
		if strings.HasSuffix(text, "?") {
			return []float32{0, 0}, nil
		}
		return []float32{1, 0}, nil
	}}
	m := openMemory(t, emb, Options{Keyword: kw})
	require.True(t, m.Add(ctx, []domain.Chunk{
		chunk("Paris is the capital of France.", "a.txt", 0),
		chunk("Tokyo is the capital of Japan.", "b.txt", 0),
	}, 0).Success)

	hits, err := m.Retrieve(ctx, "Which city is in Japan?", 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b.txt", hits[0].Chunk.SourceFile())

	hits, err = m.Retrieve(ctx, "capital?", 5, vectorstore.Filter{domain.MetaSourceFile: "a.txt"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Chunk.Content, "Paris")

	require.True(t, m.Clear(ctx))
	n, err := kw.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStatisticsAndClear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m, err := Open(ctx, hashing.NewEmbedder(64), sqlite.Open, Options{PersistDir: dir, Collection: "documents"})
	require.NoError(t, err)
	defer m.Close()

	var chunks []domain.Chunk
	for i := range 150 {
		chunks = append(chunks, chunk(fmt.Sprintf("chunk number %d", i), fmt.Sprintf("file-%d.txt", i%3), i))
	}
	require.True(t, m.Add(ctx, chunks, 0).Success)

	stats, err := m.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 150, stats.TotalDocuments)
	assert.Equal(t, 3, stats.UniqueSourceFiles)
	assert.Equal(t, []string{"file-0.txt", "file-1.txt", "file-2.txt"}, stats.SourceFiles)
	assert.Equal(t, 50, stats.SourceCounts["file-1.txt"])
	assert.Equal(t, "hashing-64", stats.EmbeddingModel)
	assert.Equal(t, dir, stats.PersistLocation)
	assert.Equal(t, "documents", stats.CollectionName)

	require.True(t, m.Clear(ctx))
	assert.Zero(t, m.Count(ctx))
	stats, err = m.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.UniqueSourceFiles)
	assert.Empty(t, m.Search(ctx, "chunk", 3, nil))
}

func TestOpen_ReopenKeepsContents(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := hashing.NewEmbedder(64)

	m, err := Open(ctx, emb, sqlite.Open, Options{PersistDir: dir, Collection: "documents"})
	require.NoError(t, err)
	require.True(t, m.Add(ctx, []domain.Chunk{chunk("persisted text", "p.txt", 0)}, 0).Success)
	require.NoError(t, m.Close())

	m, err = Open(ctx, emb, sqlite.Open, Options{PersistDir: dir, Collection: "documents"})
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, 1, m.Count(ctx))
}

func TestRecordID_Stable(t *testing.T) {
	a := chunk("same", "a.txt", 0)
	assert.Equal(t, RecordID(a), RecordID(chunk("same", "a.txt", 0)))
	assert.NotEqual(t, RecordID(a), RecordID(chunk("same", "a.txt", 1)))
	assert.NotEqual(t, RecordID(a), RecordID(chunk("same", "b.txt", 0)))
	assert.NotEqual(t, RecordID(a), RecordID(chunk("other", "a.txt", 0)))
}
