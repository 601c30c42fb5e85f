// Package index manages a persistent collection of embedded chunks: batched
// ingestion, similarity retrieval, statistics and reset.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"docqa/internal/domain"
	"docqa/internal/keyword"
	"docqa/internal/vectorstore"
)

const (
	DefaultBatchSize = 100
	DefaultTimeout   = 60 * time.Second

	// scores at or below this are treated as no signal
	zeroScore = 1e-9
)

// idNamespace seeds the content-derived record IDs.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("docqa/chunk"))

// Options configures a Manager.
type Options struct {
	PersistDir string
	Collection string
	BatchSize  int
	// Timeout bounds every embedder and collection call.
	Timeout time.Duration
	Logger  *slog.Logger
	// Keyword, when set, is kept in step with the collection and used for
	// queries that carry no embedding signal.
	Keyword *keyword.Index
}

// Manager owns one collection and the embedder used for it.
type Manager struct {
	embedder   domain.Embedder
	collection vectorstore.Collection
	keyword    *keyword.Index
	persistDir string
	name       string
	batchSize  int
	timeout    time.Duration
	logger     *slog.Logger
}

// AddResult reports the outcome of Add.
type AddResult struct {
	Success          bool          `json:"success"`
	DocumentsAdded   int           `json:"documents_added"`
	TotalDocuments   int           `json:"total_documents"`
	Duration         time.Duration `json:"duration"`
	BatchesCommitted int           `json:"batches_committed"`
	Err              error         `json:"-"`
}

// Statistics describes the collection.
type Statistics struct {
	TotalDocuments    int            `json:"total_documents"`
	UniqueSourceFiles int            `json:"unique_source_files"`
	SourceFiles       []string       `json:"source_files"`
	SourceCounts      map[string]int `json:"source_counts"`
	EmbeddingModel    string         `json:"embedding_model"`
	PersistLocation   string         `json:"persist_location"`
	CollectionName    string         `json:"collection_name"`
}

// Open opens or creates the collection. Opening an existing collection
// neither alters nor duplicates its contents.
func Open(ctx context.Context, embedder domain.Embedder, open vectorstore.Opener, opts Options) (*Manager, error) {
	if embedder == nil || open == nil {
		return nil, domain.E(domain.KindInput, "index.open", errors.New("embedder and opener are required"))
	}
	if opts.Collection == "" {
		return nil, domain.E(domain.KindInput, "index.open", errors.New("collection name required"))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	coll, err := open(callCtx, opts.PersistDir, opts.Collection)
	if err != nil {
		return nil, domain.E(domain.KindIndex, "index.open", err)
	}

	m := &Manager{
		embedder:   embedder,
		collection: coll,
		keyword:    opts.Keyword,
		persistDir: opts.PersistDir,
		name:       opts.Collection,
		batchSize:  batchSize,
		timeout:    timeout,
		logger:     logger.With("collection", opts.Collection),
	}
	if m.keyword != nil {
		n, kerr := m.keyword.Count()
		total := m.Count(ctx)
		if kerr == nil && n != total {
			m.logger.Warn("keyword index out of step with collection; re-index to rebuild",
				"keyword_documents", n, "documents", total)
		}
	}
	m.logger.Debug("collection opened", "persist_dir", opts.PersistDir, "embedding_model", embedder.ModelName())
	return m, nil
}

// Close releases the collection and the keyword index.
func (m *Manager) Close() error {
	err := m.collection.Close()
	if m.keyword != nil {
		err = errors.Join(err, m.keyword.Close())
	}
	return err
}

// EmbeddingModel names the embedder bound to the collection.
func (m *Manager) EmbeddingModel() string { return m.embedder.ModelName() }

// Add embeds and stores chunks in sequential batches; each batch commits
// independently. batchSize <= 0 uses the configured default.
func (m *Manager) Add(ctx context.Context, chunks []domain.Chunk, batchSize int) AddResult {
	const op = "index.add"
	start := time.Now()
	if len(chunks) == 0 {
		return AddResult{Err: domain.E(domain.KindInput, op, errors.New("no chunks to add"))}
	}
	if batchSize <= 0 {
		batchSize = m.batchSize
	}

	before, err := m.count(ctx)
	if err != nil {
		return AddResult{Err: domain.E(domain.KindIndex, op, err), Duration: time.Since(start)}
	}

	committed := 0
	for lo := 0; lo < len(chunks); lo += batchSize {
		hi := min(lo+batchSize, len(chunks))
		if err := m.addBatch(ctx, chunks[lo:hi]); err != nil {
			res := AddResult{BatchesCommitted: committed, Duration: time.Since(start)}
			if committed > 0 {
				res.Err = &domain.Error{Kind: domain.KindPartialBatch, Op: op, Err: err, Committed: committed}
			} else {
				res.Err = err
			}
			if after, cerr := m.count(ctx); cerr == nil {
				res.DocumentsAdded = after - before
				res.TotalDocuments = after
			}
			m.logger.Error("add failed", "batches_committed", committed, "error", res.Err)
			return res
		}
		committed++
		m.logger.Debug("batch committed", "batch", committed, "size", hi-lo)
	}

	after, err := m.count(ctx)
	if err != nil {
		return AddResult{BatchesCommitted: committed, Duration: time.Since(start), Err: domain.E(domain.KindIndex, op, err)}
	}
	res := AddResult{
		Success:          true,
		DocumentsAdded:   after - before,
		TotalDocuments:   after,
		Duration:         time.Since(start),
		BatchesCommitted: committed,
	}
	m.logger.Info("chunks added",
		"documents_added", res.DocumentsAdded,
		"total_documents", res.TotalDocuments,
		"duration", res.Duration.Round(time.Millisecond),
	)
	return res
}

func (m *Manager) addBatch(ctx context.Context, batch []domain.Chunk) error {
	texts := make([]string, len(batch))
	for i, ch := range batch {
		texts[i] = ch.Content
	}

	embedCtx, cancel := context.WithTimeout(ctx, m.timeout)
	vectors, err := m.embedder.EmbedBatch(embedCtx, texts)
	cancel()
	if err != nil {
		return domain.E(domain.KindEmbedding, "index.add", err)
	}
	if len(vectors) != len(batch) {
		return domain.E(domain.KindEmbedding, "index.add",
			fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch)))
	}

	records := make([]vectorstore.Record, len(batch))
	for i, ch := range batch {
		records[i] = vectorstore.Record{
			ID:       RecordID(ch),
			Content:  ch.Content,
			Metadata: ch.Metadata,
			Vector:   vectors[i],
		}
	}

	insertCtx, cancel := context.WithTimeout(ctx, m.timeout)
	_, err = m.collection.Insert(insertCtx, records)
	cancel()
	if err != nil {
		return domain.E(domain.KindIndex, "index.add", err)
	}
	if m.keyword != nil {
		if err := m.keyword.Add(records); err != nil {
			m.logger.Warn("keyword index update failed", "error", err)
		}
	}
	return nil
}

// RecordID derives a stable ID from a chunk's source, page position, position
// within its document and content.
func RecordID(ch domain.Chunk) string {
	pos, _ := ch.Metadata.Int(domain.MetaChunkPosition)
	page, _ := ch.Metadata.Int(domain.MetaChunkIndex)
	key := ch.SourceFile() + "\x00" + strconv.Itoa(page) + "\x00" + strconv.Itoa(pos) + "\x00" + ch.Content
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// Search returns the k most similar chunks. Failures are logged and yield an
// empty result.
func (m *Manager) Search(ctx context.Context, query string, k int, filter vectorstore.Filter) []domain.Chunk {
	scored := m.SearchWithScore(ctx, query, k, filter)
	out := make([]domain.Chunk, len(scored))
	for i, s := range scored {
		out[i] = s.Chunk
	}
	return out
}

// SearchWithScore is Search with cosine similarity scores (higher is closer).
func (m *Manager) SearchWithScore(ctx context.Context, query string, k int, filter vectorstore.Filter) []domain.ScoredChunk {
	hits, err := m.Retrieve(ctx, query, k, filter)
	if err != nil {
		m.logger.Error("search failed", "error", err)
		return nil
	}
	return hits
}

// Retrieve is the error-reporting form of SearchWithScore.
func (m *Manager) Retrieve(ctx context.Context, query string, k int, filter vectorstore.Filter) ([]domain.ScoredChunk, error) {
	const op = "index.retrieve"
	if k <= 0 {
		return nil, nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, m.timeout)
	vec, err := m.embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		return nil, domain.E(domain.KindEmbedding, op, err)
	}
	if m.keyword != nil && isZero(vec) {
		return m.keywordSearch(ctx, query, k, filter)
	}

	searchCtx, cancel := context.WithTimeout(ctx, m.timeout)
	hits, err := m.collection.Search(searchCtx, vec, k, filter)
	cancel()
	if err != nil {
		return nil, domain.E(domain.KindIndex, op, err)
	}
	if m.keyword != nil && len(hits) > 0 && allZero(hits) {
		fallback, err := m.keywordSearch(ctx, query, k, filter)
		if err == nil && len(fallback) > 0 {
			return fallback, nil
		}
	}

	out := make([]domain.ScoredChunk, len(hits))
	for i, h := range hits {
		out[i] = toScored(h.Record, h.Score)
	}
	return out, nil
}

func (m *Manager) keywordSearch(ctx context.Context, query string, k int, filter vectorstore.Filter) ([]domain.ScoredChunk, error) {
	const op = "index.retrieve"
	source, _ := filter[domain.MetaSourceFile].(string)
	limit := k
	if len(filter) > 0 {
		// leave room for post-filtering on other metadata keys
		limit = k * 4
	}
	hits, err := m.keyword.Search(query, limit, source)
	if err != nil {
		return nil, domain.E(domain.KindIndex, op, err)
	}
	if len(hits) == 0 {
		return nil, nil
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	getCtx, cancel := context.WithTimeout(ctx, m.timeout)
	records, err := m.collection.Get(getCtx, ids)
	cancel()
	if err != nil {
		return nil, domain.E(domain.KindIndex, op, err)
	}
	byID := make(map[string]vectorstore.Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	out := make([]domain.ScoredChunk, 0, k)
	for _, h := range hits {
		r, ok := byID[h.ID]
		if !ok || !vectorstore.Matches(r.Metadata, filter) {
			continue
		}
		out = append(out, toScored(r, h.Score))
		if len(out) == k {
			break
		}
	}
	m.logger.Debug("keyword fallback", "query", query, "hits", len(out))
	return out, nil
}

// Count returns the number of stored records, or 0 when the backend fails.
func (m *Manager) Count(ctx context.Context) int {
	n, err := m.count(ctx)
	if err != nil {
		m.logger.Error("count failed", "error", err)
		return 0
	}
	return n
}

func (m *Manager) count(ctx context.Context) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.collection.Count(callCtx)
}

// Clear drops every record and leaves an empty collection. It is the only
// deletion path.
func (m *Manager) Clear(ctx context.Context) bool {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.collection.Drop(callCtx); err != nil {
		m.logger.Error("clear failed", "error", domain.E(domain.KindIndex, "index.clear", err))
		return false
	}
	if m.keyword != nil {
		if err := m.keyword.Clear(); err != nil {
			m.logger.Warn("keyword index clear failed", "error", err)
		}
	}
	m.logger.Info("collection cleared")
	return true
}

// Statistics reports exact totals and per-source counts.
func (m *Manager) Statistics(ctx context.Context) (Statistics, error) {
	const op = "index.statistics"
	total, err := m.count(ctx)
	if err != nil {
		return Statistics{}, domain.E(domain.KindIndex, op, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	counts, err := m.collection.SourceCounts(callCtx)
	cancel()
	if err != nil {
		return Statistics{}, domain.E(domain.KindIndex, op, err)
	}
	files := make([]string, 0, len(counts))
	for f := range counts {
		files = append(files, f)
	}
	slices.Sort(files)
	return Statistics{
		TotalDocuments:    total,
		UniqueSourceFiles: len(files),
		SourceFiles:       files,
		SourceCounts:      counts,
		EmbeddingModel:    m.embedder.ModelName(),
		PersistLocation:   m.persistDir,
		CollectionName:    m.name,
	}, nil
}

func toScored(r vectorstore.Record, score float64) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk: domain.Chunk{Content: r.Content, Metadata: r.Metadata},
		Score: score,
	}
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func allZero(hits []vectorstore.ScoredRecord) bool {
	for _, h := range hits {
		if h.Score > zeroScore {
			return false
		}
	}
	return true
}
