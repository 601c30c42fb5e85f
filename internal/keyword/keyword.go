// Package keyword keeps a bleve full-text index alongside a vector
// collection. The index manager falls back to it when a query has no usable
// embedding signal.
package keyword

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"docqa/internal/vectorstore"
)

const (
	fieldContent = "content"
	fieldSource  = "source_file"
)

// Hit is a keyword match. Scores are bleve relevance scores, not cosine.
type Hit struct {
	ID    string
	Score float64
}

// Index is a bleve index of record content and source file.
type Index struct {
	mu   sync.RWMutex
	idx  bleve.Index
	path string
}

// Open opens or creates <persistDir>/<collection>.bleve. An empty persistDir
// keeps the index in memory.
func Open(persistDir, collection string) (*Index, error) {
	if persistDir == "" {
		idx, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create keyword index: %w", err)
		}
		return &Index{idx: idx}, nil
	}
	path := filepath.Join(persistDir, collection+".bleve")
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		if err := os.MkdirAll(persistDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		idx, err = bleve.New(path, newMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open keyword index %s: %w", path, err)
	}
	return &Index{idx: idx, path: path}, nil
}

func newMapping() mapping.IndexMapping {
	content := bleve.NewTextFieldMapping()
	content.Analyzer = "standard"
	content.Store = false
	source := bleve.NewKeywordFieldMapping()
	source.Store = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldContent, content)
	doc.AddFieldMappingsAt(fieldSource, source)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Add indexes records in batches of 100.
func (i *Index) Add(records []vectorstore.Record) error {
	i.mu.RLock()
	defer i.mu.RUnlock()

	batch := i.idx.NewBatch()
	for n, r := range records {
		doc := map[string]any{
			fieldContent: r.Content,
			fieldSource:  vectorstore.SourceOf(r.Metadata),
		}
		if err := batch.Index(r.ID, doc); err != nil {
			return fmt.Errorf("failed to add record %s to batch: %w", r.ID, err)
		}
		if (n+1)%100 == 0 {
			if err := i.idx.Batch(batch); err != nil {
				return fmt.Errorf("failed to index batch: %w", err)
			}
			batch = i.idx.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := i.idx.Batch(batch); err != nil {
			return fmt.Errorf("failed to index final batch: %w", err)
		}
	}
	return nil
}

// Search runs a match query over content, optionally restricted to one
// source file, and returns up to k hits by descending relevance.
func (i *Index) Search(text string, k int, sourceFile string) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	match := bleve.NewMatchQuery(text)
	match.SetField(fieldContent)
	var q query.Query = match
	if sourceFile != "" {
		term := bleve.NewTermQuery(sourceFile)
		term.SetField(fieldSource)
		q = bleve.NewConjunctionQuery(match, term)
	}
	req := bleve.NewSearchRequestOptions(q, k, 0, false)

	i.mu.RLock()
	res, err := i.idx.Search(req)
	i.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (i *Index) Count() (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	n, err := i.idx.DocCount()
	return int(n), err
}

// Clear removes every document by recreating the index.
func (i *Index) Clear() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.idx.Close(); err != nil {
		return fmt.Errorf("failed to close keyword index: %w", err)
	}
	var (
		idx bleve.Index
		err error
	)
	if i.path == "" {
		idx, err = bleve.NewMemOnly(newMapping())
	} else {
		if err := os.RemoveAll(i.path); err != nil {
			return fmt.Errorf("failed to remove keyword index: %w", err)
		}
		idx, err = bleve.New(i.path, newMapping())
	}
	if err != nil {
		return fmt.Errorf("failed to recreate keyword index: %w", err)
	}
	i.idx = idx
	return nil
}

func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.idx.Close()
}
