// Package vectorstore defines the collection abstraction used by the index
// manager and the helpers shared by its brute-force backends.
package vectorstore

import (
	"context"
	"errors"

	"docqa/internal/domain"
)

// ErrDimensionMismatch is returned when a vector does not match the
// collection's dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Record is an indexed chunk: content, metadata, embedding and a stable ID.
type Record struct {
	ID       string
	Content  string
	Metadata domain.Metadata
	Vector   []float32
}

// ScoredRecord is a search hit. Score is cosine similarity; higher is closer.
type ScoredRecord struct {
	Record
	Score float64
}

// Filter restricts results to records whose metadata equals every entry.
type Filter map[string]any

// Collection persists vectors and supports similarity search.
type Collection interface {
	// Insert adds records atomically; IDs already present are skipped.
	// It returns the number of records actually added.
	Insert(ctx context.Context, records []Record) (int, error)
	// Search returns at most k records ordered by descending score.
	Search(ctx context.Context, vector []float32, k int, filter Filter) ([]ScoredRecord, error)
	// Get returns the records with the given IDs; unknown IDs are skipped.
	Get(ctx context.Context, ids []string) ([]Record, error)
	Count(ctx context.Context) (int, error)
	// SourceCounts returns the exact number of records per source file.
	SourceCounts(ctx context.Context) (map[string]int, error)
	// Drop deletes every record and leaves an empty collection behind.
	Drop(ctx context.Context) error
	Close() error
}

// Opener opens or creates a named collection under persistDir.
type Opener func(ctx context.Context, persistDir, collection string) (Collection, error)

// SourceOf returns the source_file attribute of md, or domain.UnknownSource.
func SourceOf(md domain.Metadata) string {
	if s := md.String(domain.MetaSourceFile); s != "" {
		return s
	}
	return domain.UnknownSource
}
