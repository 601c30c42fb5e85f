package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/sqlite/migrations"
)

// DBFile is the database file name inside the persist directory.
const DBFile = "docqa.db"

// Store is one named collection inside a SQLite database.
type Store struct {
	db         *sql.DB
	path       string
	collection string
}

var _ vectorstore.Collection = (*Store)(nil)

// Open opens or creates the named collection under persistDir. It satisfies
// vectorstore.Opener.
func Open(ctx context.Context, persistDir, collection string) (vectorstore.Collection, error) {
	return NewStore(ctx, persistDir, collection)
}

// NewStore is Open returning the concrete type.
func NewStore(ctx context.Context, persistDir, collection string) (*Store, error) {
	if collection == "" {
		return nil, errors.New("collection name required")
	}
	if persistDir == "" {
		persistDir = "."
	}
	if err := os.MkdirAll(persistDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(persistDir, DBFile)

	// WAL for concurrent readers, busy timeout for the single writer
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{db: db, path: dbPath, collection: collection}

	if err := s.migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections (name, dimension) VALUES (?, 0)`, collection); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating collection: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(ctx context.Context, fsys embed.FS) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}
	return nil
}

// Insert adds records in one transaction. Records whose ID already exists in
// the collection are ignored.
func (s *Store) Insert(ctx context.Context, records []vectorstore.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var dim int
	if err := tx.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, s.collection).Scan(&dim); err != nil {
		return 0, fmt.Errorf("reading collection dimension: %w", err)
	}
	if dim == 0 {
		dim = len(records[0].Vector)
		if _, err := tx.ExecContext(ctx, `UPDATE collections SET dimension = ? WHERE name = ?`, dim, s.collection); err != nil {
			return 0, fmt.Errorf("setting collection dimension: %w", err)
		}
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO records (collection, id, content, metadata, source_file, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", err)
	}
	defer insert.Close()

	bump, err := tx.PrepareContext(ctx, `
		INSERT INTO source_files (collection, source_file, record_count) VALUES (?, ?, 1)
		ON CONFLICT(collection, source_file) DO UPDATE SET record_count = record_count + 1
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", err)
	}
	defer bump.Close()

	added := 0
	for _, r := range records {
		if r.ID == "" {
			return 0, errors.New("record without id")
		}
		if len(r.Vector) == 0 || len(r.Vector) != dim {
			return 0, fmt.Errorf("record %s: %w: got %d, want %d", r.ID, vectorstore.ErrDimensionMismatch, len(r.Vector), dim)
		}
		md := r.Metadata
		if md == nil {
			md = domain.Metadata{}
		}
		metadataJSON, err := json.Marshal(md)
		if err != nil {
			return 0, fmt.Errorf("marshaling metadata: %w", err)
		}
		source := vectorstore.SourceOf(md)
		res, err := insert.ExecContext(ctx, s.collection, r.ID, r.Content, string(metadataJSON), source, float32SliceToBytes(r.Vector))
		if err != nil {
			return 0, fmt.Errorf("saving record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("saving record: %w", err)
		}
		if n == 0 {
			continue
		}
		if _, err := bump.ExecContext(ctx, s.collection, source); err != nil {
			return 0, fmt.Errorf("updating source counts: %w", err)
		}
		added++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return added, nil
}

// Search scans the collection and returns the k most similar records.
func (s *Store) Search(ctx context.Context, vector []float32, k int, filter vectorstore.Filter) ([]vectorstore.ScoredRecord, error) {
	if k <= 0 {
		return nil, nil
	}
	query := `SELECT id, content, metadata, embedding FROM records WHERE collection = ?`
	args := []any{s.collection}
	if src, ok := filter[domain.MetaSourceFile].(string); ok {
		query += ` AND source_file = ?`
		args = append(args, src)
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var hits []vectorstore.ScoredRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if len(r.Vector) != len(vector) {
			return nil, fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(vector), len(r.Vector))
		}
		if !vectorstore.Matches(r.Metadata, filter) {
			continue
		}
		hits = append(hits, vectorstore.ScoredRecord{Record: *r, Score: vectorstore.Cosine(r.Vector, vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return vectorstore.TopK(hits, k), nil
}

// Get returns the records with the given IDs in insertion order.
func (s *Store) Get(ctx context.Context, ids []string) ([]vectorstore.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, s.collection)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata, embedding FROM records
		 WHERE collection = ? AND id IN (`+placeholders+`) ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []vectorstore.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE collection = ?`, s.collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

func (s *Store) SourceCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_file, record_count FROM source_files WHERE collection = ?`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("querying source counts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			source string
			n      int
		)
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("scanning source count: %w", err)
		}
		out[source] = n
	}
	return out, rows.Err()
}

// Drop deletes the collection's records and resets its dimension.
func (s *Store) Drop(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{
		`DELETE FROM records WHERE collection = ?`,
		`DELETE FROM source_files WHERE collection = ?`,
		`UPDATE collections SET dimension = 0 WHERE name = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, s.collection); err != nil {
			return fmt.Errorf("dropping collection: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func scanRecord(rows *sql.Rows) (*vectorstore.Record, error) {
	var (
		r            vectorstore.Record
		metadataJSON string
		blob         []byte
	)
	if err := rows.Scan(&r.ID, &r.Content, &metadataJSON, &blob); err != nil {
		return nil, fmt.Errorf("scanning record: %w", err)
	}
	r.Vector = bytesToFloat32Slice(blob)
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &r.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling record metadata: %w", err)
		}
	}
	return &r, nil
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
