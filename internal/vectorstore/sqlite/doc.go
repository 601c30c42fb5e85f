// Package sqlite provides a persistent vector collection on top of SQLite.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. Several named collections share one database file,
// <persist_dir>/docqa.db.
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory. Records carry their embedding as a little-endian
// float32 blob; a source_files table keeps exact per-source counts and is
// updated in the same transaction as every insert.
//
// # Search
//
// Search is a brute-force cosine scan in Go. A source_file equality filter is
// pushed down into SQL; other filter keys are matched on decoded metadata.
//
// # Thread Safety
//
// The database is opened in WAL mode with a busy timeout. Each Insert is one
// transaction; concurrent writers from several processes are not coordinated.
package sqlite
