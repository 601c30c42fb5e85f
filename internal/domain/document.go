package domain

import "strconv"

// Metadata keys attached to documents by the loader and to chunks by the chunker.
const (
	MetaSourceFile         = "source_file"
	MetaFilePath           = "file_path"
	MetaFileType           = "file_type"
	MetaLoadedAt           = "loaded_at"
	MetaChunkIndex         = "chunk_index"
	MetaTotalChunks        = "total_chunks"
	MetaPage               = "page"
	MetaChunkID            = "chunk_id"
	MetaChunkSize          = "chunk_size"
	MetaWordCount          = "word_count"
	MetaReadingTimeSeconds = "reading_time_seconds"
	MetaContentPreview     = "content_preview"
	MetaChunkPosition      = "chunk_position"
)

// UnknownSource is reported when a chunk carries no source_file.
const UnknownSource = "Unknown"

// Metadata is a free-form attribute map. Values survive a JSON round trip,
// so integers may come back as float64; use the typed accessors.
type Metadata map[string]any

// Clone returns a shallow copy safe to mutate.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m)+8)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String returns the value under key as a string, or "" when absent.
func (m Metadata) String(key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// Int returns the value under key as an int.
func (m Metadata) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	default:
		return 0, false
	}
}

// Document represents one unit of loaded content (a text file, or one page of a PDF).
type Document struct {
	Content  string
	Metadata Metadata
}

// Chunk is a bounded, possibly overlapping segment of a document used for indexing.
type Chunk struct {
	Content  string
	Metadata Metadata
}

// SourceFile returns the chunk's source file name, or UnknownSource.
func (c Chunk) SourceFile() string {
	if s := c.Metadata.String(MetaSourceFile); s != "" {
		return s
	}
	return UnknownSource
}

// ChunkID returns the batch-relative sequence number assigned by the chunker.
func (c Chunk) ChunkID() (int, bool) { return c.Metadata.Int(MetaChunkID) }

// Page returns the 0-based page number for paged sources.
func (c Chunk) Page() (int, bool) { return c.Metadata.Int(MetaPage) }

// ScoredChunk represents a retrieved chunk with its similarity score.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}
