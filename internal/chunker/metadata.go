package chunker

import (
	"strings"
	"unicode/utf8"

	"docqa/internal/domain"
)

const (
	previewRunes   = 100
	wordsPerMinute = 200
)

// enrich splits each document with split and stamps chunk metadata. chunk_id
// is contiguous across the whole call; chunk_position restarts per document.
func enrich(docs []domain.Document, split func(string) []string) []domain.Chunk {
	var chunks []domain.Chunk
	for _, doc := range docs {
		for pos, text := range split(doc.Content) {
			md := doc.Metadata.Clone()
			words := len(strings.Fields(text))
			md[domain.MetaChunkID] = len(chunks)
			md[domain.MetaChunkPosition] = pos
			md[domain.MetaChunkSize] = utf8.RuneCountInString(text)
			md[domain.MetaWordCount] = words
			md[domain.MetaReadingTimeSeconds] = words * 60 / wordsPerMinute
			md[domain.MetaContentPreview] = Preview(text, previewRunes)
			chunks = append(chunks, domain.Chunk{Content: text, Metadata: md})
		}
	}
	return chunks
}

// Preview returns the first n runes of s with newlines flattened to spaces,
// followed by "...".
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) > n {
		s = string([]rune(s)[:n])
	}
	return strings.ReplaceAll(s, "\n", " ") + "..."
}
