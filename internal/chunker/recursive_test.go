package chunker

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func doc(content, source string) domain.Document {
	return domain.Document{Content: content, Metadata: domain.Metadata{domain.MetaSourceFile: source}}
}

func TestNew_RejectsBadParameters(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInput))
		})
	}
}

func TestProcess_Empty(t *testing.T) {
	c, err := New(100, 10)
	require.NoError(t, err)

	assert.Empty(t, c.Process(nil))
	assert.Empty(t, c.Process([]domain.Document{doc("", "a.txt"), doc("  \n\n ", "b.txt")}))
}

func TestProcess_ShortDocumentIsOneChunk(t *testing.T) {
	c, err := New(DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)

	chunks := c.Process([]domain.Document{doc("This is a very short document.", "a.txt")})
	require.Len(t, chunks, 1)
	assert.Equal(t, "This is a very short document.", chunks[0].Content)
	assert.Equal(t, "a.txt", chunks[0].SourceFile())
}

func TestProcess_NoNaturalBreaks(t *testing.T) {
	c, err := New(1000, 200)
	require.NoError(t, err)

	chunks := c.Process([]domain.Document{doc(strings.Repeat("word", 500), "w.txt")})
	require.Len(t, chunks, 3)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Content), 1000)
	}
	assert.Equal(t, 1000, utf8.RuneCountInString(chunks[0].Content))
	// the second chunk starts with the last 200 characters of the first
	assert.True(t, strings.HasPrefix(chunks[1].Content, chunks[0].Content[800:]))
}

func TestProcess_SizeAndOverlapBounds(t *testing.T) {
	var b strings.Builder
	for i := range 80 {
		fmt.Fprintf(&b, "Sentence %d covers topic %d in detail. ", i, i*7)
		if i%20 == 19 {
			b.WriteString("\n\n")
		}
	}
	text := b.String()
	c, err := New(200, 50)
	require.NoError(t, err)

	chunks := c.Process([]domain.Document{doc(text, "fox.txt")})
	require.Greater(t, len(chunks), 5)
	for i, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Content), 200, "chunk %d", i)
		assert.NotEmpty(t, ch.Content)
		assert.Equal(t, strings.TrimSpace(ch.Content), ch.Content)
	}
	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, sharedBoundary(chunks[i-1].Content, chunks[i].Content), 50, "chunks %d/%d", i-1, i)
	}
}

func TestProcess_PrefersCoarseSeparators(t *testing.T) {
	c, err := New(30, 0)
	require.NoError(t, err)

	got := c.SplitText("First paragraph here.\n\nSecond paragraph here.")
	assert.Equal(t, []string{"First paragraph here.", "Second paragraph here."}, got)
}

func TestProcess_ChunkIDsContiguousAcrossDocuments(t *testing.T) {
	c, err := New(40, 10)
	require.NoError(t, err)

	docs := []domain.Document{
		doc(strings.Repeat("alpha beta gamma delta. ", 10), "a.txt"),
		doc(strings.Repeat("one two three four five. ", 10), "b.txt"),
	}
	chunks := c.Process(docs)
	require.NotEmpty(t, chunks)

	lastPos := map[string]int{}
	for i, ch := range chunks {
		id, ok := ch.ChunkID()
		require.True(t, ok)
		assert.Equal(t, i, id)

		pos, ok := ch.Metadata.Int(domain.MetaChunkPosition)
		require.True(t, ok)
		prev, seen := lastPos[ch.SourceFile()]
		if seen {
			assert.Equal(t, prev+1, pos)
		} else {
			assert.Equal(t, 0, pos)
		}
		lastPos[ch.SourceFile()] = pos
	}
}

func TestProcess_MetadataEnrichment(t *testing.T) {
	c, err := New(1000, 100)
	require.NoError(t, err)

	text := "line one\nline two " + strings.Repeat("x", 120)
	d := doc(text, "m.txt")
	d.Metadata[domain.MetaPage] = 3
	chunks := c.Process([]domain.Document{d})
	require.Len(t, chunks, 1)

	md := chunks[0].Metadata
	assert.Equal(t, "m.txt", md.String(domain.MetaSourceFile))
	page, ok := chunks[0].Page()
	require.True(t, ok)
	assert.Equal(t, 3, page)
	assert.Equal(t, utf8.RuneCountInString(text), md[domain.MetaChunkSize])
	assert.Equal(t, 5, md[domain.MetaWordCount])
	assert.Equal(t, 1, md[domain.MetaReadingTimeSeconds])

	preview := md.String(domain.MetaContentPreview)
	assert.True(t, strings.HasSuffix(preview, "..."))
	assert.NotContains(t, preview, "\n")
	assert.Equal(t, 103, utf8.RuneCountInString(preview))

	// the source document is untouched
	assert.NotContains(t, d.Metadata, domain.MetaChunkID)
}

func TestProcess_CustomSeparatorsWithoutFallback(t *testing.T) {
	c, err := New(10, 0, "\n")
	require.NoError(t, err)

	got := c.SplitText("short\n" + strings.Repeat("y", 25))
	require.Len(t, got, 2)
	assert.Equal(t, "short", got[0])
	assert.Equal(t, strings.Repeat("y", 25), got[1])
}

func TestSplit_ReassemblesInput(t *testing.T) {
	c, err := New(16, 4)
	require.NoError(t, err)

	text := "Hello, world! How are you? Fine; thanks.\n\nBye.\nNow ünïcödé text follows here."
	assert.Equal(t, text, strings.Join(c.split(text), ""))
}

// sharedBoundary returns the longest suffix of a that is a prefix of b.
func sharedBoundary(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	for n := min(len(ra), len(rb)); n > 0; n-- {
		if string(ra[len(ra)-n:]) == string(rb[:n]) {
			return n
		}
	}
	return 0
}
