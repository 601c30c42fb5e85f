package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func TestSentenceChunker_Overlap(t *testing.T) {
	c := NewSentenceChunker(2, 1)
	got := c.SplitText("One. Two. Three. Four.")
	assert.Equal(t, []string{"One. Two.", "Two. Three.", "Three. Four."}, got)
}

func TestSentenceChunker_ClampsOverlap(t *testing.T) {
	c := NewSentenceChunker(2, 5)
	got := c.SplitText("A. B. C.")
	assert.Equal(t, []string{"A. B.", "B. C."}, got)
}

func TestSentenceChunker_Process(t *testing.T) {
	c := NewSentenceChunker(3, 0)
	chunks := c.Process([]domain.Document{doc("No terminator here", "s.txt")})
	require.Len(t, chunks, 1)
	assert.Equal(t, "No terminator here", chunks[0].Content)
	id, ok := chunks[0].ChunkID()
	assert.True(t, ok)
	assert.Equal(t, 0, id)
}
