package chunker

import (
	"strings"

	"docqa/internal/domain"
	"docqa/internal/textutil"
)

// SentenceChunker groups whole sentences into chunks, repeating the last
// overlapSentences sentences at the start of the next chunk.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
	}
}

func (c *SentenceChunker) Process(docs []domain.Document) []domain.Chunk {
	return enrich(docs, c.SplitText)
}

func (c *SentenceChunker) SplitText(text string) []string {
	sentences := textutil.Sentences(text)
	var chunks []string
	i := 0
	for i < len(sentences) {
		end := min(i+c.sentencesPerChunk, len(sentences))
		chunks = append(chunks, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks
}
