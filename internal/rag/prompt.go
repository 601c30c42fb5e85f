package rag

import (
	"fmt"
	"strings"

	"docqa/internal/chunker"
	"docqa/internal/domain"
)

// InsufficientInformation is the sentence the model is told to use when the
// context does not answer the question.
const InsufficientInformation = "I don't have enough information to answer this question based on the provided documents."

const promptTemplate = `You are a helpful assistant answering questions about a private document collection.

Use only the context below to answer the question.

Context:
%s

Question: %s

Instructions:
1. Answer using only information found in the context above.
2. If the context does not contain enough information, reply: "%s"
3. Cite the sources you used by their source number, for example [Source 1].
4. Be concise and precise.
5. Never invent facts, names or figures that are not in the context.

Answer:`

const citationPreviewRunes = 200

// BuildPrompt renders the fixed template around the formatted context and the
// verbatim question.
func BuildPrompt(context, question string) string {
	return fmt.Sprintf(promptTemplate, context, question, InsufficientInformation)
}

// FormatContext renders hits in retrieval order, each labelled with its rank
// and source file, separated by blank lines.
func FormatContext(hits []domain.ScoredChunk) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = fmt.Sprintf("[Source %d: %s]\n%s\n", i+1, h.Chunk.SourceFile(), h.Chunk.Content)
	}
	return strings.Join(parts, "\n")
}

// Citations converts hits to citation records in retrieval order.
func Citations(hits []domain.ScoredChunk) []domain.Citation {
	out := make([]domain.Citation, len(hits))
	for i, h := range hits {
		c := domain.Citation{
			Index:       i + 1,
			File:        h.Chunk.SourceFile(),
			Preview:     chunker.Preview(h.Chunk.Content, citationPreviewRunes),
			FullContent: h.Chunk.Content,
		}
		if id, ok := h.Chunk.ChunkID(); ok {
			c.ChunkID = &id
		}
		if page, ok := h.Chunk.Page(); ok {
			c.Page = &page
		}
		out[i] = c
	}
	return out
}
