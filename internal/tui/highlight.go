package tui

import (
	"strings"

	"docqa/internal/textutil"
)

// highlightBestSentence renders text with the sentence sharing the most terms
// with query emphasised.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := textutil.Sentences(text)
	qTerms := textutil.TermSet(query)
	if len(qTerms) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := overlap(qTerms, s); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	if bestScore == 0 {
		return strings.Join(sentences, " ")
	}
	out := make([]string, len(sentences))
	for i, s := range sentences {
		if i == bestIdx {
			out[i] = highlightStyle.Render(s)
		} else {
			out[i] = s
		}
	}
	return strings.Join(out, " ")
}

func overlap(terms map[string]struct{}, sentence string) int {
	score := 0
	for t := range textutil.TermSet(sentence) {
		if _, ok := terms[t]; ok {
			score++
		}
	}
	return score
}
