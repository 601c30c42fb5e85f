// Package summarizer builds short extractive summaries of indexed text.
package summarizer

import (
	"math"
	"slices"
	"sort"
	"strings"

	"docqa/internal/textutil"
)

// DefaultMaxSentences is used when a non-positive limit is requested.
const DefaultMaxSentences = 5

// FrequencySummarizer ranks sentences by normalised term frequency.
type FrequencySummarizer struct{}

// NewFrequencySummarizer creates a frequency-based sentence ranker.
func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{}
}

// Summarize picks the maxSentences highest-scoring sentences and returns them
// in their original order.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	sentences := textutil.Sentences(text)
	if len(sentences) <= 1 {
		return strings.Join(sentences, ""), nil
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range textutil.Terms(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, sent := range sentences {
		words := textutil.Words(sent)
		total := 0.0
		for _, tok := range words {
			total += freq[tok]
		}
		// normalise by sentence length
		if len(words) > 0 {
			total /= math.Sqrt(float64(len(words)))
		}
		scores[i] = scored{i, total}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(maxSentences, len(scores))
	selected := make([]int, n)
	for i := range n {
		selected[i] = scores[i].idx
	}
	slices.Sort(selected)

	out := make([]string, n)
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}
