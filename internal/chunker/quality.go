package chunker

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"docqa/internal/domain"
)

// QualityReport summarises a chunking run. It is diagnostic only.
type QualityReport struct {
	TotalChunks     int      `json:"total_chunks"`
	AverageSize     int      `json:"average_size"`
	MinSize         int      `json:"min_size"`
	MaxSize         int      `json:"max_size"`
	TooSmall        int      `json:"chunks_too_small"`
	TooLarge        int      `json:"chunks_too_large"`
	LowContext      int      `json:"chunks_with_low_context"`
	Recommendations []string `json:"recommendations"`
}

const qualityOK = "Chunk quality looks good!"

// AnalyzeQuality flags chunks far from the target size and chunks that start
// mid-sentence. An empty input yields a zero report with no recommendations.
func AnalyzeQuality(chunks []domain.Chunk, targetSize int) QualityReport {
	var r QualityReport
	if len(chunks) == 0 {
		return r
	}
	r.TotalChunks = len(chunks)
	r.MinSize = -1
	sum := 0
	small := float64(targetSize) * 0.3
	large := float64(targetSize) * 1.5
	for i, ch := range chunks {
		n := utf8.RuneCountInString(ch.Content)
		sum += n
		if r.MinSize < 0 || n < r.MinSize {
			r.MinSize = n
		}
		r.MaxSize = max(r.MaxSize, n)
		if float64(n) < small {
			r.TooSmall++
		}
		if float64(n) > large {
			r.TooLarge++
		}
		if i > 0 {
			if first, _ := utf8.DecodeRuneInString(ch.Content); unicode.IsLower(first) {
				r.LowContext++
			}
		}
	}
	r.AverageSize = sum / len(chunks)

	total := float64(len(chunks))
	if float64(r.TooSmall) > total*0.1 {
		r.Recommendations = append(r.Recommendations, fmt.Sprintf(
			"%d chunks are very small. Consider reducing chunk_size or adjusting separators.", r.TooSmall))
	}
	if float64(r.TooLarge) > total*0.1 {
		r.Recommendations = append(r.Recommendations, fmt.Sprintf(
			"%d chunks are very large. Consider increasing chunk_size or reviewing document structure.", r.TooLarge))
	}
	if float64(r.LowContext) > total*0.15 {
		r.Recommendations = append(r.Recommendations, fmt.Sprintf(
			"%d chunks start mid-sentence. Consider increasing chunk_overlap for better context.", r.LowContext))
	}
	if len(r.Recommendations) == 0 {
		r.Recommendations = []string{qualityOK}
	}
	return r
}
