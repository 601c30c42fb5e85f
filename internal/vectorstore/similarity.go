package vectorstore

import (
	"cmp"
	"math"
	"reflect"
	"slices"
)

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}

// TopK sorts hits by descending score and keeps the first k. Ties keep
// insertion order so repeated searches return identical results.
func TopK(hits []ScoredRecord, k int) []ScoredRecord {
	slices.SortStableFunc(hits, func(a, b ScoredRecord) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Matches reports whether md satisfies every filter entry. Numbers compare by
// value regardless of their Go type.
func Matches(md map[string]any, filter Filter) bool {
	for key, want := range filter {
		got, ok := md[key]
		if !ok || !equalValues(got, want) {
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	if aNum != bNum {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
