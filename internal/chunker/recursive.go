// Package chunker splits loaded documents into bounded, overlapping chunks
// and attaches the per-chunk metadata used for citations and diagnostics.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"docqa/internal/domain"
)

// DefaultSeparators are tried from coarsest to finest. The trailing empty
// separator splits into single characters and guarantees termination.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " ", ""}

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Recursive splits text on a hierarchy of separators, then greedily merges
// the pieces back into chunks of at most size characters with up to overlap
// characters carried between neighbours. Lengths are counted in runes.
type Recursive struct {
	size       int
	overlap    int
	separators []string
}

// New returns a recursive chunker. With no separators DefaultSeparators is
// used. A list without the empty separator lets an unsplittable piece exceed
// size.
func New(size, overlap int, separators ...string) (*Recursive, error) {
	if size <= 0 {
		return nil, domain.E(domain.KindInput, "chunker.new", fmt.Errorf("chunk size must be positive, got %d", size))
	}
	if overlap < 0 || overlap >= size {
		return nil, domain.E(domain.KindInput, "chunker.new",
			fmt.Errorf("chunk overlap %d must be in [0, %d)", overlap, size))
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	seps := make([]string, len(separators))
	copy(seps, separators)
	return &Recursive{size: size, overlap: overlap, separators: seps}, nil
}

// Size returns the target chunk size.
func (c *Recursive) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Recursive) Overlap() int { return c.overlap }

// Process chunks every document and enriches chunk metadata in emission order.
func (c *Recursive) Process(docs []domain.Document) []domain.Chunk {
	return enrich(docs, c.SplitText)
}

// SplitText returns the trimmed, non-empty chunks of text.
func (c *Recursive) SplitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.merge(c.split(text))
}

type segment struct {
	text  string
	level int
}

// split breaks text into pieces no longer than size, keeping each separator
// as the prefix of the piece that follows it. Concatenating the pieces
// reproduces text.
func (c *Recursive) split(text string) []string {
	var pieces []string
	stack := []segment{{text: text}}
	for len(stack) > 0 {
		seg := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if utf8.RuneCountInString(seg.text) <= c.size {
			pieces = append(pieces, seg.text)
			continue
		}
		level, sep, ok := c.separatorFor(seg)
		if !ok {
			pieces = append(pieces, seg.text)
			continue
		}
		if sep == "" {
			for _, r := range seg.text {
				pieces = append(pieces, string(r))
			}
			continue
		}
		parts := splitKeep(seg.text, sep)
		// stack is LIFO: push in reverse to keep document order
		for i := len(parts) - 1; i >= 0; i-- {
			stack = append(stack, segment{text: parts[i], level: level + 1})
		}
	}
	return pieces
}

func (c *Recursive) separatorFor(seg segment) (int, string, bool) {
	for i := seg.level; i < len(c.separators); i++ {
		sep := c.separators[i]
		if sep == "" || strings.Contains(seg.text, sep) {
			return i, sep, true
		}
	}
	return 0, "", false
}

func splitKeep(text, sep string) []string {
	raw := strings.Split(text, sep)
	out := make([]string, 0, len(raw))
	for i, p := range raw {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Recursive) merge(pieces []string) []string {
	var (
		chunks  []string
		window  []string
		lengths []int
		total   int
	)
	emit := func() {
		if s := strings.TrimSpace(strings.Join(window, "")); s != "" {
			chunks = append(chunks, s)
		}
	}
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n > c.size && len(window) > 0 {
			emit()
			for len(window) > 0 && (total > c.overlap || total+n > c.size) {
				total -= lengths[0]
				window, lengths = window[1:], lengths[1:]
			}
		}
		window = append(window, p)
		lengths = append(lengths, n)
		total += n
	}
	if len(window) > 0 {
		emit()
	}
	return chunks
}
