// Package chunk splits normalized document text into overlapping,
// size-bounded fragments for embedding and retrieval.
package chunk

import (
	"iter"
	"regexp"
	"strings"
)

// MinFragmentLen is the minimum trimmed length for a fragment to be kept.
// Shorter slices are page furniture (headers, question numbers) and carry
// no retrievable content.
const MinFragmentLen = 80

// Chunker produces overlapping text fragments of roughly Size characters.
type Chunker struct {
	size    int
	overlap int
	cap     int
}

// New creates a chunker. Size must be positive; overlap and cap are clamped
// to sane values (overlap below size, cap positive).
func New(size, overlap, fragmentCap int) *Chunker {
	if size <= 0 {
		size = 1200
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	if fragmentCap <= 0 {
		fragmentCap = 120
	}
	return &Chunker{size: size, overlap: overlap, cap: fragmentCap}
}

var (
	trailingWS = regexp.MustCompile(`[ \t]+\n`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
)

// Normalize collapses trailing whitespace and runs of blank lines, leaving at
// most one blank line between paragraphs.
func Normalize(text string) string {
	text = trailingWS.ReplaceAllString(text, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Chunk returns a lazy sequence of (index, fragment) pairs over text.
// The sequence is finite and restartable: each range over it re-walks the
// text from offset zero. Fragments shorter than MinFragmentLen after
// trimming are skipped and do not consume an index. Emission stops at the
// fragment cap; the tail of an oversized document is dropped rather than
// truncated mid-fragment.
func (c *Chunker) Chunk(text string) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		n := len(text)
		emitted := 0

		for start := 0; start < n; {
			end := start + c.size
			if end > n {
				end = n
			}

			piece := strings.TrimSpace(text[start:end])
			if len(piece) > MinFragmentLen {
				if emitted >= c.cap {
					return
				}
				if !yield(emitted, piece) {
					return
				}
				emitted++
			}

			if end >= n {
				return
			}

			// Overlap the next window with the tail of this one.
			// The floor at zero guarantees forward progress even with a
			// degenerate overlap configuration.
			next := end - c.overlap
			if next <= start {
				next = start + 1
			}
			if next < 0 {
				next = 0
			}
			start = next
		}
	}
}

// Count returns how many fragments Chunk would emit for text.
func (c *Chunker) Count(text string) int {
	n := 0
	for range c.Chunk(text) {
		n++
	}
	return n
}
