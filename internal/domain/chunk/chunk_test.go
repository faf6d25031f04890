package chunk

import (
	"strings"
	"testing"
)

func TestChunk_MinLength(t *testing.T) {
	c := New(100, 20, 120)
	text := strings.Repeat("a", 1000)

	for _, frag := range c.Chunk(text) {
		if len(strings.TrimSpace(frag)) <= MinFragmentLen {
			t.Errorf("fragment below minimum length: %d chars", len(frag))
		}
	}
}

func TestChunk_CoversFullInput(t *testing.T) {
	c := New(200, 50, 1000)
	text := strings.Repeat("abcdefghij", 100) // 1000 chars, no whitespace trimming effects

	covered := 0
	for _, frag := range c.Chunk(text) {
		// Each fragment advances the window by size-overlap except the last.
		if covered == 0 {
			covered = len(frag)
		} else {
			covered += len(frag) - 50
		}
	}
	if covered < len(text) {
		t.Errorf("fragments cover %d of %d chars", covered, len(text))
	}
}

func TestChunk_Overlap(t *testing.T) {
	c := New(200, 50, 1000)
	text := strings.Repeat("x", 500)

	var frags []string
	for _, frag := range c.Chunk(text) {
		frags = append(frags, frag)
	}
	if len(frags) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(frags))
	}

	// Consecutive fragments share the overlap region.
	first := frags[0]
	second := frags[1]
	if first[len(first)-50:] != second[:50] {
		t.Error("expected 50-char overlap between consecutive fragments")
	}
}

func TestChunk_Empty(t *testing.T) {
	c := New(1200, 200, 120)

	if got := c.Count(""); got != 0 {
		t.Errorf("expected zero fragments for empty text, got %d", got)
	}
	if got := c.Count("short"); got != 0 {
		t.Errorf("expected zero fragments for short text, got %d", got)
	}
}

func TestChunk_FragmentCap(t *testing.T) {
	c := New(100, 0, 3)
	text := strings.Repeat("z", 10_000)

	if got := c.Count(text); got != 3 {
		t.Errorf("expected cap of 3 fragments, got %d", got)
	}
}

func TestChunk_ForwardProgressWithDegenerateOverlap(t *testing.T) {
	// overlap >= size is clamped at construction, but even a hand-built
	// chunker must terminate.
	c := &Chunker{size: 100, overlap: 100, cap: 1000}
	text := strings.Repeat("y", 1000)

	seen := 0
	for range c.Chunk(text) {
		seen++
		if seen > 1100 {
			t.Fatal("chunker failed to make forward progress")
		}
	}
}

func TestChunk_Restartable(t *testing.T) {
	c := New(150, 30, 120)
	text := strings.Repeat("q", 600)
	seq := c.Chunk(text)

	first := 0
	for range seq {
		first++
	}
	second := 0
	for range seq {
		second++
	}
	if first != second || first == 0 {
		t.Errorf("sequence not restartable: first=%d second=%d", first, second)
	}
}

func TestNormalize(t *testing.T) {
	in := "line one   \nline two\n\n\n\nline three\n"
	want := "line one\nline two\n\nline three"

	if got := Normalize(in); got != want {
		t.Errorf("Normalize:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestChunk_Indexes(t *testing.T) {
	c := New(200, 0, 120)
	text := strings.Repeat("m", 1000)

	want := 0
	for idx := range c.Chunk(text) {
		if idx != want {
			t.Fatalf("expected index %d, got %d", want, idx)
		}
		want++
	}
	if want == 0 {
		t.Fatal("expected at least one fragment")
	}
}
