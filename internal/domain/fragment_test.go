package domain

import "testing"

func TestNewFragment(t *testing.T) {
	f := NewFragment("doc-1", 3, "define activation energy")

	if f.Status != FragmentPending {
		t.Errorf("status = %q, want %q", f.Status, FragmentPending)
	}
	if f.SourceDocumentID != "doc-1" || f.SequenceIndex != 3 {
		t.Errorf("unexpected identity fields: %+v", f)
	}
	if f.ContentHash != ContentHash("doc-1", 3, "define activation energy") {
		t.Error("content hash does not match ContentHash helper")
	}
	if len(f.ContentHash) != 64 {
		t.Errorf("content hash length = %d, want 64 hex chars", len(f.ContentHash))
	}
}

func TestContentHash_Distinguishes(t *testing.T) {
	base := ContentHash("doc-1", 0, "text")

	cases := map[string]string{
		"different doc":  ContentHash("doc-2", 0, "text"),
		"different seq":  ContentHash("doc-1", 1, "text"),
		"different text": ContentHash("doc-1", 0, "other"),
	}
	for name, h := range cases {
		if h == base {
			t.Errorf("%s produced the same hash", name)
		}
	}

	// Same inputs always collide with themselves.
	if ContentHash("doc-1", 0, "text") != base {
		t.Error("hash is not deterministic")
	}
}
