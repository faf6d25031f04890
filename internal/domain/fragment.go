package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fragment status values. Fragments are append-only; the only permitted
// mutation is the pending -> embedded status transition.
const (
	FragmentPending  = "pending"
	FragmentEmbedded = "embedded"
)

// Fragment is a bounded slice of a source document's normalized text,
// the atomic retrieval unit.
type Fragment struct {
	ContentHash      string // natural key, unique across the store
	SourceDocumentID string
	SequenceIndex    int
	Text             string
	Status           string
}

// NewFragment builds a fragment with its content hash derived from
// (document, sequence, text). Re-ingesting identical text yields the
// same hash, which is what makes ingestion idempotent.
func NewFragment(docID string, seq int, text string) Fragment {
	return Fragment{
		ContentHash:      ContentHash(docID, seq, text),
		SourceDocumentID: docID,
		SequenceIndex:    seq,
		Text:             text,
		Status:           FragmentPending,
	}
}

// ContentHash returns the deterministic dedup key for a fragment.
func ContentHash(docID string, seq int, text string) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s:%d:%s", docID, seq, text))
	return hex.EncodeToString(h[:])
}

// EnrichedFragment is a fragment joined with its owning document's paper
// context and the similarity score it earned in a search. Ephemeral.
type EnrichedFragment struct {
	Fragment   Fragment
	Document   SourceDocument
	Similarity float64
}

// RetrievedGroup aggregates the retained fragments of one source document.
type RetrievedGroup struct {
	Document  SourceDocument
	Fragments []EnrichedFragment
}
