package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/examdex/examdex/internal/db"
	"github.com/examdex/examdex/internal/domain"
	"github.com/examdex/examdex/internal/domain/intent"
	"github.com/examdex/examdex/internal/repository/search"
)

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return m.result, m.err
}

type mockSearcher struct {
	hits        []search.Hit
	searchErr   error
	enriched    []domain.EnrichedFragment
	enrichErr   error
	lastFilters db.Filters
	lastK       int
}

func (m *mockSearcher) Search(_ context.Context, _ []float32, filters db.Filters, k int) ([]search.Hit, error) {
	m.lastFilters = filters
	m.lastK = k
	return m.hits, m.searchErr
}

func (m *mockSearcher) Enrich(_ context.Context, hits []search.Hit) ([]domain.EnrichedFragment, error) {
	if m.enrichErr != nil {
		return nil, m.enrichErr
	}
	// Keep only enriched entries whose hash survived filtering.
	keep := make(map[string]bool, len(hits))
	for _, h := range hits {
		keep[h.ContentHash] = true
	}
	var out []domain.EnrichedFragment
	for _, ef := range m.enriched {
		if keep[ef.Fragment.ContentHash] {
			out = append(out, ef)
		}
	}
	return out, nil
}

func enrichedFrag(hash, docID string, sim float64) domain.EnrichedFragment {
	return domain.EnrichedFragment{
		Fragment: domain.Fragment{
			ContentHash:      hash,
			SourceDocumentID: docID,
			Text:             "fragment " + hash,
		},
		Document:   domain.SourceDocument{ID: docID, SubjectCode: "9701", Year: 2022},
		Similarity: sim,
	}
}

func newTestService(emb *mockEmbedder, srch *mockSearcher) *Service {
	if emb.result.Vector == nil && emb.err == nil {
		emb.result = domain.EmbeddingResult{Vector: []float32{1, 0}, Model: "test-model"}
	}
	return New(emb, srch, zap.NewNop())
}

func TestRetrieveGroupsByDocument(t *testing.T) {
	srch := &mockSearcher{
		hits: []search.Hit{
			{ContentHash: "a", Similarity: 0.9},
			{ContentHash: "b", Similarity: 0.8},
			{ContentHash: "c", Similarity: 0.7},
			{ContentHash: "d", Similarity: 0.6},
		},
		enriched: []domain.EnrichedFragment{
			enrichedFrag("a", "d1", 0.9),
			enrichedFrag("b", "d2", 0.8),
			enrichedFrag("c", "d1", 0.7),
			enrichedFrag("d", "d1", 0.6),
		},
	}
	s := newTestService(&mockEmbedder{}, srch)

	res, err := s.Retrieve(context.Background(), "rate of reaction", intent.Classification{}, Filters{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !res.OK {
		t.Fatalf("result not OK: %s", res.FailureReason)
	}
	if len(res.Groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(res.Groups))
	}
	// First-seen order: d1 then d2.
	if res.Groups[0].Document.ID != "d1" || res.Groups[1].Document.ID != "d2" {
		t.Errorf("group order: %s, %s", res.Groups[0].Document.ID, res.Groups[1].Document.ID)
	}
	// d1 capped at two fragments, best first.
	if len(res.Groups[0].Fragments) != 2 {
		t.Fatalf("d1 has %d fragments, want 2", len(res.Groups[0].Fragments))
	}
	if res.Groups[0].Fragments[0].Similarity != 0.9 || res.Groups[0].Fragments[1].Similarity != 0.7 {
		t.Errorf("d1 similarities: %v, %v",
			res.Groups[0].Fragments[0].Similarity, res.Groups[0].Fragments[1].Similarity)
	}
	// Raw scores cover every threshold-passing fragment, capped or not.
	if len(res.RawScores) != 4 {
		t.Errorf("raw scores = %v, want 4 entries", res.RawScores)
	}
}

func TestRetrieveRawScoresIncludeCappedFragments(t *testing.T) {
	srch := &mockSearcher{
		hits: []search.Hit{
			{ContentHash: "a", Similarity: 0.9},
			{ContentHash: "b", Similarity: 0.8},
			{ContentHash: "c", Similarity: 0.7},
		},
		enriched: []domain.EnrichedFragment{
			enrichedFrag("a", "d1", 0.9),
			enrichedFrag("b", "d1", 0.8),
			enrichedFrag("c", "d1", 0.7),
		},
	}
	s := newTestService(&mockEmbedder{}, srch)

	res, err := s.Retrieve(context.Background(), "q", intent.Classification{}, Filters{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	// The cap keeps two fragments, the third score still counts toward
	// confidence.
	if len(res.Groups) != 1 || len(res.Groups[0].Fragments) != 2 {
		t.Fatalf("groups = %+v", res.Groups)
	}
	want := []float64{0.9, 0.8, 0.7}
	if len(res.RawScores) != len(want) {
		t.Fatalf("raw scores = %v, want %v", res.RawScores, want)
	}
	for i, sc := range want {
		if res.RawScores[i] != sc {
			t.Errorf("raw score[%d] = %v, want %v", i, res.RawScores[i], sc)
		}
	}
}

func TestRetrievePerGroupCapHolds(t *testing.T) {
	var hits []search.Hit
	var enriched []domain.EnrichedFragment
	for i, h := range []string{"a", "b", "c", "d", "e"} {
		sim := 0.9 - float64(i)*0.05
		hits = append(hits, search.Hit{ContentHash: h, Similarity: sim})
		enriched = append(enriched, enrichedFrag(h, "d1", sim))
	}
	s := newTestService(&mockEmbedder{}, &mockSearcher{hits: hits, enriched: enriched})

	res, err := s.Retrieve(context.Background(), "q", intent.Classification{}, Filters{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Groups) != 1 || len(res.Groups[0].Fragments) != DefaultGroupCap {
		t.Errorf("groups = %d, fragments = %d", len(res.Groups), len(res.Groups[0].Fragments))
	}
}

func TestRetrieveNoResults(t *testing.T) {
	s := newTestService(&mockEmbedder{}, &mockSearcher{})

	res, err := s.Retrieve(context.Background(), "q", intent.Classification{}, Filters{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.OK {
		t.Fatal("expected failure result")
	}
	if res.FailureReason != "No results found" {
		t.Errorf("reason = %q", res.FailureReason)
	}
}

func TestRetrieveAllBelowThreshold(t *testing.T) {
	srch := &mockSearcher{
		hits: []search.Hit{
			{ContentHash: "a", Similarity: 0.4},
			{ContentHash: "b", Similarity: 0.3},
		},
	}
	s := newTestService(&mockEmbedder{}, srch)

	res, err := s.Retrieve(context.Background(), "q", intent.Classification{}, Filters{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.OK {
		t.Fatal("expected failure result")
	}
	if !strings.Contains(res.FailureReason, "0.50") {
		t.Errorf("reason should name the threshold: %q", res.FailureReason)
	}
}

func TestRetrieveBuildsFilters(t *testing.T) {
	srch := &mockSearcher{}
	s := newTestService(&mockEmbedder{}, srch)

	cls := intent.Classification{
		SubjectCode: "9702",
		Year:        2021,
		FileType:    domain.FileTypeMarkingScheme,
	}
	if _, err := s.Retrieve(context.Background(), "q", cls, Filters{}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if srch.lastFilters.Tags["subject"] != "9702" {
		t.Errorf("subject filter = %q", srch.lastFilters.Tags["subject"])
	}
	if srch.lastFilters.Tags["file_type"] != "MS" {
		t.Errorf("file_type filter = %q", srch.lastFilters.Tags["file_type"])
	}
	if srch.lastFilters.Numerics["year"] != 2021 {
		t.Errorf("year filter = %v", srch.lastFilters.Numerics["year"])
	}
	if srch.lastK != DefaultTopK {
		t.Errorf("k = %d, want %d", srch.lastK, DefaultTopK)
	}
}

func TestRetrieveExplicitFiltersOverrideClassifier(t *testing.T) {
	srch := &mockSearcher{}
	s := newTestService(&mockEmbedder{}, srch)

	cls := intent.Classification{SubjectCode: "9702", Year: 2021}
	flt := Filters{Subject: "9701", Year: 2023, FileType: "MS", Level: "AS"}
	if _, err := s.Retrieve(context.Background(), "q", cls, flt); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if srch.lastFilters.Tags["subject"] != "9701" {
		t.Errorf("subject filter = %q, want explicit 9701", srch.lastFilters.Tags["subject"])
	}
	if srch.lastFilters.Tags["file_type"] != "MS" {
		t.Errorf("file_type filter = %q", srch.lastFilters.Tags["file_type"])
	}
	if srch.lastFilters.Tags["level"] != "AS" {
		t.Errorf("level filter = %q, want AS", srch.lastFilters.Tags["level"])
	}
	if srch.lastFilters.Numerics["year"] != 2023 {
		t.Errorf("year filter = %v, want explicit 2023", srch.lastFilters.Numerics["year"])
	}
}

func TestRetrieveEmbedError(t *testing.T) {
	s := newTestService(&mockEmbedder{err: errors.New("boom")}, &mockSearcher{})
	if _, err := s.Retrieve(context.Background(), "q", intent.Classification{}, Filters{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRetrieveSearchError(t *testing.T) {
	s := newTestService(&mockEmbedder{}, &mockSearcher{searchErr: errors.New("down")})
	if _, err := s.Retrieve(context.Background(), "q", intent.Classification{}, Filters{}); err == nil {
		t.Fatal("expected error")
	}
}
