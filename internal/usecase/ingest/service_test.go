package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/examdex/examdex/internal/domain"
	"github.com/examdex/examdex/internal/domain/chunk"
)

type mockFragmentStore struct {
	mu         sync.Mutex
	upserted   []domain.Fragment
	embeddings map[string]string // hash -> model
	marked     map[string]bool
	insertErr  error
	missingErr error
}

func newMockFragmentStore() *mockFragmentStore {
	return &mockFragmentStore{
		embeddings: make(map[string]string),
		marked:     make(map[string]bool),
	}
}

func (m *mockFragmentStore) UpsertFragments(_ context.Context, _ domain.SourceDocument, frags []domain.Fragment) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted = append(m.upserted, frags...)
	return len(frags), nil
}

func (m *mockFragmentStore) FindMissingEmbeddings(_ context.Context, hashes []string, model string) ([]string, error) {
	if m.missingErr != nil {
		return nil, m.missingErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var missing []string
	for _, h := range hashes {
		if m.embeddings[h] != model {
			missing = append(missing, h)
		}
	}
	return missing, nil
}

func (m *mockFragmentStore) InsertEmbedding(_ context.Context, hash string, _ []float32, model string) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.embeddings[hash] == model {
		return domain.ErrEmbeddingExists
	}
	m.embeddings[hash] = model
	return nil
}

func (m *mockFragmentStore) MarkEmbedded(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked[hash] = true
	return nil
}

type mockEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{
		Vector: domain.FallbackVector(text, 16),
		Model:  "test-model",
	}, nil
}

func newTestService(frags *mockFragmentStore, emb *mockEmbedder) *Service {
	chunker := chunk.New(300, 50, 0)
	return New(frags, emb, chunker, "test-model", zap.NewNop())
}

func longText(paragraphs int) string {
	p := strings.Repeat("The rate of reaction doubles for every ten degree rise in temperature. ", 3)
	return strings.Repeat(p+"\n\n", paragraphs)
}

func TestIngestTextCreatesAndEmbeds(t *testing.T) {
	frags := newMockFragmentStore()
	emb := &mockEmbedder{}
	s := newTestService(frags, emb)

	doc := domain.SourceDocument{ID: "d1", SubjectCode: "9701"}
	res, err := s.IngestText(context.Background(), doc, longText(6))
	if err != nil {
		t.Fatalf("IngestText: %v", err)
	}
	if res.FragmentsCreated == 0 {
		t.Fatal("no fragments created")
	}
	if res.EmbeddingsCreated != res.FragmentsCreated {
		t.Errorf("embeddings = %d, fragments = %d", res.EmbeddingsCreated, res.FragmentsCreated)
	}
	if emb.calls != res.FragmentsCreated {
		t.Errorf("embed calls = %d, want %d", emb.calls, res.FragmentsCreated)
	}
	for _, f := range frags.upserted {
		if !frags.marked[f.ContentHash] {
			t.Errorf("fragment %s not marked embedded", f.ContentHash[:8])
		}
	}
}

func TestIngestTextIdempotent(t *testing.T) {
	frags := newMockFragmentStore()
	emb := &mockEmbedder{}
	s := newTestService(frags, emb)

	doc := domain.SourceDocument{ID: "d1"}
	text := longText(4)

	first, err := s.IngestText(context.Background(), doc, text)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	second, err := s.IngestText(context.Background(), doc, text)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if second.EmbeddingsCreated != 0 {
		t.Errorf("second run embedded %d fragments, want 0", second.EmbeddingsCreated)
	}
	if emb.calls != first.EmbeddingsCreated {
		t.Errorf("embed calls = %d, want %d", emb.calls, first.EmbeddingsCreated)
	}
}

func TestIngestTextSkipsShortDocument(t *testing.T) {
	frags := newMockFragmentStore()
	emb := &mockEmbedder{}
	s := newTestService(frags, emb)

	res, err := s.IngestText(context.Background(), domain.SourceDocument{ID: "d1"}, "too short")
	if err != nil {
		t.Fatalf("IngestText: %v", err)
	}
	if res.FragmentsCreated != 0 || res.EmbeddingsCreated != 0 {
		t.Errorf("result = %+v, want zero", res)
	}
	if len(frags.upserted) != 0 {
		t.Error("fragments stored for short document")
	}
}

func TestIngestTextMinDocCharsConfigurable(t *testing.T) {
	frags := newMockFragmentStore()
	emb := &mockEmbedder{}
	s := newTestService(frags, emb).WithMinDocChars(800)

	// Long enough for the default cutoff, too short for the raised one.
	text := longText(3)
	if len(text) <= DefaultMinDocChars || len(text) >= 800 {
		t.Fatalf("test text length %d does not sit between the cutoffs", len(text))
	}

	res, err := s.IngestText(context.Background(), domain.SourceDocument{ID: "d1"}, text)
	if err != nil {
		t.Fatalf("IngestText: %v", err)
	}
	if res.FragmentsCreated != 0 {
		t.Errorf("fragments created = %d, want 0 below raised cutoff", res.FragmentsCreated)
	}
}

func TestIngestTextEmbedFailuresSkipFragments(t *testing.T) {
	frags := newMockFragmentStore()
	emb := &mockEmbedder{err: errors.New("boom")}
	s := newTestService(frags, emb)

	res, err := s.IngestText(context.Background(), domain.SourceDocument{ID: "d1"}, longText(4))
	if err != nil {
		t.Fatalf("IngestText: %v", err)
	}
	if res.FragmentsCreated == 0 {
		t.Error("fragments should still be stored")
	}
	if res.EmbeddingsCreated != 0 {
		t.Errorf("embeddings = %d, want 0", res.EmbeddingsCreated)
	}
}

func TestIngestTextExistingEmbeddingCountsAsSuccess(t *testing.T) {
	frags := newMockFragmentStore()
	emb := &mockEmbedder{}
	s := newTestService(frags, emb)

	doc := domain.SourceDocument{ID: "d1"}
	text := longText(4)

	if _, err := s.IngestText(context.Background(), doc, text); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	// Pretend the status write was lost: rows hold vectors but a re-run
	// still finds them missing.
	frags.missingErr = nil
	frags.insertErr = nil
	chunker := chunk.New(300, 50, 0)
	var hashes []string
	for seq, piece := range chunker.Chunk(chunk.Normalize(text)) {
		hashes = append(hashes, domain.NewFragment(doc.ID, seq, piece).ContentHash)
	}

	embedded := s.embedMissing(context.Background(), hashes, textByHashFor(doc.ID, chunker, text))
	if int(embedded) != len(hashes) {
		t.Errorf("embedded = %d, want %d", embedded, len(hashes))
	}
}

func textByHashFor(docID string, chunker *chunk.Chunker, text string) map[string]string {
	out := make(map[string]string)
	for seq, piece := range chunker.Chunk(chunk.Normalize(text)) {
		f := domain.NewFragment(docID, seq, piece)
		out[f.ContentHash] = f.Text
	}
	return out
}
