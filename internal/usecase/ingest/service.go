// Package ingest turns extracted document text into embedded fragments.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/examdex/examdex/internal/domain"
	"github.com/examdex/examdex/internal/domain/chunk"
)

// DefaultMinDocChars is the minimum normalized text length worth ingesting.
// Shorter extractions are almost always OCR refuse.
const DefaultMinDocChars = 200

// DefaultConcurrency bounds parallel embedding requests per document.
const DefaultConcurrency = 2

// Result reports what one document ingestion produced.
type Result struct {
	FragmentsCreated  int
	EmbeddingsCreated int
}

// Service coordinates the chunk, store and embed steps for one document at
// a time.
type Service struct {
	frags       FragmentStore
	embedder    Embedder
	chunker     *chunk.Chunker
	model       string
	minDocChars int
	concurrency int
	logger      *zap.Logger
}

// New creates an ingest service.
func New(frags FragmentStore, embedder Embedder, chunker *chunk.Chunker, model string, logger *zap.Logger) *Service {
	return &Service{
		frags:       frags,
		embedder:    embedder,
		chunker:     chunker,
		model:       model,
		minDocChars: DefaultMinDocChars,
		concurrency: DefaultConcurrency,
		logger:      logger,
	}
}

// WithConcurrency configures the embedding worker count.
func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// WithMinDocChars configures the short-document cutoff.
func (s *Service) WithMinDocChars(n int) *Service {
	if n > 0 {
		s.minDocChars = n
	}
	return s
}

// IngestText chunks the document text, stores new fragments and embeds the
// ones that have no vector for the configured model yet. Documents whose
// normalized text is too short are skipped with a zero result, not an error.
// Re-running over the same text is idempotent.
func (s *Service) IngestText(ctx context.Context, doc domain.SourceDocument, text string) (Result, error) {
	normalized := chunk.Normalize(text)
	if len(normalized) < s.minDocChars {
		s.logger.Info("Skipping short document",
			zap.String("document_id", doc.ID),
			zap.Int("chars", len(normalized)))
		return Result{}, nil
	}

	var frags []domain.Fragment
	for seq, piece := range s.chunker.Chunk(normalized) {
		frags = append(frags, domain.NewFragment(doc.ID, seq, piece))
	}
	if len(frags) == 0 {
		return Result{}, nil
	}

	created, err := s.frags.UpsertFragments(ctx, doc, frags)
	if err != nil {
		return Result{}, fmt.Errorf("upsert fragments: %w", err)
	}

	hashes := make([]string, len(frags))
	textByHash := make(map[string]string, len(frags))
	for i, f := range frags {
		hashes[i] = f.ContentHash
		textByHash[f.ContentHash] = f.Text
	}

	missing, err := s.frags.FindMissingEmbeddings(ctx, hashes, s.model)
	if err != nil {
		return Result{FragmentsCreated: created}, fmt.Errorf("find missing embeddings: %w", err)
	}

	embedded := s.embedMissing(ctx, missing, textByHash)

	return Result{FragmentsCreated: created, EmbeddingsCreated: int(embedded)}, nil
}

// embedMissing runs a bounded worker pool over the missing hashes. A failed
// fragment is logged and skipped; the rest of the document still lands.
func (s *Service) embedMissing(ctx context.Context, missing []string, textByHash map[string]string) int64 {
	if len(missing) == 0 {
		return 0
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	var embedded atomic.Int64

	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for hash := range jobs {
				if s.embedOne(ctx, hash, textByHash[hash]) {
					embedded.Add(1)
				}
			}
		}()
	}

	for _, hash := range missing {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return embedded.Load()
		case jobs <- hash:
		}
	}
	close(jobs)
	wg.Wait()

	return embedded.Load()
}

func (s *Service) embedOne(ctx context.Context, hash, text string) bool {
	result, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("Failed to embed fragment", zap.String("hash", hash), zap.Error(err))
		return false
	}

	err = s.frags.InsertEmbedding(ctx, hash, result.Vector, result.Model)
	if err != nil && !errors.Is(err, domain.ErrEmbeddingExists) {
		s.logger.Warn("Failed to store embedding", zap.String("hash", hash), zap.Error(err))
		return false
	}

	if err := s.frags.MarkEmbedded(ctx, hash); err != nil {
		s.logger.Warn("Failed to mark fragment embedded", zap.String("hash", hash), zap.Error(err))
	}
	return true
}
