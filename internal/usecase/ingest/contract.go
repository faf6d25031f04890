package ingest

import (
	"context"

	"github.com/examdex/examdex/internal/domain"
)

// FragmentStore persists fragments and their embeddings.
type FragmentStore interface {
	UpsertFragments(ctx context.Context, doc domain.SourceDocument, frags []domain.Fragment) (int, error)
	FindMissingEmbeddings(ctx context.Context, hashes []string, model string) ([]string, error)
	InsertEmbedding(ctx context.Context, hash string, vector []float32, model string) error
	MarkEmbedded(ctx context.Context, hash string) error
}

// Embedder produces embedding vectors for fragment text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
