package retrieval

import (
	"context"

	"github.com/examdex/examdex/internal/db"
	"github.com/examdex/examdex/internal/domain"
	"github.com/examdex/examdex/internal/repository/search"
)

// Embedder produces the query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Searcher runs KNN queries and enriches the hits.
type Searcher interface {
	Search(ctx context.Context, vector []float32, filters db.Filters, k int) ([]search.Hit, error)
	Enrich(ctx context.Context, hits []search.Hit) ([]domain.EnrichedFragment, error)
}
