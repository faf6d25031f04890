package lookup

import (
	"context"

	"github.com/examdex/examdex/internal/db"
	"github.com/examdex/examdex/internal/domain"
)

// DocumentFinder lists ingested source documents by metadata.
type DocumentFinder interface {
	FindDocuments(ctx context.Context, filters db.Filters) ([]domain.SourceDocument, error)
}
