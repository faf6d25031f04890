package query

import (
	"context"

	domanswer "github.com/examdex/examdex/internal/domain/answer"
	"github.com/examdex/examdex/internal/domain/intent"
	"github.com/examdex/examdex/internal/usecase/lookup"
	"github.com/examdex/examdex/internal/usecase/retrieval"
)

// Retriever finds fragment groups for an exam question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, cls intent.Classification, flt retrieval.Filters) (retrieval.Result, error)
}

// AnswerGenerator produces the final answer from retrieved context.
type AnswerGenerator interface {
	Generate(ctx context.Context, query string, ret retrieval.Result) domanswer.Answer
}

// PaperResolver answers structured paper lookups.
type PaperResolver interface {
	Resolve(ctx context.Context, cls intent.Classification) ([]lookup.PaperSet, error)
}
