// Package retrieval finds the fragments most relevant to a free-text query.
package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/examdex/examdex/internal/db"
	"github.com/examdex/examdex/internal/domain"
	"github.com/examdex/examdex/internal/domain/intent"
)

const (
	// DefaultTopK is how many nearest fragments the KNN query asks for.
	DefaultTopK = 16
	// DefaultMinSimilarity drops hits whose cosine similarity is below it.
	DefaultMinSimilarity = 0.5
	// DefaultGroupCap limits fragments kept per source document.
	DefaultGroupCap = 2
)

// Filters are caller-supplied retrieval restrictions. They take precedence
// over whatever the classifier extracts from the question text; Level in
// particular can only come from here, the classifier never detects it.
type Filters struct {
	Subject  string
	Year     int
	FileType string
	Level    string
}

// Result is the outcome of one retrieval run. When OK is false,
// FailureReason carries a user-facing explanation.
type Result struct {
	OK            bool
	FailureReason string
	Groups        []domain.RetrievedGroup
	RawScores     []float64
	TopK          int
}

// Service embeds the query and retrieves matching fragment groups.
type Service struct {
	embedder Embedder
	searcher Searcher
	topK     int
	minSim   float64
	groupCap int
	logger   *zap.Logger
}

// New creates a retrieval service with the default tuning.
func New(embedder Embedder, searcher Searcher, logger *zap.Logger) *Service {
	return &Service{
		embedder: embedder,
		searcher: searcher,
		topK:     DefaultTopK,
		minSim:   DefaultMinSimilarity,
		groupCap: DefaultGroupCap,
		logger:   logger,
	}
}

// WithTuning overrides topK, the similarity floor and the per-document cap.
// Zero values keep the defaults.
func (s *Service) WithTuning(topK int, minSim float64, groupCap int) *Service {
	if topK > 0 {
		s.topK = topK
	}
	if minSim > 0 {
		s.minSim = minSim
	}
	if groupCap > 0 {
		s.groupCap = groupCap
	}
	return s
}

// Retrieve embeds the query text and returns fragments grouped by source
// document. It fails softly: storage errors surface as errors, an empty or
// low-scoring result set comes back as a Result with OK false.
func (s *Service) Retrieve(ctx context.Context, query string, cls intent.Classification, flt Filters) (Result, error) {
	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}
	if emb.Fallback {
		s.logger.Debug("Query embedded with fallback vector")
	}

	hits, err := s.searcher.Search(ctx, emb.Vector, buildFilters(cls, flt), s.topK)
	if err != nil {
		return Result{}, fmt.Errorf("search fragments: %w", err)
	}
	if len(hits) == 0 {
		return Result{OK: false, FailureReason: "No results found", TopK: s.topK}, nil
	}

	kept := hits[:0]
	for _, h := range hits {
		if h.Similarity >= s.minSim {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		return Result{
			OK: false,
			FailureReason: fmt.Sprintf(
				"No sufficiently relevant results (best score below %.2f threshold)", s.minSim),
			TopK: s.topK,
		}, nil
	}

	enriched, err := s.searcher.Enrich(ctx, kept)
	if err != nil {
		return Result{}, fmt.Errorf("enrich fragments: %w", err)
	}
	if len(enriched) == 0 {
		return Result{OK: false, FailureReason: "No results found", TopK: s.topK}, nil
	}

	// Raw scores cover every fragment that passed the threshold, including
	// those the per-document cap later discards. Confidence downstream is a
	// mean over the whole qualifying set, not the retained subset.
	scores := make([]float64, len(enriched))
	for i, ef := range enriched {
		scores[i] = ef.Similarity
	}

	groups := groupByDocument(enriched, s.groupCap)

	return Result{OK: true, Groups: groups, RawScores: scores, TopK: s.topK}, nil
}

// buildFilters maps the classified query and the explicit request filters
// onto index filters. Unset fields are left out so the KNN query stays as
// broad as the user's words allow; an explicit filter wins over the
// classifier's extraction for the same field.
func buildFilters(cls intent.Classification, flt Filters) db.Filters {
	f := db.Filters{}

	subject := cls.SubjectCode
	if flt.Subject != "" {
		subject = flt.Subject
	}
	if subject != "" {
		f.SetTag("subject", subject)
	}

	fileType := string(cls.FileType)
	if flt.FileType != "" {
		fileType = flt.FileType
	}
	if fileType != "" {
		f.SetTag("file_type", fileType)
	}

	if flt.Level != "" {
		f.SetTag("level", flt.Level)
	}

	year := cls.Year
	if flt.Year != 0 {
		year = flt.Year
	}
	if year != 0 {
		f.Numerics = map[string]float64{"year": float64(year)}
	}
	return f
}

// groupByDocument folds enriched fragments into per-document groups in
// first-seen order. Because hits arrive best-first, the cap keeps each
// document's strongest fragments.
func groupByDocument(frags []domain.EnrichedFragment, limit int) []domain.RetrievedGroup {
	var groups []domain.RetrievedGroup
	index := make(map[string]int)

	for _, ef := range frags {
		i, ok := index[ef.Document.ID]
		if !ok {
			index[ef.Document.ID] = len(groups)
			groups = append(groups, domain.RetrievedGroup{Document: ef.Document})
			i = len(groups) - 1
		}
		if len(groups[i].Fragments) >= limit {
			continue
		}
		groups[i].Fragments = append(groups[i].Fragments, ef)
	}
	return groups
}
