// Package query routes an incoming student message to the right pipeline
// and shapes the response. Nothing in here returns an error to the caller:
// every failure becomes a spoken response.
package query

import (
	"context"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	domanswer "github.com/examdex/examdex/internal/domain/answer"
	"github.com/examdex/examdex/internal/domain/intent"
	"github.com/examdex/examdex/internal/metrics"
	"github.com/examdex/examdex/internal/usecase/lookup"
	"github.com/examdex/examdex/internal/usecase/retrieval"
)

// LowConfidenceThreshold flags answers the student should double-check.
const LowConfidenceThreshold = 0.4

// Response is the shaped outcome of one query, ready for transport. Type
// and Answer are always set and Citations always serializes, even empty.
// The scoring fields are pointers so that smalltalk and paper-lookup
// responses omit them while exam-question responses carry explicit zeros.
type Response struct {
	Type           intent.Intent            `json:"type"`
	Answer         string                   `json:"answer"`
	MarkingPoints  []domanswer.MarkingPoint `json:"marking_points,omitempty"`
	CommonMistakes []string                 `json:"common_mistakes,omitempty"`
	Results        []lookup.PaperSet        `json:"results,omitempty"`
	Citations      []domanswer.Citation     `json:"citations"`
	Confidence     *float64                 `json:"confidence_score,omitempty"`
	Coverage       *float64                 `json:"coverage_percentage,omitempty"`
	LowConfidence  *bool                    `json:"low_confidence,omitempty"`
}

var smalltalkReplies = []string{
	"Hi! Ask me an exam question, or name a paper like \"chemistry 2022 qp\".",
	"Hello! I can explain past-paper questions or find you a specific paper.",
	"Hey there. Try asking about a topic, or request a paper set by subject and year.",
}

// Service orchestrates classification, retrieval, lookup and answering.
type Service struct {
	retriever Retriever
	answers   AnswerGenerator
	papers    PaperResolver
	rng       *rand.Rand
	logger    *zap.Logger
}

// New creates a query service. rng picks smalltalk replies; pass a seeded
// source in tests.
func New(retriever Retriever, answers AnswerGenerator, papers PaperResolver, rng *rand.Rand, logger *zap.Logger) *Service {
	return &Service{
		retriever: retriever,
		answers:   answers,
		papers:    papers,
		rng:       rng,
		logger:    logger,
	}
}

// Ask handles one student message. flt restricts retrieval beyond what the
// classifier extracts from the text. citationLimit, when positive, truncates
// the answer's citation list for callers with tight display budgets.
func (s *Service) Ask(ctx context.Context, text string, flt retrieval.Filters, citationLimit int) Response {
	cls := intent.Classify(text)
	metrics.QueriesTotal.WithLabelValues(string(cls.Intent)).Inc()

	switch cls.Intent {
	case intent.Smalltalk:
		return Response{
			Type:      intent.Smalltalk,
			Answer:    smalltalkReplies[s.rng.Intn(len(smalltalkReplies))],
			Citations: []domanswer.Citation{},
		}
	case intent.PaperLookup:
		return s.handleLookup(ctx, cls)
	default:
		return s.handleExamQuestion(ctx, text, cls, flt, citationLimit)
	}
}

func (s *Service) handleLookup(ctx context.Context, cls intent.Classification) Response {
	sets, err := s.papers.Resolve(ctx, cls)
	if err != nil {
		s.logger.Error("Paper lookup failed", zap.Error(err))
		return Response{
			Type:      intent.PaperLookup,
			Answer:    "Could not search the paper catalogue right now. Please try again.",
			Citations: []domanswer.Citation{},
		}
	}

	if len(sets) == 0 {
		return Response{
			Type:      intent.PaperLookup,
			Answer:    "No matching papers found.",
			Citations: []domanswer.Citation{},
		}
	}

	return Response{
		Type:      intent.PaperLookup,
		Answer:    fmt.Sprintf("Found %d paper set(s):", len(sets)),
		Results:   sets,
		Citations: []domanswer.Citation{},
	}
}

func (s *Service) handleExamQuestion(ctx context.Context, text string, cls intent.Classification, flt retrieval.Filters, citationLimit int) Response {
	ret, err := s.retriever.Retrieve(ctx, text, cls, flt)
	if err != nil {
		s.logger.Error("Retrieval failed", zap.Error(err))
		return noAnswerResponse("Could not search past papers right now. Please try again.")
	}

	if !ret.OK {
		return noAnswerResponse(ret.FailureReason)
	}

	ans := s.answers.Generate(ctx, text, ret)
	if citationLimit > 0 && len(ans.Citations) > citationLimit {
		ans.Citations = ans.Citations[:citationLimit]
	}
	if ans.Citations == nil {
		ans.Citations = []domanswer.Citation{}
	}

	return Response{
		Type:           intent.ExamQuestion,
		Answer:         ans.Text,
		MarkingPoints:  ans.MarkingPoints,
		CommonMistakes: ans.CommonMistakes,
		Citations:      ans.Citations,
		Confidence:     ptr(ans.Confidence),
		Coverage:       ptr(ans.Coverage),
		LowConfidence:  ptr(ans.Confidence < LowConfidenceThreshold),
	}
}

// noAnswerResponse is the empty-handed shape: zero confidence and coverage,
// no citations, reason in the answer text.
func noAnswerResponse(reason string) Response {
	return Response{
		Type:          intent.ExamQuestion,
		Answer:        reason,
		Citations:     []domanswer.Citation{},
		Confidence:    ptr(0.0),
		Coverage:      ptr(0.0),
		LowConfidence: ptr(true),
	}
}

func ptr[T any](v T) *T { return &v }
