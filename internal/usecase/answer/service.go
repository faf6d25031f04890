// Package answer turns retrieved fragment groups into a cited, scored
// answer using a chat model.
package answer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/examdex/examdex/internal/domain"
	domanswer "github.com/examdex/examdex/internal/domain/answer"
	"github.com/examdex/examdex/internal/metrics"
	"github.com/examdex/examdex/internal/usecase/retrieval"
)

// maxContextChars bounds the excerpt of retrieved text handed to the model.
const maxContextChars = 6000

const systemPromptFmt = `You are an exam preparation tutor for Cambridge International A Level subjects.
Answer the student's question using ONLY the provided past-paper extracts.
Respond with a single JSON object, nothing else, in this exact shape:
{"answer": "...", "marking_points": [{"point": "...", "marks": 1}], "common_mistakes": ["..."]}
Award %s for marking points. Write the answer the way a marking scheme would phrase it.`

// Service generates the final answer for an exam question.
type Service struct {
	model  ChatModel
	logger *zap.Logger
}

// New creates an answer service.
func New(model ChatModel, logger *zap.Logger) *Service {
	return &Service{model: model, logger: logger}
}

// Generate builds the model prompt from the retrieval result and returns a
// scored, cited answer. A chat model failure does not fail the request: the
// answer degrades to the raw retrieved text.
func (s *Service) Generate(ctx context.Context, query string, ret retrieval.Result) domanswer.Answer {
	contextText := buildContext(ret.Groups)
	citations := buildCitations(ret.Groups)
	coverage := domanswer.Coverage(len(ret.Groups), ret.TopK)

	meanSim := 0.0
	if len(ret.RawScores) > 0 {
		var sum float64
		for _, sc := range ret.RawScores {
			sum += sc
		}
		meanSim = sum / float64(len(ret.RawScores))
	}

	system := fmt.Sprintf(systemPromptFmt, domanswer.MarksBand(meanSim))
	user := fmt.Sprintf("Question: %s\n\nPast-paper extracts:\n%s", query, contextText)

	raw, err := s.model.Complete(ctx, system, user)
	if err != nil {
		s.logger.Warn("Chat model failed, degrading to retrieved text", zap.Error(err))
		return s.contextOnlyAnswer(ret, citations, coverage)
	}

	text, points, mistakes := domanswer.ParseModelOutput(raw)
	confidence := domanswer.Confidence(ret.RawScores, len(ret.Groups))
	metrics.AnswerConfidence.Observe(confidence)

	return domanswer.Answer{
		Text:           text,
		MarkingPoints:  points,
		CommonMistakes: mistakes,
		Citations:      citations,
		Confidence:     confidence,
		Coverage:       coverage,
	}
}

// contextOnlyAnswer is the degraded path: the strongest retrieved text
// verbatim, no marking guidance, confidence pinned to the best raw score.
func (s *Service) contextOnlyAnswer(ret retrieval.Result, citations []domanswer.Citation, coverage float64) domanswer.Answer {
	confidence := 0.0
	if len(ret.RawScores) > 0 {
		confidence = ret.RawScores[0]
	}

	var b strings.Builder
	b.WriteString("Could not generate a model answer. The most relevant past-paper extracts:\n\n")
	for _, g := range ret.Groups {
		for _, ef := range g.Fragments {
			if b.Len()+len(ef.Fragment.Text) > maxContextChars {
				break
			}
			b.WriteString(ef.Fragment.Text)
			b.WriteString("\n\n")
		}
	}

	return domanswer.Answer{
		Text:       strings.TrimSpace(b.String()),
		Citations:  citations,
		Confidence: confidence,
		Coverage:   coverage,
	}
}

// buildContext renders the retrieved groups in retrieval order, each under a
// short provenance header, bounded to maxContextChars.
func buildContext(groups []domain.RetrievedGroup) string {
	var b strings.Builder
	for _, g := range groups {
		header := fmt.Sprintf("[%s %d %s %s]\n",
			domain.SubjectName(g.Document.SubjectCode), g.Document.Year,
			g.Document.Session, g.Document.FileType)
		for _, ef := range g.Fragments {
			if b.Len()+len(header)+len(ef.Fragment.Text) > maxContextChars {
				return b.String()
			}
			b.WriteString(header)
			b.WriteString(ef.Fragment.Text)
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// buildCitations flattens all retrieved fragments, orders them by similarity
// descending and keeps the strongest few.
func buildCitations(groups []domain.RetrievedGroup) []domanswer.Citation {
	var cites []domanswer.Citation
	for _, g := range groups {
		for _, ef := range g.Fragments {
			cites = append(cites, domanswer.Citation{
				Subject:       domain.SubjectName(g.Document.SubjectCode),
				Year:          g.Document.Year,
				Session:       g.Document.Session,
				PaperNumber:   g.Document.PaperNumber,
				FileType:      g.Document.FileType,
				StoragePath:   g.Document.StoragePath,
				FragmentIndex: ef.Fragment.SequenceIndex,
				Similarity:    ef.Similarity,
			})
		}
	}

	sort.SliceStable(cites, func(i, j int) bool {
		return cites[i].Similarity > cites[j].Similarity
	})

	if len(cites) > domanswer.MaxCitations {
		cites = cites[:domanswer.MaxCitations]
	}
	return cites
}
