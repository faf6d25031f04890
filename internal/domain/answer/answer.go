// Package answer holds the answer data model and the pure logic for
// repairing language-model output, scoring confidence, and building
// citations.
package answer

import (
	"encoding/json"
	"strings"

	"github.com/examdex/examdex/internal/domain"
)

// MaxCitations bounds how many citations an answer carries.
const MaxCitations = 5

// fallbackAnswerLen bounds the raw-response excerpt used when the model
// output cannot be parsed.
const fallbackAnswerLen = 1200

// MarkingPoint is one point a marker would award credit for.
type MarkingPoint struct {
	Point string `json:"point"`
	Marks int    `json:"marks"`
}

// Citation is a display-ready projection of one scored fragment.
type Citation struct {
	Subject       string          `json:"subject"`
	Year          int             `json:"year"`
	Session       string          `json:"session"`
	PaperNumber   int             `json:"paper_number"`
	FileType      domain.FileType `json:"file_type"`
	StoragePath   string          `json:"storage_path"`
	FragmentIndex int             `json:"fragment_index"`
	Similarity    float64         `json:"similarity"`
}

// Answer is the generated response for one exam question. Ephemeral,
// produced once per request, never persisted.
type Answer struct {
	Text           string         `json:"answer"`
	MarkingPoints  []MarkingPoint `json:"marking_points"`
	CommonMistakes []string       `json:"common_mistakes"`
	Citations      []Citation     `json:"citations"`
	Confidence     float64        `json:"confidence_score"`
	Coverage       float64        `json:"coverage_percentage"`
}

// modelOutput is the JSON shape the language model is instructed to emit.
// marking_points entries may be bare strings or {point, marks} objects.
type modelOutput struct {
	Answer         string            `json:"answer"`
	MarkingPoints  []json.RawMessage `json:"marking_points"`
	CommonMistakes []string          `json:"common_mistakes"`
}

// ParseModelOutput extracts the first top-level JSON object from raw model
// text and decodes it. Parsing failure, or a result without an answer field,
// yields the repaired fallback answer instead of an error.
func ParseModelOutput(raw string) (text string, points []MarkingPoint, mistakes []string) {
	obj := extractJSONObject(raw)
	if obj != "" {
		var out modelOutput
		if err := json.Unmarshal([]byte(obj), &out); err == nil && strings.TrimSpace(out.Answer) != "" {
			return out.Answer, NormalizeMarkingPoints(out.MarkingPoints), normalizeMistakes(out.CommonMistakes)
		}
	}

	// Repair path: the raw response truncated to a bounded length, with
	// generic marking guidance.
	text = strings.TrimSpace(raw)
	if len(text) > fallbackAnswerLen {
		text = text[:fallbackAnswerLen]
	}
	return text, genericPoints(), genericMistakes()
}

// extractJSONObject returns the first balanced top-level {...} in s,
// starting from the first opening brace. Brace tracking respects JSON
// string literals and escapes.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// NormalizeMarkingPoints accepts each entry as either a bare string (one
// mark) or a {point, marks} object (marks floored at 1). An empty result is
// replaced with one generic point.
func NormalizeMarkingPoints(raw []json.RawMessage) []MarkingPoint {
	var points []MarkingPoint

	for _, entry := range raw {
		var s string
		if err := json.Unmarshal(entry, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				points = append(points, MarkingPoint{Point: s, Marks: 1})
			}
			continue
		}

		var p MarkingPoint
		if err := json.Unmarshal(entry, &p); err == nil && strings.TrimSpace(p.Point) != "" {
			if p.Marks < 1 {
				p.Marks = 1
			}
			points = append(points, p)
		}
	}

	if len(points) == 0 {
		return genericPoints()
	}
	return points
}

func normalizeMistakes(mistakes []string) []string {
	out := mistakes[:0]
	for _, m := range mistakes {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return genericMistakes()
	}
	return out
}

func genericPoints() []MarkingPoint {
	return []MarkingPoint{{Point: "Address the key concept asked in the question", Marks: 1}}
}

func genericMistakes() []string {
	return []string{"Answering in vague terms instead of using precise subject terminology"}
}

// MarksBand returns the marks-per-point instruction for the model given the
// mean similarity of the retrieved context. Guidance only; nothing enforces
// it programmatically.
func MarksBand(meanSimilarity float64) string {
	switch {
	case meanSimilarity >= 0.7:
		return "2-3 marks each"
	case meanSimilarity >= 0.5:
		return "1-2 marks each"
	default:
		return "1 mark each"
	}
}

// Confidence computes the confidence score from the raw similarity scores
// and the number of contributing document groups. Starts from mean
// similarity (0.3 when no scores exist), clamps to [0.1, 1], and applies a
// 1.2x boost when three or more documents agree.
func Confidence(scores []float64, groupCount int) float64 {
	conf := 0.3
	if len(scores) > 0 {
		conf = mean(scores)
	}
	conf = clamp(conf, 0.1, 1)
	if groupCount >= 3 {
		conf = clamp(conf*1.2, 0.1, 1)
	}
	return conf
}

// Coverage reports what fraction of the requested top-K search budget the
// grouped answer actually represents, as a percentage.
func Coverage(groupCount, topK int) float64 {
	if topK <= 0 {
		return 0
	}
	pct := 100 * float64(groupCount) / float64(topK)
	if pct > 100 {
		return 100
	}
	return pct
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
