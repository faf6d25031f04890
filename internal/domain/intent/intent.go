// Package intent classifies a study question into smalltalk, paper lookup,
// or exam question. Pure functions, no I/O.
package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/examdex/examdex/internal/domain"
)

// Intent is the routing decision for one question.
type Intent string

const (
	Smalltalk    Intent = "smalltalk"
	PaperLookup  Intent = "paper_lookup"
	ExamQuestion Intent = "exam_question"
)

// Classification is the ephemeral, per-request result of classifying a
// question, with whatever metadata the question yielded.
type Classification struct {
	Intent      Intent
	Subject     string // subject keyword as written, e.g. "chemistry"
	SubjectCode string // syllabus code, e.g. "9701"
	Year        int
	PaperNumber int
	FileType    domain.FileType
}

// greetings are matched exactly against the whole normalized question.
var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true,
	"thanks": true, "thank you": true, "thx": true, "ty": true,
	"ok": true, "okay": true, "cool": true, "nice": true,
	"bye": true, "goodbye": true, "good morning": true,
	"good afternoon": true, "good evening": true,
}

// fillers are interjections with no retrievable content.
var fillers = map[string]bool{
	"hmm": true, "hmmm": true, "huh": true, "lol": true,
	"haha": true, "idk": true, "uh": true, "um": true,
}

// subjectKeywords is an ordered candidate list; detection is
// first-match-wins, not longest-match. Multi-subject questions silently
// take the first entry that appears (known heuristic limitation).
var subjectKeywords = []struct {
	Keyword string
	Code    string
}{
	{"chemistry", "9701"},
	{"physics", "9702"},
	{"biology", "9700"},
	{"mathematics", "9709"},
	{"maths", "9709"},
	{"computer science", "9618"},
	{"economics", "9708"},
	{"accounting", "9706"},
	{"general paper", "8021"},
}

// fileTypeTokens is an ordered candidate list of file-type abbreviations.
var fileTypeTokens = []struct {
	Token string
	Type  domain.FileType
}{
	{"qp", domain.FileTypeQuestionPaper},
	{"ms", domain.FileTypeMarkingScheme},
	{"er", domain.FileTypeExaminerReport},
	{"gt", domain.FileTypeGradeThresholds},
	{"question paper", domain.FileTypeQuestionPaper},
	{"marking scheme", domain.FileTypeMarkingScheme},
	{"mark scheme", domain.FileTypeMarkingScheme},
	{"examiner report", domain.FileTypeExaminerReport},
	{"grade threshold", domain.FileTypeGradeThresholds},
}

var (
	punctOnly  = regexp.MustCompile(`^[[:punct:]]{1,3}$`)
	yearRegex  = regexp.MustCompile(`\b(20\d{2})\b`)
	paperRegex = regexp.MustCompile(`\bp([1-9])\b`)
)

// Classify decides how a question should be routed. Three ordered checks:
// smalltalk, paper lookup, then exam question as the default.
func Classify(question string) Classification {
	q := strings.ToLower(strings.TrimSpace(question))

	if isSmalltalk(q) {
		return Classification{Intent: Smalltalk}
	}

	if c, ok := asPaperLookup(q); ok {
		return c
	}

	return Classification{Intent: ExamQuestion}
}

func isSmalltalk(q string) bool {
	if greetings[q] || fillers[q] {
		return true
	}
	return punctOnly.MatchString(q)
}

// asPaperLookup requires a subject keyword plus at least one of a 20xx year,
// a pN paper token, or a file-type abbreviation.
func asPaperLookup(q string) (Classification, bool) {
	c := Classification{Intent: PaperLookup}

	for _, s := range subjectKeywords {
		if strings.Contains(q, s.Keyword) {
			c.Subject = s.Keyword
			c.SubjectCode = s.Code
			break
		}
	}
	if c.Subject == "" {
		return Classification{}, false
	}

	if m := yearRegex.FindStringSubmatch(q); m != nil {
		c.Year, _ = strconv.Atoi(m[1])
	}
	if m := paperRegex.FindStringSubmatch(q); m != nil {
		c.PaperNumber, _ = strconv.Atoi(m[1])
	}
	for _, ft := range fileTypeTokens {
		if containsToken(q, ft.Token) {
			c.FileType = ft.Type
			break
		}
	}

	if c.Year == 0 && c.PaperNumber == 0 && c.FileType == "" {
		return Classification{}, false
	}
	return c, true
}

// containsToken reports whether tok appears in q on word boundaries.
// Plain Contains would turn "terms" into an "ms" hit.
func containsToken(q, tok string) bool {
	idx := 0
	for {
		i := strings.Index(q[idx:], tok)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(tok)
		leftOK := start == 0 || !isWordChar(q[start-1])
		rightOK := end == len(q) || !isWordChar(q[end])
		if leftOK && rightOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
