package intent

import (
	"testing"

	"github.com/examdex/examdex/internal/domain"
)

func TestClassify_Smalltalk(t *testing.T) {
	cases := []string{
		"hello",
		"Hi",
		"  thanks  ",
		"???",
		"!",
		"hmm",
		"OK",
	}
	for _, q := range cases {
		t.Run(q, func(t *testing.T) {
			c := Classify(q)
			if c.Intent != Smalltalk {
				t.Errorf("Classify(%q) = %s, want smalltalk", q, c.Intent)
			}
		})
	}
}

func TestClassify_PaperLookup(t *testing.T) {
	c := Classify("chemistry 2022 qp")

	if c.Intent != PaperLookup {
		t.Fatalf("expected paper_lookup, got %s", c.Intent)
	}
	if c.Subject != "chemistry" {
		t.Errorf("expected subject chemistry, got %q", c.Subject)
	}
	if c.SubjectCode != "9701" {
		t.Errorf("expected subject code 9701, got %q", c.SubjectCode)
	}
	if c.Year != 2022 {
		t.Errorf("expected year 2022, got %d", c.Year)
	}
	if c.FileType != domain.FileTypeQuestionPaper {
		t.Errorf("expected file type QP, got %q", c.FileType)
	}
}

func TestClassify_PaperLookupWithPaperToken(t *testing.T) {
	c := Classify("physics p2 marking scheme")

	if c.Intent != PaperLookup {
		t.Fatalf("expected paper_lookup, got %s", c.Intent)
	}
	if c.PaperNumber != 2 {
		t.Errorf("expected paper 2, got %d", c.PaperNumber)
	}
	if c.FileType != domain.FileTypeMarkingScheme {
		t.Errorf("expected file type MS, got %q", c.FileType)
	}
}

func TestClassify_SubjectAloneIsNotLookup(t *testing.T) {
	// A subject keyword without year, paper, or file-type token is a
	// question about the subject, not a lookup.
	c := Classify("explain chemistry bonding")
	if c.Intent != ExamQuestion {
		t.Errorf("expected exam_question, got %s", c.Intent)
	}
}

func TestClassify_ExamQuestionDefault(t *testing.T) {
	cases := []string{
		"explain photosynthesis",
		"what is osmosis",
		"how do I balance redox equations for the 2022 exam", // year without subject
	}
	for _, q := range cases {
		t.Run(q, func(t *testing.T) {
			c := Classify(q)
			if c.Intent != ExamQuestion {
				t.Errorf("Classify(%q) = %s, want exam_question", q, c.Intent)
			}
		})
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	// Both subjects present: the first entry in the candidate list wins.
	c := Classify("chemistry and physics 2021 qp")
	if c.Subject != "chemistry" {
		t.Errorf("expected first-match chemistry, got %q", c.Subject)
	}
}

func TestContainsToken(t *testing.T) {
	if containsToken("exam terms 2022", "ms") {
		t.Error("ms matched inside 'terms'")
	}
	if !containsToken("biology ms 2020", "ms") {
		t.Error("standalone ms not matched")
	}
}
