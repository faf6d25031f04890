// Package lookup resolves structured paper requests ("chemistry 2022 qp")
// against the ingested document catalogue. No embeddings involved.
package lookup

import (
	"context"
	"fmt"
	"sort"

	"github.com/examdex/examdex/internal/db"
	"github.com/examdex/examdex/internal/domain"
	"github.com/examdex/examdex/internal/domain/intent"
)

// PaperSet is one exam sitting's worth of files: the question paper and its
// companions, keyed by file type.
type PaperSet struct {
	Subject     string                     `json:"subject"`
	SubjectCode string                     `json:"subject_code"`
	Year        int                        `json:"year"`
	Session     string                     `json:"session"`
	PaperNumber int                        `json:"paper_number"`
	Files       map[domain.FileType]string `json:"files"`
}

// Service answers paper lookup queries.
type Service struct {
	docs DocumentFinder
}

// New creates a lookup service.
func New(docs DocumentFinder) *Service {
	return &Service{docs: docs}
}

// Resolve finds all ingested paper sets matching the classified query.
// An empty catalogue match is a valid, empty result, never an error.
func (s *Service) Resolve(ctx context.Context, cls intent.Classification) ([]PaperSet, error) {
	docs, err := s.docs.FindDocuments(ctx, buildFilters(cls))
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	return groupIntoSets(docs), nil
}

func buildFilters(cls intent.Classification) db.Filters {
	f := db.Filters{Tags: map[string]string{}}
	if cls.SubjectCode != "" {
		f.Tags["subject"] = cls.SubjectCode
	}
	if cls.FileType != "" {
		f.Tags["file_type"] = string(cls.FileType)
	}
	if len(f.Tags) == 0 {
		f.Tags = nil
	}
	if cls.Year != 0 {
		f.Numerics = map[string]float64{"year": float64(cls.Year)}
	}
	if cls.PaperNumber != 0 {
		if f.Numerics == nil {
			f.Numerics = map[string]float64{}
		}
		f.Numerics["paper_number"] = float64(cls.PaperNumber)
	}
	return f
}

// groupIntoSets folds documents into per-sitting sets ordered by subject,
// then year descending (students want recent papers first), then session
// and paper number.
func groupIntoSets(docs []domain.SourceDocument) []PaperSet {
	type key struct {
		subject string
		year    int
		session string
		paper   int
	}

	sets := make(map[key]*PaperSet)
	for _, d := range docs {
		k := key{d.SubjectCode, d.Year, d.Session, d.PaperNumber}
		set, ok := sets[k]
		if !ok {
			set = &PaperSet{
				Subject:     domain.SubjectName(d.SubjectCode),
				SubjectCode: d.SubjectCode,
				Year:        d.Year,
				Session:     d.Session,
				PaperNumber: d.PaperNumber,
				Files:       make(map[domain.FileType]string),
			}
			sets[k] = set
		}
		set.Files[d.FileType] = d.StoragePath
	}

	out := make([]PaperSet, 0, len(sets))
	for _, set := range sets {
		out = append(out, *set)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubjectCode != out[j].SubjectCode {
			return out[i].SubjectCode < out[j].SubjectCode
		}
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		if out[i].Session != out[j].Session {
			return out[i].Session < out[j].Session
		}
		return out[i].PaperNumber < out[j].PaperNumber
	})
	return out
}
