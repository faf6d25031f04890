// Package search runs vector KNN queries over the fragment index and joins
// the hits back to their source documents.
package search

import (
	"context"
	"fmt"
	"strconv"

	"github.com/examdex/examdex/internal/db"
	"github.com/examdex/examdex/internal/domain"
	"github.com/examdex/examdex/internal/repository/fragment"
)

// store is the consumer interface for the search path (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// Hit is a single KNN match before enrichment.
type Hit struct {
	ContentHash string
	Similarity  float64
}

// Repo implements fragment retrieval over db.Store.
type Repo struct {
	store store
}

// New creates a search repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Search returns the k nearest embedded fragments to the query vector,
// restricted by the optional metadata filters. Hits come back ordered by
// similarity, best first.
func (r *Repo) Search(ctx context.Context, vector []float32, filters db.Filters, k int) ([]Hit, error) {
	q := &db.KNNQuery{
		IndexName: fragment.IndexName,
		Filters:   filters,
		Vector:    vector,
		K:         k,
	}

	res, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}
	if res == nil || len(res.Entries) == 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(res.Entries))
	for _, e := range res.Entries {
		hits = append(hits, Hit{
			ContentHash: trimKeyPrefix(e.Key),
			Similarity:  e.Score,
		})
	}
	return hits, nil
}

// Enrich joins hits to their fragment rows and source document rows. Hits
// whose fragment or document has gone missing are dropped silently; order
// of the surviving hits is preserved.
func (r *Repo) Enrich(ctx context.Context, hits []Hit) ([]domain.EnrichedFragment, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	fragKeys := make([]string, len(hits))
	for i, h := range hits {
		fragKeys[i] = domain.KeyPrefix + "fragment:" + h.ContentHash
	}
	fragRows, err := r.store.HGetAllMulti(ctx, fragKeys)
	if err != nil {
		return nil, fmt.Errorf("load fragments: %w", err)
	}

	type pending struct {
		hit   Hit
		frag  domain.Fragment
		docID string
	}
	var pendings []pending
	docIDs := make(map[string]struct{})
	for i, row := range fragRows {
		if len(row) == 0 {
			continue
		}
		seq, _ := strconv.Atoi(row["seq"])
		pendings = append(pendings, pending{
			hit: hits[i],
			frag: domain.Fragment{
				ContentHash:      hits[i].ContentHash,
				SourceDocumentID: row["doc_id"],
				SequenceIndex:    seq,
				Text:             row["text"],
				Status:           row["status"],
			},
			docID: row["doc_id"],
		})
		docIDs[row["doc_id"]] = struct{}{}
	}
	if len(pendings) == 0 {
		return nil, nil
	}

	docKeys := make([]string, 0, len(docIDs))
	docOrder := make([]string, 0, len(docIDs))
	for id := range docIDs {
		docKeys = append(docKeys, domain.KeyPrefix+"doc:"+id)
		docOrder = append(docOrder, id)
	}
	docRows, err := r.store.HGetAllMulti(ctx, docKeys)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	docs := make(map[string]domain.SourceDocument, len(docOrder))
	for i, row := range docRows {
		if len(row) == 0 {
			continue
		}
		docs[docOrder[i]] = parseDocRow(docOrder[i], row)
	}

	out := make([]domain.EnrichedFragment, 0, len(pendings))
	for _, p := range pendings {
		doc, ok := docs[p.docID]
		if !ok {
			continue
		}
		out = append(out, domain.EnrichedFragment{
			Fragment:   p.frag,
			Document:   doc,
			Similarity: p.hit.Similarity,
		})
	}
	return out, nil
}

func trimKeyPrefix(key string) string {
	prefix := domain.KeyPrefix + "fragment:"
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):]
	}
	return key
}

func parseDocRow(id string, m map[string]string) domain.SourceDocument {
	year, _ := strconv.Atoi(m["year"])
	paperNum, _ := strconv.Atoi(m["paper_number"])
	return domain.SourceDocument{
		ID:          id,
		PaperID:     m["paper_id"],
		FileType:    domain.FileType(m["file_type"]),
		StoragePath: m["storage_path"],
		SubjectCode: m["subject"],
		Level:       m["level"],
		Year:        year,
		Session:     m["session"],
		PaperNumber: paperNum,
	}
}
