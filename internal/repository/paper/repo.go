// Package paper persists papers and their source documents, and serves the
// structured lookup path that needs no embeddings.
package paper

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/examdex/examdex/internal/db"
	"github.com/examdex/examdex/internal/domain"
)

// DocIndexName is the FT index over source document hashes.
const DocIndexName = domain.KeyPrefix + "doc:idx"

const (
	docKeyPrefix   = domain.KeyPrefix + "doc:"
	paperKeyPrefix = domain.KeyPrefix + "paper:"
)

// store is the consumer interface for paper persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Repo implements paper and document persistence over db.Store.
type Repo struct {
	store store
}

// New creates a paper repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// EnsureIndex creates the document FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, DocIndexName)
	if err != nil {
		return fmt.Errorf("probe index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     DocIndexName,
		Prefixes: []string{docKeyPrefix},
		Fields: []db.IndexField{
			{Name: "paper_id", Type: db.IndexFieldTag},
			{Name: "subject", Type: db.IndexFieldTag},
			{Name: "level", Type: db.IndexFieldTag},
			{Name: "session", Type: db.IndexFieldTag},
			{Name: "file_type", Type: db.IndexFieldTag},
			{Name: "year", Type: db.IndexFieldNumeric},
			{Name: "paper_number", Type: db.IndexFieldNumeric},
		},
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create doc index: %w", err)
	}
	return nil
}

// SavePaper stores a paper row.
func (r *Repo) SavePaper(ctx context.Context, p domain.Paper) error {
	fields := map[string]string{
		"subject":      p.SubjectCode,
		"level":        p.Level,
		"year":         strconv.Itoa(p.Year),
		"session":      p.Session,
		"paper_number": strconv.Itoa(p.PaperNumber),
	}
	if err := r.store.HSet(ctx, paperKeyPrefix+p.ID, fields); err != nil {
		return fmt.Errorf("save paper %s: %w", p.ID, err)
	}
	return nil
}

// SaveDocument stores a source document row. Documents are immutable once
// ingested: saving an already-present ID is rejected.
func (r *Repo) SaveDocument(ctx context.Context, d domain.SourceDocument) error {
	key := docKeyPrefix + d.ID

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check document %s: %w", d.ID, err)
	}
	if exists {
		return domain.ErrAlreadyExists
	}

	if err := r.store.HSet(ctx, key, buildDocFields(d)); err != nil {
		return fmt.Errorf("save document %s: %w", d.ID, err)
	}
	return nil
}

// GetDocument returns one source document by ID.
func (r *Repo) GetDocument(ctx context.Context, id string) (domain.SourceDocument, error) {
	row, err := r.store.HGetAll(ctx, docKeyPrefix+id)
	if err != nil {
		return domain.SourceDocument{}, fmt.Errorf("get document %s: %w", id, err)
	}
	if len(row) == 0 {
		return domain.SourceDocument{}, domain.ErrNotFound
	}
	return parseDocFields(id, row), nil
}

// GetDocuments returns several documents in one round-trip. Missing IDs are
// skipped, not errors.
func (r *Repo) GetDocuments(ctx context.Context, ids []string) (map[string]domain.SourceDocument, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKeyPrefix + id
	}

	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}

	out := make(map[string]domain.SourceDocument, len(ids))
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		out[ids[i]] = parseDocFields(ids[i], row)
	}
	return out, nil
}

// FindDocuments lists documents matching the (possibly empty) filters,
// ordered as the index returns them.
func (r *Repo) FindDocuments(ctx context.Context, filters db.Filters) ([]domain.SourceDocument, error) {
	res, err := r.store.SearchList(ctx, DocIndexName, filters.Expr(), 0, 1000, nil)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	if res == nil || res.Total == 0 {
		return nil, nil
	}

	docs := make([]domain.SourceDocument, 0, len(res.Entries))
	for _, e := range res.Entries {
		id := e.Key
		if len(id) > len(docKeyPrefix) {
			id = id[len(docKeyPrefix):]
		}
		docs = append(docs, parseDocFields(id, e.Fields))
	}
	return docs, nil
}

// CountDocuments reports how many documents match the filters.
func (r *Repo) CountDocuments(ctx context.Context, filters db.Filters) (int, error) {
	n, err := r.store.SearchCount(ctx, DocIndexName, filters.Expr())
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func buildDocFields(d domain.SourceDocument) map[string]string {
	return map[string]string{
		"paper_id":     d.PaperID,
		"file_type":    string(d.FileType),
		"storage_path": d.StoragePath,
		"subject":      d.SubjectCode,
		"level":        d.Level,
		"year":         strconv.Itoa(d.Year),
		"session":      d.Session,
		"paper_number": strconv.Itoa(d.PaperNumber),
	}
}

func parseDocFields(id string, m map[string]string) domain.SourceDocument {
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
