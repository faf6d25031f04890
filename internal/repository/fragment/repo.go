// Package fragment persists text fragments and their embeddings, keyed by
// content hash. Upserts are idempotent; re-ingesting identical text is a
// no-op.
package fragment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/examdex/examdex/internal/db"
	"github.com/examdex/examdex/internal/domain"
)

// IndexName is the FT index over fragment hashes.
const IndexName = domain.KeyPrefix + "fragment:idx"

const keyPrefix = domain.KeyPrefix + "fragment:"

// store is the consumer interface for fragment persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	ExistsMulti(ctx context.Context, keys []string) ([]bool, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Repo implements the fragment store over db.Store.
type Repo struct {
	store store
}

// New creates a fragment repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// HNSWConfig tunes the vector index build.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// EnsureIndex creates the fragment FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context, vectorDim int, hnsw HNSWConfig) error {
	exists, err := r.store.IndexExists(ctx, IndexName)
	if err != nil {
		return fmt.Errorf("probe index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     IndexName,
		Prefixes: []string{keyPrefix},
		Fields: []db.IndexField{
			{Name: "doc_id", Type: db.IndexFieldTag},
			{Name: "subject", Type: db.IndexFieldTag},
			{Name: "level", Type: db.IndexFieldTag},
			{Name: "file_type", Type: db.IndexFieldTag},
			{Name: "status", Type: db.IndexFieldTag},
			{Name: "year", Type: db.IndexFieldNumeric},
			{Name: "seq", Type: db.IndexFieldNumeric},
			{Name: "vector", Type: db.IndexFieldVector,
				VectorDim: vectorDim, HNSWM: hnsw.M, HNSWEFConstruct: hnsw.EFConstruct},
		},
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create fragment index: %w", err)
	}
	return nil
}

// ResetIndex drops the fragment FT index so a following EnsureIndex rebuilds
// it, e.g. after a change of embedding dimensions. Fragment rows survive.
func (r *Repo) ResetIndex(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, IndexName); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop fragment index: %w", err)
	}
	return nil
}

// UpsertFragments stores fragments that are not yet present, keyed by
// content hash. Existing rows are never overwritten on hash collision.
// Returns the number of fragments actually created.
func (r *Repo) UpsertFragments(ctx context.Context, doc domain.SourceDocument, frags []domain.Fragment) (int, error) {
	if len(frags) == 0 {
		return 0, nil
	}

	keys := make([]string, len(frags))
	for i, f := range frags {
		keys[i] = keyPrefix + f.ContentHash
	}

	present, err := r.store.ExistsMulti(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("check existing fragments: %w", err)
	}

	var items []db.HashSetItem
	for i, f := range frags {
		if present[i] {
			continue
		}
		items = append(items, db.HashSetItem{
			Key:    keys[i],
			Fields: buildHashFields(doc, f),
		})
	}

	if len(items) == 0 {
		return 0, nil
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return 0, fmt.Errorf("store fragments: %w", err)
	}
	return len(items), nil
}

// ListFragments returns all fragments of a document ordered by sequence index.
func (r *Repo) ListFragments(ctx context.Context, docID string) ([]domain.Fragment, error) {
	query := db.Filters{Tags: map[string]string{"doc_id": docID}}.Expr()

	res, err := r.store.SearchList(ctx, IndexName, query, 0, 10_000,
		[]string{"doc_id", "seq", "text", "status"})
	if err != nil {
		return nil, fmt.Errorf("list fragments %s: %w", docID, err)
	}
	if res == nil || res.Total == 0 {
		return nil, nil
	}

	frags := make([]domain.Fragment, 0, len(res.Entries))
	for _, e := range res.Entries {
		frags = append(frags, parseHashFields(hashFromKey(e.Key), e.Fields))
	}

	sort.Slice(frags, func(i, j int) bool {
		return frags[i].SequenceIndex < frags[j].SequenceIndex
	})
	return frags, nil
}

// FindMissingEmbeddings returns the subset of hashes that have no embedding
// under the given model yet.
func (r *Repo) FindMissingEmbeddings(ctx context.Context, hashes []string, model string) ([]string, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = keyPrefix + h
	}

	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load fragments: %w", err)
	}

	var missing []string
	for i, row := range rows {
		if row["embedding_model"] != model || row["vector"] == "" {
			missing = append(missing, hashes[i])
		}
	}
	return missing, nil
}

// InsertEmbedding stores the vector for a fragment.
// domain.ErrFragmentNotFound when the fragment is absent;
// domain.ErrEmbeddingExists when the fragment is already embedded under the
// same model — callers treat the latter as an idempotent success.
func (r *Repo) InsertEmbedding(ctx context.Context, hash string, vector []float32, model string) error {
	key := keyPrefix + hash

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check fragment %s: %w", hash, err)
	}
	if !exists {
		return domain.ErrFragmentNotFound
	}

	existing, err := r.store.HGet(ctx, key, "embedding_model")
	if err != nil && !errors.Is(err, db.ErrFieldNotFound) {
		return fmt.Errorf("check embedding %s: %w", hash, err)
	}
	if existing == model {
		return domain.ErrEmbeddingExists
	}

	fields := map[string]string{
		"vector":          vectorToBytes(vector),
		"embedding_model": model,
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("store embedding %s: %w", hash, err)
	}
	return nil
}

// MarkEmbedded transitions a fragment's status from pending to embedded.
func (r *Repo) MarkEmbedded(ctx context.Context, hash string) error {
	key := keyPrefix + hash
	if err := r.store.HSet(ctx, key, map[string]string{"status": domain.FragmentEmbedded}); err != nil {
		return fmt.Errorf("mark embedded %s: %w", hash, err)
	}
	return nil
}

func hashFromKey(key string) string {
	if len(key) > len(keyPrefix) {
		return key[len(keyPrefix):]
	}
	return key
}

func buildHashFields(doc domain.SourceDocument, f domain.Fragment) map[string]string {
	return map[string]string{
		"doc_id":    f.SourceDocumentID,
		"seq":       strconv.Itoa(f.SequenceIndex),
		"text":      f.Text,
		"status":    f.Status,
		"subject":   doc.SubjectCode,
		"level":     doc.Level,
		"year":      strconv.Itoa(doc.Year),
		"file_type": string(doc.FileType),
	}
}

func parseHashFields(hash string, m map[string]string) domain.Fragment {
	seq, _ := strconv.Atoi(m["seq"])
	status := m["status"]
	if status == "" {
		status = domain.FragmentPending
	}
	return domain.Fragment{
		ContentHash:      hash,
		SourceDocumentID: m["doc_id"],
		SequenceIndex:    seq,
		Text:             m["text"],
		Status:           status,
	}
}
