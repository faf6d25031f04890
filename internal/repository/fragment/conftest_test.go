package fragment

import (
	"context"
	"strings"
	"sync"

	"github.com/examdex/examdex/internal/db"
)

// mockStore is an in-memory stand-in for the consumer interface.
type mockStore struct {
	mu     sync.Mutex
	hashes map[string]map[string]string

	hsetErr   error
	existsErr error
	indexed   bool
}

func newMockStore() *mockStore {
	return &mockStore{hashes: make(map[string]map[string]string)}
}

func (m *mockStore) HSet(_ context.Context, key string, fields map[string]string) error {
	if m.hsetErr != nil {
		return m.hsetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.hashes[key]
	if row == nil {
		row = make(map[string]string)
		m.hashes[key] = row
	}
	for k, v := range fields {
		row[k] = v
	}
	return nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	for _, item := range items {
		if err := m.HSet(ctx, item.Key, item.Fields); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockStore) HGet(_ context.Context, key, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.hashes[key]
	if !ok {
		return "", db.ErrFieldNotFound
	}
	v, ok := row[field]
	if !ok {
		return "", db.ErrFieldNotFound
	}
	return v, nil
}

func (m *mockStore) HGetAllMulti(_ context.Context, keys []string) ([]map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]string, len(keys))
	for i, key := range keys {
		row := make(map[string]string, len(m.hashes[key]))
		for k, v := range m.hashes[key] {
			row[k] = v
		}
		out[i] = row
	}
	return out, nil
}

func (m *mockStore) Exists(_ context.Context, key string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.hashes[key]
	return ok, nil
}

func (m *mockStore) ExistsMulti(ctx context.Context, keys []string) ([]bool, error) {
	out := make([]bool, len(keys))
	for i, key := range keys {
		ok, err := m.Exists(ctx, key)
		if err != nil {
			return nil, err
		}
		out[i] = ok
	}
	return out, nil
}

func (m *mockStore) SearchList(
	_ context.Context, _ string, query string, _, _ int, _ []string,
) (*db.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Supports the @doc_id:{...} queries ListFragments issues.
	docID := ""
	if i := strings.Index(query, "@doc_id:{"); i >= 0 {
		rest := query[i+len("@doc_id:{"):]
		if j := strings.IndexByte(rest, '}'); j >= 0 {
			docID = strings.ReplaceAll(rest[:j], "\\", "")
		}
	}

	res := &db.SearchResult{}
	for key, row := range m.hashes {
		if docID != "" && row["doc_id"] != docID {
			continue
		}
		fields := make(map[string]string, len(row))
		for k, v := range row {
			fields[k] = v
		}
		res.Entries = append(res.Entries, db.SearchEntry{Key: key, Fields: fields})
	}
	res.Total = len(res.Entries)
	return res, nil
}

func (m *mockStore) CreateIndex(_ context.Context, _ *db.IndexDefinition) error {
	m.indexed = true
	return nil
}

func (m *mockStore) DropIndex(_ context.Context, _ string) error {
	if !m.indexed {
		return db.ErrIndexNotFound
	}
	m.indexed = false
	return nil
}

func (m *mockStore) IndexExists(_ context.Context, _ string) (bool, error) {
	return m.indexed, nil
}
