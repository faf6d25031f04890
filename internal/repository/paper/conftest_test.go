package paper

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/examdex/examdex/internal/db"
)

// mockStore is an in-memory hash store with just enough query parsing to
// back the document index.
type mockStore struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	indexes map[string]bool
}

func newMockStore() *mockStore {
	return &mockStore{
		hashes:  make(map[string]map[string]string),
		indexes: make(map[string]bool),
	}
}

func (m *mockStore) HSet(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.hashes[key]
	if !ok {
		row = make(map[string]string)
		m.hashes[key] = row
	}
	for k, v := range fields {
		row[k] = v
	}
	return nil
}

func (m *mockStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		row, err := m.HGetAll(ctx, k)
		if err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}

func (m *mockStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.hashes[key]
	return ok, nil
}

var (
	tagClause = regexp.MustCompile(`@(\w+):\{([^}]*)\}`)
	numClause = regexp.MustCompile(`@(\w+):\[(\S+) (\S+)\]`)
)

func (m *mockStore) match(row map[string]string, query string) bool {
	if query == "*" {
		return true
	}
	for _, c := range tagClause.FindAllStringSubmatch(query, -1) {
		if row[c[1]] != strings.ReplaceAll(c[2], "\\", "") {
			return false
		}
	}
	for _, c := range numClause.FindAllStringSubmatch(query, -1) {
		lo, _ := strconv.ParseFloat(c[2], 64)
		hi, _ := strconv.ParseFloat(c[3], 64)
		v, err := strconv.ParseFloat(row[c[1]], 64)
		if err != nil || v < lo || v > hi {
			return false
		}
	}
	return true
}

func (m *mockStore) SearchList(_ context.Context, index, query string, offset, limit int, _ []string) (*db.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for k, row := range m.hashes {
		if strings.HasPrefix(k, docKeyPrefix) && m.match(row, query) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	res := &db.SearchResult{Total: len(keys)}
	for i, k := range keys {
		if i < offset || i >= offset+limit {
			continue
		}
		fields := make(map[string]string)
		for fk, fv := range m.hashes[k] {
			fields[fk] = fv
		}
		res.Entries = append(res.Entries, db.SearchEntry{Key: k, Fields: fields})
	}
	return res, nil
}

func (m *mockStore) SearchCount(ctx context.Context, index, query string) (int, error) {
	res, err := m.SearchList(ctx, index, query, 0, 1<<30, nil)
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}

func (m *mockStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexes[def.Name] {
		return db.ErrIndexExists
	}
	m.indexes[def.Name] = true
	return nil
}

func (m *mockStore) IndexExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexes[name], nil
}
