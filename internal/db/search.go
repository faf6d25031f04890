package db

import (
	"fmt"
	"sort"
	"strings"
)

// Filters is a conjunctive pre-filter applied before KNN or list search.
// Tags match TAG fields exactly; Numerics match NUMERIC fields as a
// closed [v, v] range.
type Filters struct {
	Tags     map[string]string
	Numerics map[string]float64
}

// SetTag adds a TAG condition, allocating the map on first use.
func (f *Filters) SetTag(key, value string) {
	if f.Tags == nil {
		f.Tags = make(map[string]string)
	}
	f.Tags[key] = value
}

// IsEmpty reports whether no filter conditions are set.
func (f Filters) IsEmpty() bool {
	return len(f.Tags) == 0 && len(f.Numerics) == 0
}

// Expr renders the filter as a RediSearch query expression, or "*" when
// empty. Fields are emitted in sorted order so queries are stable.
func (f Filters) Expr() string {
	if f.IsEmpty() {
		return "*"
	}

	parts := make([]string, 0, len(f.Tags)+len(f.Numerics))

	tagKeys := make([]string, 0, len(f.Tags))
	for k := range f.Tags {
		tagKeys = append(tagKeys, k)
	}
	sort.Strings(tagKeys)
	for _, k := range tagKeys {
		parts = append(parts, fmt.Sprintf("@%s:{%s}", k, escapeTag(f.Tags[k])))
	}

	numKeys := make([]string, 0, len(f.Numerics))
	for k := range f.Numerics {
		numKeys = append(numKeys, k)
	}
	sort.Strings(numKeys)
	for _, k := range numKeys {
		v := f.Numerics[k]
		parts = append(parts, fmt.Sprintf("@%s:[%g %g]", k, v, v))
	}

	return strings.Join(parts, " ")
}

// escapeTag escapes RediSearch TAG special characters.
func escapeTag(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch r {
		case ',', '.', '<', '>', '{', '}', '[', ']', '"', '\'', ':', ';',
			'!', '@', '#', '$', '%', '^', '&', '*', '(', ')', '-', '+',
			'=', '~', '|', ' ', '/':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Filters      Filters
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
// For KNN queries Score is cosine similarity in [0, 1].
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
