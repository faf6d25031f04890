package db

import "testing"

func TestFilters_ExprEmpty(t *testing.T) {
	f := Filters{}
	if got := f.Expr(); got != "*" {
		t.Errorf("empty filter expr = %q, want *", got)
	}
}

func TestFilters_ExprTagsAndNumerics(t *testing.T) {
	f := Filters{
		Tags:     map[string]string{"subject": "9701", "file_type": "QP"},
		Numerics: map[string]float64{"year": 2022},
	}

	// Keys are emitted in sorted order: file_type, subject, then numerics.
	want := `@file_type:{QP} @subject:{9701} @year:[2022 2022]`
	if got := f.Expr(); got != want {
		t.Errorf("filter expr:\ngot:  %s\nwant: %s", got, want)
	}
}

func TestFilters_TagEscaping(t *testing.T) {
	f := Filters{Tags: map[string]string{"session": "may-june"}}

	want := `@session:{may\-june}`
	if got := f.Expr(); got != want {
		t.Errorf("escaped expr = %q, want %q", got, want)
	}
}

func TestIndexDefinition_Validate(t *testing.T) {
	def := &IndexDefinition{
		Name:     "examdex:fragment:idx",
		Prefixes: []string{"examdex:fragment:"},
		Fields: []IndexField{
			{Name: "doc_id", Type: IndexFieldTag},
			{Name: "year", Type: IndexFieldNumeric},
			{Name: "vector", Type: IndexFieldVector, VectorDim: 768},
		},
	}
	if err := def.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIndexDefinition_ValidateRejectsBadVector(t *testing.T) {
	def := &IndexDefinition{
		Name:   "idx",
		Fields: []IndexField{{Name: "vector", Type: IndexFieldVector}},
	}
	if err := def.Validate(); err == nil {
		t.Fatal("expected error for vector field without DIM")
	}
}

func TestIndexDefinition_ValidateRejectsDuplicates(t *testing.T) {
	def := &IndexDefinition{
		Name: "idx",
		Fields: []IndexField{
			{Name: "doc_id", Type: IndexFieldTag},
			{Name: "doc_id", Type: IndexFieldTag},
		},
	}
	if err := def.Validate(); err == nil {
		t.Fatal("expected error for duplicate field names")
	}
}

func TestIsValidIdentifier(t *testing.T) {
	valid := []string{"examdex:fragment:idx", "a-b_c", "X1"}
	for _, s := range valid {
		if !IsValidIdentifier(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	invalid := []string{"", "has space", "star*"}
	for _, s := range invalid {
		if IsValidIdentifier(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}
