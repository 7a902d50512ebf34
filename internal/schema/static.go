package schema

import (
	"context"
)

// Table is an in-memory table definition used by Static.
type Table struct {
	Name       string
	Columns    []ColumnMetadata
	PrimaryKey []string
}

// Static is a Source over a fixed, in-memory schema, used by tests.
type Static struct {
	tables map[string]Table
	fks    []Fk
}

// NewStatic builds a Static source. Column ordinals left at zero are assigned
// from slice order.
func NewStatic(tables []Table, fks []Fk) *Static {
	s := &Static{tables: make(map[string]Table, len(tables)), fks: fks}
	for _, t := range tables {
		cols := make([]ColumnMetadata, len(t.Columns))
		for i, c := range t.Columns {
			if c.Ordinal == 0 {
				c.Ordinal = i + 1
			}
			cols[i] = c
		}
		t.Columns = cols
		s.tables[t.Name] = t
	}
	return s
}

func (s *Static) Columns(_ context.Context, table string) ([]ColumnMetadata, error) {
	t, ok := s.tables[table]
	if !ok {
		return nil, nil
	}
	return t.Columns, nil
}

func (s *Static) PrimaryKey(_ context.Context, table string) ([]string, error) {
	t, ok := s.tables[table]
	if !ok {
		return nil, nil
	}
	return t.PrimaryKey, nil
}

func (s *Static) ForeignKeys(_ context.Context, table string) ([]Fk, error) {
	var out []Fk
	for _, fk := range s.fks {
		if fk.Origin == table || fk.Target == table {
			out = append(out, fk)
		}
	}
	return out, nil
}
