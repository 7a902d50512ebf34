package record

import (
	"strings"

	"github.com/dbsmedya/gorowtree/internal/schema"
	"github.com/elliotchance/orderedmap/v2"
)

// Field is one column of one row. SubRows holds the linked rows expanded
// through this column, keyed by the table they belong to.
type Field struct {
	Name    string
	Meta    *schema.ColumnMetadata // nil when the column is unknown to the schema
	Value   Value
	SubRows *orderedmap.OrderedMap[string, []*Record]
}

// NewField creates a field without linked rows.
func NewField(name string, v Value) *Field {
	return &Field{Name: name, Value: v, SubRows: orderedmap.NewOrderedMap[string, []*Record]()}
}

// AddSubRows appends rows under table.
func (f *Field) AddSubRows(table string, rows ...*Record) {
	existing, _ := f.SubRows.Get(table)
	f.SubRows.Set(table, append(existing, rows...))
}

// HasSubRows reports whether any linked row is attached.
func (f *Field) HasSubRows() bool {
	return f.SubRows != nil && f.SubRows.Len() > 0
}

// Record is one row with its fields in column order. TreatedFks holds the
// keys of the edges already expanded from this row.
type Record struct {
	Table      string
	PkColumns  []string
	Fields     *orderedmap.OrderedMap[string, *Field]
	TreatedFks map[string]bool
}

// New creates an empty record for table.
func New(table string, pkColumns []string) *Record {
	return &Record{
		Table:      table,
		PkColumns:  pkColumns,
		Fields:     orderedmap.NewOrderedMap[string, *Field](),
		TreatedFks: make(map[string]bool),
	}
}

// Set assigns the value of a column, appending the field when it is new.
func (r *Record) Set(name string, v Value) *Field {
	if f, ok := r.Fields.Get(name); ok {
		f.Value = v
		return f
	}
	f := NewField(name, v)
	r.Fields.Set(name, f)
	return f
}

// Field returns the field for a column. The lookup falls back to a
// case-insensitive match.
func (r *Record) Field(name string) (*Field, bool) {
	if f, ok := r.Fields.Get(name); ok {
		return f, true
	}
	for el := r.Fields.Front(); el != nil; el = el.Next() {
		if strings.EqualFold(el.Key, name) {
			return el.Value, true
		}
	}
	return nil, false
}

// Value returns the value of a column, NULL when the column is absent.
func (r *Record) Value(name string) Value {
	if f, ok := r.Field(name); ok {
		return f.Value
	}
	return Null()
}

// Values returns the values of the given columns. ok is false when a column
// is absent.
func (r *Record) Values(columns []string) ([]Value, bool) {
	vals := make([]Value, len(columns))
	for i, c := range columns {
		f, found := r.Field(c)
		if !found {
			return nil, false
		}
		vals[i] = f.Value
	}
	return vals, true
}

// Link returns the row identity computed from the current primary-key values.
func (r *Record) Link() RowLink {
	keys := make([]Value, len(r.PkColumns))
	for i, c := range r.PkColumns {
		keys[i] = r.Value(c)
	}
	return RowLink{Table: r.Table, Keys: keys}
}

// IsEmpty reports whether the record carries no fields, which is how an
// absent root row is represented.
func (r *Record) IsEmpty() bool {
	return r == nil || r.Fields.Len() == 0
}

// Walk visits r and its descendants in pre-order. parent is nil for the root.
// Returning an error stops the walk.
func (r *Record) Walk(fn func(rec, parent *Record) error) error {
	return r.walk(nil, fn)
}

func (r *Record) walk(parent *Record, fn func(rec, parent *Record) error) error {
	if err := fn(r, parent); err != nil {
		return err
	}
	for el := r.Fields.Front(); el != nil; el = el.Next() {
		if el.Value.SubRows == nil {
			continue
		}
		for sub := el.Value.SubRows.Front(); sub != nil; sub = sub.Next() {
			for _, child := range sub.Value {
				if err := child.walk(r, fn); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Count returns the number of records in the tree rooted at r.
func (r *Record) Count() int {
	n := 0
	_ = r.Walk(func(_, _ *Record) error {
		n++
		return nil
	})
	return n
}

// Equal compares two trees field by field, including nested rows. Column
// metadata and TreatedFks are not compared.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.Table != o.Table || r.Fields.Len() != o.Fields.Len() {
		return false
	}
	a, b := r.Fields.Front(), o.Fields.Front()
	for ; a != nil && b != nil; a, b = a.Next(), b.Next() {
		if a.Key != b.Key || !a.Value.Value.Equal(b.Value.Value) {
			return false
		}
		if !subRowsEqual(a.Value.SubRows, b.Value.SubRows) {
			return false
		}
	}
	return true
}

func subRowsEqual(a, b *orderedmap.OrderedMap[string, []*Record]) bool {
	la, lb := 0, 0
	if a != nil {
		la = a.Len()
	}
	if b != nil {
		lb = b.Len()
	}
	if la != lb {
		return false
	}
	if la == 0 {
		return true
	}
	x, y := a.Front(), b.Front()
	for ; x != nil && y != nil; x, y = x.Next(), y.Next() {
		if x.Key != y.Key || len(x.Value) != len(y.Value) {
			return false
		}
		for i := range x.Value {
			if !x.Value[i].Equal(y.Value[i]) {
				return false
			}
		}
	}
	return true
}
