package record

import (
	"sort"

	"github.com/dbsmedya/gorowtree/internal/schema"
)

// RemapEntry maps the original identity of a row to the key it now has.
type RemapEntry struct {
	Original  RowLink
	PkColumns []string
	Current   []Value
}

// CurrentLink returns the row's identity after remapping.
func (e RemapEntry) CurrentLink() RowLink {
	return RowLink{Table: e.Original.Table, Keys: e.Current}
}

type columnKey struct {
	table, column, old string
}

// Remap is the session-scoped key remapping table. Besides the row-level
// mapping it indexes every primary-key column so foreign-key fields can be
// rewritten from (table, column, old value). Not safe for concurrent use.
type Remap struct {
	entries map[string]RemapEntry
	columns map[columnKey]Value
	pks     map[string][]string
}

// NewRemap creates an empty remap table.
func NewRemap() *Remap {
	return &Remap{
		entries: make(map[string]RemapEntry),
		columns: make(map[columnKey]Value),
		pks:     make(map[string][]string),
	}
}

// Put records that the row originally identified by original now has the
// key current. An existing entry for the same row is replaced.
func (m *Remap) Put(original RowLink, pkColumns []string, current []Value) {
	m.Delete(original)
	entry := RemapEntry{
		Original:  original,
		PkColumns: append([]string(nil), pkColumns...),
		Current:   append([]Value(nil), current...),
	}
	m.entries[original.String()] = entry
	m.pks[original.Table] = entry.PkColumns
	for i, col := range entry.PkColumns {
		if i >= len(original.Keys) || i >= len(current) || original.Keys[i].IsNull() {
			continue
		}
		m.columns[columnKey{original.Table, col, original.Keys[i].Text()}] = current[i]
	}
}

// Lookup returns the current key of a row by its original identity.
func (m *Remap) Lookup(original RowLink) ([]Value, bool) {
	e, ok := m.entries[original.String()]
	if !ok {
		return nil, false
	}
	return e.Current, true
}

// Column returns the current value of a primary-key column given its original value.
func (m *Remap) Column(table, column string, old Value) (Value, bool) {
	if old.IsNull() {
		return Null(), false
	}
	v, ok := m.columns[columnKey{table, column, old.Text()}]
	return v, ok
}

// Delete removes the entry of a row.
func (m *Remap) Delete(original RowLink) {
	e, ok := m.entries[original.String()]
	if !ok {
		return
	}
	delete(m.entries, original.String())
	for i, col := range e.PkColumns {
		if i < len(original.Keys) {
			delete(m.columns, columnKey{original.Table, col, original.Keys[i].Text()})
		}
	}
}

// Len returns the number of rows mapped.
func (m *Remap) Len() int {
	return len(m.entries)
}

// Entries returns every entry sorted by original identity.
func (m *Remap) Entries() []RemapEntry {
	out := make([]RemapEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Original.String() < out[j].Original.String()
	})
	return out
}

// ApplyRemap rewrites the referencing columns of r's outgoing foreign keys
// with the current keys of the rows they point at. Columns in skip are left
// alone. A foreign key covering the whole primary key of its target is
// resolved through the row mapping; any other is resolved column by column.
// Values without a mapping keep their literal value. The returned set holds
// the columns that were rewritten.
func ApplyRemap(r *Record, fks []schema.Fk, m *Remap, skip map[string]bool) map[string]bool {
	rewritten := make(map[string]bool)
	for _, fk := range fks {
		if fk.Origin != r.Table {
			continue
		}
		if applyByRow(r, fk, m, skip, rewritten) {
			continue
		}
		for i, col := range fk.OriginColumns {
			if skip[col] || rewritten[col] {
				continue
			}
			f, ok := r.Field(col)
			if !ok || f.Value.IsNull() {
				continue
			}
			if nv, ok := m.Column(fk.Target, fk.TargetColumns[i], f.Value); ok {
				f.Value = nv
				rewritten[col] = true
			}
		}
	}
	return rewritten
}

// applyByRow resolves fk through the row-level mapping when its target
// columns are exactly one of the mapped primary keys of the target table.
func applyByRow(r *Record, fk schema.Fk, m *Remap, skip, rewritten map[string]bool) bool {
	old, ok := r.Values(fk.OriginColumns)
	if !ok {
		return false
	}
	for _, v := range old {
		if v.IsNull() {
			return false
		}
	}

	// The target link is built with the target's pk order, which may differ
	// from the fk's column order.
	pkCols := m.pkColumnsOf(fk.Target)
	if len(pkCols) != len(fk.TargetColumns) {
		return false
	}
	keys := make([]Value, len(pkCols))
	for i, pc := range pkCols {
		idx := indexOf(fk.TargetColumns, pc)
		if idx < 0 {
			return false
		}
		keys[i] = old[idx]
	}
	current, ok := m.Lookup(RowLink{Table: fk.Target, Keys: keys})
	if !ok {
		return false
	}
	for i, pc := range pkCols {
		col := fk.OriginColumns[indexOf(fk.TargetColumns, pc)]
		if skip[col] {
			continue
		}
		f, _ := r.Field(col)
		f.Value = current[i]
		rewritten[col] = true
	}
	return true
}

func (m *Remap) pkColumnsOf(table string) []string {
	return m.pks[table]
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
