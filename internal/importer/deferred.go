package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dbsmedya/gorowtree/internal/plan"
	"github.com/dbsmedya/gorowtree/internal/record"
	"github.com/dbsmedya/gorowtree/internal/schema"
)

// deferredFks holds the foreign-key columns of a cyclic row that referenced
// rows not written yet when the row itself was written.
type deferredFks struct {
	node     *plan.Node
	columns  []schema.ColumnMetadata
	original map[string]record.Value // column -> value before import
	nulled   map[string]bool         // written as NULL on the first pass
	row      int                     // index into Result.Rows
}

// deferUnresolved records the foreign keys of rec that point at a row in
// unwritten. Nullable columns are cleared so the first write stores NULL
// instead of a key from the source database.
func (s *Session) deferUnresolved(ctx context.Context, rec *record.Record, fks []schema.Fk,
	columns []schema.ColumnMetadata, resolved map[string]bool, unwritten map[string]record.RowLink) (*deferredFks, error) {
	if len(unwritten) == 0 {
		return nil, nil
	}

	var d *deferredFks
	for _, fk := range fks {
		hit, err := s.referencesUnwritten(ctx, rec, fk, resolved, unwritten)
		if err != nil {
			return nil, err
		}
		if !hit {
			continue
		}
		if d == nil {
			d = &deferredFks{original: make(map[string]record.Value), nulled: make(map[string]bool)}
		}
		for _, col := range fk.OriginColumns {
			if resolved[col] {
				continue
			}
			if _, seen := d.original[col]; seen {
				continue
			}
			f, _ := rec.Field(col)
			d.original[col] = f.Value
			if meta := lookupColumn(columns, col); meta != nil && meta.Nullable {
				f.Value = record.Null()
				d.nulled[col] = true
			}
		}
	}
	return d, nil
}

// referencesUnwritten reports whether fk, read from rec, points at a row of
// unwritten. When the referenced columns are not the target's primary key,
// any unwritten row of the target table counts.
func (s *Session) referencesUnwritten(ctx context.Context, rec *record.Record, fk schema.Fk,
	resolved map[string]bool, unwritten map[string]record.RowLink) (bool, error) {
	vals, ok := rec.Values(fk.OriginColumns)
	if !ok {
		return false, nil
	}
	for i, col := range fk.OriginColumns {
		if resolved[col] || vals[i].IsNull() {
			return false, nil
		}
	}

	pk, err := s.imp.catalog.PrimaryKey(ctx, fk.Target)
	if err != nil {
		return false, err
	}
	if keys, ok := targetKeys(fk, pk, vals); ok {
		_, hit := unwritten[record.RowLink{Table: fk.Target, Keys: keys}.String()]
		return hit, nil
	}
	for _, link := range unwritten {
		if link.Table == fk.Target {
			return true, nil
		}
	}
	return false, nil
}

// targetKeys reorders vals, given in fk origin order, into the primary-key
// order of the target table.
func targetKeys(fk schema.Fk, pk []string, vals []record.Value) ([]record.Value, bool) {
	if len(pk) != len(fk.TargetColumns) {
		return nil, false
	}
	keys := make([]record.Value, len(pk))
	filled := 0
	for i, origin := range fk.OriginColumns {
		target, ok := fk.TargetColumnFor(origin)
		if !ok {
			return nil, false
		}
		for j, p := range pk {
			if strings.EqualFold(p, target) {
				keys[j] = vals[i]
				filled++
				break
			}
		}
	}
	return keys, filled == len(pk)
}

// resolveDeferred rewrites the deferred columns of a written cyclic row from
// the remap and stores them with an UPDATE. Columns whose referenced row was
// never imported keep what the first write stored and are reported.
func (s *Session) resolveDeferred(ctx context.Context, p *plan.Plan, d *deferredFks) error {
	rec := d.node.Record

	skip := make(map[string]bool, len(d.columns))
	for _, c := range d.columns {
		if _, ok := d.original[c.Name]; !ok {
			skip[c.Name] = true
		}
	}
	for col, v := range d.original {
		f, _ := rec.Field(col)
		f.Value = v
	}
	rewritten := record.ApplyRemap(rec, p.OutgoingFks(rec.Table), s.Remap, skip)

	set := make(map[string]bool, len(d.original))
	var missing []string
	for col := range d.original {
		if rewritten[col] {
			set[col] = true
			continue
		}
		missing = append(missing, col)
		if d.nulled[col] {
			f, _ := rec.Field(col)
			f.Value = record.Null()
		}
	}

	if len(set) > 0 {
		stmt, args, err := s.imp.buildUpdate(rec, d.columns, set)
		if err == nil && stmt != "" {
			_, err = s.imp.db.ExecContext(ctx, stmt, args...)
		}
		if err != nil {
			return &RowWriteError{Row: d.node.Original, Statement: stmt, Reason: classify(err), Err: err}
		}
		s.imp.logger.WithTable(rec.Table).Debugf("Resolved deferred references of %s", rec.Link())
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return &RowWriteError{
			Row:    d.node.Original,
			Reason: ReasonUnresolved,
			Err:    fmt.Errorf("referenced rows were not imported, columns %s keep their first-pass values", strings.Join(missing, ", ")),
		}
	}
	return nil
}
