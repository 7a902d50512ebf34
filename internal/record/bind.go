package record

import (
	"context"
	"strings"

	"github.com/dbsmedya/gorowtree/internal/schema"
)

// Facts is the part of the schema catalog a record tree needs to be typed.
// *schema.Catalog implements it.
type Facts interface {
	Columns(ctx context.Context, table string) ([]schema.ColumnMetadata, error)
	PrimaryKey(ctx context.Context, table string) ([]string, error)
}

// Bind attaches column metadata and primary-key columns to every record of
// the tree and coerces values to their column class. Fields unknown to the
// schema keep a nil Meta. A table missing from the schema is a SchemaError.
func Bind(ctx context.Context, rec *Record, facts Facts) error {
	return rec.Walk(func(r, _ *Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		cols, err := facts.Columns(ctx, r.Table)
		if err != nil {
			return err
		}
		pk, err := facts.PrimaryKey(ctx, r.Table)
		if err != nil {
			return err
		}
		r.PkColumns = canonicalNames(pk, cols)

		for el := r.Fields.Front(); el != nil; el = el.Next() {
			f := el.Value
			meta := lookupColumn(cols, f.Name)
			if meta == nil {
				continue
			}
			f.Meta = meta
			f.Value = Coerce(f.Value, meta.Class())
		}
		return nil
	})
}

// DecodeBound decodes wire JSON and binds it against facts.
func DecodeBound(ctx context.Context, data []byte, table string, facts Facts) (*Record, error) {
	rec, err := Decode(data, table)
	if err != nil {
		return nil, err
	}
	if err := Bind(ctx, rec, facts); err != nil {
		return nil, err
	}
	return rec, nil
}

func lookupColumn(cols []schema.ColumnMetadata, name string) *schema.ColumnMetadata {
	for i := range cols {
		if strings.EqualFold(cols[i].Name, name) {
			meta := cols[i]
			return &meta
		}
	}
	return nil
}

func canonicalNames(names []string, cols []schema.ColumnMetadata) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n
		if meta := lookupColumn(cols, n); meta != nil {
			out[i] = meta.Name
		}
	}
	return out
}
