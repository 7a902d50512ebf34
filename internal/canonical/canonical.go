// Package canonical renumbers the keys of a record tree so that two exports
// of equivalent data encode to the same bytes.
package canonical

import (
	"context"
	"strconv"

	"github.com/dbsmedya/gorowtree/internal/logger"
	"github.com/dbsmedya/gorowtree/internal/plan"
	"github.com/dbsmedya/gorowtree/internal/record"
	"github.com/dbsmedya/gorowtree/internal/schema"
)

// Canonicalizer assigns sequential keys per table in dependency order.
type Canonicalizer struct {
	catalog *schema.Catalog
	logger  *logger.Logger
}

// New creates a Canonicalizer answering schema questions through catalog.
func New(catalog *schema.Catalog) *Canonicalizer {
	return &Canonicalizer{catalog: catalog, logger: logger.NewDefault()}
}

// SetLogger sets a custom logger for the canonicalizer.
func (c *Canonicalizer) SetLogger(log *logger.Logger) {
	c.logger = log
}

// Canonicalize rewrites rec in place. Every table gets a counter starting at
// 1 that advances once per row. Free primary-key columns take the counter
// value, as a number or as its decimal string for string columns; key
// columns that are also foreign keys copy the value of the row they
// reference. Foreign-key fields are rewritten to the new keys. Rows caught in
// a row-level cycle are left untouched. The returned remap maps every
// original row to its canonical key.
func (c *Canonicalizer) Canonicalize(ctx context.Context, rec *record.Record) (*record.Remap, error) {
	remap := record.NewRemap()
	p, err := plan.Build(ctx, c.catalog, rec)
	if err != nil {
		return nil, err
	}

	counters := make(map[string]int64, len(p.Tables))
	for _, node := range p.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := node.Record
		fks := p.OutgoingFks(row.Table)
		occupied := record.ApplyRemap(row, fks, remap, nil)

		counters[row.Table]++
		n := counters[row.Table]
		for _, col := range row.PkColumns {
			if occupied[col] {
				continue
			}
			asString, err := c.isStringKey(ctx, row, col)
			if err != nil {
				return nil, err
			}
			if asString {
				row.Set(col, record.String(strconv.FormatInt(n, 10)))
			} else {
				row.Set(col, record.Int(n))
			}
		}

		current, _ := row.Values(row.PkColumns)
		remap.Put(node.Original, row.PkColumns, current)

		skip := make(map[string]bool, len(occupied)+len(row.PkColumns))
		for col := range occupied {
			skip[col] = true
		}
		for _, col := range row.PkColumns {
			skip[col] = true
		}
		record.ApplyRemap(row, schema.SelfReferencingFks(fks), remap, skip)
	}

	for _, node := range p.Cyclic {
		c.logger.WithRow(node.Original.String()).Warn("Row takes part in a foreign-key cycle, keys left as exported")
	}
	return remap, nil
}

// isStringKey reports whether a key column holds strings, from the schema
// when the column is known and from the current value otherwise.
func (c *Canonicalizer) isStringKey(ctx context.Context, row *record.Record, col string) (bool, error) {
	meta, err := c.catalog.Column(ctx, row.Table, col)
	if err != nil {
		return false, err
	}
	if meta != nil {
		return meta.Class() == schema.ClassString, nil
	}
	return row.Value(col).Kind() == record.KindString, nil
}
