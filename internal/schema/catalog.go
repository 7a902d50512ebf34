package schema

import (
	"context"
	"fmt"
	"strings"
)

// ColumnCache memoizes column metadata per table.
type ColumnCache map[string][]ColumnMetadata

// PkCache memoizes primary-key columns per table.
type PkCache map[string][]string

// FkCache memoizes foreign keys (database and virtual) per table.
type FkCache map[string][]Fk

// Catalog answers schema questions through a Source, caching every answer.
// Lookups never hit the database twice for the same table. A Catalog is not
// safe for concurrent use.
type Catalog struct {
	source  Source
	columns ColumnCache
	pks     PkCache
	fks     FkCache
	virtual []Fk
}

// NewCatalog creates a Catalog over source.
func NewCatalog(source Source) *Catalog {
	return &Catalog{
		source:  source,
		columns: make(ColumnCache),
		pks:     make(PkCache),
		fks:     make(FkCache),
	}
}

// AddVirtualFks registers relationships that are not declared in the database.
// A virtual Fk equal to a database Fk is ignored. The foreign-key cache is reset.
func (c *Catalog) AddVirtualFks(fks ...Fk) {
	for _, fk := range fks {
		fk.Virtual = true
		c.virtual = append(c.virtual, fk)
	}
	c.fks = make(FkCache)
}

// Columns returns the column metadata of table in ordinal order.
func (c *Catalog) Columns(ctx context.Context, table string) ([]ColumnMetadata, error) {
	if cols, ok := c.columns[table]; ok {
		return cols, nil
	}
	cols, err := c.source.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, &SchemaError{Table: table, Message: "table not found"}
	}
	c.columns[table] = cols
	return cols, nil
}

// Column returns the metadata of one column, or nil when the column does not exist.
func (c *Catalog) Column(ctx context.Context, table, column string) (*ColumnMetadata, error) {
	cols, err := c.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	for i := range cols {
		if strings.EqualFold(cols[i].Name, column) {
			return &cols[i], nil
		}
	}
	return nil, nil
}

// ColumnNames returns the column names of table in ordinal order.
func (c *Catalog) ColumnNames(ctx context.Context, table string) ([]string, error) {
	cols, err := c.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return names, nil
}

// PrimaryKey returns the primary-key columns of table. A table without a
// primary key is a SchemaError.
func (c *Catalog) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	if pk, ok := c.pks[table]; ok {
		return pk, nil
	}
	if _, err := c.Columns(ctx, table); err != nil {
		return nil, err
	}
	pk, err := c.source.PrimaryKey(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(pk) == 0 {
		return nil, &SchemaError{Table: table, Message: "table has no primary key"}
	}
	c.pks[table] = pk
	return pk, nil
}

// ForeignKeys returns every Fk in which table takes part, database and
// virtual, without duplicates.
func (c *Catalog) ForeignKeys(ctx context.Context, table string) ([]Fk, error) {
	if fks, ok := c.fks[table]; ok {
		return fks, nil
	}
	dbFks, err := c.source.ForeignKeys(ctx, table)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(dbFks))
	var fks []Fk
	for _, fk := range dbFks {
		if !seen[fk.Key()] {
			seen[fk.Key()] = true
			fks = append(fks, fk)
		}
	}
	for _, fk := range c.virtual {
		if (fk.Origin == table || fk.Target == table) && !seen[fk.Key()] {
			seen[fk.Key()] = true
			fks = append(fks, fk)
		}
	}
	c.fks[table] = fks
	return fks, nil
}

// Edges returns the edges of table, sorted by Fk key with the non-inverted
// direction first.
func (c *Catalog) Edges(ctx context.Context, table string) ([]Edge, error) {
	fks, err := c.ForeignKeys(ctx, table)
	if err != nil {
		return nil, err
	}
	return EdgesFor(table, fks), nil
}

// OutgoingFks returns the Fks where table is the referencing side.
func (c *Catalog) OutgoingFks(ctx context.Context, table string) ([]Fk, error) {
	fks, err := c.ForeignKeys(ctx, table)
	if err != nil {
		return nil, err
	}
	var out []Fk
	for _, fk := range fks {
		if fk.Origin == table {
			out = append(out, fk)
		}
	}
	return out, nil
}

// ValidateFk checks that both tables and every column of fk exist.
func (c *Catalog) ValidateFk(ctx context.Context, fk Fk) error {
	check := func(table string, cols []string) error {
		for _, col := range cols {
			meta, err := c.Column(ctx, table, col)
			if err != nil {
				return err
			}
			if meta == nil {
				return &SchemaError{Table: table, Column: col, Message: fmt.Sprintf("column referenced by %s not found", fk.Key())}
			}
		}
		return nil
	}
	if err := check(fk.Origin, fk.OriginColumns); err != nil {
		return err
	}
	return check(fk.Target, fk.TargetColumns)
}
