// Package exporter walks foreign-key relationships outward from one row and
// assembles every reachable row into a record tree.
package exporter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dbsmedya/gorowtree/internal/logger"
	"github.com/dbsmedya/gorowtree/internal/record"
	"github.com/dbsmedya/gorowtree/internal/schema"
	"github.com/dbsmedya/gorowtree/internal/sqlutil"
)

// ErrRowNotFound is reported by callers when the root row does not exist.
var ErrRowNotFound = errors.New("row not found")

// Querier is the subset of *sql.DB used by the exporter.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Stats describes the last export.
type Stats struct {
	Rows     int
	Queries  int
	MaxDepth int
	Duration time.Duration
}

// ExportContext carries the traversal state of one export call. visited maps
// a RowLink short form to the record already placed in the tree.
type ExportContext struct {
	visited map[string]*record.Record
	stats   Stats
}

func newExportContext() *ExportContext {
	return &ExportContext{visited: make(map[string]*record.Record)}
}

// Visited reports whether the row has already been placed in the tree.
func (c *ExportContext) Visited(link record.RowLink) bool {
	_, ok := c.visited[link.String()]
	return ok
}

func (c *ExportContext) visit(rec *record.Record) {
	c.visited[rec.Link().String()] = rec
	c.stats.Rows++
}

// Exporter builds record trees from a live database.
type Exporter struct {
	db      Querier
	dialect sqlutil.Dialect
	catalog *schema.Catalog
	logger  *logger.Logger

	stopExcluded map[string]bool
	stopIncluded map[string]bool

	fieldExporters map[string]FieldExporter
	typeExporters  map[string]FieldExporter

	last Stats
}

// New creates an Exporter reading through db with the given dialect. Schema
// questions are answered by catalog.
func New(db Querier, dialect sqlutil.Dialect, catalog *schema.Catalog) *Exporter {
	return &Exporter{
		db:             db,
		dialect:        dialect,
		catalog:        catalog,
		logger:         logger.NewDefault(),
		stopExcluded:   make(map[string]bool),
		stopIncluded:   make(map[string]bool),
		fieldExporters: make(map[string]FieldExporter),
		typeExporters:  make(map[string]FieldExporter),
	}
}

// SetLogger sets a custom logger for the exporter.
func (e *Exporter) SetLogger(log *logger.Logger) {
	e.logger = log
}

// StopExcluded names tables the traversal never enters.
func (e *Exporter) StopExcluded(tables ...string) {
	for _, t := range tables {
		e.stopExcluded[t] = true
	}
}

// StopIncluded names tables whose rows are exported but not expanded further.
func (e *Exporter) StopIncluded(tables ...string) {
	for _, t := range tables {
		e.stopIncluded[t] = true
	}
}

// Stats returns the statistics of the last completed export.
func (e *Exporter) Stats() Stats {
	return e.last
}

// Export exports the row of table identified by pk, given in primary-key
// column order, together with every row reachable from it. When the row does
// not exist the returned record is empty and the error is nil.
func (e *Exporter) Export(ctx context.Context, table string, pk ...any) (*record.Record, error) {
	return e.ExportLink(ctx, record.NewRowLink(table, pk...))
}

// ExportLink is Export for a RowLink.
func (e *Exporter) ExportLink(ctx context.Context, link record.RowLink) (*record.Record, error) {
	start := time.Now()

	pkCols, err := e.catalog.PrimaryKey(ctx, link.Table)
	if err != nil {
		return nil, err
	}
	if len(link.Keys) != len(pkCols) {
		return nil, fmt.Errorf("row %s: expected %d key values for primary key %v, got %d",
			link, len(pkCols), pkCols, len(link.Keys))
	}
	if link.HasNull() {
		return nil, fmt.Errorf("row %s: primary key values must not be null", link)
	}

	ec := newExportContext()
	rows, err := e.fetch(ctx, ec, link.Table, pkCols, link.Keys)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		e.logger.Debugf("Root row %s not found", link)
		return record.New(link.Table, pkCols), nil
	}

	root := rows[0]
	ec.visit(root)
	e.logger.Infof("Starting export from %s", root.Link())

	if err := e.expand(ctx, ec, root, 0); err != nil {
		return nil, err
	}

	ec.stats.Duration = time.Since(start)
	e.last = ec.stats
	e.logger.Infof("Export complete: %d rows, %d queries, depth %d, duration: %s",
		ec.stats.Rows, ec.stats.Queries, ec.stats.MaxDepth, ec.stats.Duration)
	return root, nil
}

// expand follows every edge of rec and attaches the rows found on the other
// side. Rows already in the tree are never attached twice.
func (e *Exporter) expand(ctx context.Context, ec *ExportContext, rec *record.Record, depth int) error {
	if depth > ec.stats.MaxDepth {
		ec.stats.MaxDepth = depth
	}
	if e.stopIncluded[rec.Table] {
		return nil
	}

	edges, err := e.catalog.Edges(ctx, rec.Table)
	if err != nil {
		return err
	}

	for _, edge := range edges {
		if err := ctx.Err(); err != nil {
			return err
		}

		opposite := edge.OppositeTable()
		if e.stopExcluded[opposite] {
			continue
		}
		key := edge.Key()
		if rec.TreatedFks[key] {
			continue
		}

		local := edge.LocalColumns()
		vals, ok := rec.Values(local)
		if !ok || anyNull(vals) {
			continue
		}
		rec.TreatedFks[key] = true

		oppositeCols := edge.OppositeColumns()
		if !edge.Inverted {
			target, isPk, err := e.targetLink(ctx, opposite, oppositeCols, vals)
			if err != nil {
				return err
			}
			if isPk && ec.Visited(target) {
				continue
			}
		}

		rows, err := e.fetch(ctx, ec, opposite, oppositeCols, vals)
		if err != nil {
			return err
		}

		var kept []*record.Record
		for _, row := range rows {
			if ec.Visited(row.Link()) {
				continue
			}
			ec.visit(row)
			kept = append(kept, row)
			if err := e.expand(ctx, ec, row, depth+1); err != nil {
				return err
			}
		}
		if len(kept) == 0 {
			continue
		}

		field, _ := rec.Field(local[0])
		field.AddSubRows(opposite, kept...)
		e.logger.WithTable(opposite).Debugf("Attached %d rows to %s via %s", len(kept), rec.Link(), edge.Fk)
	}
	return nil
}

// targetLink returns the RowLink addressed by vals when columns are exactly
// the primary key of table.
func (e *Exporter) targetLink(ctx context.Context, table string, columns []string, vals []record.Value) (record.RowLink, bool, error) {
	pk, err := e.catalog.PrimaryKey(ctx, table)
	if err != nil {
		return record.RowLink{}, false, err
	}
	if len(pk) != len(columns) {
		return record.RowLink{}, false, nil
	}
	keys := make([]record.Value, len(pk))
	for i, p := range pk {
		idx := indexOf(columns, p)
		if idx < 0 {
			return record.RowLink{}, false, nil
		}
		keys[i] = vals[idx]
	}
	return record.RowLink{Table: table, Keys: keys}, true, nil
}

// fetch reads the rows of table whose columns equal vals, ordered by primary key.
//
// Query format:
//
//	SELECT c1, c2, ... FROM table WHERE k1 = ? AND k2 = ? ORDER BY pk
func (e *Exporter) fetch(ctx context.Context, ec *ExportContext, table string, columns []string, vals []record.Value) ([]*record.Record, error) {
	meta, err := e.catalog.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	names, err := e.catalog.ColumnNames(ctx, table)
	if err != nil {
		return nil, err
	}
	pk, err := e.catalog.PrimaryKey(ctx, table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		sqlutil.QuoteAll(e.dialect, names),
		e.dialect.Quote(table),
		sqlutil.EqualsClause(e.dialect, columns, 1, " AND "),
		sqlutil.QuoteAll(e.dialect, pk),
	)
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v.Any()
	}

	ec.stats.Queries++
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed for %s: %w", table, err)
	}
	defer rows.Close()

	var out []*record.Record
	for rows.Next() {
		raw := make([]any, len(meta))
		ptrs := make([]any, len(meta))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}

		rec := record.New(table, pk)
		for i := range meta {
			m := &meta[i]
			v, err := e.convert(table, raw[i], m)
			if err != nil {
				return nil, fmt.Errorf("failed to export %s.%s: %w", table, m.Name, err)
			}
			rec.Set(m.Name, v).Meta = m
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s results: %w", table, err)
	}
	return out, nil
}

func (e *Exporter) convert(table string, raw any, meta *schema.ColumnMetadata) (record.Value, error) {
	if fn := e.exporterFor(table, meta); fn != nil {
		return fn(raw, meta)
	}
	return record.FromDriver(raw, meta), nil
}

func anyNull(vals []record.Value) bool {
	for _, v := range vals {
		if v.IsNull() {
			return true
		}
	}
	return false
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
