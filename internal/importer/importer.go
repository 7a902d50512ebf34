// Package importer writes record trees into a database, generating new
// primary keys and rewriting foreign keys so the imported rows reference
// each other instead of their original keys.
package importer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dbsmedya/gorowtree/internal/logger"
	"github.com/dbsmedya/gorowtree/internal/plan"
	"github.com/dbsmedya/gorowtree/internal/record"
	"github.com/dbsmedya/gorowtree/internal/schema"
	"github.com/dbsmedya/gorowtree/internal/sqlutil"
)

// DB is the subset of *sql.DB, *sql.Conn and *sql.Tx used by the importer.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Options controls one InsertTree call.
type Options struct {
	ForceInsert bool // insert every row without checking whether it exists
}

// Action is what happened to one row.
type Action int

const (
	ActionSkipped Action = iota
	ActionInserted
	ActionUpdated
)

func (a Action) String() string {
	switch a {
	case ActionInserted:
		return "inserted"
	case ActionUpdated:
		return "updated"
	default:
		return "skipped"
	}
}

// RowResult reports the outcome for one row.
type RowResult struct {
	Original record.RowLink
	Current  record.RowLink // zero when skipped
	Action   Action
	Err      error
}

// Result reports the outcome of an InsertTree call.
type Result struct {
	Rows     []RowResult
	Remap    *record.Remap // the session's remap table
	Inserted int
	Updated  int
	Skipped  int
	Duration time.Duration
}

// Importer writes record trees through db.
type Importer struct {
	db      DB
	dialect sqlutil.Dialect
	catalog *schema.Catalog
	logger  *logger.Logger

	generators       map[string]PkGenerator
	defaultGenerator PkGenerator

	fieldImporters map[string]FieldImporter
	typeImporters  map[string]FieldImporter
}

// New creates an Importer writing through db with the given dialect.
func New(db DB, dialect sqlutil.Dialect, catalog *schema.Catalog) *Importer {
	return &Importer{
		db:               db,
		dialect:          dialect,
		catalog:          catalog,
		logger:           logger.NewDefault(),
		generators:       make(map[string]PkGenerator),
		defaultGenerator: DefaultGenerator{},
		fieldImporters:   make(map[string]FieldImporter),
		typeImporters:    make(map[string]FieldImporter),
	}
}

// SetLogger sets a custom logger for the importer.
func (i *Importer) SetLogger(log *logger.Logger) {
	i.logger = log
}

// SetPkGenerator overrides key generation for one table.
func (i *Importer) SetPkGenerator(table string, gen PkGenerator) {
	i.generators[strings.ToLower(table)] = gen
}

// SetDefaultPkGenerator replaces the generator used for tables without an override.
func (i *Importer) SetDefaultPkGenerator(gen PkGenerator) {
	i.defaultGenerator = gen
}

func (i *Importer) generatorFor(table string) PkGenerator {
	if gen, ok := i.generators[strings.ToLower(table)]; ok {
		return gen
	}
	return i.defaultGenerator
}

// InsertTree imports rec in a fresh session.
func (i *Importer) InsertTree(ctx context.Context, rec *record.Record, opts Options) (*Result, error) {
	return i.NewSession().InsertTree(ctx, rec, opts)
}

// Session holds the state shared by consecutive imports: the remap table and
// the key counters. A Session is not safe for concurrent use.
type Session struct {
	imp      *Importer
	Remap    *record.Remap
	Counters *Counters
}

// NewSession starts an import session.
func (i *Importer) NewSession() *Session {
	return &Session{
		imp:      i,
		Remap:    record.NewRemap(),
		Counters: NewCounters(),
	}
}

// InsertTree writes every row of rec, referenced rows first. Rows that fail
// are logged and reported in the result; the import goes on with the next
// row. Schema errors and table-level cycles abort the call.
func (s *Session) InsertTree(ctx context.Context, rec *record.Record, opts Options) (*Result, error) {
	start := time.Now()
	log := s.imp.logger.WithOperation("import")

	p, err := plan.Build(ctx, s.imp.catalog, rec)
	if err != nil {
		return nil, err
	}

	result := &Result{Remap: s.Remap}
	if p.Len() == 0 {
		return result, nil
	}
	log.Infof("Starting import of %d rows across %d tables", p.Len(), len(p.Tables))
	if len(p.Cyclic) > 0 {
		log.Warnf("%d rows take part in a row-level cycle and are written last", len(p.Cyclic))
	}

	// Cyclic rows may reference rows written after them. Those references
	// are recorded on the first write and fixed once every row has a key.
	unwritten := make(map[string]record.RowLink, len(p.Cyclic))
	for _, node := range p.Cyclic {
		unwritten[node.Original.String()] = node.Original
	}
	var pending []*deferredFks

	for n, node := range append(append([]*plan.Node(nil), p.Rows...), p.Cyclic...) {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("import interrupted: %w", err)
		}

		var cyclic map[string]record.RowLink
		if n >= len(p.Rows) {
			delete(unwritten, node.Original.String())
			cyclic = unwritten
		}
		rr, later, err := s.writeRow(ctx, p, node, opts, cyclic)
		if err != nil {
			return result, err
		}
		result.Rows = append(result.Rows, rr)
		switch rr.Action {
		case ActionInserted:
			result.Inserted++
		case ActionUpdated:
			result.Updated++
		default:
			result.Skipped++
			log.WithRow(rr.Original.String()).Errorf("Row skipped: %v", rr.Err)
		}
		if later != nil {
			later.row = len(result.Rows) - 1
			pending = append(pending, later)
		}
	}

	for _, d := range pending {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("import interrupted: %w", err)
		}
		if err := s.resolveDeferred(ctx, p, d); err != nil {
			rr := &result.Rows[d.row]
			rr.Err = err
			log.WithRow(rr.Original.String()).Errorf("Foreign keys left unresolved: %v", err)
		}
	}

	result.Duration = time.Since(start)
	log.Infof("Import complete: %d inserted, %d updated, %d skipped, duration: %s",
		result.Inserted, result.Updated, result.Skipped, result.Duration)
	return result, nil
}

// writeRow rewrites, keys and writes one row. Only schema errors are
// returned as errors; write failures are reported in the RowResult.
//
// unwritten holds the original links of cyclic rows not written yet. Foreign
// keys of rec pointing at one of them are returned as a deferredFks.
func (s *Session) writeRow(ctx context.Context, p *plan.Plan, node *plan.Node, opts Options, unwritten map[string]record.RowLink) (RowResult, *deferredFks, error) {
	rec := node.Record
	rr := RowResult{Original: node.Original}

	columns, err := s.imp.catalog.Columns(ctx, rec.Table)
	if err != nil {
		return rr, nil, err
	}
	pkCols := rec.PkColumns
	fks := p.OutgoingFks(rec.Table)

	// Key columns rewritten from referenced rows are occupied; the rest are free.
	occupied := record.ApplyRemap(rec, fks, s.Remap, nil)

	insert := opts.ForceInsert
	if !insert {
		exists, err := s.exists(ctx, rec)
		if err != nil {
			rr.Err = &RowWriteError{Row: node.Original, Reason: classify(err), Err: err}
			return rr, nil, nil
		}
		insert = !exists
	}

	if insert {
		for _, col := range pkCols {
			if occupied[col] {
				continue
			}
			meta := lookupColumn(columns, col)
			if meta == nil {
				return rr, nil, &schema.SchemaError{Table: rec.Table, Column: col, Message: "primary key column not found"}
			}
			v, err := s.imp.generatorFor(rec.Table).Generate(ctx, KeyRequest{
				DB:       s.imp.db,
				Dialect:  s.imp.dialect,
				Table:    rec.Table,
				Column:   meta,
				Counters: s.Counters,
			})
			if err != nil {
				rr.Err = err
				return rr, nil, nil
			}
			rec.Set(meta.Name, v)
		}
	}

	current, _ := rec.Values(pkCols)
	s.Remap.Put(node.Original, pkCols, current)

	// A row referencing itself can only be rewritten once its own key is known.
	skip := make(map[string]bool, len(occupied)+len(pkCols))
	for col := range occupied {
		skip[col] = true
	}
	for _, col := range pkCols {
		skip[col] = true
	}
	for col := range record.ApplyRemap(rec, schema.SelfReferencingFks(fks), s.Remap, skip) {
		skip[col] = true
	}

	var later *deferredFks
	if unwritten != nil {
		if later, err = s.deferUnresolved(ctx, rec, fks, columns, skip, unwritten); err != nil {
			return rr, nil, err
		}
	}

	var stmt string
	var args []any
	if insert {
		stmt, args, err = s.imp.buildInsert(rec, columns)
	} else {
		stmt, args, err = s.imp.buildUpdate(rec, columns, nil)
	}
	if err == nil && stmt != "" {
		_, err = s.imp.db.ExecContext(ctx, stmt, args...)
	}
	if err != nil {
		s.Remap.Delete(node.Original)
		if later != nil {
			for col, v := range later.original {
				rec.Set(col, v)
			}
		}
		rr.Err = &RowWriteError{Row: node.Original, Statement: stmt, Reason: classify(err), Err: err}
		return rr, nil, nil
	}

	rr.Current = rec.Link()
	if insert {
		rr.Action = ActionInserted
	} else {
		rr.Action = ActionUpdated
	}
	s.imp.logger.WithTable(rec.Table).Debugf("%s %s as %s", rr.Action, rr.Original, rr.Current)
	if later != nil {
		later.node = node
		later.columns = columns
	}
	return rr, later, nil
}

// exists reports whether a row with rec's primary key is present.
func (s *Session) exists(ctx context.Context, rec *record.Record) (bool, error) {
	vals, ok := rec.Values(rec.PkColumns)
	if !ok {
		return false, nil
	}
	args := make([]any, len(vals))
	for i, v := range vals {
		if v.IsNull() {
			return false, nil
		}
		args[i] = v.Any()
	}
	d := s.imp.dialect
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s",
		d.Quote(rec.Table), sqlutil.EqualsClause(d, rec.PkColumns, 1, " AND "))

	var n int64
	if err := s.imp.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check %s: %w", rec.Link(), err)
	}
	return n > 0, nil
}

// buildInsert builds an INSERT over the columns present both in rec and in
// the live schema.
//
// Example: INSERT INTO book (id, author_id) VALUES (?, ?)
func (i *Importer) buildInsert(rec *record.Record, columns []schema.ColumnMetadata) (string, []any, error) {
	var names []string
	var args []any
	for c := range columns {
		meta := &columns[c]
		f, ok := rec.Field(meta.Name)
		if !ok {
			continue
		}
		arg, err := i.convert(rec.Table, f.Value, meta)
		if err != nil {
			return "", nil, err
		}
		names = append(names, meta.Name)
		args = append(args, arg)
	}
	if len(names) == 0 {
		return "", nil, fmt.Errorf("row %s has no column known to the schema", rec.Link())
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		i.dialect.Quote(rec.Table),
		sqlutil.QuoteAll(i.dialect, names),
		sqlutil.Placeholders(i.dialect, 1, len(names)),
	)
	return stmt, args, nil
}

// buildUpdate builds an UPDATE of the non-key columns present both in rec and
// in the live schema, restricted to only when it is not nil. An empty
// statement means there is nothing to update.
//
// Example: UPDATE book SET author_id = ? WHERE id = ?
func (i *Importer) buildUpdate(rec *record.Record, columns []schema.ColumnMetadata, only map[string]bool) (string, []any, error) {
	isPk := make(map[string]bool, len(rec.PkColumns))
	for _, c := range rec.PkColumns {
		isPk[strings.ToLower(c)] = true
	}

	var set []string
	var args []any
	for c := range columns {
		meta := &columns[c]
		if isPk[strings.ToLower(meta.Name)] {
			continue
		}
		if only != nil && !only[meta.Name] {
			continue
		}
		f, ok := rec.Field(meta.Name)
		if !ok {
			continue
		}
		arg, err := i.convert(rec.Table, f.Value, meta)
		if err != nil {
			return "", nil, err
		}
		set = append(set, meta.Name)
		args = append(args, arg)
	}
	if len(set) == 0 {
		return "", nil, nil
	}

	for _, pk := range rec.PkColumns {
		meta := lookupColumn(columns, pk)
		if meta == nil {
			return "", nil, &schema.SchemaError{Table: rec.Table, Column: pk, Message: "primary key column not found"}
		}
		arg, err := i.convert(rec.Table, rec.Value(pk), meta)
		if err != nil {
			return "", nil, err
		}
		args = append(args, arg)
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		i.dialect.Quote(rec.Table),
		sqlutil.EqualsClause(i.dialect, set, 1, ", "),
		sqlutil.EqualsClause(i.dialect, rec.PkColumns, len(set)+1, " AND "),
	)
	return stmt, args, nil
}

func lookupColumn(cols []schema.ColumnMetadata, name string) *schema.ColumnMetadata {
	for i := range cols {
		if strings.EqualFold(cols[i].Name, name) {
			return &cols[i]
		}
	}
	return nil
}
