package importer

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dbsmedya/gorowtree/internal/record"
	"github.com/dbsmedya/gorowtree/internal/schema"
	"github.com/dbsmedya/gorowtree/internal/sqlutil"
)

// KeyRequest describes one primary-key column that needs a new value.
type KeyRequest struct {
	DB       DB
	Dialect  sqlutil.Dialect
	Table    string
	Column   *schema.ColumnMetadata
	Counters *Counters
}

// PkGenerator produces primary-key values for inserted rows.
type PkGenerator interface {
	Generate(ctx context.Context, req KeyRequest) (record.Value, error)
}

// GeneratorFunc adapts a function to PkGenerator.
type GeneratorFunc func(ctx context.Context, req KeyRequest) (record.Value, error)

func (f GeneratorFunc) Generate(ctx context.Context, req KeyRequest) (record.Value, error) {
	return f(ctx, req)
}

// DefaultGenerator gives string columns a random UUID and numeric columns
// MAX(column)+1.
type DefaultGenerator struct{}

func (DefaultGenerator) Generate(ctx context.Context, req KeyRequest) (record.Value, error) {
	switch req.Column.Class() {
	case schema.ClassString:
		return UUIDGenerator{}.Generate(ctx, req)
	case schema.ClassInteger, schema.ClassDecimal:
		return MaxPlusOne{}.Generate(ctx, req)
	}
	return record.Null(), &PkGenerationError{
		Table:   req.Table,
		Column:  req.Column.Name,
		SQLType: req.Column.SQLType,
		Err:     fmt.Errorf("no default generator for %s columns", req.Column.Class()),
	}
}

// UUIDGenerator returns a random (version 4) UUID string.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate(_ context.Context, _ KeyRequest) (record.Value, error) {
	return record.String(uuid.NewString()), nil
}

// MaxPlusOne returns one more than the largest value handed out for the
// column in this session, seeded from MAX(column) on first use. Decimal
// columns are accepted as long as their maximum is a whole number.
type MaxPlusOne struct{}

func (MaxPlusOne) Generate(ctx context.Context, req KeyRequest) (record.Value, error) {
	class := req.Column.Class()
	if class != schema.ClassInteger && class != schema.ClassDecimal {
		return record.Null(), &PkGenerationError{
			Table:   req.Table,
			Column:  req.Column.Name,
			SQLType: req.Column.SQLType,
			Err:     fmt.Errorf("MAX+1 needs a numeric column"),
		}
	}
	n, err := req.Counters.Next(ctx, req.DB, req.Dialect, req.Table, req.Column.Name)
	if err != nil {
		return record.Null(), &PkGenerationError{Table: req.Table, Column: req.Column.Name, SQLType: req.Column.SQLType, Err: err}
	}
	if class == schema.ClassDecimal {
		return record.Decimal(strconv.FormatInt(n, 10)), nil
	}
	return record.Int(n), nil
}

// SequenceGenerator draws values from a database sequence.
type SequenceGenerator struct {
	Sequence string
}

func (g SequenceGenerator) Generate(ctx context.Context, req KeyRequest) (record.Value, error) {
	var raw any
	if err := req.DB.QueryRowContext(ctx, req.Dialect.NextvalQuery(g.Sequence)).Scan(&raw); err != nil {
		return record.Null(), &PkGenerationError{
			Table:   req.Table,
			Column:  req.Column.Name,
			SQLType: req.Column.SQLType,
			Err:     fmt.Errorf("nextval(%s): %w", g.Sequence, err),
		}
	}
	return record.FromDriver(raw, req.Column), nil
}

// GeneratorFor maps a configured strategy name to a generator.
func GeneratorFor(name, sequence string) (PkGenerator, error) {
	switch name {
	case "", "default":
		return DefaultGenerator{}, nil
	case "max":
		return MaxPlusOne{}, nil
	case "uuid":
		return UUIDGenerator{}, nil
	case "sequence":
		if sequence == "" {
			return nil, fmt.Errorf("sequence generator needs a sequence name")
		}
		return SequenceGenerator{Sequence: sequence}, nil
	}
	return nil, fmt.Errorf("unknown key generator %q (must be 'max', 'uuid' or 'sequence')", name)
}

// Counters caches the last integer key handed out per table column. It is
// scoped to one import session.
type Counters struct {
	last map[string]int64
}

// NewCounters creates an empty counter cache.
func NewCounters() *Counters {
	return &Counters{last: make(map[string]int64)}
}

// Next returns the next key for table.column, querying MAX(column) only the
// first time the column is seen.
func (c *Counters) Next(ctx context.Context, db DB, d sqlutil.Dialect, table, column string) (int64, error) {
	key := table + "." + column
	last, ok := c.last[key]
	if !ok {
		query := fmt.Sprintf("SELECT MAX(%s) FROM %s", d.Quote(column), d.Quote(table))
		var raw any
		if err := db.QueryRowContext(ctx, query).Scan(&raw); err != nil && err != sql.ErrNoRows {
			return 0, fmt.Errorf("failed to read MAX(%s) of %s: %w", column, table, err)
		}
		seed, err := toInt64(raw)
		if err != nil {
			return 0, fmt.Errorf("MAX(%s) of %s: %w", column, table, err)
		}
		last = seed
	}
	last++
	c.last[key] = last
	return last, nil
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case []byte:
		return wholeNumber(string(v))
	case string:
		return wholeNumber(v)
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("maximum %v is not a whole number", v)
		}
		return int64(v), nil
	}
	if n, ok := record.ToInt64(raw); ok {
		return n, nil
	}
	return 0, fmt.Errorf("unexpected value %v (%T)", raw, raw)
}

// wholeNumber parses integer or decimal text such as "42" or "42.000".
func wholeNumber(s string) (int64, error) {
	s = strings.TrimSpace(s)
	intPart, frac, found := strings.Cut(s, ".")
	if found && strings.Trim(frac, "0") != "" {
		return 0, fmt.Errorf("maximum %s is not a whole number", s)
	}
	return strconv.ParseInt(intPart, 10, 64)
}
