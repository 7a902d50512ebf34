package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/dbsmedya/gorowtree/internal/sqlutil"
)

// Source answers schema questions about one database. Implementations return
// a nil slice (not an error) for a table that does not exist; the Catalog
// turns that into a SchemaError.
type Source interface {
	Columns(ctx context.Context, table string) ([]ColumnMetadata, error)
	PrimaryKey(ctx context.Context, table string) ([]string, error)
	ForeignKeys(ctx context.Context, table string) ([]Fk, error)
}

// InformationSchema reads schema facts from the information_schema views of
// the connected database.
type InformationSchema struct {
	db      *sql.DB
	dialect sqlutil.Dialect
}

// NewInformationSchema creates a Source backed by information_schema.
func NewInformationSchema(db *sql.DB, dialect sqlutil.Dialect) *InformationSchema {
	return &InformationSchema{db: db, dialect: dialect}
}

// Columns returns the columns of table in ordinal order.
func (s *InformationSchema) Columns(ctx context.Context, table string) ([]ColumnMetadata, error) {
	query := fmt.Sprintf(`
		SELECT COLUMN_NAME, DATA_TYPE,
			COALESCE(CHARACTER_MAXIMUM_LENGTH, NUMERIC_PRECISION, 0),
			ORDINAL_POSITION, IS_NULLABLE
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = %s
		AND TABLE_NAME = %s
		ORDER BY ORDINAL_POSITION`,
		s.dialect.CurrentSchema(), s.dialect.Placeholder(1))

	rows, err := s.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []ColumnMetadata
	for rows.Next() {
		var c ColumnMetadata
		var nullable string
		if err := rows.Scan(&c.Name, &c.SQLType, &c.Size, &c.Ordinal, &nullable); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		c.Nullable = strings.EqualFold(nullable, "YES")
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns of %s: %w", table, err)
	}
	return cols, nil
}

// PrimaryKey returns the primary-key columns of table in key order.
func (s *InformationSchema) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT kcu.COLUMN_NAME
		FROM information_schema.TABLE_CONSTRAINTS tc
		JOIN information_schema.KEY_COLUMN_USAGE kcu
			ON kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
			AND kcu.TABLE_SCHEMA = tc.TABLE_SCHEMA
			AND kcu.TABLE_NAME = tc.TABLE_NAME
		WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		AND tc.TABLE_SCHEMA = %s
		AND tc.TABLE_NAME = %s
		ORDER BY kcu.ORDINAL_POSITION`,
		s.dialect.CurrentSchema(), s.dialect.Placeholder(1))

	rows, err := s.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query primary key of %s: %w", table, err)
	}
	defer rows.Close()

	var pk []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("failed to scan primary key of %s: %w", table, err)
		}
		pk = append(pk, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating primary key of %s: %w", table, err)
	}
	return pk, nil
}

// ForeignKeys returns every foreign key in which table takes part, on either side.
func (s *InformationSchema) ForeignKeys(ctx context.Context, table string) ([]Fk, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.ForeignKeysQuery(), table, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys of %s: %w", table, err)
	}
	defer rows.Close()

	type constraintKey struct{ origin, name string }
	byConstraint := make(map[constraintKey]*Fk)
	var order []constraintKey

	for rows.Next() {
		var name, origin, originCol, target, targetCol string
		if err := rows.Scan(&name, &origin, &originCol, &target, &targetCol); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key of %s: %w", table, err)
		}
		key := constraintKey{origin: origin, name: name}
		fk, ok := byConstraint[key]
		if !ok {
			fk = &Fk{Origin: origin, Target: target}
			byConstraint[key] = fk
			order = append(order, key)
		}
		fk.OriginColumns = append(fk.OriginColumns, originCol)
		fk.TargetColumns = append(fk.TargetColumns, targetCol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating foreign keys of %s: %w", table, err)
	}

	fks := make([]Fk, 0, len(order))
	for _, key := range order {
		fks = append(fks, *byConstraint[key])
	}
	sort.SliceStable(fks, func(i, j int) bool { return fks[i].Key() < fks[j].Key() })
	return fks, nil
}
