package sqlutil

import (
	"fmt"
	"strings"
)

// Dialect captures the SQL differences between the supported database engines.
type Dialect interface {
	// Name returns the driver name registered with database/sql.
	Name() string
	// Quote quotes a table or column identifier.
	Quote(name string) string
	// Placeholder returns the bind placeholder for the n-th (1-based) argument.
	Placeholder(n int) string
	// CurrentSchema is an SQL expression evaluating to the connection's schema.
	CurrentSchema() string
	// ForeignKeysQuery lists foreign-key columns where the table is either side.
	// It takes two arguments (the table name twice) and returns rows of
	// (constraint, origin table, origin column, target table, target column).
	ForeignKeysQuery() string
	// NextvalQuery returns a query fetching the next value of a sequence.
	NextvalQuery(sequence string) string
	// LockQuery and UnlockQuery return an advisory-lock query and its arguments.
	// Both queries yield 1 on success and 0 otherwise.
	LockQuery(name string, timeoutSeconds int) (string, []any)
	UnlockQuery(name string) (string, []any)
}

// MySQL is the dialect for MySQL and MariaDB.
type MySQL struct{}

func (MySQL) Name() string             { return "mysql" }
func (MySQL) Quote(name string) string { return QuoteIdentifier(name) }
func (MySQL) Placeholder(int) string   { return "?" }
func (MySQL) CurrentSchema() string    { return "DATABASE()" }
func (MySQL) NextvalQuery(seq string) string {
	return fmt.Sprintf("SELECT NEXTVAL(%s)", QuoteIdentifier(seq))
}

func (MySQL) LockQuery(name string, timeoutSeconds int) (string, []any) {
	return "SELECT GET_LOCK(?, ?)", []any{name, timeoutSeconds}
}

func (MySQL) UnlockQuery(name string) (string, []any) {
	return "SELECT RELEASE_LOCK(?)", []any{name}
}

func (MySQL) ForeignKeysQuery() string {
	return `
		SELECT kcu.CONSTRAINT_NAME, kcu.TABLE_NAME, kcu.COLUMN_NAME,
			kcu.REFERENCED_TABLE_NAME, kcu.REFERENCED_COLUMN_NAME
		FROM information_schema.KEY_COLUMN_USAGE kcu
		WHERE kcu.TABLE_SCHEMA = DATABASE()
		AND kcu.REFERENCED_TABLE_NAME IS NOT NULL
		AND (kcu.TABLE_NAME = ? OR kcu.REFERENCED_TABLE_NAME = ?)
		ORDER BY kcu.TABLE_NAME, kcu.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`
}

// Postgres is the dialect for PostgreSQL accessed through the pgx stdlib driver.
type Postgres struct{}

func (Postgres) Name() string             { return "pgx" }
func (Postgres) Quote(name string) string { return QuoteANSIIdentifier(name) }
func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (Postgres) CurrentSchema() string    { return "current_schema()" }
func (Postgres) NextvalQuery(seq string) string {
	return "SELECT nextval('" + strings.ReplaceAll(seq, "'", "''") + "')"
}

// LockQuery ignores the timeout: pg_try_advisory_lock never waits.
func (Postgres) LockQuery(name string, _ int) (string, []any) {
	return "SELECT CASE WHEN pg_try_advisory_lock(hashtext($1)) THEN 1 ELSE 0 END", []any{name}
}

func (Postgres) UnlockQuery(name string) (string, []any) {
	return "SELECT CASE WHEN pg_advisory_unlock(hashtext($1)) THEN 1 ELSE 0 END", []any{name}
}

func (Postgres) ForeignKeysQuery() string {
	return `
		SELECT kcu.constraint_name, kcu.table_name, kcu.column_name,
			ref.table_name, ref.column_name
		FROM information_schema.referential_constraints rc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_schema = rc.constraint_schema
			AND kcu.constraint_name = rc.constraint_name
		JOIN information_schema.key_column_usage ref
			ON ref.constraint_schema = rc.unique_constraint_schema
			AND ref.constraint_name = rc.unique_constraint_name
			AND ref.ordinal_position = kcu.position_in_unique_constraint
		WHERE kcu.table_schema = current_schema()
		AND (kcu.table_name = $1 OR ref.table_name = $2)
		ORDER BY kcu.table_name, kcu.constraint_name, kcu.ordinal_position`
}

// DialectFor returns the dialect for a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql", "mariadb", "":
		return MySQL{}, nil
	case "postgres", "postgresql", "pgx":
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q (must be 'mysql' or 'postgres')", driver)
	}
}

// Placeholders returns count placeholders starting at position start, joined by ", ".
func Placeholders(d Dialect, start, count int) string {
	ph := make([]string, count)
	for i := range ph {
		ph[i] = d.Placeholder(start + i)
	}
	return strings.Join(ph, ", ")
}

// QuoteAll quotes every name and joins them with ", ".
func QuoteAll(d Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

// EqualsClause builds "c1 = ? AND c2 = ?" with placeholders numbered from start.
func EqualsClause(d Dialect, columns []string, start int, sep string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = d.Quote(c) + " = " + d.Placeholder(start+i)
	}
	return strings.Join(parts, sep)
}
