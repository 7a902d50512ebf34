// Package sqlutil provides SQL dialect helpers for gorowtree.
package sqlutil

import (
	"regexp"
	"strings"
)

// QuoteIdentifier quotes a MySQL identifier (table name, column name) with backticks.
// It escapes any existing backticks by doubling them.
// Example: "my_table" -> "`my_table`"
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QuoteANSIIdentifier quotes an identifier with double quotes, as PostgreSQL expects.
// Embedded double quotes are doubled.
// Example: "order" -> "\"order\""
func QuoteANSIIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// validIdentifierRegex restricts identifiers coming from configuration or CLI
// arguments to alphanumerics, underscores and dots (schema-qualified names).
var validIdentifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)

// IsValidIdentifier reports whether name is safe to use as a table or column name.
func IsValidIdentifier(name string) bool {
	return validIdentifierRegex.MatchString(name)
}

// InvalidIdentifierError is returned when an identifier contains invalid characters.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return "invalid identifier: " + e.Name + " (must contain only alphanumeric characters, underscores and dots)"
}

// CheckIdentifiers returns an InvalidIdentifierError for the first name that fails IsValidIdentifier.
func CheckIdentifiers(names ...string) error {
	for _, name := range names {
		if !IsValidIdentifier(name) {
			return &InvalidIdentifierError{Name: name}
		}
	}
	return nil
}
