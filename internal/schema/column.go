// Package schema provides the schema facts gorowtree needs: column metadata,
// primary keys and foreign keys, memoized per table.
package schema

import "strings"

// ColumnMetadata describes one column of a table.
type ColumnMetadata struct {
	Name    string // Column name
	SQLType string // Engine type name as reported by information_schema (DATA_TYPE)
	Size    int64  // Character length or numeric precision, 0 when unknown
	Ordinal int    // 1-based ordinal position

	Nullable bool
}

// TypeClass groups SQL types by how their values are represented.
type TypeClass int

const (
	ClassOther TypeClass = iota
	ClassBool
	ClassInteger
	ClassDecimal
	ClassDate
	ClassTimestamp
	ClassString
	ClassBytes
)

func (c TypeClass) String() string {
	switch c {
	case ClassBool:
		return "bool"
	case ClassInteger:
		return "integer"
	case ClassDecimal:
		return "decimal"
	case ClassDate:
		return "date"
	case ClassTimestamp:
		return "timestamp"
	case ClassString:
		return "string"
	case ClassBytes:
		return "bytes"
	default:
		return "other"
	}
}

// Class classifies the column's SQL type.
func (c ColumnMetadata) Class() TypeClass {
	return ClassifyType(c.SQLType)
}

// ClassifyType maps an engine type name (MySQL or PostgreSQL) to a TypeClass.
// Size and precision suffixes such as "(255)" are ignored.
func ClassifyType(sqlType string) TypeClass {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	if idx := strings.Index(t, "("); idx > 0 {
		t = strings.TrimSpace(t[:idx])
	}
	t = strings.TrimSuffix(t, " unsigned")

	switch t {
	case "bool", "boolean", "bit":
		return ClassBool
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint",
		"int2", "int4", "int8", "serial", "bigserial", "smallserial", "year":
		return ClassInteger
	case "decimal", "numeric", "float", "double", "double precision", "real",
		"float4", "float8", "money":
		return ClassDecimal
	case "date":
		return ClassDate
	case "datetime", "timestamp", "timestamptz",
		"timestamp without time zone", "timestamp with time zone":
		return ClassTimestamp
	case "char", "varchar", "character", "character varying", "bpchar",
		"text", "tinytext", "mediumtext", "longtext", "uuid", "enum", "set",
		"json", "jsonb", "time", "time without time zone", "citext":
		return ClassString
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob", "bytea":
		return ClassBytes
	default:
		return ClassOther
	}
}
