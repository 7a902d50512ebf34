package exporter

import (
	"strings"

	"github.com/dbsmedya/gorowtree/internal/record"
	"github.com/dbsmedya/gorowtree/internal/schema"
)

// FieldExporter converts a scanned column value into its tree representation.
// It replaces the default conversion for the columns it is registered for.
type FieldExporter func(raw any, meta *schema.ColumnMetadata) (record.Value, error)

// SetFieldExporter registers fn for one column of one table.
func (e *Exporter) SetFieldExporter(table, column string, fn FieldExporter) {
	e.fieldExporters[fieldKey(table, column)] = fn
}

// SetTypeExporter registers fn for every column of the given SQL type
// (information_schema DATA_TYPE, case-insensitive).
func (e *Exporter) SetTypeExporter(sqlType string, fn FieldExporter) {
	e.typeExporters[strings.ToLower(sqlType)] = fn
}

// exporterFor returns the override for a column, the per-column one first.
func (e *Exporter) exporterFor(table string, meta *schema.ColumnMetadata) FieldExporter {
	if fn, ok := e.fieldExporters[fieldKey(table, meta.Name)]; ok {
		return fn
	}
	if fn, ok := e.typeExporters[strings.ToLower(meta.SQLType)]; ok {
		return fn
	}
	return nil
}

func fieldKey(table, column string) string {
	return strings.ToLower(table + "." + column)
}
