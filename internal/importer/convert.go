package importer

import (
	"fmt"
	"strings"

	"github.com/dbsmedya/gorowtree/internal/record"
	"github.com/dbsmedya/gorowtree/internal/schema"
)

// FieldImporter converts a tree value into the statement argument for one
// column, replacing the default conversion.
type FieldImporter func(v record.Value, meta *schema.ColumnMetadata) (any, error)

// ConversionError reports a value that does not fit its column.
type ConversionError struct {
	Column string
	Value  record.Value
	Class  schema.TypeClass
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %s to %s for column %s", e.Value, e.Class, e.Column)
}

// SetFieldImporter registers fn for one column of one table.
func (i *Importer) SetFieldImporter(table, column string, fn FieldImporter) {
	i.fieldImporters[strings.ToLower(table+"."+column)] = fn
}

// SetTypeImporter registers fn for every column of the given SQL type.
func (i *Importer) SetTypeImporter(sqlType string, fn FieldImporter) {
	i.typeImporters[strings.ToLower(sqlType)] = fn
}

func (i *Importer) convert(table string, v record.Value, meta *schema.ColumnMetadata) (any, error) {
	if fn, ok := i.fieldImporters[strings.ToLower(table+"."+meta.Name)]; ok {
		return fn(v, meta)
	}
	if fn, ok := i.typeImporters[strings.ToLower(meta.SQLType)]; ok {
		return fn(v, meta)
	}
	return ToNative(v, meta)
}

// ToNative converts v to the Go value database/sql binds for the column.
// NULL, and the empty string on a non-string column, become SQL NULL.
func ToNative(v record.Value, meta *schema.ColumnMetadata) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	class := meta.Class()
	if v.Kind() == record.KindString && v.Text() == "" && class != schema.ClassString && class != schema.ClassOther {
		return nil, nil
	}

	c := record.Coerce(v, class)
	var want record.Kind
	switch class {
	case schema.ClassBool:
		want = record.KindBool
	case schema.ClassInteger:
		want = record.KindInt
	case schema.ClassDecimal:
		want = record.KindDecimal
	case schema.ClassDate:
		want = record.KindDate
	case schema.ClassTimestamp:
		want = record.KindTimestamp
	case schema.ClassBytes:
		if c.Kind() == record.KindString {
			return []byte(c.Text()), nil
		}
		want = record.KindBytes
	case schema.ClassString:
		return c.Text(), nil
	default:
		return c.Any(), nil
	}
	if c.Kind() != want {
		return nil, &ConversionError{Column: meta.Name, Value: v, Class: class}
	}
	return c.Any(), nil
}
