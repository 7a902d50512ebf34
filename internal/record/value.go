// Package record holds the in-memory row tree: typed values, row identities,
// records with their nested linked rows, the wire JSON codec and the key
// remapping table shared by import and canonicalization.
package record

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dbsmedya/gorowtree/internal/schema"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDecimal
	KindString
	KindDate
	KindTimestamp
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

const (
	DateLayout      = "2006-01-02"
	TimestampLayout = time.RFC3339Nano
	// sqlTimestampLayout is the textual form MySQL returns without parseTime.
	sqlTimestampLayout = "2006-01-02 15:04:05.999999999"
)

// Value is one column value. The zero Value is SQL NULL.
type Value struct {
	kind Kind
	b    bool
	i    int64
	s    string // decimal text or string
	t    time.Time
	raw  []byte
}

func Null() Value                 { return Value{} }
func Bool(b bool) Value           { return Value{kind: KindBool, b: b} }
func Int(i int64) Value           { return Value{kind: KindInt, i: i} }
func Decimal(text string) Value   { return Value{kind: KindDecimal, s: text} }
func String(s string) Value       { return Value{kind: KindString, s: s} }
func Date(t time.Time) Value      { return Value{kind: KindDate, t: t} }
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, t: t} }
func Bytes(b []byte) Value        { return Value{kind: KindBytes, raw: append([]byte(nil), b...)} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int64 returns the integer payload. ok is false for non-integer values.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// Time returns the payload of a date or timestamp value.
func (v Value) Time() (time.Time, bool) {
	if v.kind != KindDate && v.kind != KindTimestamp {
		return time.Time{}, false
	}
	return v.t, true
}

// Text returns the canonical textual form, used for row identities and
// remap lookups. NULL renders as "null".
func (v Value) Text() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindDecimal, KindString:
		return v.s
	case KindDate:
		return v.t.Format(DateLayout)
	case KindTimestamp:
		return v.t.Format(TimestampLayout)
	case KindBytes:
		return base64.StdEncoding.EncodeToString(v.raw)
	default:
		return "null"
	}
}

func (v Value) String() string {
	if v.kind == KindString {
		return strconv.Quote(v.s)
	}
	return v.Text()
}

// Any returns the Go value handed to database/sql as a statement argument.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindDecimal, KindString:
		return v.s
	case KindDate, KindTimestamp:
		return v.t
	case KindBytes:
		return v.raw
	default:
		return nil
	}
}

// Equal compares kind and payload. Instants are compared with time.Time.Equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindDecimal, KindString:
		return v.s == o.s
	case KindDate, KindTimestamp:
		return v.t.Equal(o.t)
	case KindBytes:
		return bytes.Equal(v.raw, o.raw)
	}
	return false
}

// ToInt64 widens any Go integer or float to int64. ok is false for other types.
func ToInt64(v any) (int64, bool) {
	switch i := v.(type) {
	case int64:
		return i, true
	case int:
		return int64(i), true
	case int32:
		return int64(i), true
	case int16:
		return int64(i), true
	case int8:
		return int64(i), true
	case uint:
		return int64(i), true
	case uint64:
		return int64(i), true
	case uint32:
		return int64(i), true
	case uint16:
		return int64(i), true
	case uint8:
		return int64(i), true
	case float64:
		return int64(i), true
	case float32:
		return int64(i), true
	default:
		return 0, false
	}
}

// FromDriver converts a value scanned by database/sql into a Value, using the
// column metadata when known. Integers of every width become KindInt.
func FromDriver(v any, meta *schema.ColumnMetadata) Value {
	class := schema.ClassOther
	if meta != nil {
		class = meta.Class()
	}

	switch x := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(x)
	case float64:
		if class == schema.ClassInteger {
			return Int(int64(x))
		}
		return decimalOrString(strconv.FormatFloat(x, 'f', -1, 64))
	case float32:
		return decimalOrString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	case time.Time:
		if class == schema.ClassDate {
			return Date(x)
		}
		return Timestamp(x)
	case []byte:
		if class == schema.ClassBytes {
			return Bytes(x)
		}
		return Coerce(String(string(x)), class)
	case string:
		return Coerce(String(x), class)
	case fmt.Stringer:
		return Coerce(String(x.String()), class)
	}
	if i, ok := ToInt64(v); ok {
		if class == schema.ClassBool {
			return Bool(i != 0)
		}
		return Int(i)
	}
	return Coerce(String(fmt.Sprint(v)), class)
}

// Coerce converts v to the representation of a column class. Values that do
// not parse are returned unchanged.
func Coerce(v Value, class schema.TypeClass) Value {
	if v.IsNull() {
		return v
	}
	switch class {
	case schema.ClassBool:
		switch v.kind {
		case KindInt:
			return Bool(v.i != 0)
		case KindString, KindDecimal:
			switch strings.ToLower(v.s) {
			case "1", "true", "t", "yes", "y":
				return Bool(true)
			case "0", "false", "f", "no", "n":
				return Bool(false)
			}
			if len(v.s) == 1 && (v.s[0] == 0 || v.s[0] == 1) {
				return Bool(v.s[0] == 1)
			}
		}
	case schema.ClassInteger:
		switch v.kind {
		case KindString, KindDecimal:
			if i, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64); err == nil {
				return Int(i)
			}
		case KindBool:
			if v.b {
				return Int(1)
			}
			return Int(0)
		}
	case schema.ClassDecimal:
		switch v.kind {
		case KindInt:
			return Decimal(strconv.FormatInt(v.i, 10))
		case KindString:
			if isDecimalText(v.s) {
				return Decimal(v.s)
			}
		}
	case schema.ClassDate:
		switch v.kind {
		case KindString:
			if t, ok := parseTime(v.s); ok {
				return Date(t)
			}
		case KindTimestamp:
			return Date(v.t)
		}
	case schema.ClassTimestamp:
		switch v.kind {
		case KindString:
			if t, ok := parseTime(v.s); ok {
				return Timestamp(t)
			}
		case KindDate:
			return Timestamp(v.t)
		}
	case schema.ClassString:
		switch v.kind {
		case KindInt, KindDecimal, KindBool:
			return String(v.Text())
		}
	case schema.ClassBytes:
		if v.kind == KindString {
			if b, err := base64.StdEncoding.DecodeString(v.s); err == nil {
				return Bytes(b)
			}
		}
	}
	return v
}

// isDecimalText reports whether s can be written unquoted as a JSON number.
// NaN and the infinities cannot.
func isDecimalText(s string) bool {
	if s == "" || (s[0] != '-' && (s[0] < '0' || s[0] > '9')) {
		return false
	}
	return json.Valid([]byte(s))
}

func decimalOrString(s string) Value {
	if isDecimalText(s) {
		return Decimal(s)
	}
	return String(s)
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{TimestampLayout, sqlTimestampLayout, DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
