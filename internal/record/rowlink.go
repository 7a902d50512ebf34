package record

import (
	"fmt"
	"strconv"
	"strings"
)

// RowLink identifies one database row: a table and its primary-key tuple.
// Identity is defined over the short form returned by String.
type RowLink struct {
	Table string
	Keys  []Value
}

// NewRowLink builds a RowLink from driver or literal key values.
func NewRowLink(table string, keys ...any) RowLink {
	vals := make([]Value, len(keys))
	for i, k := range keys {
		if v, ok := k.(Value); ok {
			vals[i] = v
			continue
		}
		vals[i] = FromDriver(k, nil)
	}
	return RowLink{Table: table, Keys: vals}
}

var (
	keyEscaper   = strings.NewReplacer("%", "%25", "/", "%2F")
	keyUnescaper = strings.NewReplacer("%2F", "/", "%25", "%")
)

// String returns the short form table/key1/key2. A '/' or '%' inside a key
// is percent-escaped.
func (l RowLink) String() string {
	var sb strings.Builder
	sb.WriteString(l.Table)
	for _, k := range l.Keys {
		sb.WriteByte('/')
		sb.WriteString(keyEscaper.Replace(k.Text()))
	}
	return sb.String()
}

// Equal reports whether both links name the same row.
func (l RowLink) Equal(o RowLink) bool {
	return l.String() == o.String()
}

// HasNull reports whether any key component is NULL.
func (l RowLink) HasNull() bool {
	for _, k := range l.Keys {
		if k.IsNull() {
			return true
		}
	}
	return false
}

// ParseRowLink parses the short form. Key components that parse as base-10
// integers become KindInt, everything else KindString.
func ParseRowLink(s string) (RowLink, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 || parts[0] == "" {
		return RowLink{}, fmt.Errorf("invalid row link %q: expected table/key[/key...]", s)
	}
	link := RowLink{Table: parts[0]}
	for _, p := range parts[1:] {
		p = keyUnescaper.Replace(p)
		if i, err := strconv.ParseInt(p, 10, 64); err == nil {
			link.Keys = append(link.Keys, Int(i))
			continue
		}
		link.Keys = append(link.Keys, String(p))
	}
	return link, nil
}
