package record

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SubRowsKey returns the JSON key under which rows of table linked through
// column are written: "<column>*<table>*".
func SubRowsKey(column, table string) string {
	return column + "*" + table + "*"
}

// ParseSubRowsKey splits a "<column>*<table>*" key. ok is false for plain
// column names.
func ParseSubRowsKey(key string) (column, table string, ok bool) {
	if !strings.HasSuffix(key, "*") {
		return "", "", false
	}
	trimmed := key[:len(key)-1]
	idx := strings.LastIndex(trimmed, "*")
	if idx <= 0 || idx == len(trimmed)-1 {
		return "", "", false
	}
	return trimmed[:idx], trimmed[idx+1:], true
}

// Encode writes rec as wire JSON. Columns keep their order and each field's
// linked rows follow directly after it.
func Encode(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeRecord(&buf, rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeIndent is Encode followed by json.Indent.
func EncodeIndent(rec *Record, prefix, indent string) ([]byte, error) {
	data, err := Encode(rec)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, prefix, indent); err != nil {
		return nil, fmt.Errorf("failed to indent %s: %w", rec.Table, err)
	}
	return out.Bytes(), nil
}

func encodeRecord(buf *bytes.Buffer, rec *Record) error {
	buf.WriteByte('{')
	first := true
	writeKey := func(k string) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		writeJSONString(buf, k)
		buf.WriteByte(':')
	}

	for el := rec.Fields.Front(); el != nil; el = el.Next() {
		f := el.Value
		writeKey(f.Name)
		if err := encodeValue(buf, f.Value); err != nil {
			return fmt.Errorf("failed to encode %s.%s: %w", rec.Table, f.Name, err)
		}
		if f.SubRows == nil {
			continue
		}
		for sub := f.SubRows.Front(); sub != nil; sub = sub.Next() {
			writeKey(SubRowsKey(f.Name, sub.Key))
			buf.WriteByte('[')
			for i, child := range sub.Value {
				if i > 0 {
					buf.WriteByte(',')
				}
				if err := encodeRecord(buf, child); err != nil {
					return err
				}
			}
			buf.WriteByte(']')
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeValue(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool, KindInt:
		buf.WriteString(v.Text())
	case KindDecimal:
		if !json.Valid([]byte(v.s)) {
			return fmt.Errorf("decimal %q is not a JSON number", v.s)
		}
		buf.WriteString(v.s)
	case KindBytes:
		writeJSONString(buf, base64.StdEncoding.EncodeToString(v.raw))
	default:
		writeJSONString(buf, v.Text())
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// DecodeError reports a malformed wire JSON payload.
type DecodeError struct {
	Offset int64
	Msg    string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode error at offset %d: %s", e.Offset, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses wire JSON into a Record of table. Values are typed from the
// JSON shape only: integral numbers become KindInt, other numbers
// KindDecimal, nested objects or arrays under a plain column become their raw
// JSON text. Use Bind to apply column metadata afterwards.
func Decode(data []byte, table string) (*Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	rec, err := decodeRecord(dec, table)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &DecodeError{Offset: dec.InputOffset(), Msg: "unexpected data after root object"}
	}
	return rec, nil
}

func decodeRecord(dec *json.Decoder, table string) (*Record, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	rec := New(table, nil)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &DecodeError{Offset: dec.InputOffset(), Msg: "invalid object key", Err: err}
		}
		key, ok := tok.(string)
		if !ok {
			return nil, &DecodeError{Offset: dec.InputOffset(), Msg: fmt.Sprintf("expected object key, got %v", tok)}
		}

		if column, target, isSub := ParseSubRowsKey(key); isSub {
			rows, err := decodeRows(dec, target)
			if err != nil {
				return nil, err
			}
			f, found := rec.Fields.Get(column)
			if !found {
				f = rec.Set(column, Null())
			}
			f.AddSubRows(target, rows...)
			continue
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, &DecodeError{Offset: dec.InputOffset(), Msg: fmt.Sprintf("invalid value for %s.%s", table, key), Err: err}
		}
		v, err := valueFromJSON(raw)
		if err != nil {
			return nil, &DecodeError{Offset: dec.InputOffset(), Msg: fmt.Sprintf("invalid value for %s.%s", table, key), Err: err}
		}
		if f, found := rec.Fields.Get(key); found {
			// A sub-row key may have created the field before its value.
			f.Value = v
			continue
		}
		rec.Set(key, v)
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return rec, nil
}

func decodeRows(dec *json.Decoder, table string) ([]*Record, error) {
	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}
	var rows []*Record
	for dec.More() {
		r, err := decodeRecord(dec, table)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}
	return rows, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return &DecodeError{Offset: dec.InputOffset(), Msg: fmt.Sprintf("expected %q", want), Err: err}
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return &DecodeError{Offset: dec.InputOffset(), Msg: fmt.Sprintf("expected %q, got %v", want, tok)}
	}
	return nil
}

func valueFromJSON(raw json.RawMessage) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Null(), fmt.Errorf("empty value")
	}
	switch trimmed[0] {
	case 'n':
		return Null(), nil
	case 't':
		return Bool(true), nil
	case 'f':
		return Bool(false), nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Null(), err
		}
		return String(s), nil
	case '{', '[':
		return String(string(trimmed)), nil
	}
	text := string(trimmed)
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Int(i), nil
	}
	return Decimal(text), nil
}
