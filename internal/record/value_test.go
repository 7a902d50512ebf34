package record

import (
	"math"
	"testing"
	"time"

	"github.com/dbsmedya/gorowtree/internal/schema"
	"github.com/stretchr/testify/assert"
)

func TestFromDriver_WidensIntegers(t *testing.T) {
	for _, v := range []any{int(1), int8(1), int16(1), int32(1), int64(1), uint(1), uint8(1), uint32(1), uint64(1)} {
		got := FromDriver(v, nil)
		assert.Equal(t, KindInt, got.Kind(), "%T", v)
		assert.True(t, got.Equal(Int(1)), "%T", v)
	}
}

func TestFromDriver_UsesColumnClass(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		meta *schema.ColumnMetadata
		want Value
	}{
		{"nil", nil, nil, Null()},
		{"mysql bytes as int", []byte("42"), &schema.ColumnMetadata{SQLType: "bigint"}, Int(42)},
		{"mysql bytes as decimal", []byte("12.50"), &schema.ColumnMetadata{SQLType: "decimal"}, Decimal("12.50")},
		{"mysql bytes as string", []byte("hello"), &schema.ColumnMetadata{SQLType: "varchar"}, String("hello")},
		{"mysql bytes as timestamp", []byte("2024-03-01 10:30:00"), &schema.ColumnMetadata{SQLType: "datetime"}, Timestamp(ts)},
		{"mysql bytes as date", []byte("2024-03-01"), &schema.ColumnMetadata{SQLType: "date"}, Date(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))},
		{"blob", []byte{0, 1, 2}, &schema.ColumnMetadata{SQLType: "blob"}, Bytes([]byte{0, 1, 2})},
		{"time as date", ts, &schema.ColumnMetadata{SQLType: "date"}, Date(ts)},
		{"time as timestamp", ts, nil, Timestamp(ts)},
		{"float", 1.5, nil, Decimal("1.5")},
		{"bool", true, nil, Bool(true)},
		{"int into bool column", int64(1), &schema.ColumnMetadata{SQLType: "boolean"}, Bool(true)},
		{"string without meta", "abc", nil, String("abc")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromDriver(tt.in, tt.meta)
			assert.True(t, tt.want.Equal(got), "want %v (%s), got %v (%s)", tt.want, tt.want.Kind(), got, got.Kind())
		})
	}
}

func TestCoerce(t *testing.T) {
	assert.True(t, Coerce(Int(12), schema.ClassDecimal).Equal(Decimal("12")))
	assert.True(t, Coerce(String("7"), schema.ClassInteger).Equal(Int(7)))
	assert.True(t, Coerce(Int(7), schema.ClassString).Equal(String("7")))
	assert.True(t, Coerce(String("AAEC"), schema.ClassBytes).Equal(Bytes([]byte{0, 1, 2})))
	assert.True(t, Coerce(String("not a number"), schema.ClassInteger).Equal(String("not a number")))
	assert.True(t, Coerce(Null(), schema.ClassInteger).IsNull())

	ts := Coerce(String("2024-03-01T10:30:00.123Z"), schema.ClassTimestamp)
	assert.Equal(t, KindTimestamp, ts.Kind())
	assert.Equal(t, "2024-03-01T10:30:00.123Z", ts.Text())
}

func TestValue_TextAndAny(t *testing.T) {
	assert.Equal(t, "null", Null().Text())
	assert.Nil(t, Null().Any())
	assert.Equal(t, "-3", Int(-3).Text())
	assert.Equal(t, int64(-3), Int(-3).Any())
	assert.Equal(t, "2024-03-01", Date(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)).Text())
	assert.Equal(t, `"x"`, String("x").String())
	assert.False(t, Int(1).Equal(String("1")))
}

func TestCoerce_DecimalRejectsNonNumbers(t *testing.T) {
	for _, s := range []string{"NaN", "Inf", "-Inf", "+1", ".5", "0x1F", "1.", ""} {
		got := Coerce(String(s), schema.ClassDecimal)
		assert.Equal(t, KindString, got.Kind(), "%q", s)
	}
	for _, s := range []string{"0", "-12.50", "1e5", "3.14159"} {
		got := Coerce(String(s), schema.ClassDecimal)
		assert.True(t, got.Equal(Decimal(s)), "%q", s)
	}

	meta := &schema.ColumnMetadata{Name: "balance", SQLType: "double precision"}
	assert.Equal(t, KindString, FromDriver(math.NaN(), meta).Kind())
	assert.Equal(t, KindString, FromDriver(math.Inf(1), meta).Kind())

	rec := New("acct", []string{"id"})
	rec.Set("id", Int(1))
	rec.Set("balance", Coerce(String("NaN"), schema.ClassDecimal))
	data, err := Encode(rec)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"balance":"NaN"}`, string(data))
}
