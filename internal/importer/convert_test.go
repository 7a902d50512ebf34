package importer

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gorowtree/internal/record"
	"github.com/dbsmedya/gorowtree/internal/schema"
	"github.com/dbsmedya/gorowtree/internal/sqlutil"
)

func TestToNative(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		value    record.Value
		sqlType  string
		expected any
	}{
		{"null", record.Null(), "int", nil},
		{"empty string on integer", record.String(""), "int", nil},
		{"empty string on varchar", record.String(""), "varchar", ""},
		{"integer", record.Int(7), "bigint", int64(7)},
		{"integer from text", record.String("7"), "int", int64(7)},
		{"bool from int", record.Int(1), "boolean", true},
		{"decimal", record.Decimal("12.50"), "decimal(10,2)", "12.50"},
		{"decimal from int", record.Int(3), "numeric", "3"},
		{"date from text", record.String("2024-03-01"), "date", day},
		{"timestamp from text", record.String("2024-03-01T00:00:00Z"), "timestamp", day},
		{"string from int", record.Int(5), "varchar", "5"},
		{"bytes from base64", record.String("aGk="), "blob", []byte("hi")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToNative(tt.value, &schema.ColumnMetadata{Name: "c", SQLType: tt.sqlType})
			require.NoError(t, err)
			if want, ok := tt.expected.(time.Time); ok {
				gotTime, isTime := got.(time.Time)
				require.True(t, isTime)
				assert.True(t, want.Equal(gotTime))
				return
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestToNative_ConversionError(t *testing.T) {
	_, err := ToNative(record.String("abc"), &schema.ColumnMetadata{Name: "qty", SQLType: "int"})
	var convErr *ConversionError
	require.True(t, errors.As(err, &convErr))
	assert.Equal(t, "qty", convErr.Column)
	assert.Equal(t, ReasonConversion, classify(err))
}

func TestImporterOverrides(t *testing.T) {
	imp := New(nil, sqlutil.MySQL{}, nil)
	imp.SetTypeImporter("JSON", func(v record.Value, _ *schema.ColumnMetadata) (any, error) {
		return "json:" + v.Text(), nil
	})
	imp.SetFieldImporter("doc", "body", func(v record.Value, _ *schema.ColumnMetadata) (any, error) {
		return "field:" + v.Text(), nil
	})

	got, err := imp.convert("doc", record.String("x"), &schema.ColumnMetadata{Name: "body", SQLType: "json"})
	require.NoError(t, err)
	assert.Equal(t, "field:x", got)

	got, err = imp.convert("doc", record.String("y"), &schema.ColumnMetadata{Name: "meta", SQLType: "json"})
	require.NoError(t, err)
	assert.Equal(t, "json:y", got)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ReasonDuplicateKey, classify(&mysql.MySQLError{Number: 1062}))
	assert.Equal(t, ReasonForeignKey, classify(&mysql.MySQLError{Number: 1452}))
	assert.Equal(t, ReasonNotNull, classify(&mysql.MySQLError{Number: 1048}))
	assert.Equal(t, ReasonOther, classify(&mysql.MySQLError{Number: 1146}))
	assert.Equal(t, ReasonOther, classify(errors.New("boom")))
	assert.Equal(t, "duplicate key", ReasonDuplicateKey.String())
}

func TestGeneratorFor(t *testing.T) {
	for name, want := range map[string]PkGenerator{
		"":     DefaultGenerator{},
		"max":  MaxPlusOne{},
		"uuid": UUIDGenerator{},
	} {
		gen, err := GeneratorFor(name, "")
		require.NoError(t, err)
		assert.Equal(t, want, gen)
	}

	gen, err := GeneratorFor("sequence", "book_seq")
	require.NoError(t, err)
	assert.Equal(t, SequenceGenerator{Sequence: "book_seq"}, gen)

	_, err = GeneratorFor("sequence", "")
	assert.Error(t, err)
	_, err = GeneratorFor("random", "")
	assert.Error(t, err)
}

func TestCounters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(`id`) FROM `book`")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow([]byte("41")))

	c := NewCounters()
	ctx := context.Background()
	for _, want := range []int64{42, 43, 44} {
		got, err := c.Next(ctx, db, sqlutil.MySQL{}, "book", "id")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	require.NoError(t, mock.ExpectationsWereMet())
	assert.NotContains(t, c.last, "author.id")
}

func TestMaxPlusOne_RejectsNonNumeric(t *testing.T) {
	_, err := MaxPlusOne{}.Generate(context.Background(), KeyRequest{
		Table:  "tag",
		Column: &schema.ColumnMetadata{Name: "code", SQLType: "varchar"},
	})
	var genErr *PkGenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Contains(t, genErr.Error(), "tag.code")
}

func TestDefaultGenerator_NumericColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT MAX("id") FROM "acct"`)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	v, err := DefaultGenerator{}.Generate(context.Background(), KeyRequest{
		DB:       db,
		Dialect:  sqlutil.Postgres{},
		Table:    "acct",
		Column:   &schema.ColumnMetadata{Name: "id", SQLType: "numeric"},
		Counters: NewCounters(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.True(t, v.Equal(record.Decimal("1")))
}

func TestWholeNumber(t *testing.T) {
	for in, want := range map[string]int64{"41": 41, "41.000": 41, " 7 ": 7, "-3.0": -3} {
		got, err := wholeNumber(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"41.5", "abc", ""} {
		_, err := wholeNumber(in)
		assert.Error(t, err, in)
	}
}
