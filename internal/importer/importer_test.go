package importer

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gorowtree/internal/graph"
	"github.com/dbsmedya/gorowtree/internal/logger"
	"github.com/dbsmedya/gorowtree/internal/record"
	"github.com/dbsmedya/gorowtree/internal/schema"
	"github.com/dbsmedya/gorowtree/internal/sqlutil"
)

func testCatalog(extra ...schema.Fk) *schema.Catalog {
	ints := func(names ...string) []schema.ColumnMetadata {
		cols := make([]schema.ColumnMetadata, len(names))
		for i, n := range names {
			cols[i] = schema.ColumnMetadata{Name: n, SQLType: "int"}
		}
		return cols
	}
	fks := append([]schema.Fk{
		{Origin: "book", OriginColumns: []string{"author_id"}, Target: "author", TargetColumns: []string{"id"}},
		{Origin: "link2self", OriginColumns: []string{"peer"}, Target: "link2self", TargetColumns: []string{"id"}},
	}, extra...)
	return schema.NewCatalog(schema.NewStatic([]schema.Table{
		{Name: "author", PrimaryKey: []string{"id"}, Columns: ints("id")},
		{Name: "book", PrimaryKey: []string{"id"}, Columns: ints("id", "author_id")},
		{Name: "link2self", PrimaryKey: []string{"id"}, Columns: ints("id", "peer")},
		{Name: "tag", PrimaryKey: []string{"code"}, Columns: []schema.ColumnMetadata{
			{Name: "code", SQLType: "varchar"}, {Name: "label", SQLType: "varchar"},
		}},
		{Name: "reading", PrimaryKey: []string{"taken_on"}, Columns: []schema.ColumnMetadata{
			{Name: "taken_on", SQLType: "date"},
		}},
		{Name: "acct", PrimaryKey: []string{"id"}, Columns: []schema.ColumnMetadata{
			{Name: "id", SQLType: "numeric"}, {Name: "owner", SQLType: "varchar"},
		}},
		{Name: "a", PrimaryKey: []string{"id"}, Columns: ints("id", "b_id")},
		{Name: "b", PrimaryKey: []string{"id"}, Columns: ints("id", "a_id")},
	}, fks))
}

func newTestImporter(t *testing.T, d sqlutil.Dialect, cat *schema.Catalog) (*Importer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	imp := New(db, d, cat)
	imp.SetLogger(logger.NewNop())
	return imp, mock
}

func decode(t *testing.T, data, table string) *record.Record {
	t.Helper()
	rec, err := record.Decode([]byte(data), table)
	require.NoError(t, err)
	return rec
}

const bookTree = `{"id":1,"author_id":2,"author_id*author*":[{"id":2}]}`

func nullRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"max"}).AddRow(nil)
}

func TestInsertTree_ForceInsertRemapsKeys(t *testing.T) {
	imp, mock := newTestImporter(t, sqlutil.MySQL{}, testCatalog())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(`id`) FROM `author`")).WillReturnRows(nullRow())
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `author` (`id`) VALUES (?)")).
		WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(`id`) FROM `book`")).WillReturnRows(nullRow())
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `book` (`id`, `author_id`) VALUES (?, ?)")).
		WithArgs(int64(1), int64(1)).WillReturnResult(sqlmock.NewResult(1, 1))

	rec := decode(t, bookTree, "book")
	res, err := imp.InsertTree(context.Background(), rec, Options{ForceInsert: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 0, res.Skipped)
	require.Equal(t, 2, res.Remap.Len())

	newAuthor, ok := res.Remap.Lookup(record.NewRowLink("author", 2))
	require.True(t, ok)
	assert.Equal(t, []record.Value{record.Int(1)}, newAuthor)
	assert.True(t, rec.Value("author_id").Equal(newAuthor[0]))

	require.Len(t, res.Rows, 2)
	assert.Equal(t, "author/2", res.Rows[0].Original.String())
	assert.Equal(t, "author/1", res.Rows[0].Current.String())
	assert.Equal(t, ActionInserted, res.Rows[1].Action)
	assert.Equal(t, "book/1", res.Rows[1].Current.String())
}

func TestInsertTree_FailureContinues(t *testing.T) {
	imp, mock := newTestImporter(t, sqlutil.MySQL{}, testCatalog())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(`id`) FROM `author`")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(9)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `author` (`id`) VALUES (?)")).
		WithArgs(int64(10)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '10' for key 'PRIMARY'"})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(`id`) FROM `book`")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(3)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `book` (`id`, `author_id`) VALUES (?, ?)")).
		WithArgs(int64(4), int64(2)).WillReturnResult(sqlmock.NewResult(4, 1))

	res, err := imp.InsertTree(context.Background(), decode(t, bookTree, "book"), Options{ForceInsert: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Remap.Len())

	var writeErr *RowWriteError
	require.True(t, errors.As(res.Rows[0].Err, &writeErr))
	assert.Equal(t, ReasonDuplicateKey, writeErr.Reason)
	assert.Equal(t, "author/2", writeErr.Row.String())
	assert.Contains(t, writeErr.Statement, "INSERT INTO `author`")
	assert.Equal(t, ActionSkipped, res.Rows[0].Action)

	_, ok := res.Remap.Lookup(record.NewRowLink("author", 2))
	assert.False(t, ok)
}

func TestInsertTree_UpdateExistingRows(t *testing.T) {
	imp, mock := newTestImporter(t, sqlutil.MySQL{}, testCatalog())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `author` WHERE `id` = ?")).
		WithArgs(int64(2)).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `book` WHERE `id` = ?")).
		WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(1)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `book` SET `author_id` = ? WHERE `id` = ?")).
		WithArgs(int64(2), int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := imp.InsertTree(context.Background(), decode(t, bookTree, "book"), Options{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 2, res.Updated)
	entries := res.Remap.Entries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, e.Original.String(), e.CurrentLink().String())
	}
}

func TestInsertTree_MixedInsertAndUpdate(t *testing.T) {
	imp, mock := newTestImporter(t, sqlutil.MySQL{}, testCatalog())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `author` WHERE `id` = ?")).
		WithArgs(int64(2)).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `book` WHERE `id` = ?")).
		WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(0)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(`id`) FROM `book`")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(5)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `book` (`id`, `author_id`) VALUES (?, ?)")).
		WithArgs(int64(6), int64(2)).WillReturnResult(sqlmock.NewResult(6, 1))

	res, err := imp.InsertTree(context.Background(), decode(t, bookTree, "book"), Options{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Inserted)
}

func TestInsertTree_RowReferencingItself(t *testing.T) {
	imp, mock := newTestImporter(t, sqlutil.MySQL{}, testCatalog())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(`id`) FROM `link2self`")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(10)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `link2self` (`id`, `peer`) VALUES (?, ?)")).
		WithArgs(int64(11), int64(11)).WillReturnResult(sqlmock.NewResult(11, 1))

	rec := decode(t, `{"id":1,"peer":1}`, "link2self")
	res, err := imp.InsertTree(context.Background(), rec, Options{ForceInsert: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, `{"id":11,"peer":11}`, mustEncode(t, rec))
}

func TestInsertTree_SelfReferencingChain(t *testing.T) {
	imp, mock := newTestImporter(t, sqlutil.MySQL{}, testCatalog())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(`id`) FROM `link2self`")).WillReturnRows(nullRow())
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `link2self` (`id`, `peer`) VALUES (?, ?)")).
		WithArgs(int64(1), nil).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `link2self` (`id`, `peer`) VALUES (?, ?)")).
		WithArgs(int64(2), int64(1)).WillReturnResult(sqlmock.NewResult(2, 1))

	// 7 is referenced by 8, so 7 goes first even though it is nested
	rec := decode(t, `{"id":8,"peer":7,"peer*link2self*":[{"id":7,"peer":null}]}`, "link2self")
	res, err := imp.InsertTree(context.Background(), rec, Options{ForceInsert: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 2, res.Inserted)

	v, ok := res.Remap.Lookup(record.NewRowLink("link2self", 8))
	require.True(t, ok)
	assert.Equal(t, int64(2), mustInt(t, v[0]))
}

func TestInsertTree_UUIDKeys(t *testing.T) {
	imp, mock := newTestImporter(t, sqlutil.MySQL{}, testCatalog())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `tag` (`code`, `label`) VALUES (?, ?)")).
		WithArgs(sqlmock.AnyArg(), "fiction").WillReturnResult(sqlmock.NewResult(0, 1))

	rec := decode(t, `{"code":"fic","label":"fiction","unknown_column":true}`, "tag")
	res, err := imp.InsertTree(context.Background(), rec, Options{ForceInsert: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, 1, res.Inserted)

	_, err = uuid.Parse(rec.Value("code").Text())
	assert.NoError(t, err)
}

func TestInsertTree_PkGenerationError(t *testing.T) {
	imp, _ := newTestImporter(t, sqlutil.MySQL{}, testCatalog())

	res, err := imp.InsertTree(context.Background(), decode(t, `{"taken_on":"2024-01-01"}`, "reading"), Options{ForceInsert: true})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 1, res.Skipped)

	var genErr *PkGenerationError
	require.True(t, errors.As(res.Rows[0].Err, &genErr))
	assert.Equal(t, "reading", genErr.Table)
	assert.Equal(t, "taken_on", genErr.Column)
}

func TestInsertTree_NumericKeys(t *testing.T) {
	imp, mock := newTestImporter(t, sqlutil.Postgres{}, testCatalog())

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT MAX("id") FROM "acct"`)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow("41.000"))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "acct" ("id", "owner") VALUES ($1, $2)`)).
		WithArgs("42", "ada").WillReturnResult(sqlmock.NewResult(0, 1))

	rec := decode(t, `{"id":7,"owner":"ada"}`, "acct")
	res, err := imp.InsertTree(context.Background(), rec, Options{ForceInsert: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, `{"id":42,"owner":"ada"}`, mustEncode(t, rec))
}

func TestInsertTree_NumericKeysRejectFractionalMax(t *testing.T) {
	imp, mock := newTestImporter(t, sqlutil.Postgres{}, testCatalog())

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT MAX("id") FROM "acct"`)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow("41.5"))

	res, err := imp.InsertTree(context.Background(), decode(t, `{"id":7,"owner":"ada"}`, "acct"), Options{ForceInsert: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 1, res.Skipped)

	var genErr *PkGenerationError
	require.True(t, errors.As(res.Rows[0].Err, &genErr))
	assert.Contains(t, genErr.Error(), "not a whole number")
}

// pairCatalog holds one table whose rows reference each other through peer.
func pairCatalog(nullable bool) *schema.Catalog {
	return schema.NewCatalog(schema.NewStatic([]schema.Table{
		{Name: "link2self", PrimaryKey: []string{"id"}, Columns: []schema.ColumnMetadata{
			{Name: "id", SQLType: "int"},
			{Name: "peer", SQLType: "int", Nullable: nullable},
		}},
	}, []schema.Fk{
		{Origin: "link2self", OriginColumns: []string{"peer"}, Target: "link2self", TargetColumns: []string{"id"}},
	}))
}

const pairTree = `{"id":1,"peer":2,"peer*link2self*":[{"id":2,"peer":1}]}`

func TestInsertTree_RowCycleNullableFk(t *testing.T) {
	imp, mock := newTestImporter(t, sqlutil.MySQL{}, pairCatalog(true))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(`id`) FROM `link2self`")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(100)))
	// peer of the first row is not known yet and is written as NULL
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `link2self` (`id`, `peer`) VALUES (?, ?)")).
		WithArgs(int64(101), nil).WillReturnResult(sqlmock.NewResult(101, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `link2self` (`id`, `peer`) VALUES (?, ?)")).
		WithArgs(int64(102), int64(101)).WillReturnResult(sqlmock.NewResult(102, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `link2self` SET `peer` = ? WHERE `id` = ?")).
		WithArgs(int64(102), int64(101)).WillReturnResult(sqlmock.NewResult(0, 1))

	rec := decode(t, pairTree, "link2self")
	res, err := imp.InsertTree(context.Background(), rec, Options{ForceInsert: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 2, res.Inserted)
	for _, rr := range res.Rows {
		assert.NoError(t, rr.Err)
	}
	assert.Equal(t, `{"id":101,"peer":102,"peer*link2self*":[{"id":102,"peer":101}]}`, mustEncode(t, rec))
}

func TestInsertTree_RowCycleNotNullFk(t *testing.T) {
	imp, mock := newTestImporter(t, sqlutil.MySQL{}, pairCatalog(false))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(`id`) FROM `link2self`")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(100)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `link2self` (`id`, `peer`) VALUES (?, ?)")).
		WithArgs(int64(101), int64(2)).WillReturnResult(sqlmock.NewResult(101, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `link2self` (`id`, `peer`) VALUES (?, ?)")).
		WithArgs(int64(102), int64(101)).WillReturnResult(sqlmock.NewResult(102, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `link2self` SET `peer` = ? WHERE `id` = ?")).
		WithArgs(int64(102), int64(101)).WillReturnResult(sqlmock.NewResult(0, 1))

	rec := decode(t, pairTree, "link2self")
	res, err := imp.InsertTree(context.Background(), rec, Options{ForceInsert: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, `{"id":101,"peer":102,"peer*link2self*":[{"id":102,"peer":101}]}`, mustEncode(t, rec))
}

func TestInsertTree_RowCycleTargetFails(t *testing.T) {
	imp, mock := newTestImporter(t, sqlutil.MySQL{}, pairCatalog(true))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(`id`) FROM `link2self`")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(100)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `link2self` (`id`, `peer`) VALUES (?, ?)")).
		WithArgs(int64(101), nil).WillReturnResult(sqlmock.NewResult(101, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `link2self` (`id`, `peer`) VALUES (?, ?)")).
		WithArgs(int64(102), int64(101)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '102' for key 'PRIMARY'"})

	rec := decode(t, pairTree, "link2self")
	res, err := imp.InsertTree(context.Background(), rec, Options{ForceInsert: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Skipped)

	// the first row keeps NULL rather than the source key 2
	var writeErr *RowWriteError
	require.True(t, errors.As(res.Rows[0].Err, &writeErr))
	assert.Equal(t, ReasonUnresolved, writeErr.Reason)
	assert.Contains(t, writeErr.Error(), "peer")
	assert.True(t, rec.Value("peer").IsNull())
}

func TestInsertTree_TableOverrides(t *testing.T) {
	imp, mock := newTestImporter(t, sqlutil.Postgres{}, testCatalog())
	imp.SetPkGenerator("author", SequenceGenerator{Sequence: "author_id_seq"})
	imp.SetPkGenerator("book", GeneratorFunc(func(context.Context, KeyRequest) (record.Value, error) {
		return record.Int(500), nil
	}))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT nextval('author_id_seq')")).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(42)))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "author" ("id") VALUES ($1)`)).
		WithArgs(int64(42)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "book" ("id", "author_id") VALUES ($1, $2)`)).
		WithArgs(int64(500), int64(42)).WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := imp.InsertTree(context.Background(), decode(t, bookTree, "book"), Options{ForceInsert: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 2, res.Inserted)
}

func TestInsertTree_PostgresForeignKeyViolation(t *testing.T) {
	imp, mock := newTestImporter(t, sqlutil.Postgres{}, testCatalog())

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT MAX("id") FROM "book"`)).WillReturnRows(nullRow())
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "book" ("id", "author_id") VALUES ($1, $2)`)).
		WithArgs(int64(1), int64(2)).
		WillReturnError(&pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"})

	res, err := imp.InsertTree(context.Background(), decode(t, `{"id":1,"author_id":2}`, "book"), Options{ForceInsert: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	var writeErr *RowWriteError
	require.True(t, errors.As(res.Rows[0].Err, &writeErr))
	assert.Equal(t, ReasonForeignKey, writeErr.Reason)
}

func TestInsertTree_SessionSharesCounters(t *testing.T) {
	imp, mock := newTestImporter(t, sqlutil.MySQL{}, testCatalog())
	session := imp.NewSession()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(`id`) FROM `author`")).WillReturnRows(nullRow())
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `author` (`id`) VALUES (?)")).
		WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(1, 1))
	// the second tree reuses the cached counter
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `author` (`id`) VALUES (?)")).
		WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(2, 1))

	ctx := context.Background()
	_, err := session.InsertTree(ctx, decode(t, `{"id":30}`, "author"), Options{ForceInsert: true})
	require.NoError(t, err)
	_, err = session.InsertTree(ctx, decode(t, `{"id":31}`, "author"), Options{ForceInsert: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 2, session.Remap.Len())
	assert.Equal(t, int64(2), session.Counters.last["author.id"])
}

func TestInsertTree_TableCycleIsFatal(t *testing.T) {
	cat := testCatalog(
		schema.Fk{Origin: "a", OriginColumns: []string{"b_id"}, Target: "b", TargetColumns: []string{"id"}},
		schema.Fk{Origin: "b", OriginColumns: []string{"a_id"}, Target: "a", TargetColumns: []string{"id"}},
	)
	imp, _ := newTestImporter(t, sqlutil.MySQL{}, cat)

	_, err := imp.InsertTree(context.Background(),
		decode(t, `{"id":1,"b_id":1,"b_id*b*":[{"id":1,"a_id":1}]}`, "a"), Options{ForceInsert: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, graph.ErrCycleDetected))
}

func TestInsertTree_UnknownTable(t *testing.T) {
	imp, _ := newTestImporter(t, sqlutil.MySQL{}, testCatalog())

	_, err := imp.InsertTree(context.Background(), decode(t, `{"id":1}`, "ghost"), Options{})
	var schemaErr *schema.SchemaError
	require.True(t, errors.As(err, &schemaErr))
}

func TestInsertTree_EmptyTree(t *testing.T) {
	imp, _ := newTestImporter(t, sqlutil.MySQL{}, testCatalog())

	res, err := imp.InsertTree(context.Background(), record.New("book", nil), Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Equal(t, 0, res.Remap.Len())
}

func mustEncode(t *testing.T, rec *record.Record) string {
	t.Helper()
	out, err := record.Encode(rec)
	require.NoError(t, err)
	return string(out)
}

func mustInt(t *testing.T, v record.Value) int64 {
	t.Helper()
	n, ok := v.Int64()
	require.True(t, ok)
	return n
}
