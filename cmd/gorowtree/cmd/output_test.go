package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gorowtree/internal/config"
	"github.com/dbsmedya/gorowtree/internal/graph"
	"github.com/dbsmedya/gorowtree/internal/importer"
	"github.com/dbsmedya/gorowtree/internal/record"
	"github.com/dbsmedya/gorowtree/internal/schema"
	"github.com/dbsmedya/gorowtree/internal/sqlutil"
	"github.com/dbsmedya/gorowtree/internal/verifier"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	setOutputWriter(&buf)
	color.Disable()
	t.Cleanup(func() {
		resetOutputWriter()
		color.Enable = true
	})
	return &buf
}

func testCatalog() *schema.Catalog {
	return schema.NewCatalog(schema.NewStatic([]schema.Table{
		{Name: "author", PrimaryKey: []string{"id"}, Columns: []schema.ColumnMetadata{{Name: "id", SQLType: "int"}}},
		{Name: "book", PrimaryKey: []string{"id"}, Columns: []schema.ColumnMetadata{
			{Name: "id", SQLType: "int"}, {Name: "author_id", SQLType: "int"}, {Name: "editor", SQLType: "int"},
		}},
		{Name: "tag", PrimaryKey: []string{"code", "lang"}, Columns: []schema.ColumnMetadata{
			{Name: "code", SQLType: "varchar"}, {Name: "lang", SQLType: "varchar"},
		}},
	}, []schema.Fk{
		{Origin: "book", OriginColumns: []string{"author_id"}, Target: "author", TargetColumns: []string{"id"}},
	}))
}

func TestPrintHeader(t *testing.T) {
	buf := captureOutput(t)
	printHeader("Import Complete")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Repeat("=", len("Import Complete")+4), lines[0])
	assert.Equal(t, "  Import Complete", lines[1])
}

func TestPrintKeyValues(t *testing.T) {
	buf := captureOutput(t)
	printKeyValues([][2]string{{"Inserted", "3"}, {"Duration", "1s"}, {"Tables", "2"}})

	assert.Equal(t, "  Inserted:  3\n  Duration:  1s\n  Tables:    2\n", buf.String())
}

func TestPrintTable_WideCharacters(t *testing.T) {
	buf := captureOutput(t)
	printTable([]string{"TABLE", "ROWS"}, [][]string{{"書籍", "2"}, {"author", "1"}})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "  TABLE   ROWS", lines[0])
	assert.Equal(t, "  ------  ----", lines[1])
	assert.Equal(t, "  書籍    2", lines[2])
	assert.Equal(t, "  author  1", lines[3])
}

func TestPrintOrder(t *testing.T) {
	buf := captureOutput(t)

	g := graph.NewGraph("book")
	g.AddFk(schema.Fk{Origin: "book", OriginColumns: []string{"author_id"}, Target: "author", TargetColumns: []string{"id"}})
	g.AddFk(schema.Fk{Origin: "book", OriginColumns: []string{"sequel_id"}, Target: "book", TargetColumns: []string{"id"}})

	require.NoError(t, printOrder(g))
	out := buf.String()

	assert.Contains(t, out, "Table Order: book")
	insertion := out[strings.Index(out, "Insertion Order"):strings.Index(out, "Deletion Order")]
	assert.Less(t, strings.Index(insertion, "author"), strings.Index(insertion, "book(author_id)-author(id)"))
	assert.Contains(t, insertion, "(root), book(author_id)-author(id), (self)")

	deletion := out[strings.Index(out, "Deletion Order"):]
	assert.Contains(t, deletion, "[1] book")
	assert.Contains(t, deletion, "[2] author")
}

func TestPrintOrder_Cycle(t *testing.T) {
	captureOutput(t)
	g := graph.NewGraph("a")
	g.AddFk(schema.Fk{Origin: "a", OriginColumns: []string{"b_id"}, Target: "b", TargetColumns: []string{"id"}})
	g.AddFk(schema.Fk{Origin: "b", OriginColumns: []string{"a_id"}, Target: "a", TargetColumns: []string{"id"}})

	err := printOrder(g)
	require.Error(t, err)
	assert.True(t, errors.Is(err, graph.ErrCycleDetected))
}

func TestPrintImportResult(t *testing.T) {
	buf := captureOutput(t)
	printImportResult(&importer.Result{
		Rows: []importer.RowResult{
			{Original: record.NewRowLink("author", int64(7)), Current: record.NewRowLink("author", int64(1)), Action: importer.ActionInserted},
			{Original: record.NewRowLink("book", int64(3)), Action: importer.ActionSkipped, Err: errors.New("duplicate key")},
		},
		Inserted: 1,
		Skipped:  1,
		Duration: 2 * time.Second,
	})
	out := buf.String()

	assert.Contains(t, out, "Inserted:  1")
	assert.Contains(t, out, "Skipped:   1")
	assert.Contains(t, out, "author/7  author/1  inserted")
	assert.Contains(t, out, "book/3    -         skipped")
	assert.Contains(t, out, "1 rows skipped")
	assert.Contains(t, out, "duplicate key")
}

func TestPrintVerifyResult(t *testing.T) {
	buf := captureOutput(t)
	printVerifyResult("book/1", "book/17", &verifier.VerifyResult{
		Method:      verifier.MethodSHA256,
		LeftCounts:  map[string]int{"book": 1, "author": 1},
		RightCounts: map[string]int{"book": 1, "author": 1},
		LeftHash:    "aa",
		RightHash:   "bb",
		Difference:  &verifier.Difference{Row: record.NewRowLink("book", int64(1)), Field: "title"},
	}, errors.New("verification mismatch"))
	out := buf.String()

	assert.Contains(t, out, "Verification: book/1 vs book/17")
	assert.Contains(t, out, "First Difference:  book/1: title")
	assert.Contains(t, out, "author  1     1")
	assert.Contains(t, out, "Trees differ")
}

func TestConfigureGenerators(t *testing.T) {
	imp := importer.New(nil, sqlutil.Postgres{}, testCatalog())

	err := configureGenerators(imp, &config.ImportConfig{
		PkGenerators: map[string]string{"tag": "uuid", "author": "max"},
		Sequences:    map[string]string{"book": "book_id_seq"},
	})
	require.NoError(t, err)

	err = configureGenerators(imp, &config.ImportConfig{PkGenerators: map[string]string{"book": "random"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import.pk_generators.book")

	err = configureGenerators(imp, &config.ImportConfig{PkGenerators: map[string]string{"book": "sequence"}})
	require.Error(t, err)
}

func TestAddVirtualFks(t *testing.T) {
	ctx := context.Background()
	catalog := testCatalog()

	require.NoError(t, addVirtualFks(ctx, catalog, "  "))
	require.NoError(t, addVirtualFks(ctx, catalog, "book(editor)-author(id)"))

	fks, err := catalog.ForeignKeys(ctx, "book")
	require.NoError(t, err)
	var virtual int
	for _, fk := range fks {
		if fk.Virtual {
			virtual++
		}
	}
	assert.Equal(t, 1, virtual)

	err = addVirtualFks(ctx, catalog, "book(missing)-author(id)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid virtual foreign key")

	err = addVirtualFks(ctx, catalog, "not a declaration")
	require.Error(t, err)
}

func TestResolveLink(t *testing.T) {
	ctx := context.Background()
	catalog := testCatalog()

	link, err := resolveLink(ctx, catalog, []string{"book/7"})
	require.NoError(t, err)
	assert.Equal(t, record.KindInt, link.Keys[0].Kind())
	assert.Equal(t, "book/7", link.String())

	link, err = resolveLink(ctx, catalog, []string{"book", "7"})
	require.NoError(t, err)
	assert.Equal(t, record.KindInt, link.Keys[0].Kind())

	link, err = resolveLink(ctx, catalog, []string{"tag", "42", "en"})
	require.NoError(t, err)
	assert.Equal(t, record.KindString, link.Keys[0].Kind())
	assert.Equal(t, "tag/42/en", link.String())

	_, err = resolveLink(ctx, catalog, []string{"tag/42"})
	require.Error(t, err)

	_, err = resolveLink(ctx, catalog, []string{"missing/1"})
	require.Error(t, err)
}

func TestReadWriteOutput(t *testing.T) {
	buf := captureOutput(t)
	require.NoError(t, writeOutput("", []byte(`{"id":1}`)))
	assert.Equal(t, "{\"id\":1}\n", buf.String())

	path := filepath.Join(t.TempDir(), "tree.json")
	require.NoError(t, writeOutput(path, []byte(`{"id":2}`)))
	data, err := readInput(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":2}\n", string(data))

	_, err = readInput(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
}

func TestEncodeTree(t *testing.T) {
	rec, err := record.Decode([]byte(`{"id":1,"author_id":2}`), "book")
	require.NoError(t, err)

	compact, err := encodeTree(rec, false)
	require.NoError(t, err)
	assert.Equal(t, `{"id":1,"author_id":2}`, string(compact))

	pretty, err := encodeTree(rec, true)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"id\": 1,\n  \"author_id\": 2\n}", string(pretty))
}
