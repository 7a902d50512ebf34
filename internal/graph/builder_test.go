package graph

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/dbsmedya/gorowtree/internal/schema"
)

func libraryCatalog(extra ...schema.Fk) *schema.Catalog {
	tables := []schema.Table{
		{Name: "author", PrimaryKey: []string{"id"}, Columns: []schema.ColumnMetadata{{Name: "id", SQLType: "int"}}},
		{Name: "book", PrimaryKey: []string{"id"}, Columns: []schema.ColumnMetadata{{Name: "id", SQLType: "int"}, {Name: "author_id", SQLType: "int"}, {Name: "publisher_id", SQLType: "int"}}},
		{Name: "publisher", PrimaryKey: []string{"id"}, Columns: []schema.ColumnMetadata{{Name: "id", SQLType: "int"}}},
		{Name: "review", PrimaryKey: []string{"id"}, Columns: []schema.ColumnMetadata{{Name: "id", SQLType: "int"}, {Name: "book_id", SQLType: "int"}}},
		{Name: "island", PrimaryKey: []string{"id"}, Columns: []schema.ColumnMetadata{{Name: "id", SQLType: "int"}}},
	}
	fks := append([]schema.Fk{
		fk("book", "author_id", "author", "id"),
		fk("book", "publisher_id", "publisher", "id"),
		fk("review", "book_id", "book", "id"),
	}, extra...)
	return schema.NewCatalog(schema.NewStatic(tables, fks))
}

func TestTableInsertionOrder_DiscoversBothDirections(t *testing.T) {
	order, err := TableInsertionOrder(context.Background(), libraryCatalog(), "author")
	if err != nil {
		t.Fatalf("TableInsertionOrder failed: %v", err)
	}
	want := []string{"author", "publisher", "book", "review"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("Expected %v, got %v", want, order)
	}
}

func TestBuilder_Exclude(t *testing.T) {
	g, err := NewBuilder(libraryCatalog()).Exclude("review").Build(context.Background(), "book")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, ok := g.Nodes["review"]; ok {
		t.Error("review should be excluded")
	}
	if g.NodeCount() != 3 {
		t.Errorf("Expected 3 nodes, got %d", g.NodeCount())
	}
	if !g.Nodes["book"].IsRoot {
		t.Error("book should be the root")
	}
}

func TestBuilder_VirtualFkCycle(t *testing.T) {
	cat := libraryCatalog()
	cat.AddVirtualFks(fk("author", "favourite_book_id", "book", "id"))

	_, err := NewBuilder(cat).Build(context.Background(), "review")
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("Expected cycle error, got %v", err)
	}
}

func TestBuilder_EmptyRoot(t *testing.T) {
	if _, err := NewBuilder(libraryCatalog()).Build(context.Background(), ""); err == nil {
		t.Error("Expected error for empty root")
	}
}

func TestFromFks_IgnoresForeignTables(t *testing.T) {
	g := FromFks([]string{"book", "review"}, []schema.Fk{
		fk("book", "author_id", "author", "id"),
		fk("review", "book_id", "book", "id"),
	})
	order, err := g.InsertionOrder()
	if err != nil {
		t.Fatalf("InsertionOrder failed: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"book", "review"}) {
		t.Errorf("Unexpected order %v", order)
	}
}
