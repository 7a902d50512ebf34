package graph

import (
	"context"
	"fmt"

	"github.com/dbsmedya/gorowtree/internal/schema"
)

// FkSource is the part of the schema catalog the builder needs.
// *schema.Catalog implements it.
type FkSource interface {
	ForeignKeys(ctx context.Context, table string) ([]schema.Fk, error)
}

// Builder discovers the tables reachable from a root table through foreign
// keys followed in both directions.
type Builder struct {
	fks     FkSource
	exclude map[string]bool
}

// NewBuilder creates a builder reading relationships from fks.
func NewBuilder(fks FkSource) *Builder {
	return &Builder{fks: fks, exclude: make(map[string]bool)}
}

// Exclude keeps the given tables out of the discovered graph.
func (b *Builder) Exclude(tables ...string) *Builder {
	for _, t := range tables {
		b.exclude[t] = true
	}
	return b
}

// Build runs a breadth-first discovery from root and returns the graph of
// every reachable table. It fails fast on a table-level cycle.
func (b *Builder) Build(ctx context.Context, root string) (*Graph, error) {
	if root == "" {
		return nil, fmt.Errorf("root table is not specified")
	}

	g := NewGraph(root)
	queue := []string{root}
	seen := map[string]bool{root: true}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		table := queue[0]
		queue = queue[1:]

		fks, err := b.fks.ForeignKeys(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to discover foreign keys of %s: %w", table, err)
		}
		for _, fk := range fks {
			if b.exclude[fk.Origin] || b.exclude[fk.Target] {
				continue
			}
			g.AddFk(fk)
			for _, next := range []string{fk.Origin, fk.Target} {
				if !seen[next] {
					seen[next] = true
					queue = append(queue, next)
				}
			}
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// FromFks builds a graph over the given tables using the fks whose both ends
// are among them. Fks touching other tables are ignored.
func FromFks(tables []string, fks []schema.Fk) *Graph {
	g := NewGraph("")
	present := make(map[string]bool, len(tables))
	for _, t := range tables {
		present[t] = true
		g.AddNode(t)
	}
	for _, fk := range fks {
		if present[fk.Origin] && present[fk.Target] {
			g.AddFk(fk)
		}
	}
	return g
}

// TableInsertionOrder returns the tables reachable from root ordered so that
// every referenced table comes before the tables referencing it.
func TableInsertionOrder(ctx context.Context, fks FkSource, root string) ([]string, error) {
	g, err := NewBuilder(fks).Build(ctx, root)
	if err != nil {
		return nil, err
	}
	return g.InsertionOrder()
}
