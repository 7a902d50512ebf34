// Package plan orders the rows of a record tree so that every row comes
// after the rows it references.
package plan

import (
	"container/heap"
	"context"
	"fmt"
	"strings"

	"github.com/dbsmedya/gorowtree/internal/graph"
	"github.com/dbsmedya/gorowtree/internal/record"
	"github.com/dbsmedya/gorowtree/internal/schema"
)

// Schema is the part of the catalog a plan needs. *schema.Catalog implements it.
type Schema interface {
	PrimaryKey(ctx context.Context, table string) ([]string, error)
	ForeignKeys(ctx context.Context, table string) ([]schema.Fk, error)
}

// Node is one row of the tree.
type Node struct {
	Record   *record.Record
	Parent   *record.Record // nil for the root
	Original record.RowLink // identity before any rewriting
	Seq      int            // pre-order position in the tree
}

// Plan is the processing order of a tree.
type Plan struct {
	Tables []string // table insertion order of the tables present
	Rows   []*Node  // rows in dependency order
	Cyclic []*Node  // rows caught in a row-level cycle, in pre-order
	fks    map[string][]schema.Fk
}

// OutgoingFks returns the foreign keys where table is the referencing side.
func (p *Plan) OutgoingFks(table string) []schema.Fk {
	return p.fks[table]
}

// Len returns the number of rows in the plan, cyclic rows included.
func (p *Plan) Len() int {
	return len(p.Rows) + len(p.Cyclic)
}

// Build flattens the tree rooted at root and orders its rows. Records
// without primary-key columns get them from the schema. A table-level cycle
// among the tables present is returned as a *graph.CycleError.
func Build(ctx context.Context, s Schema, root *record.Record) (*Plan, error) {
	p := &Plan{fks: make(map[string][]schema.Fk)}
	if root.IsEmpty() {
		return p, nil
	}

	var nodes []*Node
	var tables []string
	err := root.Walk(func(rec, parent *record.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(rec.PkColumns) == 0 {
			pk, err := s.PrimaryKey(ctx, rec.Table)
			if err != nil {
				return err
			}
			rec.PkColumns = pk
		}
		if _, known := p.fks[rec.Table]; !known {
			fks, err := s.ForeignKeys(ctx, rec.Table)
			if err != nil {
				return fmt.Errorf("failed to load foreign keys of %s: %w", rec.Table, err)
			}
			var out []schema.Fk
			for _, fk := range fks {
				if fk.Origin == rec.Table {
					out = append(out, fk)
				}
			}
			p.fks[rec.Table] = out
			tables = append(tables, rec.Table)
		}
		nodes = append(nodes, &Node{Record: rec, Parent: parent, Original: rec.Link(), Seq: len(nodes)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	var allFks []schema.Fk
	for _, t := range tables {
		allFks = append(allFks, p.fks[t]...)
	}
	p.Tables, err = graph.FromFks(tables, allFks).InsertionOrder()
	if err != nil {
		return nil, err
	}

	p.orderRows(nodes)
	return p, nil
}

// orderRows runs Kahn's algorithm over rows. Among ready rows the one whose
// table comes first in the table order wins, then the earlier one in the tree.
func (p *Plan) orderRows(nodes []*Node) {
	rank := make(map[string]int, len(p.Tables))
	for i, t := range p.Tables {
		rank[t] = i
	}

	idx := newRowIndex(nodes)
	children := make([][]int, len(nodes))
	inDegree := make([]int, len(nodes))

	for i, n := range nodes {
		seen := make(map[int]bool)
		for _, fk := range p.fks[n.Record.Table] {
			vals, ok := n.Record.Values(fk.OriginColumns)
			if !ok || hasNull(vals) {
				continue
			}
			for _, target := range idx.lookup(fk.Target, fk.TargetColumns, vals) {
				// A row referencing itself does not wait for itself.
				if target == i || seen[target] {
					continue
				}
				seen[target] = true
				children[target] = append(children[target], i)
				inDegree[i]++
			}
		}
	}

	ready := &rowHeap{}
	for i := range nodes {
		if inDegree[i] == 0 {
			heap.Push(ready, rowItem{rank: rank[nodes[i].Record.Table], seq: i})
		}
	}

	done := make([]bool, len(nodes))
	for ready.Len() > 0 {
		item := heap.Pop(ready).(rowItem)
		done[item.seq] = true
		p.Rows = append(p.Rows, nodes[item.seq])
		for _, child := range children[item.seq] {
			inDegree[child]--
			if inDegree[child] == 0 {
				heap.Push(ready, rowItem{rank: rank[nodes[child].Record.Table], seq: child})
			}
		}
	}

	for i, n := range nodes {
		if !done[i] {
			p.Cyclic = append(p.Cyclic, n)
		}
	}
}

func hasNull(vals []record.Value) bool {
	for _, v := range vals {
		if v.IsNull() {
			return true
		}
	}
	return false
}

// rowIndex finds rows by the values of a column set, built lazily per
// (table, columns) pair.
type rowIndex struct {
	nodes   []*Node
	indexes map[string]map[string][]int
}

func newRowIndex(nodes []*Node) *rowIndex {
	return &rowIndex{nodes: nodes, indexes: make(map[string]map[string][]int)}
}

func (x *rowIndex) lookup(table string, columns []string, vals []record.Value) []int {
	name := table + "(" + strings.Join(columns, ",") + ")"
	index, ok := x.indexes[name]
	if !ok {
		index = make(map[string][]int)
		for i, n := range x.nodes {
			if n.Record.Table != table {
				continue
			}
			v, found := n.Record.Values(columns)
			if !found || hasNull(v) {
				continue
			}
			k := valuesKey(v)
			index[k] = append(index[k], i)
		}
		x.indexes[name] = index
	}
	return index[valuesKey(vals)]
}

func valuesKey(vals []record.Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.Text()
	}
	return strings.Join(parts, "\x00")
}

type rowItem struct {
	rank, seq int
}

type rowHeap []rowItem

func (h rowHeap) Len() int { return len(h) }
func (h rowHeap) Less(i, j int) bool {
	if h[i].rank != h[j].rank {
		return h[i].rank < h[j].rank
	}
	return h[i].seq < h[j].seq
}
func (h rowHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *rowHeap) Push(x any)   { *h = append(*h, x.(rowItem)) }
func (h *rowHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
