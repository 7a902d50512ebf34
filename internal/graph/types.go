// Package graph provides the table dependency graph and the Kahn ordering
// used to insert rows before the rows that reference them.
package graph

import (
	"sort"

	"github.com/dbsmedya/gorowtree/internal/schema"
)

// Node represents a table in the dependency graph.
type Node struct {
	Name            string // Table name
	IsRoot          bool   // True for the table the graph was discovered from
	SelfReferencing bool   // True if the table has a foreign key to itself
}

// Edge is a dependency from a referenced table (From) to a referencing table (To).
type Edge struct {
	From string // Referenced table
	To   string // Referencing table
}

// Graph is the dependency structure of the tables reachable from a root.
// Self-references are recorded on the node, never as edges.
type Graph struct {
	Nodes    map[string]*Node    // table name -> node
	Children map[string][]string // referenced table -> referencing tables
	Parents  map[string][]string // referencing table -> referenced tables
	Root     string
	edgeFks  map[Edge][]schema.Fk
}

// NewGraph creates an empty graph. root may be empty for graphs built from a
// plain table list.
func NewGraph(root string) *Graph {
	g := &Graph{
		Nodes:    make(map[string]*Node),
		Children: make(map[string][]string),
		Parents:  make(map[string][]string),
		Root:     root,
		edgeFks:  make(map[Edge][]schema.Fk),
	}
	if root != "" {
		g.Nodes[root] = &Node{Name: root, IsRoot: true}
	}
	return g
}

// AddNode adds a table node if it is not present yet and returns it.
func (g *Graph) AddNode(name string) *Node {
	if n, ok := g.Nodes[name]; ok {
		return n
	}
	n := &Node{Name: name}
	g.Nodes[name] = n
	return n
}

// AddFk records fk as a dependency of its origin on its target. Both tables
// are added as nodes. A self-referencing fk only flags the node. Several fks
// between the same pair of tables produce one edge.
func (g *Graph) AddFk(fk schema.Fk) {
	g.AddNode(fk.Target)
	origin := g.AddNode(fk.Origin)
	if fk.SelfReferencing() {
		origin.SelfReferencing = true
		return
	}

	edge := Edge{From: fk.Target, To: fk.Origin}
	for _, known := range g.edgeFks[edge] {
		if known.Equal(fk) {
			return
		}
	}
	if len(g.edgeFks[edge]) == 0 {
		g.Children[edge.From] = append(g.Children[edge.From], edge.To)
		g.Parents[edge.To] = append(g.Parents[edge.To], edge.From)
	}
	g.edgeFks[edge] = append(g.edgeFks[edge], fk)
}

// GetChildren returns the tables referencing parent.
func (g *Graph) GetChildren(parent string) []string {
	return g.Children[parent]
}

// GetParents returns the tables referenced by child.
func (g *Graph) GetParents(child string) []string {
	return g.Parents[child]
}

// EdgeFks returns the foreign keys behind an edge.
func (g *Graph) EdgeFks(parent, child string) []schema.Fk {
	return g.edgeFks[Edge{From: parent, To: child}]
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.Nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	return len(g.edgeFks)
}

// AllNodes returns every table name, sorted.
func (g *Graph) AllNodes() []string {
	nodes := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		nodes = append(nodes, name)
	}
	sort.Strings(nodes)
	return nodes
}

