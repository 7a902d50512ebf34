package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Fk is one foreign-key relationship. Origin is always the referencing table
// and Target the referenced one, whichever side the relationship was
// discovered from, so two Fk values describing the same relationship are
// equal. OriginColumns and TargetColumns are matched positionally.
type Fk struct {
	Origin        string
	OriginColumns []string
	Target        string
	TargetColumns []string
	Virtual       bool // declared by configuration rather than read from the schema
}

// NewFk builds an Fk, failing when the column lists are empty or differ in length.
func NewFk(origin string, originCols []string, target string, targetCols []string) (Fk, error) {
	if origin == "" || target == "" {
		return Fk{}, fmt.Errorf("foreign key needs both an origin and a target table")
	}
	if len(originCols) == 0 || len(originCols) != len(targetCols) {
		return Fk{}, fmt.Errorf("foreign key %s->%s: column lists must be non-empty and of equal length (%d vs %d)",
			origin, target, len(originCols), len(targetCols))
	}
	return Fk{
		Origin:        origin,
		OriginColumns: append([]string(nil), originCols...),
		Target:        target,
		TargetColumns: append([]string(nil), targetCols...),
	}, nil
}

// Key returns the declaration form origin(c1,c2)-target(c3,c4), which also
// serves as the Fk identity.
func (f Fk) Key() string {
	return fmt.Sprintf("%s(%s)-%s(%s)",
		f.Origin, strings.Join(f.OriginColumns, ","),
		f.Target, strings.Join(f.TargetColumns, ","))
}

func (f Fk) String() string {
	return f.Key()
}

// Equal compares two relationships ignoring the Virtual flag.
func (f Fk) Equal(o Fk) bool {
	return f.Key() == o.Key()
}

// SelfReferencing reports whether the relationship links a table to itself.
func (f Fk) SelfReferencing() bool {
	return f.Origin == f.Target
}

// SelfReferencingFks returns the self-referencing relationships of fks.
func SelfReferencingFks(fks []Fk) []Fk {
	var out []Fk
	for _, fk := range fks {
		if fk.SelfReferencing() {
			out = append(out, fk)
		}
	}
	return out
}

// TargetColumnFor returns the target column matched with an origin column.
func (f Fk) TargetColumnFor(originColumn string) (string, bool) {
	for i, c := range f.OriginColumns {
		if c == originColumn {
			return f.TargetColumns[i], true
		}
	}
	return "", false
}

// Edge is an Fk seen from one of its tables. Inverted means the table is the
// referenced (target) side, so following the edge finds the referencing rows.
type Edge struct {
	Fk       Fk
	Inverted bool
}

// Key identifies the edge including its direction.
func (e Edge) Key() string {
	if e.Inverted {
		return e.Fk.Key() + "<"
	}
	return e.Fk.Key() + ">"
}

// LocalTable is the table the edge is seen from.
func (e Edge) LocalTable() string {
	if e.Inverted {
		return e.Fk.Target
	}
	return e.Fk.Origin
}

// LocalColumns are the columns on the local table.
func (e Edge) LocalColumns() []string {
	if e.Inverted {
		return e.Fk.TargetColumns
	}
	return e.Fk.OriginColumns
}

// OppositeTable is the table reached by following the edge.
func (e Edge) OppositeTable() string {
	if e.Inverted {
		return e.Fk.Origin
	}
	return e.Fk.Target
}

// OppositeColumns are the columns matched on the opposite table.
func (e Edge) OppositeColumns() []string {
	if e.Inverted {
		return e.Fk.OriginColumns
	}
	return e.Fk.TargetColumns
}

// EdgesFor returns the edges of table among fks, sorted by Fk key with the
// non-inverted direction first. A self-referencing Fk yields both directions.
func EdgesFor(table string, fks []Fk) []Edge {
	var edges []Edge
	for _, fk := range fks {
		if fk.Origin == table {
			edges = append(edges, Edge{Fk: fk})
		}
		if fk.Target == table {
			edges = append(edges, Edge{Fk: fk, Inverted: true})
		}
	}
	sort.SliceStable(edges, func(i, j int) bool {
		ki, kj := edges[i].Fk.Key(), edges[j].Fk.Key()
		if ki != kj {
			return ki < kj
		}
		return !edges[i].Inverted && edges[j].Inverted
	})
	return edges
}

// ParseFks parses a declaration string of the form
//
//	table1(col1,col2)-table2(col3,col4);table3(col5)-table4(col6)
//
// The returned Fks are marked Virtual.
func ParseFks(decl string) ([]Fk, error) {
	var fks []Fk
	for _, part := range strings.Split(decl, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fk, err := parseFk(part)
		if err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, nil
}

func parseFk(decl string) (Fk, error) {
	// The separator is the first '-' after the origin's closing parenthesis.
	closeIdx := strings.Index(decl, ")")
	if closeIdx < 0 || closeIdx+1 >= len(decl) || decl[closeIdx+1] != '-' {
		return Fk{}, fmt.Errorf("invalid foreign key declaration %q: expected table(cols)-table(cols)", decl)
	}
	originTable, originCols, err := parseTableColumns(decl[:closeIdx+1])
	if err != nil {
		return Fk{}, fmt.Errorf("invalid foreign key declaration %q: %w", decl, err)
	}
	targetTable, targetCols, err := parseTableColumns(decl[closeIdx+2:])
	if err != nil {
		return Fk{}, fmt.Errorf("invalid foreign key declaration %q: %w", decl, err)
	}
	fk, err := NewFk(originTable, originCols, targetTable, targetCols)
	if err != nil {
		return Fk{}, fmt.Errorf("invalid foreign key declaration %q: %w", decl, err)
	}
	fk.Virtual = true
	return fk, nil
}

func parseTableColumns(s string) (string, []string, error) {
	s = strings.TrimSpace(s)
	open := strings.Index(s, "(")
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return "", nil, fmt.Errorf("expected table(cols) in %q", s)
	}
	table := strings.TrimSpace(s[:open])
	var cols []string
	for _, c := range strings.Split(s[open+1:len(s)-1], ",") {
		c = strings.TrimSpace(c)
		if c == "" {
			return "", nil, fmt.Errorf("empty column name in %q", s)
		}
		cols = append(cols, c)
	}
	return table, cols, nil
}

