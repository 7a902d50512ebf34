package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/dbsmedya/gorowtree/internal/database"
	"github.com/dbsmedya/gorowtree/internal/graph"
	"github.com/spf13/cobra"
)

var orderDestination bool

var orderCmd = &cobra.Command{
	Use:   "order TABLE",
	Short: "Show the table insertion order for a root table",
	Long: `Order discovers every table reachable from TABLE through foreign keys and
prints the order in which their rows are written on import (referenced
tables first) and the reverse order for deletion.

Self-referencing foreign keys are not table-level dependencies. A cycle
between tables is reported with the tables that could not be ordered.

Example:
  gorowtree order book
  gorowtree order invoice --destination`,
	Args: cobra.ExactArgs(1),
	RunE: runOrder,
}

func init() {
	orderCmd.Flags().BoolVar(&orderDestination, "destination", false,
		"Read the schema of the destination database instead of the source")

	rootCmd.AddCommand(orderCmd)
}

func runOrder(cmd *cobra.Command, args []string) error {
	section := "source"
	if orderDestination {
		section = "destination"
	}
	cfg, log, err := loadConfig(section)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := context.Background()
	dbManager := database.NewManager(cfg)
	var connectErr error
	if orderDestination {
		connectErr = dbManager.ConnectDestination(ctx)
	} else {
		connectErr = dbManager.ConnectSource(ctx)
	}
	if connectErr != nil {
		return fmt.Errorf("failed to connect to %s: %w", section, connectErr)
	}
	defer dbManager.Close()

	db, dialect := dbManager.Source, dbManager.SourceDialect()
	if orderDestination {
		db, dialect = dbManager.Destination, dbManager.DestinationDialect()
	}
	catalog, err := newCatalog(ctx, db, dialect, &cfg.Export)
	if err != nil {
		return err
	}

	g, err := graph.NewBuilder(catalog).Exclude(cfg.Export.StopTablesExcluded...).Build(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}
	return printOrder(g)
}

// printOrder prints the insertion and deletion order of g.
func printOrder(g *graph.Graph) error {
	insertOrder, err := g.InsertionOrder()
	if err != nil {
		return err
	}
	deleteOrder, err := g.DeletionOrder()
	if err != nil {
		return err
	}

	printHeader("Table Order: %s", g.Root)
	fmt.Fprintln(outputWriter)
	printKeyValues([][2]string{
		{"Root Table", g.Root},
		{"Total Tables", fmt.Sprintf("%d", g.NodeCount())},
		{"Dependencies", fmt.Sprintf("%d", g.EdgeCount())},
	})

	fmt.Fprintln(outputWriter)
	printSection("Insertion Order (referenced tables first)")
	rows := make([][]string, 0, len(insertOrder))
	for i, table := range insertOrder {
		rows = append(rows, []string{fmt.Sprintf("[%d]", i+1), table, describeDependencies(g, table)})
	}
	printTable([]string{"#", "TABLE", "REFERENCES"}, rows)

	fmt.Fprintln(outputWriter)
	printSection("Deletion Order (referencing tables first)")
	for i, table := range deleteOrder {
		fmt.Fprintf(outputWriter, "  [%d] %s\n", i+1, table)
	}
	return nil
}

// describeDependencies lists the foreign keys of table, root and
// self-references marked.
func describeDependencies(g *graph.Graph, table string) string {
	var parts []string
	node := g.Nodes[table]
	if node != nil && node.IsRoot {
		parts = append(parts, "(root)")
	}
	for _, parent := range g.GetParents(table) {
		for _, fk := range g.EdgeFks(parent, table) {
			parts = append(parts, fk.Key())
		}
	}
	if node != nil && node.SelfReferencing {
		parts = append(parts, "(self)")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}
