package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/dbsmedya/gorowtree/internal/config"
	"github.com/dbsmedya/gorowtree/internal/database"
	"github.com/dbsmedya/gorowtree/internal/importer"
	"github.com/dbsmedya/gorowtree/internal/lock"
	"github.com/dbsmedya/gorowtree/internal/record"
	"github.com/dbsmedya/gorowtree/internal/treestore"
	"github.com/spf13/cobra"
)

var (
	importTable       string
	importFromStore   string
	importForceInsert bool
	importUseLock     bool
)

var importCmd = &cobra.Command{
	Use:   "import [FILE|-]",
	Short: "Import an exported tree into the destination database",
	Long: `Import writes every row of an exported tree into the destination database,
referenced rows first. Rows whose primary key already exists are updated;
new rows get fresh keys and every foreign key pointing at them is rewritten.

A row that fails to write is reported and skipped; the import goes on with
the next row. There is no transaction around the whole import.

Key generation per table is configured under import.pk_generators
(max, uuid or sequence).

Examples:
  gorowtree import book.json --table book
  gorowtree import --from-store author-7 --table author --use-lock
  cat tree.json | gorowtree import - --table book --force-insert`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importTable, "table", "t", "",
		"Table of the root row (required)")
	importCmd.MarkFlagRequired("table")
	importCmd.Flags().StringVar(&importFromStore, "from-store", "",
		"Load the tree from the configured store instead of a file")
	importCmd.Flags().BoolVar(&importForceInsert, "force-insert", false,
		"Insert every row without checking whether its key exists")
	importCmd.Flags().BoolVar(&importUseLock, "use-lock", false,
		"Hold an advisory lock on the destination for the whole import")

	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	if (len(args) == 0) == (importFromStore == "") {
		return fmt.Errorf("give either a FILE argument or --from-store")
	}

	cfg, log, err := loadConfig("destination")
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := database.SetupSignalHandler(context.Background(), func(sig os.Signal) {
		log.Warnf("Received %s, stopping after the current row", sig)
	})
	defer stop()

	data, err := loadTree(ctx, cfg, args)
	if err != nil {
		return err
	}

	dbManager := database.NewManager(cfg)
	if err := dbManager.ConnectDestination(ctx); err != nil {
		return fmt.Errorf("failed to connect to destination: %w", err)
	}
	defer dbManager.Close()

	dialect := dbManager.DestinationDialect()
	catalog, err := newCatalog(ctx, dbManager.Destination, dialect, &cfg.Export)
	if err != nil {
		return err
	}

	tree, err := record.DecodeBound(ctx, data, importTable, catalog)
	if err != nil {
		return fmt.Errorf("failed to read tree: %w", err)
	}

	imp := importer.New(dbManager.Destination, dialect, catalog)
	imp.SetLogger(log.WithOperation("import"))
	if err := configureGenerators(imp, &cfg.Import); err != nil {
		return err
	}

	var result *importer.Result
	run := func() error {
		var err error
		result, err = imp.InsertTree(ctx, tree, importer.Options{ForceInsert: cfg.Import.ForceInsert})
		return err
	}

	if cfg.Import.UseLock {
		conn, connErr := dbManager.Destination.Conn(ctx)
		if connErr != nil {
			return fmt.Errorf("failed to reserve a connection for the import lock: %w", connErr)
		}
		defer conn.Close()

		importLock := lock.NewImportLock(conn, dialect, cfg.Destination.Database)
		log.Infow("Acquiring import lock", "lock", importLock.LockName())
		err = importLock.WithLock(ctx, cfg.Import.LockTimeoutSeconds, run)
	} else {
		err = run()
	}

	printImportResult(result)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	return nil
}

// loadTree reads the tree from the store or from the file argument.
func loadTree(ctx context.Context, cfg *config.Config, args []string) ([]byte, error) {
	if importFromStore == "" {
		return readInput(args[0])
	}
	store, err := treestore.New(ctx, &cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open tree store: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("--from-store needs store.backend to be configured")
	}
	defer store.Close()
	return store.Load(ctx, importFromStore)
}

// configureGenerators installs the per-table key generators of cfg. A table
// with a sequence but no generator name uses the sequence.
func configureGenerators(imp *importer.Importer, cfg *config.ImportConfig) error {
	names := make(map[string]string, len(cfg.PkGenerators))
	for table, name := range cfg.PkGenerators {
		names[table] = name
	}
	for table := range cfg.Sequences {
		if _, ok := names[table]; !ok {
			names[table] = "sequence"
		}
	}

	for table, name := range names {
		gen, err := importer.GeneratorFor(name, cfg.Sequences[table])
		if err != nil {
			return fmt.Errorf("import.pk_generators.%s: %w", table, err)
		}
		imp.SetPkGenerator(table, gen)
	}
	return nil
}

func printImportResult(result *importer.Result) {
	if result == nil {
		return
	}
	fmt.Fprintln(outputWriter)
	printHeader("Import Complete")
	printKeyValues([][2]string{
		{"Inserted", fmt.Sprintf("%d", result.Inserted)},
		{"Updated", fmt.Sprintf("%d", result.Updated)},
		{"Skipped", fmt.Sprintf("%d", result.Skipped)},
		{"Duration", result.Duration.String()},
	})

	if len(result.Rows) == 0 {
		return
	}
	fmt.Fprintln(outputWriter)
	printSection("Rows")
	rows := make([][]string, 0, len(result.Rows))
	for _, rr := range result.Rows {
		current := "-"
		if rr.Action != importer.ActionSkipped {
			current = rr.Current.String()
		}
		rows = append(rows, []string{rr.Original.String(), current, rr.Action.String()})
	}
	printTable([]string{"ORIGINAL", "CURRENT", "ACTION"}, rows)

	fmt.Fprintln(outputWriter)
	if result.Skipped == 0 {
		fmt.Fprintln(outputWriter, statusOK("All rows written"))
		return
	}
	fmt.Fprintln(outputWriter, statusWarn(fmt.Sprintf("%d rows skipped", result.Skipped)))
	for _, rr := range result.Rows {
		if rr.Err != nil {
			fmt.Fprintf(outputWriter, "  %s\n", statusFail(rr.Err.Error()))
		}
	}
}
