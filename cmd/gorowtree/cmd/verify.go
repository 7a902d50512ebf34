package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dbsmedya/gorowtree/internal/canonical"
	"github.com/dbsmedya/gorowtree/internal/database"
	"github.com/dbsmedya/gorowtree/internal/exporter"
	"github.com/dbsmedya/gorowtree/internal/logger"
	"github.com/dbsmedya/gorowtree/internal/record"
	"github.com/dbsmedya/gorowtree/internal/schema"
	"github.com/dbsmedya/gorowtree/internal/sqlutil"
	"github.com/dbsmedya/gorowtree/internal/verifier"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	verifyMethod string
	verifyFiles  bool
	verifyTable  string
)

var verifyCmd = &cobra.Command{
	Use:   "verify LEFT RIGHT",
	Short: "Check that two trees hold the same data",
	Long: `Verify exports LEFT from the source database and RIGHT from the
destination database, canonicalizes both trees and compares them. Use it
after an import to check that the imported rows match the originals.

With --files, LEFT and RIGHT are exported JSON files of --table.

Methods:
  sha256  compare digests of the canonical trees, report the first difference
  count   compare the number of rows per table
  skip    do nothing

Examples:
  gorowtree verify book/1 book/17
  gorowtree verify --files before.json after.json --table book --method count`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyMethod, "method", "m", "sha256",
		"Verification method (sha256, count, skip)")
	verifyCmd.Flags().BoolVar(&verifyFiles, "files", false,
		"Treat LEFT and RIGHT as exported JSON files")
	verifyCmd.Flags().StringVarP(&verifyTable, "table", "t", "",
		"Table of the root rows (required with --files)")

	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	if verifyFiles && verifyTable == "" {
		return fmt.Errorf("--files needs --table")
	}
	databases := []string{"source"}
	if !verifyFiles {
		databases = append(databases, "destination")
	}
	cfg, log, err := loadConfig(databases...)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := database.SetupSignalHandler(context.Background(), nil)
	defer stop()

	dbManager := database.NewManager(cfg)
	defer dbManager.Close()
	if err := dbManager.ConnectSource(ctx); err != nil {
		return fmt.Errorf("failed to connect to source: %w", err)
	}
	sourceCatalog, err := newCatalog(ctx, dbManager.Source, dbManager.SourceDialect(), &cfg.Export)
	if err != nil {
		return err
	}

	var left, right *record.Record
	if verifyFiles {
		if left, err = readTreeFile(ctx, args[0], sourceCatalog); err != nil {
			return err
		}
		if right, err = readTreeFile(ctx, args[1], sourceCatalog); err != nil {
			return err
		}
	} else {
		if err := dbManager.ConnectDestination(ctx); err != nil {
			return fmt.Errorf("failed to connect to destination: %w", err)
		}
		destCatalog, err := newCatalog(ctx, dbManager.Destination, dbManager.DestinationDialect(), &cfg.Export)
		if err != nil {
			return err
		}
		// The two sides live on separate connections and catalogs.
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			left, err = exportSide(gctx, dbManager.Source, dbManager.SourceDialect(), sourceCatalog, args[0], cfg.Export.StopTablesExcluded, cfg.Export.StopTablesIncluded, log)
			return err
		})
		g.Go(func() error {
			var err error
			right, err = exportSide(gctx, dbManager.Destination, dbManager.DestinationDialect(), destCatalog, args[1], cfg.Export.StopTablesExcluded, cfg.Export.StopTablesIncluded, log)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}
	}

	c := canonical.New(sourceCatalog)
	c.SetLogger(log.WithOperation("canonicalize"))
	v, err := verifier.NewVerifier(c, verifier.VerificationMethod(verifyMethod), log.WithOperation("verify"))
	if err != nil {
		return err
	}

	result, verifyErr := v.Verify(ctx, left, right)
	printVerifyResult(args[0], args[1], result, verifyErr)
	return verifyErr
}

func readTreeFile(ctx context.Context, path string, catalog *schema.Catalog) (*record.Record, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	tree, err := record.DecodeBound(ctx, data, verifyTable, catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return tree, nil
}

func exportSide(ctx context.Context, db exporter.Querier, dialect sqlutil.Dialect, catalog *schema.Catalog,
	arg string, excluded, included []string, log *logger.Logger) (*record.Record, error) {
	link, err := resolveLink(ctx, catalog, strings.Fields(arg))
	if err != nil {
		return nil, err
	}
	exp := exporter.New(db, dialect, catalog)
	exp.SetLogger(log.WithOperation("export"))
	exp.StopExcluded(excluded...)
	exp.StopIncluded(included...)

	tree, err := exp.ExportLink(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("export of %s failed: %w", link, err)
	}
	if tree.IsEmpty() {
		return nil, fmt.Errorf("%w: %s", exporter.ErrRowNotFound, link)
	}
	return tree, nil
}

func printVerifyResult(left, right string, result *verifier.VerifyResult, err error) {
	printHeader("Verification: %s vs %s", left, right)
	if result == nil {
		fmt.Fprintln(outputWriter, statusFail(err.Error()))
		return
	}

	pairs := [][2]string{{"Method", string(result.Method)}}
	if result.LeftHash != "" {
		pairs = append(pairs, [2]string{"Left SHA-256", result.LeftHash})
		pairs = append(pairs, [2]string{"Right SHA-256", result.RightHash})
	}
	if result.Difference != nil {
		pairs = append(pairs, [2]string{"First Difference", result.Difference.String()})
	}
	printKeyValues(pairs)

	if len(result.LeftCounts) > 0 || len(result.RightCounts) > 0 {
		fmt.Fprintln(outputWriter)
		printSection("Rows per Table")
		printTable([]string{"TABLE", "LEFT", "RIGHT"}, countRows(result.LeftCounts, result.RightCounts))
	}

	fmt.Fprintln(outputWriter)
	if result.Match {
		fmt.Fprintln(outputWriter, statusOK("Trees match"))
	} else {
		fmt.Fprintln(outputWriter, statusFail("Trees differ"))
	}
}

func countRows(left, right map[string]int) [][]string {
	tables := make([]string, 0, len(left))
	for t := range left {
		tables = append(tables, t)
	}
	for t := range right {
		if _, ok := left[t]; !ok {
			tables = append(tables, t)
		}
	}
	sort.Strings(tables)

	rows := make([][]string, len(tables))
	for i, t := range tables {
		rows[i] = []string{t, fmt.Sprintf("%d", left[t]), fmt.Sprintf("%d", right[t])}
	}
	return rows
}
