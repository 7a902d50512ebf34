package cmd

import (
	"context"
	"fmt"

	"github.com/dbsmedya/gorowtree/internal/canonical"
	"github.com/dbsmedya/gorowtree/internal/database"
	"github.com/dbsmedya/gorowtree/internal/record"
	"github.com/spf13/cobra"
)

var (
	canonTable  string
	canonOut    string
	canonPretty bool
)

var canonicalizeCmd = &cobra.Command{
	Use:   "canonicalize FILE|-",
	Short: "Renumber the primary keys of an exported tree",
	Long: `Canonicalize rewrites an exported tree so that every table's keys are
numbered 1, 2, 3... in dependency order and every foreign key follows.
Two exports of equivalent data produce identical output.

The schema is read from the source database.

Example:
  gorowtree canonicalize book.json --table book --pretty`,
	Args: cobra.ExactArgs(1),
	RunE: runCanonicalize,
}

func init() {
	canonicalizeCmd.Flags().StringVarP(&canonTable, "table", "t", "",
		"Table of the root row (required)")
	canonicalizeCmd.MarkFlagRequired("table")
	canonicalizeCmd.Flags().StringVarP(&canonOut, "out", "o", "",
		"Write the tree to this file instead of standard output")
	canonicalizeCmd.Flags().BoolVar(&canonPretty, "pretty", false,
		"Indent the JSON output")

	rootCmd.AddCommand(canonicalizeCmd)
}

func runCanonicalize(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig("source")
	if err != nil {
		return err
	}
	defer log.Sync()

	data, err := readInput(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	dbManager := database.NewManager(cfg)
	if err := dbManager.ConnectSource(ctx); err != nil {
		return fmt.Errorf("failed to connect to source: %w", err)
	}
	defer dbManager.Close()

	catalog, err := newCatalog(ctx, dbManager.Source, dbManager.SourceDialect(), &cfg.Export)
	if err != nil {
		return err
	}
	tree, err := record.DecodeBound(ctx, data, canonTable, catalog)
	if err != nil {
		return fmt.Errorf("failed to read tree: %w", err)
	}

	c := canonical.New(catalog)
	c.SetLogger(log.WithOperation("canonicalize"))
	remap, err := c.Canonicalize(ctx, tree)
	if err != nil {
		return err
	}
	log.Infof("Canonicalized %d rows", remap.Len())
	for _, e := range remap.Entries() {
		log.Debugf("%s -> %s", e.Original, e.CurrentLink())
	}

	out, err := encodeTree(tree, canonPretty || cfg.Export.Pretty)
	if err != nil {
		return err
	}
	return writeOutput(canonOut, out)
}
