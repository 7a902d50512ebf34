package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dbsmedya/gorowtree/internal/config"
	"github.com/dbsmedya/gorowtree/internal/logger"
	"github.com/dbsmedya/gorowtree/internal/record"
	"github.com/dbsmedya/gorowtree/internal/schema"
	"github.com/dbsmedya/gorowtree/internal/sqlutil"
)

// loadConfig reads the configuration file, applies the CLI overrides and
// checks the database sections the command needs.
func loadConfig(databases ...string) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat, overrides.ForceInsert, overrides.UseLock)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	for _, name := range databases {
		if err := cfg.RequireDatabase(name); err != nil {
			return nil, nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// newCatalog reads the schema of db and registers the configured virtual
// foreign keys after checking that their columns exist.
func newCatalog(ctx context.Context, db *sql.DB, dialect sqlutil.Dialect, cfg *config.ExportConfig) (*schema.Catalog, error) {
	catalog := schema.NewCatalog(schema.NewInformationSchema(db, dialect))
	if err := addVirtualFks(ctx, catalog, cfg.VirtualForeignKeys); err != nil {
		return nil, err
	}
	return catalog, nil
}

func addVirtualFks(ctx context.Context, catalog *schema.Catalog, decl string) error {
	if strings.TrimSpace(decl) == "" {
		return nil
	}
	fks, err := schema.ParseFks(decl)
	if err != nil {
		return fmt.Errorf("invalid virtual_foreign_keys: %w", err)
	}
	for _, fk := range fks {
		if err := catalog.ValidateFk(ctx, fk); err != nil {
			return fmt.Errorf("invalid virtual foreign key %s: %w", fk.Key(), err)
		}
	}
	catalog.AddVirtualFks(fks...)
	return nil
}

// resolveLink turns "table/k1/k2" or "table k1 k2" into a RowLink whose keys
// carry the class of their primary-key column.
func resolveLink(ctx context.Context, catalog *schema.Catalog, args []string) (record.RowLink, error) {
	var link record.RowLink
	if len(args) == 1 {
		parsed, err := record.ParseRowLink(args[0])
		if err != nil {
			return link, err
		}
		link = parsed
	} else {
		keys := make([]any, len(args)-1)
		for i, a := range args[1:] {
			keys[i] = a
		}
		link = record.NewRowLink(args[0], keys...)
	}

	pk, err := catalog.PrimaryKey(ctx, link.Table)
	if err != nil {
		return link, err
	}
	if len(pk) != len(link.Keys) {
		return link, fmt.Errorf("table %s has primary key %v, got %d key values", link.Table, pk, len(link.Keys))
	}
	for i, col := range pk {
		meta, err := catalog.Column(ctx, link.Table, col)
		if err != nil {
			return link, err
		}
		if meta != nil {
			link.Keys[i] = record.Coerce(link.Keys[i], meta.Class())
		}
	}
	return link, nil
}

// readInput reads a file, or standard input when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// writeOutput writes data to a file, or to the output writer when path is
// empty or "-".
func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := fmt.Fprintln(outputWriter, string(data))
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// encodeTree encodes rec, indented when pretty is set.
func encodeTree(rec *record.Record, pretty bool) ([]byte, error) {
	if pretty {
		return record.EncodeIndent(rec, "", "  ")
	}
	return record.Encode(rec)
}
