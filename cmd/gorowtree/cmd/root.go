package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "gorowtree",
	Short: "Relational row-tree exporter and importer",
	Long: `Export a database row together with every row reachable from it through
foreign keys into a nested JSON tree, and import such trees into another
database with freshly generated primary keys.

Features:
  - Traversal of foreign keys in both directions, virtual foreign keys
  - Dependency ordering of tables and rows using Kahn's algorithm
  - Primary-key regeneration (MAX+1, UUID, sequences) and reference rewriting
  - Canonical key numbering for comparing exports
  - MySQL and PostgreSQL`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "gorowtree.yaml",
		"Path to configuration file")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel    string
	LogFormat   string
	ForceInsert bool
	UseLock     bool
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:    logLevel,
		LogFormat:   logFormat,
		ForceInsert: importForceInsert,
		UseLock:     importUseLock,
	}
}
