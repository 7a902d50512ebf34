// Package config provides configuration structures and loading for gorowtree.
package config

// Config represents the complete application configuration.
type Config struct {
	Source      DatabaseConfig `yaml:"source" mapstructure:"source"`
	Destination DatabaseConfig `yaml:"destination" mapstructure:"destination"`
	Export      ExportConfig   `yaml:"export" mapstructure:"export"`
	Import      ImportConfig   `yaml:"import" mapstructure:"import"`
	Store       StoreConfig    `yaml:"store" mapstructure:"store"`
	Logging     LoggingConfig  `yaml:"logging" mapstructure:"logging"`
}

// DatabaseConfig represents a database connection configuration.
type DatabaseConfig struct {
	Driver             string `yaml:"driver" mapstructure:"driver"` // mysql or postgres
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	TLS                string `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// IsPostgres reports whether the connection uses the PostgreSQL driver.
func (d DatabaseConfig) IsPostgres() bool {
	switch d.Driver {
	case "postgres", "postgresql", "pgx":
		return true
	}
	return false
}

// IsSet reports whether the section names a database at all.
func (d DatabaseConfig) IsSet() bool {
	return d.Host != "" || d.Database != ""
}

// ExportConfig controls tree export.
type ExportConfig struct {
	StopTablesExcluded []string `yaml:"stop_tables_excluded" mapstructure:"stop_tables_excluded"` // never entered
	StopTablesIncluded []string `yaml:"stop_tables_included" mapstructure:"stop_tables_included"` // entered, not expanded
	VirtualForeignKeys string   `yaml:"virtual_foreign_keys" mapstructure:"virtual_foreign_keys"` // t1(a)-t2(b);...
	Pretty             bool     `yaml:"pretty" mapstructure:"pretty"`
}

// ImportConfig controls tree import.
type ImportConfig struct {
	ForceInsert        bool              `yaml:"force_insert" mapstructure:"force_insert"`
	UseLock            bool              `yaml:"use_lock" mapstructure:"use_lock"`
	LockTimeoutSeconds int               `yaml:"lock_timeout_seconds" mapstructure:"lock_timeout_seconds"`
	PkGenerators       map[string]string `yaml:"pk_generators" mapstructure:"pk_generators"` // table -> max, uuid or sequence
	Sequences          map[string]string `yaml:"sequences" mapstructure:"sequences"`         // table -> sequence name
}

// StoreConfig selects where exported trees are persisted.
type StoreConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"` // "", file or redis
	Dir        string `yaml:"dir" mapstructure:"dir"`
	RedisURL   string `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix  string `yaml:"key_prefix" mapstructure:"key_prefix"`
	TTLSeconds int    `yaml:"ttl_seconds" mapstructure:"ttl_seconds"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stderr, stdout, or file path
}

// Default ports per driver.
const (
	DefaultMySQLPort    = 3306
	DefaultPostgresPort = 5432
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Source: DatabaseConfig{
			Driver:             "mysql",
			TLS:                "preferred",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		Destination: DatabaseConfig{
			Driver:             "mysql",
			TLS:                "preferred",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		Import: ImportConfig{
			LockTimeoutSeconds: 10,
		},
		Store: StoreConfig{
			Dir:       "trees",
			KeyPrefix: "gorowtree:tree:",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyPortDefaults fills in the driver's default port where none was given.
func (c *Config) applyPortDefaults() {
	for _, db := range []*DatabaseConfig{&c.Source, &c.Destination} {
		if db.Port != 0 {
			continue
		}
		if db.IsPostgres() {
			db.Port = DefaultPostgresPort
		} else {
			db.Port = DefaultMySQLPort
		}
	}
}
