package config

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for valid values. Database sections are
// only checked when they are set; use RequireDatabase for the connections a
// command cannot run without.
func (c *Config) Validate() error {
	var errors ValidationErrors

	if c.Source.IsSet() {
		errors = append(errors, c.validateDatabase("source", &c.Source)...)
	}
	if c.Destination.IsSet() {
		errors = append(errors, c.validateDatabase("destination", &c.Destination)...)
	}
	errors = append(errors, c.validateImport()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

// RequireDatabase fails unless the named section ("source" or "destination")
// is fully configured.
func (c *Config) RequireDatabase(name string) error {
	var db *DatabaseConfig
	switch name {
	case "source":
		db = &c.Source
	case "destination":
		db = &c.Destination
	default:
		return fmt.Errorf("unknown database section %q", name)
	}
	if errs := c.validateDatabase(name, db); len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateDatabase(prefix string, db *DatabaseConfig) ValidationErrors {
	var errors ValidationErrors

	validDrivers := map[string]bool{"mysql": true, "mariadb": true, "postgres": true, "postgresql": true, "pgx": true, "": true}
	if !validDrivers[db.Driver] {
		errors = append(errors, ValidationError{
			Field:   prefix + ".driver",
			Message: "driver must be 'mysql' or 'postgres'",
		})
	}

	if db.Host == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".host",
			Message: "host is required",
		})
	}

	if db.Port <= 0 || db.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".port",
			Message: "port must be between 1 and 65535",
		})
	}

	if db.User == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".user",
			Message: "user is required",
		})
	}

	if db.Database == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".database",
			Message: "database name is required",
		})
	}

	validTLS := map[string]bool{"disable": true, "preferred": true, "required": true, "": true}
	if !validTLS[db.TLS] {
		errors = append(errors, ValidationError{
			Field:   prefix + ".tls",
			Message: "tls must be 'disable', 'preferred', or 'required'",
		})
	}

	if db.MaxConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".max_connections",
			Message: "max_connections cannot be negative",
		})
	}

	if db.MaxIdleConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".max_idle_connections",
			Message: "max_idle_connections cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateImport() ValidationErrors {
	var errors ValidationErrors

	if c.Import.LockTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "import.lock_timeout_seconds",
			Message: "lock_timeout_seconds cannot be negative",
		})
	}

	tables := make([]string, 0, len(c.Import.PkGenerators))
	for table := range c.Import.PkGenerators {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	validGenerators := map[string]bool{"max": true, "uuid": true, "sequence": true}
	for _, table := range tables {
		gen := c.Import.PkGenerators[table]
		field := "import.pk_generators." + table
		if !validGenerators[gen] {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "generator must be 'max', 'uuid', or 'sequence'",
			})
			continue
		}
		if gen == "sequence" && c.Import.Sequences[table] == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("sequence generator needs import.sequences.%s", table),
			})
		}
	}

	return errors
}

func (c *Config) validateStore() ValidationErrors {
	var errors ValidationErrors

	switch c.Store.Backend {
	case "":
	case "file":
		if c.Store.Dir == "" {
			errors = append(errors, ValidationError{
				Field:   "store.dir",
				Message: "dir is required for the file backend",
			})
		}
	case "redis":
		if c.Store.RedisURL == "" {
			errors = append(errors, ValidationError{
				Field:   "store.redis_url",
				Message: "redis_url is required for the redis backend",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Message: "backend must be 'file' or 'redis'",
		})
	}

	if c.Store.TTLSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "store.ttl_seconds",
			Message: "ttl_seconds cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
