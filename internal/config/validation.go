package config

import (
	"fmt"
	"strings"

	"github.com/dbsmedya/studyplan/internal/sqlutil"
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

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateDatabase("database", &c.Database)...)
	errors = append(errors, c.validateDatabase("corpus", &c.Corpus.DatabaseConfig)...)
	errors = append(errors, c.validateCorpus()...)
	errors = append(errors, c.validateReplication()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateDatabase(prefix string, db *DatabaseConfig) ValidationErrors {
	var errors ValidationErrors

	switch db.Driver {
	case DriverSQLite:
		if db.Path == "" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".path",
				Message: "path is required for the sqlite driver",
			})
		}
		return errors
	case DriverMySQL, "":
	default:
		errors = append(errors, ValidationError{
			Field:   prefix + ".driver",
			Message: "driver must be 'mysql' or 'sqlite'",
		})
		return errors
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

func (c *Config) validateCorpus() ValidationErrors {
	var errors ValidationErrors

	if !sqlutil.IsValidIdentifier(c.Corpus.Table) {
		errors = append(errors, ValidationError{
			Field:   "corpus.table",
			Message: "table must contain only alphanumeric characters and underscores",
		})
	}

	if c.Corpus.QueryTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "corpus.query_timeout_seconds",
			Message: "query_timeout_seconds cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateReplication() ValidationErrors {
	var errors ValidationErrors

	if c.Replication.Concurrency <= 0 {
		errors = append(errors, ValidationError{
			Field:   "replication.concurrency",
			Message: "concurrency must be positive",
		})
	}

	validMethods := map[string]bool{VerifyCount: true, VerifySHA256: true, VerifySkip: true}
	if !validMethods[c.Replication.Verify] {
		errors = append(errors, ValidationError{
			Field:   "replication.verify",
			Message: "verify must be 'count', 'sha256', or 'skip'",
		})
	}

	// The replication lock holds one plan connection for the whole batch.
	if !c.Database.IsSQLite() && c.Database.MaxConnections == 1 {
		errors = append(errors, ValidationError{
			Field:   "database.max_connections",
			Message: "max_connections must be at least 2 (or 0 for unlimited) on mysql: replication holds one connection for its lock",
		})
	}

	if c.Replication.LockTimeoutSeconds < -1 {
		errors = append(errors, ValidationError{
			Field:   "replication.lock_timeout_seconds",
			Message: "lock_timeout_seconds must be -1 (infinite) or greater",
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
