// Package store persists taxonomy trees, rounds, study units and replication
// outcomes in MySQL or SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/dbsmedya/studyplan/internal/logger"
)

// Dialect selects the DDL variant of the schema.
type Dialect string

// Supported dialects.
const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

// deleteChunkSize bounds the IN list of subtree deletes.
const deleteChunkSize = 500

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Store is the admin database of studyplan.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *logger.Logger
	newID   func() string
}

// New creates a store over an open connection.
func New(db *sql.DB, dialect Dialect, log *logger.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	switch dialect {
	case DialectMySQL, DialectSQLite:
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Store{
		db:      db,
		dialect: dialect,
		logger:  log,
		newID:   uuid.NewString,
	}, nil
}

// DB returns the underlying connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the schema dialect of the store.
func (s *Store) Dialect() Dialect {
	return s.dialect
}
