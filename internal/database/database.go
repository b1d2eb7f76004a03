// Package database provides connection management for the study plan store
// and the question corpus.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "modernc.org/sqlite"             // SQLite driver

	"github.com/dbsmedya/studyplan/internal/config"
	"github.com/dbsmedya/studyplan/internal/corpus"
	"github.com/dbsmedya/studyplan/internal/logger"
	"github.com/dbsmedya/studyplan/internal/store"
)

const maxRetries = 3

// Manager handles the plan database and the corpus database. When both are
// configured identically they share one pool.
type Manager struct {
	Plans  *sql.DB
	Corpus *sql.DB
	config *config.Config

	open    func(driver, dsn string) (*sql.DB, error)
	backoff time.Duration
}

// NewManager creates a new database manager from configuration.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		config:  cfg,
		open:    sql.Open,
		backoff: time.Second,
	}
}

// Connect establishes connections to the plan and corpus databases.
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.ConnectPlans(ctx); err != nil {
		return err
	}

	if m.config.Corpus.DatabaseConfig == m.config.Database {
		m.Corpus = m.Plans
		return nil
	}

	var err error
	m.Corpus, err = m.connectWithRetry(ctx, &m.config.Corpus.DatabaseConfig)
	if err != nil {
		m.Plans.Close()
		m.Plans = nil
		return fmt.Errorf("failed to connect to corpus database: %w", err)
	}
	return nil
}

// ConnectPlans establishes the connection to the plan database only.
// Use this when the corpus is not needed (e.g., migrate or replicate).
func (m *Manager) ConnectPlans(ctx context.Context) error {
	var err error
	m.Plans, err = m.connectWithRetry(ctx, &m.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to plan database: %w", err)
	}
	return nil
}

// Store wraps the plan connection in a store.Store for the configured dialect.
func (m *Manager) Store(log *logger.Logger) (*store.Store, error) {
	if m.Plans == nil {
		return nil, fmt.Errorf("plan database is not connected")
	}
	return store.New(m.Plans, Dialect(&m.config.Database), log)
}

// CorpusService wraps the corpus connection in a corpus.Service.
func (m *Manager) CorpusService(log *logger.Logger) (*corpus.Service, error) {
	if m.Corpus == nil {
		return nil, fmt.Errorf("corpus database is not connected")
	}
	timeout := time.Duration(m.config.Corpus.QueryTimeoutSeconds) * time.Second
	return corpus.NewService(m.Corpus, m.config.Corpus.Table, timeout, log)
}

// connectWithRetry attempts to connect with exponential backoff.
func (m *Manager) connectWithRetry(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	var db *sql.DB
	var err error

	backoff := m.backoff
	for i := 0; i < maxRetries; i++ {
		db, err = m.connect(cfg)
		if err == nil {
			pingErr := db.PingContext(ctx)
			if pingErr == nil {
				return db, nil
			}
			db.Close()
			err = pingErr
		}

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	return nil, fmt.Errorf("failed after %d retries: %w", maxRetries, err)
}

// connect creates a database handle and configures its pool.
func (m *Manager) connect(cfg *config.DatabaseConfig) (*sql.DB, error) {
	driver, dsn := DriverName(cfg), BuildDSN(cfg)

	db, err := m.open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if cfg.IsSQLite() {
		// One writer at a time avoids SQLITE_BUSY on concurrent replication.
		db.SetMaxOpenConns(1)
		return db, nil
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConnections)
	}
	db.SetConnMaxLifetime(10 * time.Minute)

	return db, nil
}

// DriverName returns the database/sql driver name for a configuration.
func DriverName(cfg *config.DatabaseConfig) string {
	if cfg.IsSQLite() {
		return "sqlite"
	}
	return "mysql"
}

// Dialect maps a configuration to the store dialect.
func Dialect(cfg *config.DatabaseConfig) store.Dialect {
	if cfg.IsSQLite() {
		return store.DialectSQLite
	}
	return store.DialectMySQL
}

// BuildDSN constructs a DSN for the configured driver.
func BuildDSN(cfg *config.DatabaseConfig) string {
	if cfg.IsSQLite() {
		return buildSQLiteDSN(cfg.Path)
	}

	// Format: user:password@tcp(host:port)/database?params
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
	)

	if cfg.Database != "" {
		dsn += cfg.Database
	}

	params := "?parseTime=true"
	switch cfg.TLS {
	case "disable":
		params += "&tls=false"
	case "required":
		params += "&tls=true"
	case "preferred", "":
		params += "&tls=preferred"
	}

	return dsn + params
}

func buildSQLiteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + q.Encode()
}

// Close closes all database connections.
func (m *Manager) Close() error {
	var errs []error

	if m.Corpus != nil && m.Corpus != m.Plans {
		if err := m.Corpus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("corpus close: %w", err))
		}
	}

	if m.Plans != nil {
		if err := m.Plans.Close(); err != nil {
			errs = append(errs, fmt.Errorf("plans close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing connections: %v", errs)
	}
	return nil
}

// Ping verifies all connections are alive.
func (m *Manager) Ping(ctx context.Context) error {
	if m.Plans != nil {
		if err := m.Plans.PingContext(ctx); err != nil {
			return fmt.Errorf("plans ping failed: %w", err)
		}
	}

	if m.Corpus != nil && m.Corpus != m.Plans {
		if err := m.Corpus.PingContext(ctx); err != nil {
			return fmt.Errorf("corpus ping failed: %w", err)
		}
	}

	return nil
}
