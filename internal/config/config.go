// Package config provides configuration structures and loading for studyplan.
package config

// Supported database drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config represents the complete application configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database" mapstructure:"database"`
	Corpus      CorpusConfig      `yaml:"corpus" mapstructure:"corpus"`
	Replication ReplicationConfig `yaml:"replication" mapstructure:"replication"`
	Logging     LoggingConfig     `yaml:"logging" mapstructure:"logging"`
}

// DatabaseConfig represents a database connection configuration.
// Host, port and credentials apply to MySQL; Path applies to SQLite.
type DatabaseConfig struct {
	Driver             string `yaml:"driver" mapstructure:"driver"` // mysql or sqlite
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	TLS                string `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	Path               string `yaml:"path" mapstructure:"path"`
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// CorpusConfig represents the question corpus the facet engine queries.
type CorpusConfig struct {
	DatabaseConfig      `yaml:",inline" mapstructure:",squash"`
	Table               string `yaml:"table" mapstructure:"table"`
	QueryTimeoutSeconds int    `yaml:"query_timeout_seconds" mapstructure:"query_timeout_seconds"`
}

// Verification methods for replicated units.
const (
	VerifyCount  = "count"
	VerifySHA256 = "sha256"
	VerifySkip   = "skip"
)

// ReplicationConfig represents settings for cross-tenant replication.
type ReplicationConfig struct {
	Concurrency        int    `yaml:"concurrency" mapstructure:"concurrency"`
	Verify             string `yaml:"verify" mapstructure:"verify"` // count, sha256 or skip
	LockTimeoutSeconds int    `yaml:"lock_timeout_seconds" mapstructure:"lock_timeout_seconds"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:             DriverMySQL,
			Port:               3306,
			TLS:                "preferred",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		Corpus: CorpusConfig{
			DatabaseConfig: DatabaseConfig{
				Driver:             DriverMySQL,
				Port:               3306,
				TLS:                "preferred",
				MaxConnections:     10,
				MaxIdleConnections: 5,
			},
			Table:               "questions",
			QueryTimeoutSeconds: 10,
		},
		Replication: ReplicationConfig{
			Concurrency:        4,
			Verify:             VerifySHA256,
			LockTimeoutSeconds: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// IsSQLite reports whether the connection uses the embedded SQLite driver.
func (d *DatabaseConfig) IsSQLite() bool {
	return d.Driver == DriverSQLite
}
