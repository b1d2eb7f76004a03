package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/studyplan/internal/config"
	"github.com/dbsmedya/studyplan/internal/database"
	"github.com/dbsmedya/studyplan/internal/logger"
	"github.com/dbsmedya/studyplan/internal/store"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile     string
	logLevel    string
	logFormat   string
	concurrency int
	skipVerify  bool
	tenantID    string
)

var rootCmd = &cobra.Command{
	Use:   "studyplan",
	Short: "Exam study plan taxonomy engine",
	Long: `Manage exam study plans built on a per-tenant subject taxonomy.

Features:
  - Taxonomy trees with cycle diagnostics and usage-aware availability
  - Subject/topic filter inheritance from ancestor nodes
  - Cascading facet filters against the question corpus
  - Cross-tenant study unit replication with per-target outcomes`,
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
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "studyplan.yaml",
		"Path to configuration file")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0,
		"Override number of replication targets processed at once")
	rootCmd.PersistentFlags().BoolVar(&skipVerify, "skip-verify", false,
		"Skip read-back verification of replicated units")

	rootCmd.PersistentFlags().StringVarP(&tenantID, "tenant", "t", "",
		"Tenant whose taxonomy is used")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel    string
	LogFormat   string
	Concurrency int
	SkipVerify  bool
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:    logLevel,
		LogFormat:   logFormat,
		Concurrency: concurrency,
		SkipVerify:  skipVerify,
	}
}

// loadConfig reads the config file, applies flag overrides and validates.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	o := GetCLIOverrides()
	cfg.ApplyOverrides(o.LogLevel, o.LogFormat, o.Concurrency, o.SkipVerify)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session bundles what most commands need.
type session struct {
	cfg     *config.Config
	log     *logger.Logger
	manager *database.Manager
	store   *store.Store
}

// openSession loads config, builds the logger and connects. The corpus
// connection is opened only when withCorpus is set.
func openSession(ctx context.Context, withCorpus bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	manager := database.NewManager(cfg)
	if withCorpus {
		err = manager.Connect(ctx)
	} else {
		err = manager.ConnectPlans(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to databases: %w", err)
	}

	st, err := manager.Store(log)
	if err != nil {
		manager.Close()
		return nil, err
	}

	return &session{cfg: cfg, log: log, manager: manager, store: st}, nil
}

func (s *session) Close() {
	if err := s.manager.Close(); err != nil {
		s.log.Warnw("Failed to close connections", "error", err)
	}
	_ = s.log.Sync()
}

// requireTenant returns the --tenant flag or an error.
func requireTenant() (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("--tenant is required")
	}
	return tenantID, nil
}
