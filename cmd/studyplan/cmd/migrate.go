package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the study plan tables",
	Long: `Migrate creates the taxonomy, round, study unit, binding and
replication log tables if they do not exist. It is safe to run repeatedly.

Example:
  studyplan migrate --config studyplan.yaml`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.store.InitializeSchema(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	s.log.Infow("Schema initialized", "dialect", s.store.Dialect())
	fmt.Fprintf(outputWriter, "Schema ready (%s)\n", s.store.Dialect())
	return nil
}
