package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/studyplan/internal/taxonomy"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and taxonomy trees",
	Long: `Validate checks the configuration file, connects to the databases
and checks every tenant's taxonomy (or only --tenant).

Checks performed:
  - Configuration syntax and required fields
  - Database connectivity (plans and corpus)
  - Cycles in the parent graph
  - Orphan nodes whose parent is missing

Example:
  studyplan validate --config studyplan.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.manager.Ping(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	tenants := []string{tenantID}
	if tenantID == "" {
		tenants, err = s.store.ListTenants(ctx)
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(outputWriter, "\n=== Configuration Validation ===\n")
	fmt.Fprintf(outputWriter, "Config file: %s\n", GetConfigFile())
	fmt.Fprintf(outputWriter, "Tenants found: %d\n\n", len(tenants))

	hasErrors := false
	for _, tenant := range tenants {
		tree, err := s.store.LoadTaxonomy(ctx, tenant)
		if err != nil {
			fmt.Fprintf(outputWriter, "--- Tenant: %s ---\n%s Load failed: %v\n\n", tenant, paint(colorFail, "✗"), err)
			hasErrors = true
			continue
		}
		if !reportTree(tenant, tree) {
			hasErrors = true
		}
	}

	if hasErrors {
		return fmt.Errorf("validation failed for one or more tenants")
	}

	fmt.Fprintln(outputWriter, "=== Validation Complete ===")
	fmt.Fprintln(outputWriter, paint(colorOK, "✓")+" All taxonomies validated successfully")
	return nil
}

// reportTree prints the diagnostics of one tree and reports whether it is valid.
// Orphans are warnings; cycles are errors.
func reportTree(tenant string, tree *taxonomy.Tree) bool {
	fmt.Fprintf(outputWriter, "--- Tenant: %s ---\n", tenant)
	fmt.Fprintf(outputWriter, "Nodes: %d\n", tree.Len())

	for _, o := range tree.Orphans() {
		fmt.Fprintf(outputWriter, "%s Orphan node %s (%q): parent %s is missing\n",
			paint(colorWarn, "!"), o.ID, o.Title, o.ParentID)
	}

	if err := tree.Validate(); err != nil {
		var cycleErr *taxonomy.CycleError
		if errors.As(err, &cycleErr) {
			fmt.Fprintf(outputWriter, "%s Cycle detected: %d nodes cannot be reached from a root\n",
				paint(colorFail, "✗"), len(cycleErr.Info.UnprocessedNodes))
		}
		fmt.Fprintf(outputWriter, "%v\n\n", err)
		return false
	}

	fmt.Fprintf(outputWriter, "%s All checks passed\n\n", paint(colorOK, "✓"))
	return true
}
