package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/studyplan/internal/database"
	"github.com/dbsmedya/studyplan/internal/lock"
	"github.com/dbsmedya/studyplan/internal/replication"
	"github.com/dbsmedya/studyplan/internal/store"
	"github.com/dbsmedya/studyplan/internal/verifier"
)

var (
	replicateRequest string
	replicateDryRun  bool
	replicateForce   bool
)

var replicateCmd = &cobra.Command{
	Use:   "replicate",
	Short: "Copy a study unit into other tenants",
	Long: `Replicate creates a study unit in every target listed in a request
file. Taxonomy bindings are matched by title in each target tenant's own
tree; titles without a match are reported as warnings and the unit is still
created. Each target is committed on its own: a failing target does not
undo the others.

Request file:
  source_tenant: acme          # with source_unit, loads the unit from the store
  source_unit: 5c1f...
  # or an inline source:
  # source:
  #   unit: {number: "1", type: theory}
  #   nodes: [{title: Crase, kind: topic, parent: Português}]
  #   filters: {subjects: [Português], years: [2023]}
  #   match_count: 120
  targets:
    - tenant: globex
      round_id: 8d0e...
      unit_number: "3"
    - tenant: initech
      new_round: {number: 2, title: Reta final}
      unit_number: "1"

Example:
  studyplan replicate --request batch.yaml --dry-run
  studyplan replicate --request batch.yaml --concurrency 8`,
	RunE: runReplicate,
}

func init() {
	replicateCmd.Flags().StringVarP(&replicateRequest, "request", "r", "",
		"Path to the replication request file (required)")
	replicateCmd.MarkFlagRequired("request")

	replicateCmd.Flags().BoolVar(&replicateDryRun, "dry-run", false,
		"Show what would be created without writing")
	replicateCmd.Flags().BoolVar(&replicateForce, "force", false,
		"Skip the advisory lock that prevents concurrent replication of the same source (use with caution)")

	rootCmd.AddCommand(replicateCmd)
}

func runReplicate(cmd *cobra.Command, args []string) error {
	req, err := replication.LoadRequest(replicateRequest)
	if err != nil {
		return err
	}

	s, err := openSession(context.Background(), false)
	if err != nil {
		return err
	}
	defer s.Close()

	log := s.log.WithFields(map[string]interface{}{"request": replicateRequest, "source": req.LockKey()})
	ctx, cancel := database.SetupSignalHandler(func(sig os.Signal) {
		log.Warnw("Received shutdown signal - remaining targets will fail", "signal", sig)
	})
	defer cancel()

	src, err := sourceOf(ctx, s.store, req)
	if err != nil {
		return err
	}

	engine, err := replication.NewEngine(replication.NewSQLStore(s.store), replication.Options{
		Concurrency:  s.cfg.Replication.Concurrency,
		Verification: verifier.VerificationMethod(s.cfg.Replication.Verify),
		Recorder:     s.store,
		Logger:       s.log,
	})
	if err != nil {
		return err
	}

	if replicateDryRun {
		plans, err := engine.Plan(ctx, src, req.Targets)
		if err != nil {
			return err
		}
		printPlan(plans)
		return nil
	}

	var result *replication.Result
	run := func() error {
		result, err = engine.Replicate(ctx, src, req.Targets)
		return err
	}

	if s.store.Dialect() != store.DialectMySQL || replicateForce {
		if replicateForce {
			log.Warnw("Skipping advisory lock acquisition (--force flag used)")
		}
		err = run()
	} else {
		err = lock.WithReplicationLock(ctx, s.manager.Plans, req.LockKey(), s.cfg.Replication.LockTimeoutSeconds, run)
		if errors.Is(err, lock.ErrLockTimeout) {
			return fmt.Errorf("source %q is already being replicated by another instance (use --force to override)", req.LockKey())
		}
	}
	if err != nil {
		return fmt.Errorf("replication failed: %w", err)
	}

	for _, f := range result.Failures {
		if replication.IsStep(f.Err, replication.StepVerify) {
			log.Errorw("Copy did not match its source and was rolled back", "target", f.Index, "tenant", f.Target.TenantID)
		}
	}

	printResult(result)
	if len(result.Failures) > 0 {
		return fmt.Errorf("replication completed with %d failed target(s)", len(result.Failures))
	}
	return nil
}

// sourceOf returns the inline source or loads the named unit.
func sourceOf(ctx context.Context, st *store.Store, req *replication.Request) (replication.SourceUnit, error) {
	if req.Source != nil {
		return *req.Source, nil
	}

	unit, err := st.LoadUnit(ctx, req.SourceUnitID)
	if err != nil {
		return replication.SourceUnit{}, err
	}
	if unit.TenantID != req.SourceTenantID {
		return replication.SourceUnit{}, fmt.Errorf("unit %s does not belong to tenant %s", unit.ID, req.SourceTenantID)
	}
	tree, err := st.LoadTaxonomy(ctx, req.SourceTenantID)
	if err != nil {
		return replication.SourceUnit{}, err
	}
	return replication.SourceFromUnit(tree, unit), nil
}

func printResult(result *replication.Result) {
	printHeader("Replication %s", result.BatchID)

	fmt.Fprintln(outputWriter)
	printSection("Succeeded")
	if len(result.Successes) == 0 {
		fmt.Fprintln(outputWriter, "  (none)")
	}
	for _, s := range result.Successes {
		fmt.Fprintf(outputWriter, "  %s [%d] %s unit %s (round %s)\n",
			paint(colorOK, "✓"), s.Index, s.Target.TenantID, s.UnitID, s.RoundID)
	}

	if warnings := result.Warnings(); len(warnings) > 0 {
		fmt.Fprintln(outputWriter)
		printSection("Warnings")
		for _, w := range warnings {
			fmt.Fprintf(outputWriter, "  %s %s\n", paint(colorWarn, "!"), w)
		}
	}

	if len(result.Failures) > 0 {
		fmt.Fprintln(outputWriter)
		printSection("Failed")
		for _, f := range result.Failures {
			fmt.Fprintf(outputWriter, "  %s [%d] %s: %s\n",
				paint(colorFail, "✗"), f.Index, f.Target.TenantID, f.Reason())
		}
	}
}

func printPlan(plans []replication.PlannedTarget) {
	printHeader("Replication Plan (dry run)")
	for _, p := range plans {
		fmt.Fprintln(outputWriter)
		printSection(fmt.Sprintf("Target %d: %s", p.Index, p.Target.TenantID))

		round := "use round " + p.Target.ExistingRoundID
		if p.RoundAction == replication.RoundCreate {
			round = fmt.Sprintf("create round %d", p.Target.NewRound.Number)
		}
		fmt.Fprintf(outputWriter, "  Round:  %s\n", round)
		fmt.Fprintf(outputWriter, "  Unit:   %s\n", p.Target.UnitNumber)

		for _, m := range p.Matches {
			fmt.Fprintf(outputWriter, "  %s %s -> %s\n", paint(colorOK, "✓"), m.Ref.Title, m.Path)
		}
		for _, title := range p.Unmatched {
			fmt.Fprintf(outputWriter, "  %s %s: no match\n", paint(colorWarn, "!"), title)
		}
		if p.Err != nil {
			fmt.Fprintf(outputWriter, "  %s would fail: %v\n", paint(colorFail, "✗"), p.Err)
		}
	}
}
