package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/studyplan/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history BATCH_ID",
	Short: "Show the recorded results of a replication batch",
	Long: `History reads the replication log and prints the outcome of every
target of a batch, in the order the targets were submitted. The batch ID
is printed at the top of every replicate run.

Example:
  studyplan history 6f0b1c9e-...`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	outcomes, err := s.store.ListOutcomes(ctx, args[0])
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		return fmt.Errorf("no recorded outcomes for batch %s", args[0])
	}
	printOutcomes(args[0], outcomes)
	return nil
}

func printOutcomes(batchID string, outcomes []store.Outcome) {
	printHeader("Replication %s", batchID)

	failed := 0
	for _, o := range outcomes {
		if o.Status != store.OutcomeSuccess {
			failed++
			fmt.Fprintf(outputWriter, "  %s [%d] %s: %s\n",
				paint(colorFail, "✗"), o.TargetIndex, o.TenantID, o.Reason)
			continue
		}
		fmt.Fprintf(outputWriter, "  %s [%d] %s unit %s\n",
			paint(colorOK, "✓"), o.TargetIndex, o.TenantID, o.UnitID)
		if len(o.Unmatched) > 0 {
			fmt.Fprintf(outputWriter, "      %s unmatched: %s\n",
				paint(colorWarn, "!"), strings.Join(o.Unmatched, ", "))
		}
	}
	fmt.Fprintf(outputWriter, "\n%d target(s), %d failed\n", len(outcomes), failed)
}
