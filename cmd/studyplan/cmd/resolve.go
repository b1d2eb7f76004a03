package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dbsmedya/studyplan/internal/resolver"
	"github.com/dbsmedya/studyplan/internal/taxonomy"
	"github.com/dbsmedya/studyplan/internal/types"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve NODE_ID...",
	Short: "Resolve the effective filter of selected taxonomy nodes",
	Long: `Resolve computes the subject and topic filter of a selection of
taxonomy nodes. A node without subjects of its own inherits them from the
nearest ancestor that has some; topics are never inherited.

Example:
  studyplan resolve --tenant acme 3f2a... 9bc0...`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	tenant, err := requireTenant()
	if err != nil {
		return err
	}
	ctx := context.Background()

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	tree, err := s.store.LoadTaxonomy(ctx, tenant)
	if err != nil {
		return err
	}

	res, err := resolver.Explain(tree, args)
	if err != nil {
		return err
	}
	return printResolution(tree, res)
}

func printResolution(tree *taxonomy.Tree, res *resolver.Result) error {
	printSection("Contributions")
	for _, c := range res.Contributions {
		if c.Skipped {
			fmt.Fprintf(outputWriter, "  %s %s: not found, skipped\n", paint(colorWarn, "!"), c.NodeID)
			continue
		}

		origin := "none"
		switch {
		case c.SubjectsFrom == c.NodeID:
			origin = "own"
		case c.SubjectsFrom != "":
			origin = "inherited from " + tree.Path(c.SubjectsFrom)
		}
		fmt.Fprintf(outputWriter, "  %s\n", tree.Path(c.NodeID))
		fmt.Fprintf(outputWriter, "    subjects: %s (%s)\n", joinOrDash(c.Subjects), origin)
		fmt.Fprintf(outputWriter, "    topics:   %s\n", joinOrDash(c.Topics))
		if c.CycleDetected {
			fmt.Fprintf(outputWriter, "    %s ancestor walk stopped at a cycle\n", paint(colorWarn, "!"))
		}
	}

	fmt.Fprintln(outputWriter)
	printSection("Filter")
	if res.Filter == nil {
		fmt.Fprintln(outputWriter, "  (no filter: the selection contributes nothing)")
		return nil
	}
	return writeFilter(res.Filter)
}

func writeFilter(f *types.FilterSet) error {
	out, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode filter: %w", err)
	}
	_, err = outputWriter.Write(out)
	return err
}
