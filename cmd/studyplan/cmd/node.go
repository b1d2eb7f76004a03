package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/studyplan/internal/taxonomy"
)

var (
	nodeAddTitle    string
	nodeAddKind     string
	nodeAddParent   string
	nodeAddOrder    int
	nodeAddSubjects []string
	nodeAddTopics   []string

	nodeMoveParent string

	nodeFilterSubjects []string
	nodeFilterTopics   []string

	nodeDeleteYes bool
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Edit a tenant's taxonomy",
	Long: `Node groups the commands that change the taxonomy of a tenant.
Every subcommand requires --tenant.`,
}

var nodeAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a node",
	Long: `Add creates a node under --parent, or a root when --parent is empty.

Example:
  studyplan node add -t acme --kind subject --title "Português" --parent b1 --subject PORT`,
	Args: cobra.NoArgs,
	RunE: runNodeAdd,
}

var nodeMoveCmd = &cobra.Command{
	Use:   "move NODE_ID",
	Short: "Move a node under another parent",
	Long: `Move re-parents a node and its whole subtree. Omit --parent to make
the node a root. Moving a node under one of its own descendants is rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: runNodeMove,
}

var nodeRenameCmd = &cobra.Command{
	Use:   "rename NODE_ID TITLE",
	Short: "Change the title of a node",
	Args:  cobra.ExactArgs(2),
	RunE:  runNodeRename,
}

var nodeFilterCmd = &cobra.Command{
	Use:   "filter NODE_ID",
	Short: "Replace the own filter of a node",
	Long: `Filter replaces the subjects and topics a node carries itself.
Run it without --subject and --topic to clear the filter, after which the
node inherits from its nearest filtered ancestor again.`,
	Args: cobra.ExactArgs(1),
	RunE: runNodeFilter,
}

var nodeDeleteCmd = &cobra.Command{
	Use:   "delete NODE_ID",
	Short: "Delete a node and its subtree",
	Long: `Delete removes a node, every descendant, and their study unit bindings.
Without --yes it only lists what would be removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runNodeDelete,
}

func init() {
	nodeAddCmd.Flags().StringVar(&nodeAddTitle, "title", "", "Node title")
	nodeAddCmd.Flags().StringVar(&nodeAddKind, "kind", "", "Node kind: bloc, subject or topic")
	nodeAddCmd.Flags().StringVarP(&nodeAddParent, "parent", "p", "", "Parent node ID (empty for a root)")
	nodeAddCmd.Flags().IntVar(&nodeAddOrder, "order", 0, "Position among siblings")
	nodeAddCmd.Flags().StringSliceVar(&nodeAddSubjects, "subject", nil, "Subject filter values")
	nodeAddCmd.Flags().StringSliceVar(&nodeAddTopics, "topic", nil, "Topic filter values")
	_ = nodeAddCmd.MarkFlagRequired("title")
	_ = nodeAddCmd.MarkFlagRequired("kind")

	nodeMoveCmd.Flags().StringVarP(&nodeMoveParent, "parent", "p", "", "New parent node ID (empty for a root)")

	nodeFilterCmd.Flags().StringSliceVar(&nodeFilterSubjects, "subject", nil, "Subject filter values")
	nodeFilterCmd.Flags().StringSliceVar(&nodeFilterTopics, "topic", nil, "Topic filter values")

	nodeDeleteCmd.Flags().BoolVarP(&nodeDeleteYes, "yes", "y", false, "Delete without the preview")

	nodeCmd.AddCommand(nodeAddCmd, nodeMoveCmd, nodeRenameCmd, nodeFilterCmd, nodeDeleteCmd)
	rootCmd.AddCommand(nodeCmd)
}

func runNodeAdd(cmd *cobra.Command, args []string) error {
	tenant, err := requireTenant()
	if err != nil {
		return err
	}
	kind, err := taxonomy.ParseKind(nodeAddKind)
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.store.CreateNode(ctx, tenant, taxonomy.Node{
		ParentID:  nodeAddParent,
		Kind:      kind,
		Title:     nodeAddTitle,
		Order:     nodeAddOrder,
		OwnFilter: buildFilter(nodeAddSubjects, nodeAddTopics),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(outputWriter, "%s Added %s %q (%s)\n", paint(colorOK, "✓"), n.Kind, n.Title, n.ID)
	return nil
}

func runNodeMove(cmd *cobra.Command, args []string) error {
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

	if err := s.store.MoveNode(ctx, tenant, args[0], nodeMoveParent); err != nil {
		return err
	}
	target := "the root level"
	if nodeMoveParent != "" {
		target = nodeMoveParent
	}
	fmt.Fprintf(outputWriter, "%s Moved %s to %s\n", paint(colorOK, "✓"), args[0], target)
	return nil
}

func runNodeRename(cmd *cobra.Command, args []string) error {
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

	if err := s.store.RenameNode(ctx, tenant, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(outputWriter, "%s Renamed %s to %q\n", paint(colorOK, "✓"), args[0], args[1])
	return nil
}

func runNodeFilter(cmd *cobra.Command, args []string) error {
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

	f := buildFilter(nodeFilterSubjects, nodeFilterTopics)
	if err := s.store.UpdateOwnFilter(ctx, tenant, args[0], f); err != nil {
		return err
	}
	if f.IsEmpty() {
		fmt.Fprintf(outputWriter, "%s Cleared the filter of %s\n", paint(colorOK, "✓"), args[0])
		return nil
	}
	fmt.Fprintf(outputWriter, "%s Filter of %s: subjects %s; topics %s\n",
		paint(colorOK, "✓"), args[0], joinOrDash(f.Subjects), joinOrDash(f.Topics))
	return nil
}

func runNodeDelete(cmd *cobra.Command, args []string) error {
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

	if !nodeDeleteYes {
		tree, err := s.store.LoadTaxonomy(ctx, tenant)
		if err != nil {
			return err
		}
		return printDeletePreview(tree, args[0])
	}

	deleted, err := s.store.DeleteSubtree(ctx, tenant, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(outputWriter, "%s Deleted %d node(s)\n", paint(colorOK, "✓"), deleted)
	return nil
}

// buildFilter drops empty values left by flags such as --subject "".
func buildFilter(subjects, topics []string) taxonomy.Filter {
	return taxonomy.Filter{Subjects: nonEmpty(subjects), Topics: nonEmpty(topics)}
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func printDeletePreview(tree *taxonomy.Tree, nodeID string) error {
	nodes, err := tree.Subtree(nodeID)
	if err != nil {
		return err
	}
	leaves, err := tree.Leaves(nodeID)
	if err != nil {
		return err
	}
	printSection(fmt.Sprintf("Would delete %d node(s), %d leaf(s)", len(nodes), len(leaves)))
	for _, n := range nodes {
		fmt.Fprintf(outputWriter, "  %-7s  %s\n", n.Kind, tree.Path(n.ID))
	}
	fmt.Fprintf(outputWriter, "\n%s Nothing was deleted. Re-run with --yes to delete.\n", paint(colorWarn, "!"))
	return nil
}
