package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/studyplan/internal/taxonomy"
	"github.com/dbsmedya/studyplan/internal/usage"
)

var (
	treeUnit    string
	treeMaxCols int
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show a tenant's taxonomy with availability",
	Long: `Tree prints the taxonomy of a tenant in display order. Each node is
marked with its availability: leaves already bound to another study unit
are unavailable, and containers show how many leaves below them are free.

Use --unit to view availability while editing that unit: its own bindings
stay available.

Example:
  studyplan tree --tenant acme
  studyplan tree --tenant acme --unit 5c1f...`,
	RunE: runTree,
}

func init() {
	treeCmd.Flags().StringVarP(&treeUnit, "unit", "u", "",
		"Study unit being edited (its bindings stay available)")
	treeCmd.Flags().IntVar(&treeMaxCols, "width", 60,
		"Maximum width of the title column")

	rootCmd.AddCommand(treeCmd)
}

func runTree(cmd *cobra.Command, args []string) error {
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

	scope := usage.Scope{TenantID: tenant, UnitID: treeUnit}
	if treeUnit != "" {
		unit, err := s.store.LoadUnit(ctx, treeUnit)
		if err != nil {
			return err
		}
		scope.OwnSelection = unit.NodeIDs
	}

	reg, err := usage.Build(ctx, tree, s.store, scope)
	if err != nil {
		return err
	}

	printHeader("Taxonomy: %s", tenant)
	renderTree(tree, reg, scope.OwnSelection, treeMaxCols)
	fmt.Fprintf(outputWriter, "\n%d nodes, %d leaves bound to other units\n", tree.Len(), reg.UsedCount())
	return nil
}

type treeLine struct {
	label    string
	state    usage.State
	leaf     bool
	free     int
	selected int
	kind     taxonomy.Kind
}

// renderTree prints one line per reachable node with a right-hand status column.
// Leaves in selection are counted next to their containers.
func renderTree(tree *taxonomy.Tree, reg *usage.Registry, selection []string, maxCols int) {
	var lines []treeLine
	width := 0
	tree.Walk(func(n taxonomy.Node, depth int) bool {
		l := treeLine{
			label:    strings.Repeat("  ", depth) + n.Title,
			state:    reg.State(n.ID),
			leaf:     tree.IsLeaf(n.ID),
			free:     reg.CountAvailable(n.ID),
			selected: reg.CountSelected(n.ID, selection),
			kind:     n.Kind,
		}
		lines = append(lines, l)
		if w := runewidth.StringWidth(l.label); w > width {
			width = w
		}
		return true
	})

	if maxCols > 0 && width > maxCols {
		width = maxCols
	}

	for _, l := range lines {
		fmt.Fprintf(outputWriter, "%s  %-7s  %s\n", padRight(l.label, width), l.kind, statusText(l))
	}
}

func statusText(l treeLine) string {
	text := availabilityText(l)
	switch {
	case l.selected == 0:
		return text
	case l.leaf:
		return text + ", " + paint(colorOK, "selected")
	default:
		return text + ", " + paint(colorOK, fmt.Sprintf("%d selected", l.selected))
	}
}

func availabilityText(l treeLine) string {
	switch l.state {
	case usage.Available:
		if l.leaf {
			return paint(colorOK, "available")
		}
		return paint(colorOK, fmt.Sprintf("%d free", l.free))
	case usage.DisabledWithAvailableChildren:
		return paint(colorWarn, fmt.Sprintf("in use, %d free below", l.free))
	default:
		return paint(colorMuted, "in use")
	}
}
