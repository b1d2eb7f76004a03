package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/studyplan/internal/facets"
	"github.com/dbsmedya/studyplan/internal/logger"
	"github.com/dbsmedya/studyplan/internal/resolver"
	"github.com/dbsmedya/studyplan/internal/types"
)

var (
	facetNodes   []string
	facetSelects []string
	facetToggles []string
	facetValues  string
)

var facetsCmd = &cobra.Command{
	Use:   "facets",
	Short: "Show facet options and match count for a selection",
	Long: `Facets resolves the filter of the given taxonomy nodes, applies extra
facet selections and prints, for every facet, which values are selected and
which are still available given the other selections, plus the number of
matching questions.

Selections take the form facet=value[,value...]. Facets: subjects, topics,
boards, years, organizations, positions, schooling, modalities.

--toggle flips single values on top of the seeded selection, which is handy
for dropping one subject a node inherits. --values lists every known value
of one facet and exits.

Example:
  studyplan facets --tenant acme --node 3f2a... --select boards=FGV --select years=2022,2023
  studyplan facets --tenant acme --node 3f2a... --toggle subjects=PORT
  studyplan facets --values boards`,
	RunE: runFacets,
}

func init() {
	facetsCmd.Flags().StringSliceVarP(&facetNodes, "node", "n", nil,
		"Taxonomy node IDs whose filter seeds the selection")
	facetsCmd.Flags().StringArrayVarP(&facetSelects, "select", "s", nil,
		"Facet selection as facet=value[,value...] (repeatable)")
	facetsCmd.Flags().StringArrayVar(&facetToggles, "toggle", nil,
		"Toggle facet values as facet=value[,value...] after the selections (repeatable)")
	facetsCmd.Flags().StringVar(&facetValues, "values", "",
		"List every known value of a facet and exit")

	rootCmd.AddCommand(facetsCmd)
}

func runFacets(cmd *cobra.Command, args []string) error {
	selections, err := parseSelections(facetSelects)
	if err != nil {
		return err
	}
	toggles, err := parseSelections(facetToggles)
	if err != nil {
		return err
	}
	var listFacet types.Facet
	if facetValues != "" {
		if listFacet, err = types.ParseFacet(facetValues); err != nil {
			return err
		}
	}

	ctx := context.Background()
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	var seed *types.FilterSet
	if len(facetNodes) > 0 {
		tenant, err := requireTenant()
		if err != nil {
			return err
		}
		tree, err := s.store.LoadTaxonomy(ctx, tenant)
		if err != nil {
			return err
		}
		if seed, err = resolver.Resolve(tree, facetNodes); err != nil {
			return err
		}
	}

	svc, err := s.manager.CorpusService(s.log)
	if err != nil {
		return err
	}
	engine, err := facets.NewEngine(svc, s.log)
	if err != nil {
		return err
	}
	return showFacets(ctx, engine, s.log, facetRequest{
		seed:       seed,
		selections: selections,
		toggles:    toggles,
		listFacet:  listFacet,
	})
}

type facetRequest struct {
	seed       *types.FilterSet
	selections []facetSelection
	toggles    []facetSelection
	listFacet  types.Facet
}

// showFacets applies the request to the engine and prints the result. An
// unreachable corpus only fails --values; otherwise the snapshot is printed
// as stale with an unknown count.
func showFacets(ctx context.Context, engine *facets.Engine, log *logger.Logger, req facetRequest) error {
	if err := engine.Load(ctx); err != nil {
		if req.listFacet != "" {
			return fmt.Errorf("failed to load facet values: %w", err)
		}
		log.Warnw("Facet values unavailable, continuing with a stale view", "error", err)
	}
	if req.listFacet != "" {
		printUniverse(req.listFacet, engine.Universe(req.listFacet))
		return nil
	}

	if req.seed != nil {
		if _, err := engine.Seed(ctx, req.seed); err != nil {
			return err
		}
	}
	for _, sel := range req.selections {
		if _, err := engine.Select(ctx, sel.facet, sel.values); err != nil {
			return err
		}
	}
	for _, tog := range req.toggles {
		for _, v := range tog.values {
			if _, err := engine.Toggle(ctx, tog.facet, v); err != nil {
				return err
			}
		}
	}

	printSnapshot(engine.Refresh(ctx))
	return nil
}

func parseSelections(raw []string) ([]facetSelection, error) {
	out := make([]facetSelection, 0, len(raw))
	for _, r := range raw {
		sel, err := parseSelection(r)
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, nil
}

func printUniverse(facet types.Facet, values []string) {
	printSection(string(facet))
	for _, v := range values {
		fmt.Fprintf(outputWriter, "  %s\n", v)
	}
	fmt.Fprintf(outputWriter, "\n%d value(s)\n", len(values))
}

type facetSelection struct {
	facet  types.Facet
	values []string
}

// parseSelection parses "facet=v1,v2". An empty value list clears the facet.
func parseSelection(raw string) (facetSelection, error) {
	name, list, ok := strings.Cut(raw, "=")
	if !ok {
		return facetSelection{}, fmt.Errorf("invalid selection %q: expected facet=value[,value...]", raw)
	}
	facet, err := types.ParseFacet(name)
	if err != nil {
		return facetSelection{}, err
	}

	var values []string
	for _, v := range strings.Split(list, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return facetSelection{facet: facet, values: values}, nil
}

func printSnapshot(snap facets.Snapshot, err error) {
	if err != nil {
		fmt.Fprintf(outputWriter, "%s %v\n", paint(colorFail, "✗"), err)
		return
	}

	printHeader("Facets")
	for _, facet := range types.AllFacets {
		opts := snap.Options[facet]
		if len(opts) == 0 {
			continue
		}
		fmt.Fprintln(outputWriter)
		printSection(string(facet))
		for _, o := range opts {
			fmt.Fprintf(outputWriter, "  %s %s\n", optionMarker(o), o.Value)
		}
	}

	fmt.Fprintln(outputWriter)
	if snap.CountKnown {
		fmt.Fprintf(outputWriter, "Matching questions: %d\n", snap.MatchCount)
	} else {
		fmt.Fprintln(outputWriter, "Matching questions: unknown")
	}
	if snap.Stale {
		fmt.Fprintf(outputWriter, "%s Results are stale: %s\n", paint(colorWarn, "!"), snap.LastError)
	}
}

func optionMarker(o facets.Option) string {
	switch {
	case o.Selected && o.Available:
		return paint(colorOK, "[x]")
	case o.Selected:
		return paint(colorWarn, "[!]")
	case o.Available:
		return "[ ]"
	default:
		return paint(colorMuted, "[-]")
	}
}
