package facets

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dbsmedya/studyplan/internal/types"
)

type recomputation struct {
	available  map[types.Facet][]string
	matchCount int64
}

// compute queries the corpus for one selection state. Each static facet is
// constrained by the selections of all the other facets. Topics are listed
// only for the selected subjects. The result depends on the state alone.
func compute(ctx context.Context, corpus Corpus, selection *types.FilterSet) (*recomputation, error) {
	res := &recomputation{available: make(map[types.Facet][]string, len(types.AllFacets))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	for _, facet := range types.StaticFacets {
		constraints := selection.Without(facet)
		g.Go(func() error {
			values, err := corpus.ListOptions(gctx, facet, constraints)
			if err != nil {
				return fmt.Errorf("failed to list %s options: %w", facet, err)
			}
			mu.Lock()
			res.available[facet] = sortedUnique(values)
			mu.Unlock()
			return nil
		})
	}

	if subjects := selection.Values(types.FacetSubjects); len(subjects) > 0 {
		g.Go(func() error {
			topics, err := corpus.ListTopicsForSubjects(gctx, subjects)
			if err != nil {
				return fmt.Errorf("failed to list topics: %w", err)
			}
			mu.Lock()
			res.available[types.FacetTopics] = sortedUnique(topics)
			mu.Unlock()
			return nil
		})
	}

	g.Go(func() error {
		count, err := corpus.CountMatches(gctx, selection)
		if err != nil {
			return fmt.Errorf("failed to count matches: %w", err)
		}
		res.matchCount = count
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}
