package cmd

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/studyplan/internal/facets"
	"github.com/dbsmedya/studyplan/internal/logger"
	"github.com/dbsmedya/studyplan/internal/types"
)

// downCorpus fails every query the way an unreachable corpus database does.
type downCorpus struct{}

func (downCorpus) CountMatches(context.Context, *types.FilterSet) (int64, error) {
	return 0, fmt.Errorf("%w: connection refused", types.ErrServiceUnavailable)
}

func (downCorpus) ListOptions(_ context.Context, facet types.Facet, _ *types.FilterSet) ([]string, error) {
	return nil, fmt.Errorf("failed to list %s options: %w: connection refused", facet, types.ErrServiceUnavailable)
}

func (downCorpus) ListTopicsForSubjects(context.Context, []string) ([]string, error) {
	return nil, fmt.Errorf("%w: connection refused", types.ErrServiceUnavailable)
}

func newDownEngine(t *testing.T) *facets.Engine {
	t.Helper()
	engine, err := facets.NewEngine(downCorpus{}, logger.NewNop())
	require.NoError(t, err)
	return engine
}

func TestShowFacetsDegradesWhenCorpusIsDown(t *testing.T) {
	buf := captureOutput(t)

	err := showFacets(context.Background(), newDownEngine(t), logger.NewNop(), facetRequest{
		seed:       &types.FilterSet{Subjects: []string{"PORT"}},
		selections: []facetSelection{{facet: types.FacetBoards, values: []string{"FGV"}}},
		toggles:    []facetSelection{{facet: types.FacetYears, values: []string{"2023"}}},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Matching questions: unknown")
	assert.Contains(t, out, "Results are stale")
	assert.Contains(t, out, "connection refused")
	assert.Contains(t, out, "FGV")
}

func TestShowFacetsValuesFailsWhenCorpusIsDown(t *testing.T) {
	captureOutput(t)

	err := showFacets(context.Background(), newDownEngine(t), logger.NewNop(), facetRequest{
		listFacet: types.FacetBoards,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrServiceUnavailable))
	assert.Contains(t, err.Error(), "failed to load facet values")
}

func TestShowFacetsRejectsInvalidSelection(t *testing.T) {
	captureOutput(t)

	err := showFacets(context.Background(), newDownEngine(t), logger.NewNop(), facetRequest{
		selections: []facetSelection{{facet: types.FacetYears, values: []string{"last year"}}},
	})
	assert.Error(t, err)
}
