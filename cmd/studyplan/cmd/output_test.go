package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/studyplan/internal/facets"
	"github.com/dbsmedya/studyplan/internal/replication"
	"github.com/dbsmedya/studyplan/internal/resolver"
	"github.com/dbsmedya/studyplan/internal/taxonomy"
	"github.com/dbsmedya/studyplan/internal/types"
	"github.com/dbsmedya/studyplan/internal/usage"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	setOutputWriter(&buf)
	t.Cleanup(resetOutputWriter)
	return &buf
}

func sampleTree(t *testing.T) *taxonomy.Tree {
	t.Helper()
	tree, err := taxonomy.NewTree("acme", []taxonomy.Node{
		{ID: "b1", Kind: taxonomy.KindBloc, Title: "Bloco I"},
		{ID: "pt", ParentID: "b1", Kind: taxonomy.KindSubject, Title: "Português", Order: 1,
			OwnFilter: taxonomy.Filter{Subjects: []string{"Língua Portuguesa"}}},
		{ID: "crase", ParentID: "pt", Kind: taxonomy.KindTopic, Title: "Crase", Order: 1,
			OwnFilter: taxonomy.Filter{Topics: []string{"Crase"}}},
		{ID: "conc", ParentID: "pt", Kind: taxonomy.KindTopic, Title: "Concordância verbal e nominal", Order: 2},
	})
	require.NoError(t, err)
	return tree
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "Crase ", padRight("Crase", 6))
	assert.Equal(t, "Concordân…", padRight("Concordância", 10))
	assert.Equal(t, "ab", padRight("ab", 2))
}

func TestRenderTree(t *testing.T) {
	buf := captureOutput(t)
	tree := sampleTree(t)

	reg, err := usage.NewRegistry(tree, []string{"crase"}, usage.Scope{TenantID: "acme"})
	require.NoError(t, err)

	renderTree(tree, reg, nil, 20)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Bloco I "))
	assert.Contains(t, lines[0], "1 free")
	assert.True(t, strings.HasPrefix(lines[2], "    Crase "))
	assert.Contains(t, lines[2], "in use")
	assert.Contains(t, lines[3], "…")
	assert.Contains(t, lines[3], "available")

	// status columns line up regardless of accents
	col := strings.Index(lines[0], "bloc")
	assert.Equal(t, col, strings.Index(lines[2], "topic"))
}

func TestRenderTreeWithSelection(t *testing.T) {
	buf := captureOutput(t)
	tree := sampleTree(t)

	reg, err := usage.NewRegistry(tree, []string{"crase"}, usage.Scope{TenantID: "acme"})
	require.NoError(t, err)

	renderTree(tree, reg, []string{"conc"}, 60)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "1 free, 1 selected")
	assert.NotContains(t, lines[2], "selected")
	assert.True(t, strings.HasSuffix(lines[3], "available, selected"))
}

func TestPrintResolution(t *testing.T) {
	buf := captureOutput(t)
	tree := sampleTree(t)

	res, err := resolver.Explain(tree, []string{"crase", "conc", "missing"})
	require.NoError(t, err)
	require.NoError(t, printResolution(tree, res))

	out := buf.String()
	assert.Contains(t, out, "Bloco I / Português / Crase")
	assert.Contains(t, out, "subjects: Língua Portuguesa (inherited from Bloco I / Português)")
	assert.Contains(t, out, "topics:   Crase")
	assert.Contains(t, out, "topics:   -")
	assert.Contains(t, out, "missing: not found, skipped")
	assert.Contains(t, out, "subjects:\n    - Língua Portuguesa")
}

func TestPrintResolutionEmpty(t *testing.T) {
	buf := captureOutput(t)
	tree := sampleTree(t)

	res, err := resolver.Explain(tree, []string{"b1"})
	require.NoError(t, err)
	require.NoError(t, printResolution(tree, res))
	assert.Contains(t, buf.String(), "no filter")
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		facet     types.Facet
		values    []string
		expectErr bool
		errMsg    string
	}{
		{name: "single value", input: "boards=FGV", facet: types.FacetBoards, values: []string{"FGV"}},
		{name: "several values", input: "years= 2022 , 2023", facet: types.FacetYears, values: []string{"2022", "2023"}},
		{name: "clear facet", input: "topics=", facet: types.FacetTopics},
		{name: "case insensitive facet", input: "Modalities=true_false", facet: types.FacetModalities, values: []string{"true_false"}},
		{name: "missing equals", input: "boards", expectErr: true, errMsg: "expected facet=value"},
		{name: "unknown facet", input: "colors=red", expectErr: true, errMsg: "unknown facet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := parseSelection(tt.input)
			if tt.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.facet, sel.facet)
			assert.Equal(t, tt.values, sel.values)
		})
	}
}

func TestPrintSnapshot(t *testing.T) {
	buf := captureOutput(t)

	printSnapshot(facets.Snapshot{
		Options: map[types.Facet][]facets.Option{
			types.FacetBoards: {
				{Value: "FGV", Selected: true, Available: true},
				{Value: "CESPE", Selected: true},
				{Value: "VUNESP", Available: true},
			},
		},
		MatchCount: 12,
		CountKnown: true,
		Stale:      true,
		LastError:  "corpus timeout",
	}, nil)

	out := buf.String()
	assert.Contains(t, out, "[boards]")
	assert.NotContains(t, out, "[years]")
	assert.Contains(t, out, "[x] FGV")
	assert.Contains(t, out, "[!] CESPE")
	assert.Contains(t, out, "[ ] VUNESP")
	assert.Contains(t, out, "Matching questions: 12")
	assert.Contains(t, out, "Results are stale: corpus timeout")
}

func TestPrintSnapshotError(t *testing.T) {
	buf := captureOutput(t)
	printSnapshot(facets.Snapshot{}, errors.New("unknown facet"))
	assert.Contains(t, buf.String(), "unknown facet")
}

func TestPrintResult(t *testing.T) {
	buf := captureOutput(t)

	printResult(&replication.Result{
		BatchID: "batch-1",
		Successes: []replication.Success{
			{Index: 0, Target: replication.Target{TenantID: "globex"}, UnitID: "u-1", RoundID: "r-1", Unmatched: []string{"Regência"}},
		},
		Failures: []replication.Failure{
			{Index: 1, Target: replication.Target{TenantID: "initech"},
				Err: &replication.TargetFailure{Step: replication.StepRound, Err: errors.New("duplicate round")}},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Replication batch-1")
	assert.Contains(t, out, "✓ [0] globex unit u-1 (round r-1)")
	assert.Contains(t, out, `! target 0 (globex): no node titled "Regência"`)
	assert.Contains(t, out, "✗ [1] initech: round: duplicate round")
}

func TestPrintPlan(t *testing.T) {
	buf := captureOutput(t)

	printPlan([]replication.PlannedTarget{
		{
			Index:       0,
			Target:      replication.Target{TenantID: "globex", ExistingRoundID: "r-1", UnitNumber: "3"},
			RoundAction: replication.RoundExisting,
			Matches:     []replication.Match{{Ref: replication.NodeRef{Title: "Crase"}, NodeID: "n1", Path: "Português / Crase"}},
			Unmatched:   []string{"Regência"},
		},
		{
			Index:       1,
			Target:      replication.Target{TenantID: "initech", NewRound: &types.RoundSpec{Number: 2}, UnitNumber: "1"},
			RoundAction: replication.RoundCreate,
			Err:         &replication.TargetFailure{Step: replication.StepLoadTree, Err: errors.New("offline")},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "[Target 0: globex]")
	assert.Contains(t, out, "Round:  use round r-1")
	assert.Contains(t, out, "✓ Crase -> Português / Crase")
	assert.Contains(t, out, "! Regência: no match")
	assert.Contains(t, out, "Round:  create round 2")
	assert.Contains(t, out, "✗ would fail: load_tree: offline")
}

func TestReportTree(t *testing.T) {
	buf := captureOutput(t)
	assert.True(t, reportTree("acme", sampleTree(t)))
	assert.Contains(t, buf.String(), "All checks passed")

	buf.Reset()
	cyclic, err := taxonomy.NewTree("bad", []taxonomy.Node{
		{ID: "root", Title: "Root", Kind: taxonomy.KindBloc},
		{ID: "a", ParentID: "b", Title: "A", Kind: taxonomy.KindSubject},
		{ID: "b", ParentID: "a", Title: "B", Kind: taxonomy.KindSubject},
		{ID: "o", ParentID: "gone", Title: "Orphan", Kind: taxonomy.KindTopic},
	})
	require.NoError(t, err)

	assert.False(t, reportTree("bad", cyclic))
	out := buf.String()
	assert.Contains(t, out, `Orphan node o ("Orphan"): parent gone is missing`)
	assert.Contains(t, out, "Cycle detected: 2 nodes")
}

func TestParseSelections(t *testing.T) {
	sels, err := parseSelections([]string{"boards=FGV", "years=2022, 2023"})
	require.NoError(t, err)
	require.Len(t, sels, 2)
	assert.Equal(t, types.FacetYears, sels[1].facet)
	assert.Equal(t, []string{"2022", "2023"}, sels[1].values)

	_, err = parseSelections([]string{"boards=FGV", "colors=red"})
	assert.Error(t, err)
}

func TestPrintUniverse(t *testing.T) {
	buf := captureOutput(t)
	printUniverse(types.FacetBoards, []string{"CESPE", "FGV"})

	out := buf.String()
	assert.Contains(t, out, "[boards]")
	assert.Contains(t, out, "  CESPE\n  FGV\n")
	assert.Contains(t, out, "2 value(s)")
}
