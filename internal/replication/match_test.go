package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/studyplan/internal/taxonomy"
	"github.com/dbsmedya/studyplan/internal/types"
)

func ambiguousTree(t *testing.T) *taxonomy.Tree {
	t.Helper()
	tree, err := taxonomy.NewTree("t1", []taxonomy.Node{
		{ID: "pt", Kind: taxonomy.KindSubject, Title: "Português", Order: 1},
		{ID: "pt-int", ParentID: "pt", Kind: taxonomy.KindTopic, Title: "Interpretação", Order: 1},
		{ID: "en", Kind: taxonomy.KindSubject, Title: "Inglês", Order: 2},
		{ID: "en-int", ParentID: "en", Kind: taxonomy.KindTopic, Title: "Interpretação", Order: 1},
		{ID: "en-sub", ParentID: "en", Kind: taxonomy.KindSubject, Title: "interpretacao", Order: 2},
	})
	require.NoError(t, err)
	return tree
}

func TestMatchNodes(t *testing.T) {
	tree := ambiguousTree(t)

	tests := []struct {
		name      string
		refs      []NodeRef
		expected  []string
		unmatched []string
	}{
		{
			name:     "first in display order without parent hint",
			refs:     []NodeRef{{Title: "Interpretação", Kind: "topic"}},
			expected: []string{"pt-int"},
		},
		{
			name:     "parent title disambiguates",
			refs:     []NodeRef{{Title: "interpretação", Kind: "topic", ParentTitle: "INGLES"}},
			expected: []string{"en-int"},
		},
		{
			name:     "unknown parent title falls back to first",
			refs:     []NodeRef{{Title: "Interpretação", Kind: "topic", ParentTitle: "Espanhol"}},
			expected: []string{"pt-int"},
		},
		{
			name:     "kind restricts candidates",
			refs:     []NodeRef{{Title: "Interpretação", Kind: "subject"}},
			expected: []string{"en-sub"},
		},
		{
			name:     "duplicate references bind once",
			refs:     []NodeRef{{Title: "Português"}, {Title: "portugues"}},
			expected: []string{"pt"},
		},
		{
			name:      "unmatched titles keep source order",
			refs:      []NodeRef{{Title: "Redação"}, {Title: "Inglês"}, {Title: "Espanhol"}},
			expected:  []string{"en"},
			unmatched: []string{"Redação", "Espanhol"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, unmatched := matchNodes(tree, tt.refs)
			assert.Equal(t, tt.expected, matchedIDs(matches))
			assert.Equal(t, tt.unmatched, unmatched)
		})
	}
}

func TestMatchNodesEmpty(t *testing.T) {
	matches, unmatched := matchNodes(ambiguousTree(t), nil)
	assert.Nil(t, matchedIDs(matches))
	assert.Nil(t, unmatched)
}

func TestSourceFromUnit(t *testing.T) {
	tree := ambiguousTree(t)
	unit := &types.Unit{
		ID:         "u1",
		Spec:       types.UnitSpec{Number: "3", Type: "review"},
		NodeIDs:    []string{"en-int", "gone", "pt"},
		Filters:    &types.FilterSet{Subjects: []string{"Inglês"}},
		MatchCount: 9,
	}

	src := SourceFromUnit(tree, unit)
	assert.Equal(t, unit.Spec, src.Spec)
	assert.Equal(t, int64(9), src.MatchCount)
	assert.Equal(t, []NodeRef{
		{Title: "Interpretação", Kind: "topic", ParentTitle: "Inglês"},
		{Title: "Português", Kind: "subject"},
	}, src.Nodes)
	assert.True(t, src.Filters.Equal(unit.Filters))
	assert.NotSame(t, unit.Filters, src.Filters)

	// the derived source resolves back to the same nodes
	matches, unmatched := matchNodes(tree, src.Nodes)
	assert.Equal(t, []string{"en-int", "pt"}, matchedIDs(matches))
	assert.Empty(t, unmatched)
}
