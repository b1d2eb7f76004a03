package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/studyplan/internal/types"
)

func TestAdd(t *testing.T) {
	tree := sampleTree(t)

	err := tree.Add(Node{ID: "top-reg", ParentID: "subj-port", Kind: KindTopic, Title: "Regência", Order: 3})
	require.NoError(t, err)

	children, err := tree.Children("subj-port")
	require.NoError(t, err)
	assert.Equal(t, []string{"top-crase", "top-conc", "top-reg"}, ids(children))
	assert.Equal(t, []string{"top-reg"}, ids(tree.FindByTitle("regencia", KindAny)))

	assert.Error(t, tree.Add(Node{ID: "top-reg", Kind: KindTopic}))
	assert.ErrorIs(t, tree.Add(Node{ID: "x", ParentID: "ghost", Kind: KindTopic}), types.ErrNotFound)
	assert.Error(t, tree.Add(Node{Kind: KindTopic}))
}

func TestMoveInvalidatesAncestorCache(t *testing.T) {
	tree := sampleTree(t)

	anc, err := tree.Ancestors("top-crase")
	require.NoError(t, err)
	assert.Equal(t, []string{"subj-port", "bloc-1"}, ids(anc))

	require.NoError(t, tree.Move("top-crase", "subj-mat"))

	anc, err = tree.Ancestors("top-crase")
	require.NoError(t, err)
	assert.Equal(t, []string{"subj-mat", "bloc-1"}, ids(anc))

	children, err := tree.Children("subj-port")
	require.NoError(t, err)
	assert.Equal(t, []string{"top-conc"}, ids(children))
}

func TestMoveToRoot(t *testing.T) {
	tree := sampleTree(t)

	require.NoError(t, tree.Move("subj-mat", ""))
	assert.Contains(t, ids(tree.Roots()), "subj-mat")

	anc, err := tree.Ancestors("subj-mat")
	require.NoError(t, err)
	assert.Empty(t, anc)
}

func TestMoveRejectsCycle(t *testing.T) {
	tree := sampleTree(t)

	tests := []struct {
		name      string
		id        string
		newParent string
	}{
		{name: "under itself", id: "bloc-1", newParent: "bloc-1"},
		{name: "under child", id: "bloc-1", newParent: "subj-port"},
		{name: "under grandchild", id: "bloc-1", newParent: "top-crase"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tree.Move(tt.id, tt.newParent)
			assert.ErrorIs(t, err, ErrCycleDetected)
		})
	}

	require.NoError(t, tree.Validate())
	assert.ErrorIs(t, tree.Move("missing", ""), types.ErrNotFound)
	assert.ErrorIs(t, tree.Move("top-crase", "ghost"), types.ErrNotFound)
}

func TestRemoveSubtree(t *testing.T) {
	tree := sampleTree(t)
	_, _ = tree.Ancestors("top-crase")

	removed, err := tree.RemoveSubtree("subj-port")
	require.NoError(t, err)
	assert.Equal(t, []string{"subj-port", "top-crase", "top-conc"}, removed)
	assert.Equal(t, 3, tree.Len())

	_, err = tree.GetNode("top-crase")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = tree.Ancestors("top-crase")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Empty(t, tree.FindByTitle("Crase", KindAny))

	children, err := tree.Children("bloc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"subj-mat"}, ids(children))

	_, err = tree.RemoveSubtree("subj-port")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSetOwnFilter(t *testing.T) {
	tree := sampleTree(t)

	f := Filter{Subjects: []string{"GRAM"}, Topics: []string{"crase"}}
	require.NoError(t, tree.SetOwnFilter("top-crase", f))
	f.Subjects[0] = "MUTATED"

	n, err := tree.GetNode("top-crase")
	require.NoError(t, err)
	assert.Equal(t, []string{"GRAM"}, n.OwnFilter.Subjects)
	assert.Equal(t, []string{"crase"}, n.OwnFilter.Topics)

	assert.ErrorIs(t, tree.SetOwnFilter("missing", f), types.ErrNotFound)
}

func TestRenameInvalidatesTitleIndex(t *testing.T) {
	tree := sampleTree(t)
	assert.Len(t, tree.FindByTitle("Crase", KindAny), 1)

	require.NoError(t, tree.Rename("top-crase", "Uso da Crase"))
	assert.Empty(t, tree.FindByTitle("Crase", KindAny))
	assert.Len(t, tree.FindByTitle("uso da crase", KindTopic), 1)

	assert.ErrorIs(t, tree.Rename("missing", "x"), types.ErrNotFound)
}
