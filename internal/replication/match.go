package replication

import (
	"github.com/dbsmedya/studyplan/internal/taxonomy"
	"github.com/dbsmedya/studyplan/internal/types"
)

// Match is a source node resolved in a target tree.
type Match struct {
	Ref    NodeRef
	NodeID string
	Path   string
}

// matchNodes resolves source titles in a target tree. Titles without a match
// are returned in source order; a node matched twice is bound once.
func matchNodes(tree *taxonomy.Tree, refs []NodeRef) ([]Match, []string) {
	var (
		matches   []Match
		unmatched []string
		seen      = make(map[string]bool)
	)

	for _, ref := range refs {
		kind, err := taxonomy.ParseKind(ref.Kind)
		if err != nil {
			kind = taxonomy.KindAny
		}

		node, ok := pick(tree, tree.FindByTitle(ref.Title, kind), ref.ParentTitle)
		if !ok {
			unmatched = append(unmatched, ref.Title)
			continue
		}
		if seen[node.ID] {
			continue
		}
		seen[node.ID] = true
		matches = append(matches, Match{Ref: ref, NodeID: node.ID, Path: tree.Path(node.ID)})
	}
	return matches, unmatched
}

// pick chooses among candidates in pre-order, preferring one whose parent
// title matches.
func pick(tree *taxonomy.Tree, candidates []taxonomy.Node, parentTitle string) (taxonomy.Node, bool) {
	if len(candidates) == 0 {
		return taxonomy.Node{}, false
	}
	if len(candidates) == 1 || parentTitle == "" {
		return candidates[0], true
	}

	want := taxonomy.NormalizeTitle(parentTitle)
	for _, c := range candidates {
		if c.ParentID == "" {
			continue
		}
		parent, err := tree.GetNode(c.ParentID)
		if err == nil && taxonomy.NormalizeTitle(parent.Title) == want {
			return c, true
		}
	}
	return candidates[0], true
}

func matchedIDs(matches []Match) []string {
	if len(matches) == 0 {
		return nil
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.NodeID
	}
	return ids
}

// SourceFromUnit describes a persisted unit as a replication source, naming
// its bound nodes by title. Bindings to nodes missing from tree are dropped.
func SourceFromUnit(tree *taxonomy.Tree, unit *types.Unit) SourceUnit {
	src := SourceUnit{
		Spec:       unit.Spec,
		Filters:    unit.Filters.Clone(),
		MatchCount: unit.MatchCount,
	}
	for _, id := range unit.NodeIDs {
		node, err := tree.GetNode(id)
		if err != nil {
			continue
		}
		ref := NodeRef{Title: node.Title, Kind: node.Kind.String()}
		if node.ParentID != "" {
			if parent, err := tree.GetNode(node.ParentID); err == nil {
				ref.ParentTitle = parent.Title
			}
		}
		src.Nodes = append(src.Nodes, ref)
	}
	return src
}
