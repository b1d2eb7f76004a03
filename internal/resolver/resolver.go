// Package resolver computes the effective filter of a set of selected taxonomy nodes.
package resolver

import (
	"errors"
	"fmt"

	"github.com/dbsmedya/studyplan/internal/taxonomy"
	"github.com/dbsmedya/studyplan/internal/types"
)

// ErrNoSelection is returned when Resolve is called without node IDs.
var ErrNoSelection = errors.New("no taxonomy nodes selected")

// NodeSource is the read side of a taxonomy tree used by the resolver.
type NodeSource interface {
	GetNode(id string) (taxonomy.Node, error)
	Ancestors(id string) ([]taxonomy.Node, error)
}

// Contribution records what one selected node added to the result.
type Contribution struct {
	NodeID string
	// SubjectsFrom is the node the subjects were taken from: the node itself,
	// an ancestor, or empty when none was found.
	SubjectsFrom string
	Subjects     []string
	Topics       []string
	// Skipped is set when the node does not exist in the tree.
	Skipped bool
	// CycleDetected is set when the ancestor walk revisited a node.
	CycleDetected bool
}

// Result holds the aggregated filter and the per-node breakdown.
type Result struct {
	Filter        *types.FilterSet // nil when no node contributed anything
	Contributions []Contribution
}

// Resolve returns the union of the effective subjects and own topics of the
// selected nodes, or nil when nothing was contributed.
func Resolve(tree NodeSource, nodeIDs []string) (*types.FilterSet, error) {
	res, err := Explain(tree, nodeIDs)
	if err != nil {
		return nil, err
	}
	return res.Filter, nil
}

// Explain resolves like Resolve and also reports where each node's filter came from.
// Missing nodes are skipped. A cycle in the ancestor walk stops the walk at the
// revisited node; ancestors seen before it are still considered.
func Explain(tree NodeSource, nodeIDs []string) (*Result, error) {
	if len(nodeIDs) == 0 {
		return nil, ErrNoSelection
	}

	res := &Result{Contributions: make([]Contribution, 0, len(nodeIDs))}
	acc := &types.FilterSet{}

	for _, id := range nodeIDs {
		c, err := resolveNode(tree, id)
		if err != nil {
			return nil, err
		}
		res.Contributions = append(res.Contributions, c)
		acc.Subjects = append(acc.Subjects, c.Subjects...)
		acc.Topics = append(acc.Topics, c.Topics...)
	}

	acc = acc.Normalize()
	if !acc.IsEmpty() {
		res.Filter = acc
	}
	return res, nil
}

func resolveNode(tree NodeSource, id string) (Contribution, error) {
	c := Contribution{NodeID: id}

	node, err := tree.GetNode(id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			c.Skipped = true
			return c, nil
		}
		return c, fmt.Errorf("failed to load node %s: %w", id, err)
	}

	// Topics are never inherited, even when subjects are.
	if node.Kind.CarriesFilter() {
		c.Topics = append(c.Topics, node.OwnFilter.Topics...)
		if len(node.OwnFilter.Subjects) > 0 {
			c.SubjectsFrom = node.ID
			c.Subjects = append(c.Subjects, node.OwnFilter.Subjects...)
			return c, nil
		}
	}

	ancestors, err := tree.Ancestors(id)
	if err != nil {
		if !errors.Is(err, taxonomy.ErrCycleDetected) {
			return c, fmt.Errorf("failed to walk ancestors of %s: %w", id, err)
		}
		c.CycleDetected = true
	}

	for _, anc := range ancestors {
		if anc.Kind.CarriesFilter() && len(anc.OwnFilter.Subjects) > 0 {
			c.SubjectsFrom = anc.ID
			c.Subjects = append(c.Subjects, anc.OwnFilter.Subjects...)
			break
		}
	}

	return c, nil
}
