package taxonomy

import (
	"fmt"

	"github.com/dbsmedya/studyplan/internal/types"
)

// Add inserts a node. Its parent, when set, must already exist.
func (t *Tree) Add(n Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n.ID == "" {
		return fmt.Errorf("node id is required")
	}
	if _, exists := t.nodes[n.ID]; exists {
		return fmt.Errorf("duplicate node id %q", n.ID)
	}
	if n.ParentID != "" {
		if _, ok := t.nodes[n.ParentID]; !ok {
			return fmt.Errorf("parent %q: %w", n.ParentID, types.ErrNotFound)
		}
	}

	c := n.clone()
	t.nodes[n.ID] = &c
	t.children[n.ParentID] = append(t.children[n.ParentID], n.ID)
	t.sortChildren(n.ParentID)
	t.invalidate()
	return nil
}

// Move re-parents a node. An empty parent makes it a root.
// Moving a node below itself or one of its descendants is rejected.
func (t *Tree) Move(id, newParentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("taxonomy node %q: %w", id, types.ErrNotFound)
	}
	if newParentID != "" {
		if _, ok := t.nodes[newParentID]; !ok {
			return fmt.Errorf("parent %q: %w", newParentID, types.ErrNotFound)
		}
		for _, desc := range t.subtreeIDs(id) {
			if desc == newParentID {
				return fmt.Errorf("moving %q under %q: %w", id, newParentID, ErrCycleDetected)
			}
		}
	}

	t.detach(id, n.ParentID)
	n.ParentID = newParentID
	t.children[newParentID] = append(t.children[newParentID], id)
	t.sortChildren(newParentID)
	t.invalidate()
	return nil
}

// RemoveSubtree deletes a node and every descendant, returning the removed IDs in pre-order.
func (t *Tree) RemoveSubtree(id string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("taxonomy node %q: %w", id, types.ErrNotFound)
	}

	removed := t.subtreeIDs(id)
	t.detach(id, n.ParentID)
	for _, rid := range removed {
		delete(t.nodes, rid)
		delete(t.children, rid)
	}
	t.invalidate()
	return removed, nil
}

// SetOwnFilter replaces the filter a node carries itself.
func (t *Tree) SetOwnFilter(id string, f Filter) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("taxonomy node %q: %w", id, types.ErrNotFound)
	}
	n.OwnFilter = f.clone()
	return nil
}

// Rename changes a node title.
func (t *Tree) Rename(id, title string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("taxonomy node %q: %w", id, types.ErrNotFound)
	}
	n.Title = title
	t.sortChildren(n.ParentID)
	t.invalidate()
	return nil
}

func (t *Tree) detach(id, parentID string) {
	siblings := t.children[parentID]
	for i, sid := range siblings {
		if sid == id {
			t.children[parentID] = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
	if len(t.children[parentID]) == 0 {
		delete(t.children, parentID)
	}
}
