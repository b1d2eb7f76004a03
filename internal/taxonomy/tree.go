package taxonomy

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dbsmedya/studyplan/internal/types"
)

// Tree is an arena of nodes indexed by ID with explicit parent references.
// Every walk is guarded against revisits so corrupt parent data cannot loop.
type Tree struct {
	TenantID string

	mu       sync.Mutex
	nodes    map[string]*Node
	children map[string][]string // parent ID -> ordered child IDs

	// Lazily built, dropped on structural edits.
	ancestors  map[string][]string
	titleIndex map[string][]string
	preorder   []string
}

// NewTree builds a tree from the nodes stored for a tenant.
// Parents may be missing (the node becomes an orphan root) but IDs must be unique.
func NewTree(tenantID string, nodes []Node) (*Tree, error) {
	t := &Tree{
		TenantID: tenantID,
		nodes:    make(map[string]*Node, len(nodes)),
		children: make(map[string][]string),
	}

	for i := range nodes {
		n := nodes[i]
		if n.ID == "" {
			return nil, fmt.Errorf("node at position %d has an empty id", i)
		}
		if _, exists := t.nodes[n.ID]; exists {
			return nil, fmt.Errorf("duplicate node id %q", n.ID)
		}
		c := n.clone()
		t.nodes[n.ID] = &c
	}

	for id, n := range t.nodes {
		t.children[n.ParentID] = append(t.children[n.ParentID], id)
	}
	for parent := range t.children {
		t.sortChildren(parent)
	}

	return t, nil
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

// GetNode returns a copy of the node with the given ID.
func (t *Tree) GetNode(id string) (Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("taxonomy node %q: %w", id, types.ErrNotFound)
	}
	return n.clone(), nil
}

// Children returns the direct children of a node in display order.
func (t *Tree) Children(id string) ([]Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[id]; !ok {
		return nil, fmt.Errorf("taxonomy node %q: %w", id, types.ErrNotFound)
	}
	return t.nodeList(t.children[id]), nil
}

// Roots returns the top-level nodes in display order, orphans included.
func (t *Tree) Roots() []Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nodeList(t.rootIDs())
}

// Orphans returns nodes whose parent reference points at a missing node.
func (t *Tree) Orphans() []Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []string
	for id, n := range t.nodes {
		if n.ParentID == "" {
			continue
		}
		if _, ok := t.nodes[n.ParentID]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return t.nodeList(ids)
}

// IsLeaf reports whether the node has no children.
func (t *Tree) IsLeaf(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.children[id]) == 0
}

// Ancestors returns the ancestors of a node, nearest first.
// A missing parent ends the walk. A revisited node ends the walk too and
// the partial path is returned together with ErrCycleDetected.
func (t *Tree) Ancestors(id string) ([]Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[id]; !ok {
		return nil, fmt.Errorf("taxonomy node %q: %w", id, types.ErrNotFound)
	}

	if t.ancestors == nil {
		t.ancestors = make(map[string][]string)
	}
	if path, ok := t.ancestors[id]; ok {
		return t.nodeList(path), nil
	}

	visited := map[string]bool{id: true}
	var path []string
	current := t.nodes[id]
	for current.ParentID != "" {
		parent, ok := t.nodes[current.ParentID]
		if !ok {
			break
		}
		if visited[parent.ID] {
			return t.nodeList(path), fmt.Errorf("ancestors of %q revisit %q: %w", id, parent.ID, ErrCycleDetected)
		}
		visited[parent.ID] = true
		path = append(path, parent.ID)
		current = parent
	}

	t.ancestors[id] = path
	return t.nodeList(path), nil
}

// Subtree returns the node and all of its descendants in pre-order.
func (t *Tree) Subtree(id string) ([]Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[id]; !ok {
		return nil, fmt.Errorf("taxonomy node %q: %w", id, types.ErrNotFound)
	}
	return t.nodeList(t.subtreeIDs(id)), nil
}

// Leaves returns the leaf descendants of a node in pre-order.
// A leaf node is its own single leaf.
func (t *Tree) Leaves(id string) ([]Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[id]; !ok {
		return nil, fmt.Errorf("taxonomy node %q: %w", id, types.ErrNotFound)
	}
	var leaves []string
	for _, nid := range t.subtreeIDs(id) {
		if len(t.children[nid]) == 0 {
			leaves = append(leaves, nid)
		}
	}
	return t.nodeList(leaves), nil
}

// Walk visits every node reachable from a root in pre-order, passing its depth.
// Nodes caught in a parent cycle are not reachable and are skipped.
func (t *Tree) Walk(fn func(n Node, depth int) bool) {
	t.mu.Lock()
	roots := t.rootIDs()
	depths := make(map[string]int)
	var order []string
	visited := make(map[string]bool)
	var visit func(id string, depth int)
	visit = func(id string, depth int) {
		if visited[id] {
			return
		}
		visited[id] = true
		depths[id] = depth
		order = append(order, id)
		for _, child := range t.children[id] {
			visit(child, depth+1)
		}
	}
	for _, r := range roots {
		visit(r, 0)
	}
	nodes := t.nodeList(order)
	t.mu.Unlock()

	for _, n := range nodes {
		if !fn(n, depths[n.ID]) {
			return
		}
	}
}

// FindByTitle returns nodes whose title matches case and diacritic insensitively,
// in pre-order. KindAny matches every kind.
func (t *Tree) FindByTitle(title string, kind Kind) []Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.titleIndex == nil {
		t.buildTitleIndex()
	}

	var matches []string
	for _, id := range t.titleIndex[NormalizeTitle(title)] {
		if kind == KindAny || t.nodes[id].Kind == kind {
			matches = append(matches, id)
		}
	}
	return t.nodeList(matches)
}

// Path returns the titles from the root down to the node, joined by " / ".
func (t *Tree) Path(id string) string {
	n, err := t.GetNode(id)
	if err != nil {
		return id
	}
	ancestors, _ := t.Ancestors(id)
	parts := make([]string, 0, len(ancestors)+1)
	for i := len(ancestors) - 1; i >= 0; i-- {
		parts = append(parts, ancestors[i].Title)
	}
	parts = append(parts, n.Title)
	return strings.Join(parts, " / ")
}

func (t *Tree) buildTitleIndex() {
	t.titleIndex = make(map[string][]string, len(t.nodes))
	order := t.preorderIDs()
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		seen[id] = true
	}
	// Nodes stuck in a cycle are still searchable, after the reachable ones.
	var rest []string
	for id := range t.nodes {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	slices.Sort(rest)
	for _, id := range append(order, rest...) {
		key := NormalizeTitle(t.nodes[id].Title)
		t.titleIndex[key] = append(t.titleIndex[key], id)
	}
}

func (t *Tree) preorderIDs() []string {
	if t.preorder != nil {
		return t.preorder
	}
	order := make([]string, 0, len(t.nodes))
	visited := make(map[string]bool, len(t.nodes))
	for _, r := range t.rootIDs() {
		order = t.appendSubtree(order, r, visited)
	}
	t.preorder = order
	return order
}

func (t *Tree) subtreeIDs(id string) []string {
	return t.appendSubtree(nil, id, make(map[string]bool))
}

func (t *Tree) appendSubtree(out []string, id string, visited map[string]bool) []string {
	stack := []string{id}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[current] {
			continue
		}
		visited[current] = true
		out = append(out, current)
		kids := t.children[current]
		for i := len(kids) - 1; i >= 0; i-- {
			if !visited[kids[i]] {
				stack = append(stack, kids[i])
			}
		}
	}
	return out
}

func (t *Tree) rootIDs() []string {
	var roots []string
	for id, n := range t.nodes {
		if n.ParentID == "" {
			roots = append(roots, id)
			continue
		}
		if _, ok := t.nodes[n.ParentID]; !ok {
			roots = append(roots, id)
		}
	}
	t.sortIDs(roots)
	return roots
}

func (t *Tree) sortChildren(parent string) {
	t.sortIDs(t.children[parent])
}

// sortIDs orders siblings by Order, then title, then ID.
func (t *Tree) sortIDs(ids []string) {
	slices.SortStableFunc(ids, func(a, b string) int {
		na, nb := t.nodes[a], t.nodes[b]
		if na.Order != nb.Order {
			return na.Order - nb.Order
		}
		if c := strings.Compare(na.Title, nb.Title); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
}

func (t *Tree) nodeList(ids []string) []Node {
	if len(ids) == 0 {
		return nil
	}
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := t.nodes[id]; ok {
			out = append(out, n.clone())
		}
	}
	return out
}

func (t *Tree) invalidate() {
	t.ancestors = nil
	t.titleIndex = nil
	t.preorder = nil
}
