// Package usage tracks taxonomy leaves already bound to other study units
// and derives per-node availability from them.
package usage

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dbsmedya/studyplan/internal/taxonomy"
)

// BindingSource lists the taxonomy nodes bound to study units of a tenant.
type BindingSource interface {
	ListBoundLeafIDs(ctx context.Context, tenantID, excludingUnitID string) ([]string, error)
}

// TreeView is the part of a taxonomy tree the registry reads.
type TreeView interface {
	Walk(fn func(n taxonomy.Node, depth int) bool)
	Children(id string) ([]taxonomy.Node, error)
}

// State is the display state of a node.
type State int

const (
	// Unavailable nodes have nothing left to bind.
	Unavailable State = iota
	// Available nodes can be bound.
	Available
	// DisabledWithAvailableChildren nodes are taken but can be navigated into.
	DisabledWithAvailableChildren
)

func (s State) String() string {
	switch s {
	case Available:
		return "available"
	case DisabledWithAvailableChildren:
		return "disabled-with-available-children"
	case Unavailable:
		return "unavailable"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Scope identifies whose bindings are being computed.
type Scope struct {
	TenantID string
	// UnitID is the unit being edited, if any. Its own bindings are excluded.
	UnitID string
	// OwnSelection is the edited unit's original selection. Those nodes stay
	// available even if the binding source still reports them.
	OwnSelection []string
}

// Registry is an immutable availability snapshot for one tenant scope.
type Registry struct {
	scope    Scope
	used     map[string]bool
	own      map[string]bool
	known    map[string]bool
	children map[string][]string

	subtreeAvailable map[string]bool
	availableLeaves  map[string]int
}

// Build loads the bound leaves of a scope and precomputes availability for
// every node reachable from a root of the tree.
func Build(ctx context.Context, tree TreeView, src BindingSource, scope Scope) (*Registry, error) {
	bound, err := src.ListBoundLeafIDs(ctx, scope.TenantID, scope.UnitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bound nodes for tenant %s: %w", scope.TenantID, err)
	}
	return NewRegistry(tree, bound, scope)
}

// NewRegistry builds a registry from an already loaded used set.
func NewRegistry(tree TreeView, bound []string, scope Scope) (*Registry, error) {
	r := &Registry{
		scope:            scope,
		used:             toSet(bound),
		own:              toSet(scope.OwnSelection),
		known:            make(map[string]bool),
		children:         make(map[string][]string),
		subtreeAvailable: make(map[string]bool),
		availableLeaves:  make(map[string]int),
	}

	var order []string
	tree.Walk(func(n taxonomy.Node, _ int) bool {
		order = append(order, n.ID)
		return true
	})

	for _, id := range order {
		r.known[id] = true
		kids, err := tree.Children(id)
		if err != nil {
			return nil, fmt.Errorf("failed to read children of %s: %w", id, err)
		}
		for _, k := range kids {
			r.children[id] = append(r.children[id], k.ID)
		}
	}

	// Reverse pre-order visits every child before its parent.
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		self := r.IsAvailable(id)
		kids := r.children[id]

		if len(kids) == 0 {
			r.subtreeAvailable[id] = self
			if self {
				r.availableLeaves[id] = 1
			}
			continue
		}

		found := self
		count := 0
		for _, k := range kids {
			if r.subtreeAvailable[k] {
				found = true
			}
			count += r.availableLeaves[k]
		}
		r.subtreeAvailable[id] = found
		r.availableLeaves[id] = count
	}

	return r, nil
}

// Scope returns the scope the registry was built for.
func (r *Registry) Scope() Scope {
	return r.scope
}

// UsedCount returns the number of bound nodes reported by the binding source.
func (r *Registry) UsedCount() int {
	return len(r.used)
}

// IsAvailable reports whether a node may be bound: it is not bound elsewhere,
// or it belongs to the edited unit's own original selection.
func (r *Registry) IsAvailable(id string) bool {
	if !r.known[id] {
		return false
	}
	return !r.used[id] || r.own[id]
}

// SubtreeHasAvailable reports whether the node or any descendant is available.
func (r *Registry) SubtreeHasAvailable(id string) bool {
	return r.subtreeAvailable[id]
}

// CountAvailable returns the number of available leaves below a node.
// A leaf counts itself; inner nodes never do.
func (r *Registry) CountAvailable(id string) int {
	return r.availableLeaves[id]
}

// CountSelected returns how many leaves below a node are in selection.
func (r *Registry) CountSelected(id string, selection []string) int {
	if !r.known[id] || len(selection) == 0 {
		return 0
	}
	selected := toSet(selection)

	count := 0
	visited := make(map[string]bool)
	stack := []string{id}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[current] {
			continue
		}
		visited[current] = true

		kids := r.children[current]
		if len(kids) == 0 {
			if selected[current] {
				count++
			}
			continue
		}
		stack = append(stack, kids...)
	}
	return count
}

// State classifies a node for display.
func (r *Registry) State(id string) State {
	switch {
	case r.IsAvailable(id):
		return Available
	case r.SubtreeHasAvailable(id):
		return DisabledWithAvailableChildren
	default:
		return Unavailable
	}
}

// Holder publishes the current registry of a session. Readers always see a
// complete registry: a rebuild only replaces it once construction succeeds.
type Holder struct {
	current atomic.Pointer[Registry]
}

// Get returns the current registry, or nil before the first build.
func (h *Holder) Get() *Registry {
	return h.current.Load()
}

// Rebuild constructs a fresh registry and swaps it in. On error the previous
// registry stays in place.
func (h *Holder) Rebuild(ctx context.Context, tree TreeView, src BindingSource, scope Scope) (*Registry, error) {
	r, err := Build(ctx, tree, src, scope)
	if err != nil {
		return nil, err
	}
	h.current.Store(r)
	return r, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
