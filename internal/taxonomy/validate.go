package taxonomy

import (
	"container/list"
	"slices"
)

// DetectIncompleteProcessing runs Kahn's algorithm over parent edges.
// Roots and orphans have in-degree zero; anything left unprocessed sits on
// or below a cycle. Returns nil when every node is reachable.
func (t *Tree) DetectIncompleteProcessing() *CycleInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	inDegree := make(map[string]int, len(t.nodes))
	for id, n := range t.nodes {
		inDegree[id] = 0
		if n.ParentID != "" {
			if _, ok := t.nodes[n.ParentID]; ok {
				inDegree[id] = 1
			}
		}
	}

	queue := list.New()
	for id, degree := range inDegree {
		if degree == 0 {
			queue.PushBack(id)
		}
	}

	processed := make(map[string]bool, len(t.nodes))
	for queue.Len() > 0 {
		elem := queue.Front()
		queue.Remove(elem)
		id := elem.Value.(string)
		processed[id] = true

		for _, child := range t.children[id] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue.PushBack(child)
			}
		}
	}

	if len(processed) == len(t.nodes) {
		return nil
	}

	var unprocessed []string
	for id := range t.nodes {
		if !processed[id] {
			unprocessed = append(unprocessed, id)
		}
	}
	slices.Sort(unprocessed)

	participants := t.cycleParticipants(unprocessed)

	return &CycleInfo{
		TotalNodes:        len(t.nodes),
		ProcessedNodes:    len(processed),
		UnprocessedNodes:  unprocessed,
		CycleParticipants: participants,
		CyclePath:         t.cyclePath(unprocessed[0]),
	}
}

// Validate returns a CycleError when some nodes cannot be reached from a root.
func (t *Tree) Validate() error {
	if info := t.DetectIncompleteProcessing(); info != nil {
		return &CycleError{Info: info}
	}
	return nil
}

// cycleParticipants follows parent references from every unprocessed node.
// With a single parent per node, each such walk ends in exactly one cycle.
func (t *Tree) cycleParticipants(unprocessed []string) []string {
	onCycle := make(map[string]bool)
	for _, start := range unprocessed {
		seen := make(map[string]int)
		var walk []string
		current := start
		for {
			if idx, ok := seen[current]; ok {
				for _, id := range walk[idx:] {
					onCycle[id] = true
				}
				break
			}
			seen[current] = len(walk)
			walk = append(walk, current)
			n, ok := t.nodes[current]
			if !ok || n.ParentID == "" {
				break
			}
			current = n.ParentID
		}
	}

	out := make([]string, 0, len(onCycle))
	for id := range onCycle {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// cyclePath returns the cycle reached from start in parent -> child order,
// with the first node repeated at the end.
func (t *Tree) cyclePath(start string) []string {
	seen := make(map[string]int)
	var walk []string
	current := start
	for {
		if idx, ok := seen[current]; ok {
			cycle := append([]string(nil), walk[idx:]...)
			slices.Reverse(cycle)
			return append(cycle, cycle[0])
		}
		seen[current] = len(walk)
		walk = append(walk, current)
		n, ok := t.nodes[current]
		if !ok || n.ParentID == "" {
			return nil
		}
		current = n.ParentID
	}
}
