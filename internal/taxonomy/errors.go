package taxonomy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycleDetected is returned when parent references form a cycle.
var ErrCycleDetected = errors.New("cycle detected in taxonomy tree")

// CycleInfo describes nodes that cannot be reached from any root.
type CycleInfo struct {
	TotalNodes        int      // Total number of nodes in the tree
	ProcessedNodes    int      // Nodes reachable from a root
	UnprocessedNodes  []string // Nodes on or below a cycle
	CycleParticipants []string // Nodes that are part of a cycle (subset of UnprocessedNodes)
	CyclePath         []string // Ordered parent -> child path, e.g. [A, B, C, A]
}

// CycleError reports a cycle in the parent graph of a tree.
type CycleError struct {
	Info *CycleInfo
}

func (e *CycleError) Error() string {
	msg := fmt.Sprintf("cycle detected in taxonomy tree: %d of %d nodes unreachable from a root",
		len(e.Info.UnprocessedNodes), e.Info.TotalNodes)

	if len(e.Info.CyclePath) > 0 {
		msg += fmt.Sprintf("\nCycle path: %s", strings.Join(e.Info.CyclePath, " -> "))
	}

	if len(e.Info.UnprocessedNodes) > len(e.Info.CycleParticipants) {
		participants := make(map[string]bool, len(e.Info.CycleParticipants))
		for _, p := range e.Info.CycleParticipants {
			participants[p] = true
		}
		var blocked []string
		for _, u := range e.Info.UnprocessedNodes {
			if !participants[u] {
				blocked = append(blocked, u)
			}
		}
		if len(blocked) > 0 {
			msg += fmt.Sprintf("\nNodes below cycle: %s", strings.Join(blocked, ", "))
		}
	}

	return msg
}

// Unwrap lets errors.Is match ErrCycleDetected.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}
