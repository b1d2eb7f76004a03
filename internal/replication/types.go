// Package replication copies a study unit into other tenants, re-resolving
// taxonomy bindings by title in each target tree.
package replication

import (
	"errors"
	"fmt"

	"github.com/dbsmedya/studyplan/internal/taxonomy"
	"github.com/dbsmedya/studyplan/internal/types"
)

// ErrInvalidTarget is returned for a malformed target before any work starts.
var ErrInvalidTarget = errors.New("invalid replication target")

// Step names the creation step a target failed at.
type Step string

const (
	StepLoadTree Step = "load_tree"
	StepBegin    Step = "begin"
	StepRound    Step = "round"
	StepUnit     Step = "unit"
	StepBind     Step = "bind"
	StepFilters  Step = "filters"
	StepVerify   Step = "verify"
	StepCommit   Step = "commit"
)

// NodeRef identifies a source taxonomy node by title. Kind is optional and
// restricts matching; ParentTitle breaks ties between same-titled nodes.
type NodeRef struct {
	Title       string `json:"title" yaml:"title"`
	Kind        string `json:"kind,omitempty" yaml:"kind,omitempty"`
	ParentTitle string `json:"parent,omitempty" yaml:"parent,omitempty"`
}

// SourceUnit is the study unit being copied.
type SourceUnit struct {
	Spec       types.UnitSpec   `json:"unit" yaml:"unit"`
	Nodes      []NodeRef        `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Filters    *types.FilterSet `json:"filters,omitempty" yaml:"filters,omitempty"`
	MatchCount int64            `json:"match_count" yaml:"match_count"`
}

// Validate checks the literal fields and node references of the source.
func (s SourceUnit) Validate() error {
	if s.Spec.Type == "" {
		return fmt.Errorf("source unit type is required")
	}
	for i, ref := range s.Nodes {
		if ref.Title == "" {
			return fmt.Errorf("source node %d: title is required", i)
		}
		if _, err := taxonomy.ParseKind(ref.Kind); err != nil {
			return fmt.Errorf("source node %d: %w", i, err)
		}
	}
	return nil
}

// Target is one destination tenant/round/unit-number combination.
// Exactly one of ExistingRoundID and NewRound is set.
type Target struct {
	TenantID        string           `json:"tenant" yaml:"tenant"`
	ExistingRoundID string           `json:"round_id,omitempty" yaml:"round_id,omitempty"`
	NewRound        *types.RoundSpec `json:"new_round,omitempty" yaml:"new_round,omitempty"`
	UnitNumber      string           `json:"unit_number" yaml:"unit_number"`
}

// Validate checks that the target is well formed.
func (t Target) Validate() error {
	switch {
	case t.TenantID == "":
		return fmt.Errorf("%w: tenant is required", ErrInvalidTarget)
	case t.ExistingRoundID == "" && t.NewRound == nil:
		return fmt.Errorf("%w: tenant %s: one of round_id or new_round is required", ErrInvalidTarget, t.TenantID)
	case t.ExistingRoundID != "" && t.NewRound != nil:
		return fmt.Errorf("%w: tenant %s: round_id and new_round are mutually exclusive", ErrInvalidTarget, t.TenantID)
	case t.NewRound != nil && t.NewRound.Number <= 0:
		return fmt.Errorf("%w: tenant %s: new_round number must be positive", ErrInvalidTarget, t.TenantID)
	case t.UnitNumber == "":
		return fmt.Errorf("%w: tenant %s: unit_number is required", ErrInvalidTarget, t.TenantID)
	}
	return nil
}

// TargetFailure records which creation step failed for a target.
type TargetFailure struct {
	Step Step
	Err  error
}

func (e *TargetFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *TargetFailure) Unwrap() error {
	return e.Err
}

// Success is a target whose unit was created.
type Success struct {
	Index     int
	Target    Target
	RoundID   string
	UnitID    string
	Unmatched []string
}

// Failure is a target that left nothing behind.
type Failure struct {
	Index  int
	Target Target
	Err    *TargetFailure
}

// Reason returns the failure message shown to the caller.
func (f Failure) Reason() string {
	return f.Err.Error()
}

// Result aggregates a batch. Both lists are ordered by target index.
type Result struct {
	BatchID   string
	Successes []Success
	Failures  []Failure
}

// Warnings returns one line per unmatched title, grouped by target.
func (r *Result) Warnings() []string {
	var out []string
	for _, s := range r.Successes {
		for _, title := range s.Unmatched {
			out = append(out, fmt.Sprintf("target %d (%s): no node titled %q", s.Index, s.Target.TenantID, title))
		}
	}
	return out
}
