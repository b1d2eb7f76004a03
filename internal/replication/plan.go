package replication

import (
	"context"
	"fmt"
)

// Round actions reported by Plan.
const (
	RoundExisting = "existing"
	RoundCreate   = "create"
)

// PlannedTarget describes what Replicate would do for one target.
type PlannedTarget struct {
	Index       int
	Target      Target
	RoundAction string
	Matches     []Match
	Unmatched   []string
	// Err is set when the target would fail before writing.
	Err *TargetFailure
}

// Plan resolves every target without writing anything.
func (e *Engine) Plan(ctx context.Context, src SourceUnit, targets []Target) ([]PlannedTarget, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	for i, t := range targets {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
	}

	plans := make([]PlannedTarget, len(targets))
	for i, target := range targets {
		plans[i] = e.planTarget(ctx, i, src, target)
	}
	return plans, nil
}

func (e *Engine) planTarget(ctx context.Context, index int, src SourceUnit, target Target) PlannedTarget {
	p := PlannedTarget{Index: index, Target: target, RoundAction: RoundCreate}

	tree, err := e.store.LoadTaxonomy(ctx, target.TenantID)
	if err != nil {
		p.Err = &TargetFailure{Step: StepLoadTree, Err: err}
		return p
	}
	p.Matches, p.Unmatched = matchNodes(tree, src.Nodes)

	if target.ExistingRoundID == "" {
		return p
	}
	p.RoundAction = RoundExisting

	tx, err := e.store.Begin(ctx)
	if err != nil {
		p.Err = &TargetFailure{Step: StepBegin, Err: err}
		return p
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil {
			e.logger.WithTarget(index, target.TenantID).Warnw("Rollback failed", "error", rbErr)
		}
	}()

	if err := tx.RoundExists(ctx, target.TenantID, target.ExistingRoundID); err != nil {
		p.Err = &TargetFailure{Step: StepRound, Err: err}
	}
	return p
}
