package replication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dbsmedya/studyplan/internal/logger"
	"github.com/dbsmedya/studyplan/internal/store"
	"github.com/dbsmedya/studyplan/internal/verifier"
)

// Options configures an Engine.
type Options struct {
	// Concurrency is the number of targets in flight. Values below 1 mean 1.
	Concurrency int
	// Verification selects how each unit is read back and compared before
	// commit. Empty means verifier.MethodSkip.
	Verification verifier.VerificationMethod
	// Recorder receives every target outcome. Optional.
	Recorder Recorder
	Logger   *logger.Logger
}

// Engine replicates a source unit into independent targets.
type Engine struct {
	store       Store
	recorder    Recorder
	verifier    *verifier.Verifier
	concurrency int
	logger      *logger.Logger
	newBatchID  func() string
}

// NewEngine creates a replication engine.
func NewEngine(st Store, opts Options) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault()
	}

	method := opts.Verification
	if method == "" {
		method = verifier.MethodSkip
	}
	v, err := verifier.NewVerifier(method, log)
	if err != nil {
		return nil, err
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Engine{
		store:       st,
		recorder:    opts.Recorder,
		verifier:    v,
		concurrency: concurrency,
		logger:      log,
		newBatchID:  uuid.NewString,
	}, nil
}

// outcome is the result slot of one target.
type outcome struct {
	success *Success
	failure *Failure
}

// Replicate creates src in every target. Targets are independent: a failure
// rolls back that target only and never stops the batch. Malformed input is
// rejected before any target is touched.
func (e *Engine) Replicate(ctx context.Context, src SourceUnit, targets []Target) (*Result, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	for i, t := range targets {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
	}

	batchID := e.newBatchID()
	e.logger.Infow("Starting replication",
		"batch", batchID,
		"targets", len(targets),
		"concurrency", e.concurrency,
		"verification_method", e.verifier.GetMethod(),
	)

	outcomes := make([]outcome, len(targets))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, target := range targets {
		g.Go(func() error {
			outcomes[i] = e.runTarget(ctx, batchID, i, src, target)
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{BatchID: batchID}
	for _, o := range outcomes {
		if o.success != nil {
			result.Successes = append(result.Successes, *o.success)
		} else {
			result.Failures = append(result.Failures, *o.failure)
		}
	}

	e.logger.Infow("Replication finished",
		"batch", batchID,
		"succeeded", len(result.Successes),
		"failed", len(result.Failures),
	)
	return result, nil
}

func (e *Engine) runTarget(ctx context.Context, batchID string, index int, src SourceUnit, target Target) outcome {
	log := e.logger.WithTarget(index, target.TenantID)
	start := time.Now()

	success, failure := e.replicateTarget(ctx, log, src, target)
	targetDuration.Observe(time.Since(start).Seconds())

	rec := store.Outcome{BatchID: batchID, TargetIndex: index, TenantID: target.TenantID}
	var o outcome
	if failure != nil {
		targetsTotal.WithLabelValues(resultFailure).Inc()
		log.Warnw("Target failed", "step", failure.Step, "error", failure.Err)
		o.failure = &Failure{Index: index, Target: target, Err: failure}
		rec.Status = store.OutcomeFailure
		rec.Reason = failure.Error()
	} else {
		targetsTotal.WithLabelValues(resultSuccess).Inc()
		success.Index = index
		success.Target = target
		if len(success.Unmatched) > 0 {
			log.Warnw("Unmatched taxonomy titles", "unit", success.UnitID, "titles", success.Unmatched)
		}
		log.Infow("Target replicated", "unit", success.UnitID, "round", success.RoundID)
		o.success = success
		rec.Status = store.OutcomeSuccess
		rec.UnitID = success.UnitID
		rec.Unmatched = success.Unmatched
	}

	if e.recorder != nil {
		if err := e.recorder.RecordOutcome(ctx, rec); err != nil {
			log.Warnw("Failed to record replication outcome", "error", err)
		}
	}
	return o
}

// replicateTarget creates round, unit, bindings and filters in one
// transaction. On any failure the transaction is rolled back.
func (e *Engine) replicateTarget(ctx context.Context, log *logger.Logger, src SourceUnit, target Target) (*Success, *TargetFailure) {
	fail := func(step Step, err error) (*Success, *TargetFailure) {
		return nil, &TargetFailure{Step: step, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(StepBegin, err)
	}

	tree, err := e.store.LoadTaxonomy(ctx, target.TenantID)
	if err != nil {
		return fail(StepLoadTree, err)
	}
	matches, unmatched := matchNodes(tree, src.Nodes)
	nodeIDs := matchedIDs(matches)
	log.Debugw("Resolved taxonomy titles", "matched", len(matches), "unmatched", len(unmatched))

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return fail(StepBegin, err)
	}
	defer func() {
		if tx != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Errorw("Rollback failed", "error", rbErr)
			}
		}
	}()

	roundID := target.ExistingRoundID
	if roundID != "" {
		if err := tx.RoundExists(ctx, target.TenantID, roundID); err != nil {
			return fail(StepRound, err)
		}
	} else {
		roundID, err = tx.CreateRound(ctx, target.TenantID, *target.NewRound)
		if err != nil {
			return fail(StepRound, err)
		}
	}

	spec := src.Spec
	spec.Number = target.UnitNumber
	unitID, err := tx.CreateUnit(ctx, target.TenantID, roundID, spec)
	if err != nil {
		return fail(StepUnit, err)
	}

	if err := tx.BindTaxonomyNodes(ctx, unitID, nodeIDs); err != nil {
		return fail(StepBind, err)
	}

	if err := tx.SetFilterSet(ctx, unitID, src.Filters, src.MatchCount); err != nil {
		return fail(StepFilters, err)
	}

	if e.verifier.GetMethod() != verifier.MethodSkip {
		persisted, err := tx.LoadUnit(ctx, unitID)
		if err != nil {
			return fail(StepVerify, err)
		}
		expected := verifier.Expected{Spec: spec, NodeIDs: nodeIDs, Filters: src.Filters, MatchCount: src.MatchCount}
		if _, err := e.verifier.Verify(expected, persisted); err != nil {
			return fail(StepVerify, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(StepCommit, err)
	}
	tx = nil

	return &Success{RoundID: roundID, UnitID: unitID, Unmatched: unmatched}, nil
}

// IsStep reports whether err is a TargetFailure at the given step.
func IsStep(err error, step Step) bool {
	var tf *TargetFailure
	return errors.As(err, &tf) && tf.Step == step
}
