// Package facets maintains interdependent filter facets against the question corpus.
package facets

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/elliotchance/orderedmap/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dbsmedya/studyplan/internal/logger"
	"github.com/dbsmedya/studyplan/internal/types"
)

// Corpus is the question corpus the engine queries.
type Corpus interface {
	CountMatches(ctx context.Context, filter *types.FilterSet) (int64, error)
	ListOptions(ctx context.Context, facet types.Facet, constraints *types.FilterSet) ([]string, error)
	ListTopicsForSubjects(ctx context.Context, subjects []string) ([]string, error)
}

// Option is one displayed value of a facet.
type Option struct {
	Value     string
	Selected  bool
	Available bool
}

// Snapshot is a consistent copy of the engine state.
type Snapshot struct {
	// Seq is the sequence of the latest selection change.
	Seq uint64
	// AppliedSeq is the sequence whose corpus results are displayed.
	AppliedSeq uint64
	Selected   *types.FilterSet
	Options    map[types.Facet][]Option
	MatchCount int64
	CountKnown bool
	// Stale is set when the latest recomputation failed and the displayed
	// options and count belong to an earlier selection.
	Stale     bool
	LastError string
}

// Engine holds the selected and available values of every facet.
// Selection changes apply immediately; corpus results are applied only if no
// newer change was issued while they were in flight.
type Engine struct {
	corpus Corpus
	log    *logger.Logger

	mu         sync.Mutex
	all        map[types.Facet][]string
	available  map[types.Facet][]string
	selected   *types.FilterSet
	matchCount int64
	countKnown bool
	stale      bool
	lastErr    error
	seq        uint64
	appliedSeq uint64
}

// NewEngine creates an engine with an empty selection.
func NewEngine(corpus Corpus, log *logger.Logger) (*Engine, error) {
	if corpus == nil {
		return nil, fmt.Errorf("corpus cannot be nil")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		corpus:    corpus,
		log:       log,
		all:       make(map[types.Facet][]string),
		available: make(map[types.Facet][]string),
		selected:  &types.FilterSet{},
	}, nil
}

// Load fetches the static universe of every facet except topics.
// On failure the engine stays usable with whatever was loaded and is marked stale.
func (e *Engine) Load(ctx context.Context) error {
	all := make(map[types.Facet][]string, len(types.StaticFacets))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, facet := range types.StaticFacets {
		g.Go(func() error {
			values, err := e.corpus.ListOptions(gctx, facet, &types.FilterSet{})
			if err != nil {
				return fmt.Errorf("failed to load %s options: %w", facet, err)
			}
			mu.Lock()
			all[facet] = sortedUnique(values)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	for facet, values := range all {
		e.all[facet] = values
		if _, ok := e.available[facet]; !ok {
			e.available[facet] = values
		}
	}
	if err != nil {
		e.stale = true
		e.lastErr = err
		return err
	}
	return nil
}

// Universe returns the static values of a facet.
func (e *Engine) Universe(facet types.Facet) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.all[facet])
}

// Seed replaces the whole selection, typically with a resolver result.
func (e *Engine) Seed(ctx context.Context, filter *types.FilterSet) (Snapshot, error) {
	return e.change(ctx, func(*types.FilterSet) (*types.FilterSet, error) {
		return filter.Normalize(), nil
	})
}

// Select replaces the selected values of one facet.
func (e *Engine) Select(ctx context.Context, facet types.Facet, values []string) (Snapshot, error) {
	return e.change(ctx, func(current *types.FilterSet) (*types.FilterSet, error) {
		next := current.Clone()
		if err := next.SetValues(facet, values); err != nil {
			return nil, err
		}
		return next, nil
	})
}

// Toggle adds a value to a facet selection, or removes it if already selected.
func (e *Engine) Toggle(ctx context.Context, facet types.Facet, value string) (Snapshot, error) {
	return e.change(ctx, func(current *types.FilterSet) (*types.FilterSet, error) {
		values := current.Values(facet)
		if i := slices.Index(values, value); i >= 0 {
			values = slices.Delete(values, i, i+1)
		} else {
			values = append(values, value)
		}
		next := current.Clone()
		if err := next.SetValues(facet, values); err != nil {
			return nil, err
		}
		return next, nil
	})
}

// Clear drops every selection.
func (e *Engine) Clear(ctx context.Context) (Snapshot, error) {
	return e.change(ctx, func(*types.FilterSet) (*types.FilterSet, error) {
		return &types.FilterSet{}, nil
	})
}

// Refresh recomputes options and count for the current selection.
func (e *Engine) Refresh(ctx context.Context) (Snapshot, error) {
	return e.change(ctx, func(current *types.FilterSet) (*types.FilterSet, error) {
		return current.Clone(), nil
	})
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Selected returns a copy of the current selection.
func (e *Engine) Selected() *types.FilterSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected.Clone()
}

func (e *Engine) change(ctx context.Context, mutate func(*types.FilterSet) (*types.FilterSet, error)) (Snapshot, error) {
	e.mu.Lock()
	next, err := mutate(e.selected)
	if err != nil {
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap, err
	}
	e.selected = next
	e.seq++
	seq := e.seq
	e.mu.Unlock()

	res, err := compute(ctx, e.corpus, next)

	e.mu.Lock()
	defer e.mu.Unlock()

	if seq != e.seq {
		recomputeTotal.WithLabelValues(resultSuperseded).Inc()
		e.log.Debugw("Discarding superseded facet results", "seq", seq, "latest", e.seq)
		return e.snapshotLocked(), nil
	}

	if err != nil {
		recomputeTotal.WithLabelValues(resultUnavailable).Inc()
		e.log.Warnw("Facet recomputation failed, keeping last known options", "seq", seq, "error", err)
		e.stale = true
		e.lastErr = err
		return e.snapshotLocked(), nil
	}

	recomputeTotal.WithLabelValues(resultApplied).Inc()
	e.available = res.available
	e.matchCount = res.matchCount
	e.countKnown = true
	e.stale = false
	e.lastErr = nil
	e.appliedSeq = seq
	return e.snapshotLocked(), nil
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		Seq:        e.seq,
		AppliedSeq: e.appliedSeq,
		Selected:   e.selected.Clone(),
		Options:    make(map[types.Facet][]Option, len(types.AllFacets)),
		MatchCount: e.matchCount,
		CountKnown: e.countKnown,
		Stale:      e.stale,
	}
	if e.lastErr != nil {
		snap.LastError = e.lastErr.Error()
	}
	for _, facet := range types.AllFacets {
		snap.Options[facet] = displayOptions(e.selected.Values(facet), e.available[facet])
	}
	return snap
}

// displayOptions lists selected values first, then the remaining available
// ones. Selected values that are no longer available are still shown.
func displayOptions(selected, available []string) []Option {
	m := orderedmap.NewOrderedMap[string, Option]()
	for _, v := range sortedUnique(selected) {
		m.Set(v, Option{Value: v, Selected: true})
	}
	for _, v := range available {
		if opt, ok := m.Get(v); ok {
			opt.Available = true
			m.Set(v, opt)
			continue
		}
		m.Set(v, Option{Value: v, Available: true})
	}

	out := make([]Option, 0, m.Len())
	for el := m.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}

func sortedUnique(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}
