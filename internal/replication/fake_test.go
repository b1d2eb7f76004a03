package replication

import (
	"context"
	"fmt"
	"sync"

	"github.com/dbsmedya/studyplan/internal/store"
	"github.com/dbsmedya/studyplan/internal/taxonomy"
	"github.com/dbsmedya/studyplan/internal/types"
)

// memStore keeps committed rounds and units in memory. Writes are staged per
// transaction and only become visible on Commit.
type memStore struct {
	mu     sync.Mutex
	trees  map[string][]taxonomy.Node
	rounds map[string]string // round ID -> tenant
	units  map[string]*types.Unit
	nextID int

	// fail, when set, is consulted before every step.
	fail func(step Step, tenantID string) error
	// readBack, when set, alters the unit returned to verification.
	readBack func(u *types.Unit)
}

func newMemStore() *memStore {
	return &memStore{
		trees:  make(map[string][]taxonomy.Node),
		rounds: make(map[string]string),
		units:  make(map[string]*types.Unit),
	}
}

func (s *memStore) check(step Step, tenantID string) error {
	if s.fail == nil {
		return nil
	}
	return s.fail(step, tenantID)
}

func (s *memStore) id(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *memStore) LoadTaxonomy(ctx context.Context, tenantID string) (*taxonomy.Tree, error) {
	if err := s.check(StepLoadTree, tenantID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	nodes := s.trees[tenantID]
	s.mu.Unlock()
	return taxonomy.NewTree(tenantID, nodes)
}

func (s *memStore) Begin(ctx context.Context) (Tx, error) {
	if err := s.check(StepBegin, ""); err != nil {
		return nil, err
	}
	return &memTx{s: s, rounds: make(map[string]string), units: make(map[string]*types.Unit)}, nil
}

func (s *memStore) unitsOf(tenantID string) []*types.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Unit
	for _, u := range s.units {
		if u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	return out
}

func (s *memStore) roundCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rounds)
}

type memTx struct {
	s      *memStore
	rounds map[string]string
	units  map[string]*types.Unit
	done   bool
}

func (t *memTx) tenantOf(unitID string) string {
	if u, ok := t.units[unitID]; ok {
		return u.TenantID
	}
	return ""
}

func (t *memTx) RoundExists(ctx context.Context, tenantID, roundID string) error {
	if err := t.s.check(StepRound, tenantID); err != nil {
		return err
	}
	t.s.mu.Lock()
	owner, ok := t.s.rounds[roundID]
	t.s.mu.Unlock()
	if !ok || owner != tenantID {
		return fmt.Errorf("round %s: %w", roundID, types.ErrNotFound)
	}
	return nil
}

func (t *memTx) CreateRound(ctx context.Context, tenantID string, spec types.RoundSpec) (string, error) {
	if err := t.s.check(StepRound, tenantID); err != nil {
		return "", err
	}
	id := t.s.id("round")
	t.rounds[id] = tenantID
	return id, nil
}

func (t *memTx) CreateUnit(ctx context.Context, tenantID, roundID string, spec types.UnitSpec) (string, error) {
	if err := t.s.check(StepUnit, tenantID); err != nil {
		return "", err
	}
	id := t.s.id("unit")
	t.units[id] = &types.Unit{ID: id, RoundID: roundID, TenantID: tenantID, Spec: spec}
	return id, nil
}

func (t *memTx) BindTaxonomyNodes(ctx context.Context, unitID string, nodeIDs []string) error {
	if err := t.s.check(StepBind, t.tenantOf(unitID)); err != nil {
		return err
	}
	u, ok := t.units[unitID]
	if !ok {
		return types.ErrNotFound
	}
	u.NodeIDs = append([]string(nil), nodeIDs...)
	return nil
}

func (t *memTx) SetFilterSet(ctx context.Context, unitID string, filter *types.FilterSet, matchCount int64) error {
	if err := t.s.check(StepFilters, t.tenantOf(unitID)); err != nil {
		return err
	}
	u, ok := t.units[unitID]
	if !ok {
		return types.ErrNotFound
	}
	u.Filters = filter.Clone()
	u.MatchCount = matchCount
	return nil
}

func (t *memTx) LoadUnit(ctx context.Context, unitID string) (*types.Unit, error) {
	if err := t.s.check(StepVerify, t.tenantOf(unitID)); err != nil {
		return nil, err
	}
	u, ok := t.units[unitID]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := *u
	if t.s.readBack != nil {
		t.s.readBack(&cp)
	}
	return &cp, nil
}

func (t *memTx) Commit() error {
	tenant := ""
	for _, u := range t.units {
		tenant = u.TenantID
	}
	if err := t.s.check(StepCommit, tenant); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, tenant := range t.rounds {
		t.s.rounds[id] = tenant
	}
	for id, u := range t.units {
		t.s.units[id] = u
	}
	t.done = true
	return nil
}

func (t *memTx) Rollback() error {
	t.rounds = nil
	t.units = nil
	t.done = true
	return nil
}

// memRecorder collects outcomes.
type memRecorder struct {
	mu       sync.Mutex
	outcomes []store.Outcome
	err      error
}

func (r *memRecorder) RecordOutcome(ctx context.Context, o store.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.outcomes = append(r.outcomes, o)
	return nil
}
