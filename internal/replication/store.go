package replication

import (
	"context"

	"github.com/dbsmedya/studyplan/internal/store"
	"github.com/dbsmedya/studyplan/internal/taxonomy"
	"github.com/dbsmedya/studyplan/internal/types"
)

// Store is the persistence the engine writes targets into.
type Store interface {
	LoadTaxonomy(ctx context.Context, tenantID string) (*taxonomy.Tree, error)
	Begin(ctx context.Context) (Tx, error)
}

// Tx creates one target atomically.
type Tx interface {
	RoundExists(ctx context.Context, tenantID, roundID string) error
	CreateRound(ctx context.Context, tenantID string, spec types.RoundSpec) (string, error)
	CreateUnit(ctx context.Context, tenantID, roundID string, spec types.UnitSpec) (string, error)
	BindTaxonomyNodes(ctx context.Context, unitID string, nodeIDs []string) error
	SetFilterSet(ctx context.Context, unitID string, filter *types.FilterSet, matchCount int64) error
	LoadUnit(ctx context.Context, unitID string) (*types.Unit, error)
	Commit() error
	Rollback() error
}

// Recorder appends target outcomes to the replication log.
type Recorder interface {
	RecordOutcome(ctx context.Context, o store.Outcome) error
}

type sqlStore struct {
	*store.Store
}

// NewSQLStore adapts a store.Store to the engine.
func NewSQLStore(s *store.Store) Store {
	return sqlStore{Store: s}
}

func (s sqlStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}
