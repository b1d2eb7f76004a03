package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dbsmedya/studyplan/internal/logger"
	"github.com/dbsmedya/studyplan/internal/types"
)

const selectUnitSQL = `SELECT id, round_id, tenant_id, number, unit_type, subject, topic, instructions, filter_set, match_count
FROM study_units WHERE id = ?`

// Tx creates one study unit atomically: round, unit, bindings and filters.
// Nothing is visible to other connections until Commit.
type Tx struct {
	tx     *sql.Tx
	newID  func() string
	logger *logger.Logger
}

// Begin starts a unit transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx, newID: s.newID, logger: s.logger}, nil
}

// RoundExists checks that a round belongs to the tenant.
func (t *Tx) RoundExists(ctx context.Context, tenantID, roundID string) error {
	var count int64
	err := t.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM rounds WHERE id = ? AND tenant_id = ?", roundID, tenantID).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to look up round %s: %w", roundID, err)
	}
	if count == 0 {
		return fmt.Errorf("round %s of tenant %s: %w", roundID, tenantID, types.ErrNotFound)
	}
	return nil
}

// CreateRound inserts a round and returns its ID.
func (t *Tx) CreateRound(ctx context.Context, tenantID string, spec types.RoundSpec) (string, error) {
	id := t.newID()
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO rounds (id, tenant_id, number, title) VALUES (?, ?, ?, ?)",
		id, tenantID, spec.Number, spec.Title)
	if err != nil {
		return "", fmt.Errorf("failed to create round %d: %w", spec.Number, err)
	}
	return id, nil
}

// CreateUnit inserts a study unit in a round and returns its ID.
func (t *Tx) CreateUnit(ctx context.Context, tenantID, roundID string, spec types.UnitSpec) (string, error) {
	id := t.newID()
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO study_units (id, round_id, tenant_id, number, unit_type, subject, topic, instructions, match_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, roundID, tenantID, spec.Number, spec.Type, spec.Subject, spec.Topic, spec.Instructions, 0)
	if err != nil {
		return "", fmt.Errorf("failed to create unit %s: %w", spec.Number, err)
	}
	return id, nil
}

// BindTaxonomyNodes binds nodes to a unit, keeping their order.
func (t *Tx) BindTaxonomyNodes(ctx context.Context, unitID string, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, "INSERT INTO unit_nodes (unit_id, node_id, position) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare binding insert: %w", err)
	}
	defer stmt.Close()

	for i, nodeID := range nodeIDs {
		if _, err := stmt.ExecContext(ctx, unitID, nodeID, i); err != nil {
			return fmt.Errorf("failed to bind node %s: %w", nodeID, err)
		}
	}
	return nil
}

// SetFilterSet stores the resolved filters and match count of a unit.
func (t *Tx) SetFilterSet(ctx context.Context, unitID string, filter *types.FilterSet, matchCount int64) error {
	encoded, err := encodeFilterSet(filter)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx,
		"UPDATE study_units SET filter_set = ?, match_count = ? WHERE id = ?", encoded, matchCount, unitID); err != nil {
		return fmt.Errorf("failed to store filters of unit %s: %w", unitID, err)
	}
	return nil
}

// LoadUnit reads a unit back inside the transaction.
func (t *Tx) LoadUnit(ctx context.Context, unitID string) (*types.Unit, error) {
	return loadUnit(ctx, t.tx, unitID)
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// LoadUnit reads a committed unit with its bindings.
func (s *Store) LoadUnit(ctx context.Context, unitID string) (*types.Unit, error) {
	return loadUnit(ctx, s.db, unitID)
}

func loadUnit(ctx context.Context, q queryer, unitID string) (*types.Unit, error) {
	var (
		u            types.Unit
		instructions sql.NullString
		filterSet    sql.NullString
	)
	err := q.QueryRowContext(ctx, selectUnitSQL, unitID).Scan(
		&u.ID, &u.RoundID, &u.TenantID, &u.Spec.Number, &u.Spec.Type,
		&u.Spec.Subject, &u.Spec.Topic, &instructions, &filterSet, &u.MatchCount)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("unit %s: %w", unitID, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load unit %s: %w", unitID, err)
	}
	u.Spec.Instructions = instructions.String

	if filterSet.Valid && filterSet.String != "" {
		u.Filters = &types.FilterSet{}
		if err := json.Unmarshal([]byte(filterSet.String), u.Filters); err != nil {
			return nil, fmt.Errorf("failed to decode filters of unit %s: %w", unitID, err)
		}
	}

	rows, err := q.QueryContext(ctx, "SELECT node_id FROM unit_nodes WHERE unit_id = ? ORDER BY position", unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bindings of unit %s: %w", unitID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var nodeID string
		if err := rows.Scan(&nodeID); err != nil {
			return nil, fmt.Errorf("failed to scan binding: %w", err)
		}
		u.NodeIDs = append(u.NodeIDs, nodeID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bindings: %w", err)
	}
	return &u, nil
}

func encodeFilterSet(f *types.FilterSet) (interface{}, error) {
	if f.IsEmpty() {
		return nil, nil
	}
	b, err := json.Marshal(f.Normalize())
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter set: %w", err)
	}
	return string(b), nil
}
