package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Outcome statuses recorded in replication_log.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Outcome is one replication target result.
type Outcome struct {
	BatchID     string
	TargetIndex int
	TenantID    string
	Status      string
	UnitID      string
	Unmatched   []string
	Reason      string
}

// RecordOutcome appends a target result to the replication log.
func (s *Store) RecordOutcome(ctx context.Context, o Outcome) error {
	var unmatched interface{}
	if len(o.Unmatched) > 0 {
		b, err := json.Marshal(o.Unmatched)
		if err != nil {
			return fmt.Errorf("failed to encode unmatched titles: %w", err)
		}
		unmatched = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO replication_log (batch_id, target_index, tenant_id, status, unit_id, unmatched, reason)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.BatchID, o.TargetIndex, o.TenantID, o.Status, o.UnitID, unmatched, o.Reason)
	if err != nil {
		return fmt.Errorf("failed to record outcome of target %d: %w", o.TargetIndex, err)
	}
	return nil
}

// ListOutcomes returns the recorded results of a batch in target order.
func (s *Store) ListOutcomes(ctx context.Context, batchID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_index, tenant_id, status, unit_id, unmatched, reason
FROM replication_log WHERE batch_id = ? ORDER BY target_index`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes of batch %s: %w", batchID, err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		o := Outcome{BatchID: batchID}
		var unmatched, reason *string
		if err := rows.Scan(&o.TargetIndex, &o.TenantID, &o.Status, &o.UnitID, &unmatched, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		if unmatched != nil && *unmatched != "" {
			if err := json.Unmarshal([]byte(*unmatched), &o.Unmatched); err != nil {
				return nil, fmt.Errorf("failed to decode unmatched titles: %w", err)
			}
		}
		if reason != nil {
			o.Reason = *reason
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
