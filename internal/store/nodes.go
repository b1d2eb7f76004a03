package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dbsmedya/studyplan/internal/sqlutil"
	"github.com/dbsmedya/studyplan/internal/taxonomy"
	"github.com/dbsmedya/studyplan/internal/types"
)

const selectTreeSQL = `SELECT id, parent_id, kind, title, sort_order, own_filter
FROM taxonomy_nodes WHERE tenant_id = ? ORDER BY sort_order, id`

// LoadTree returns every taxonomy node of a tenant.
func (s *Store) LoadTree(ctx context.Context, tenantID string) ([]taxonomy.Node, error) {
	rows, err := s.db.QueryContext(ctx, selectTreeSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query taxonomy of tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var nodes []taxonomy.Node
	for rows.Next() {
		var (
			n         taxonomy.Node
			parentID  sql.NullString
			kind      string
			ownFilter sql.NullString
		)
		if err := rows.Scan(&n.ID, &parentID, &kind, &n.Title, &n.Order, &ownFilter); err != nil {
			return nil, fmt.Errorf("failed to scan taxonomy node: %w", err)
		}
		n.ParentID = parentID.String
		if n.Kind, err = taxonomy.ParseKind(kind); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		if n.OwnFilter, err = decodeFilter(ownFilter); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read taxonomy nodes: %w", err)
	}

	s.logger.WithTenant(tenantID).Debugf("Loaded %d taxonomy nodes", len(nodes))
	return nodes, nil
}

// LoadTaxonomy loads the nodes of a tenant into a Tree.
func (s *Store) LoadTaxonomy(ctx context.Context, tenantID string) (*taxonomy.Tree, error) {
	nodes, err := s.LoadTree(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return taxonomy.NewTree(tenantID, nodes)
}

// ListTenants returns every tenant that owns at least one taxonomy node.
func (s *Store) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT tenant_id FROM taxonomy_nodes ORDER BY tenant_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// CreateNode inserts a node for a tenant. An empty ID is generated.
// A parent, when set, must belong to the same tenant.
func (s *Store) CreateNode(ctx context.Context, tenantID string, n taxonomy.Node) (taxonomy.Node, error) {
	if n.Kind == taxonomy.KindAny {
		return taxonomy.Node{}, fmt.Errorf("node kind is required")
	}
	if n.ParentID != "" {
		exists, err := s.nodeExists(ctx, s.db, tenantID, n.ParentID)
		if err != nil {
			return taxonomy.Node{}, err
		}
		if !exists {
			return taxonomy.Node{}, fmt.Errorf("parent %s: %w", n.ParentID, types.ErrNotFound)
		}
	}
	if n.ID == "" {
		n.ID = s.newID()
	}

	filter, err := encodeFilter(n.OwnFilter)
	if err != nil {
		return taxonomy.Node{}, err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO taxonomy_nodes (id, tenant_id, parent_id, kind, title, sort_order, own_filter) VALUES (?, ?, ?, ?, ?, ?, ?)",
		n.ID, tenantID, nullString(n.ParentID), n.Kind.String(), n.Title, n.Order, filter)
	if err != nil {
		return taxonomy.Node{}, fmt.Errorf("failed to insert node %s: %w", n.ID, err)
	}
	return n, nil
}

// UpdateOwnFilter replaces the own filter of a node.
func (s *Store) UpdateOwnFilter(ctx context.Context, tenantID, nodeID string, f taxonomy.Filter) error {
	exists, err := s.nodeExists(ctx, s.db, tenantID, nodeID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("taxonomy node %s: %w", nodeID, types.ErrNotFound)
	}

	filter, err := encodeFilter(f)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE taxonomy_nodes SET own_filter = ? WHERE tenant_id = ? AND id = ?",
		filter, tenantID, nodeID); err != nil {
		return fmt.Errorf("failed to update filter of node %s: %w", nodeID, err)
	}
	return nil
}

// MoveNode re-parents a node. An empty newParentID makes it a root.
// Moving a node under itself or one of its descendants fails with
// taxonomy.ErrCycleDetected and writes nothing.
func (s *Store) MoveNode(ctx context.Context, tenantID, nodeID, newParentID string) error {
	tree, err := s.LoadTaxonomy(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := tree.Move(nodeID, newParentID); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE taxonomy_nodes SET parent_id = ? WHERE tenant_id = ? AND id = ?",
		nullString(newParentID), tenantID, nodeID); err != nil {
		return fmt.Errorf("failed to move node %s: %w", nodeID, err)
	}
	s.logger.WithTenant(tenantID).Infof("Moved node %s under %q", nodeID, newParentID)
	return nil
}

// RenameNode changes the title of a node.
func (s *Store) RenameNode(ctx context.Context, tenantID, nodeID, title string) error {
	if title == "" {
		return fmt.Errorf("node title is required")
	}
	exists, err := s.nodeExists(ctx, s.db, tenantID, nodeID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("taxonomy node %s: %w", nodeID, types.ErrNotFound)
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE taxonomy_nodes SET title = ? WHERE tenant_id = ? AND id = ?",
		title, tenantID, nodeID); err != nil {
		return fmt.Errorf("failed to rename node %s: %w", nodeID, err)
	}
	return nil
}

// DeleteSubtree removes a node, all of its descendants and their unit bindings
// in one transaction. It returns the number of nodes removed.
func (s *Store) DeleteSubtree(ctx context.Context, tenantID, nodeID string) (int64, error) {
	tree, err := s.LoadTaxonomy(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	subtree, err := tree.Subtree(nodeID)
	if err != nil {
		return 0, err
	}
	ids := make([]string, len(subtree))
	for i, n := range subtree {
		ids[i] = n.ID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Errorf("Failed to rollback subtree delete: %v", rbErr)
			}
		}
	}()

	var deleted int64
	for _, chunk := range sqlutil.Chunk(ids, deleteChunkSize) {
		in, args := sqlutil.InClause("node_id", chunk)
		if _, err := tx.ExecContext(ctx, "DELETE FROM unit_nodes WHERE "+in, args...); err != nil {
			return 0, fmt.Errorf("failed to delete bindings: %w", err)
		}

		in, args = sqlutil.InClause("id", chunk)
		result, err := tx.ExecContext(ctx, "DELETE FROM taxonomy_nodes WHERE tenant_id = ? AND "+in,
			append([]interface{}{tenantID}, args...)...)
		if err != nil {
			return 0, fmt.Errorf("failed to delete nodes: %w", err)
		}
		n, _ := result.RowsAffected()
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit subtree delete: %w", err)
	}
	tx = nil

	s.logger.WithTenant(tenantID).Infof("Deleted subtree %s: %d nodes", nodeID, deleted)
	return deleted, nil
}

// ListBoundLeafIDs returns the nodes bound to any unit of the tenant,
// ignoring the bindings of excludingUnitID when it is set.
func (s *Store) ListBoundLeafIDs(ctx context.Context, tenantID, excludingUnitID string) ([]string, error) {
	query := `SELECT DISTINCT un.node_id FROM unit_nodes un
JOIN study_units su ON su.id = un.unit_id
WHERE su.tenant_id = ?`
	args := []interface{}{tenantID}
	if excludingUnitID != "" {
		query += " AND su.id <> ?"
		args = append(args, excludingUnitID)
	}
	query += " ORDER BY un.node_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bound nodes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan bound node: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) nodeExists(ctx context.Context, q queryer, tenantID, nodeID string) (bool, error) {
	var count int64
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM taxonomy_nodes WHERE tenant_id = ? AND id = ?", tenantID, nodeID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up node %s: %w", nodeID, err)
	}
	return count > 0, nil
}

func encodeFilter(f taxonomy.Filter) (interface{}, error) {
	if f.IsEmpty() {
		return nil, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter: %w", err)
	}
	return string(b), nil
}

func decodeFilter(raw sql.NullString) (taxonomy.Filter, error) {
	var f taxonomy.Filter
	if !raw.Valid || raw.String == "" {
		return f, nil
	}
	if err := json.Unmarshal([]byte(raw.String), &f); err != nil {
		return f, fmt.Errorf("failed to decode filter: %w", err)
	}
	return f, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
