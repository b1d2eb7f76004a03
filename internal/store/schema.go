package store

import (
	"context"
	"fmt"
)

const createNodesTableMySQL = `
CREATE TABLE IF NOT EXISTS taxonomy_nodes (
	id VARCHAR(36) PRIMARY KEY,
	tenant_id VARCHAR(64) NOT NULL,
	parent_id VARCHAR(36) NULL,
	kind VARCHAR(16) NOT NULL,
	title VARCHAR(255) NOT NULL,
	sort_order INT NOT NULL DEFAULT 0,
	own_filter TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	INDEX idx_tenant (tenant_id),
	INDEX idx_parent (parent_id)
) ENGINE=InnoDB;
`

const createRoundsTableMySQL = `
CREATE TABLE IF NOT EXISTS rounds (
	id VARCHAR(36) PRIMARY KEY,
	tenant_id VARCHAR(64) NOT NULL,
	number INT NOT NULL,
	title VARCHAR(255) NOT NULL DEFAULT '',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	INDEX idx_tenant (tenant_id)
) ENGINE=InnoDB;
`

const createUnitsTableMySQL = `
CREATE TABLE IF NOT EXISTS study_units (
	id VARCHAR(36) PRIMARY KEY,
	round_id VARCHAR(36) NOT NULL,
	tenant_id VARCHAR(64) NOT NULL,
	number VARCHAR(32) NOT NULL,
	unit_type VARCHAR(64) NOT NULL,
	subject VARCHAR(255) NOT NULL DEFAULT '',
	topic VARCHAR(255) NOT NULL DEFAULT '',
	instructions TEXT,
	filter_set TEXT,
	match_count BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	INDEX idx_round (round_id),
	INDEX idx_tenant (tenant_id),
	FOREIGN KEY (round_id) REFERENCES rounds(id) ON DELETE CASCADE
) ENGINE=InnoDB;
`

const createUnitNodesTableMySQL = `
CREATE TABLE IF NOT EXISTS unit_nodes (
	unit_id VARCHAR(36) NOT NULL,
	node_id VARCHAR(36) NOT NULL,
	position INT NOT NULL DEFAULT 0,
	PRIMARY KEY (unit_id, node_id),
	INDEX idx_node (node_id),
	FOREIGN KEY (unit_id) REFERENCES study_units(id) ON DELETE CASCADE
) ENGINE=InnoDB;
`

const createReplicationLogTableMySQL = `
CREATE TABLE IF NOT EXISTS replication_log (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	batch_id VARCHAR(36) NOT NULL,
	target_index INT NOT NULL,
	tenant_id VARCHAR(64) NOT NULL,
	status VARCHAR(16) NOT NULL,
	unit_id VARCHAR(36) NOT NULL DEFAULT '',
	unmatched TEXT,
	reason TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	INDEX idx_batch (batch_id)
) ENGINE=InnoDB;
`

const createNodesTableSQLite = `
CREATE TABLE IF NOT EXISTS taxonomy_nodes (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	parent_id TEXT,
	kind TEXT NOT NULL,
	title TEXT NOT NULL,
	sort_order INTEGER NOT NULL DEFAULT 0,
	own_filter TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_nodes_tenant ON taxonomy_nodes(tenant_id);
CREATE INDEX IF NOT EXISTS idx_nodes_parent ON taxonomy_nodes(parent_id);
`

const createRoundsTableSQLite = `
CREATE TABLE IF NOT EXISTS rounds (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	number INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_rounds_tenant ON rounds(tenant_id);
`

const createUnitsTableSQLite = `
CREATE TABLE IF NOT EXISTS study_units (
	id TEXT PRIMARY KEY,
	round_id TEXT NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
	tenant_id TEXT NOT NULL,
	number TEXT NOT NULL,
	unit_type TEXT NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	topic TEXT NOT NULL DEFAULT '',
	instructions TEXT,
	filter_set TEXT,
	match_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_units_round ON study_units(round_id);
CREATE INDEX IF NOT EXISTS idx_units_tenant ON study_units(tenant_id);
`

const createUnitNodesTableSQLite = `
CREATE TABLE IF NOT EXISTS unit_nodes (
	unit_id TEXT NOT NULL REFERENCES study_units(id) ON DELETE CASCADE,
	node_id TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (unit_id, node_id)
);
CREATE INDEX IF NOT EXISTS idx_unit_nodes_node ON unit_nodes(node_id);
`

const createReplicationLogTableSQLite = `
CREATE TABLE IF NOT EXISTS replication_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id TEXT NOT NULL,
	target_index INTEGER NOT NULL,
	tenant_id TEXT NOT NULL,
	status TEXT NOT NULL,
	unit_id TEXT NOT NULL DEFAULT '',
	unmatched TEXT,
	reason TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_replication_log_batch ON replication_log(batch_id);
`

type tableDDL struct {
	name string
	sql  string
}

func (s *Store) schema() []tableDDL {
	if s.dialect == DialectSQLite {
		return []tableDDL{
			{"taxonomy_nodes", createNodesTableSQLite},
			{"rounds", createRoundsTableSQLite},
			{"study_units", createUnitsTableSQLite},
			{"unit_nodes", createUnitNodesTableSQLite},
			{"replication_log", createReplicationLogTableSQLite},
		}
	}
	return []tableDDL{
		{"taxonomy_nodes", createNodesTableMySQL},
		{"rounds", createRoundsTableMySQL},
		{"study_units", createUnitsTableMySQL},
		{"unit_nodes", createUnitNodesTableMySQL},
		{"replication_log", createReplicationLogTableMySQL},
	}
}

// InitializeSchema creates every table if missing. It is idempotent.
func (s *Store) InitializeSchema(ctx context.Context) error {
	s.logger.Debugf("Initializing %s schema", s.dialect)

	for _, t := range s.schema() {
		if _, err := s.db.ExecContext(ctx, t.sql); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}

	s.logger.Info("Schema initialized")
	return nil
}
