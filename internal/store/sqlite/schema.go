package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/odgrim/abathur-swarm/internal/store/sqlite/migrations"
)

// baseSchema creates every table and index this package depends on. It is
// idempotent (IF NOT EXISTS throughout) so it is safe to run on every
// Open. Numbered migrations in migrations/ handle everything added after
// this baseline.
const baseSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id                            TEXT PRIMARY KEY,
	prompt                        TEXT NOT NULL,
	summary                       TEXT NOT NULL DEFAULT '',
	agent_type                    TEXT NOT NULL DEFAULT '',
	input_data                    TEXT NOT NULL DEFAULT '',
	base_priority                 INTEGER NOT NULL DEFAULT 5 CHECK(base_priority BETWEEN 0 AND 10),
	calculated_priority           REAL NOT NULL DEFAULT 0,
	deadline                      DATETIME,
	estimated_duration_seconds    INTEGER,
	dependency_depth              INTEGER NOT NULL DEFAULT 0,
	source                        TEXT NOT NULL,
	status                        TEXT NOT NULL,
	retry_count                   INTEGER NOT NULL DEFAULT 0,
	max_retries                   INTEGER NOT NULL DEFAULT 3,
	max_execution_timeout_seconds INTEGER NOT NULL DEFAULT 3600,
	submitted_at                  DATETIME NOT NULL,
	started_at                    DATETIME,
	completed_at                  DATETIME,
	last_updated_at               DATETIME NOT NULL,
	parent_task_id                TEXT,
	result_data                   TEXT,
	error_message                 TEXT
);

CREATE INDEX IF NOT EXISTS idx_tasks_status_basepriority_submitted
	ON tasks(status, base_priority DESC, submitted_at ASC);
CREATE INDEX IF NOT EXISTS idx_tasks_ready_priority
	ON tasks(status, calculated_priority DESC, submitted_at ASC) WHERE status = 'ready';
CREATE INDEX IF NOT EXISTS idx_tasks_running_stale
	ON tasks(status, last_updated_at) WHERE status = 'running';
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id);
-- created_by is deliberately absent: always-None in the one original
-- call path that would populate it, so it carries no index selectivity.
CREATE INDEX IF NOT EXISTS idx_tasks_source_submitted ON tasks(source, submitted_at DESC);
CREATE INDEX IF NOT EXISTS idx_tasks_deadline
	ON tasks(deadline, status) WHERE deadline IS NOT NULL AND status IN ('pending', 'blocked', 'ready');
CREATE INDEX IF NOT EXISTS idx_tasks_blocked_submitted
	ON tasks(status, submitted_at ASC) WHERE status = 'blocked';
-- session_id, feature_branch, task_branch, worktree_path and their
-- indexes are added by migrations.MigrateWorktreeCorrelationColumns.

CREATE TABLE IF NOT EXISTS task_dependencies (
	id                      TEXT PRIMARY KEY,
	dependent_task_id       TEXT NOT NULL REFERENCES tasks(id),
	prerequisite_task_id    TEXT NOT NULL REFERENCES tasks(id),
	dependency_type         TEXT NOT NULL,
	created_at              DATETIME NOT NULL,
	resolved_at             DATETIME,
	UNIQUE(dependent_task_id, prerequisite_task_id),
	CHECK(dependent_task_id <> prerequisite_task_id)
);

CREATE INDEX IF NOT EXISTS idx_taskdeps_prereq_unresolved
	ON task_dependencies(prerequisite_task_id) WHERE resolved_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_taskdeps_dependent_unresolved
	ON task_dependencies(dependent_task_id) WHERE resolved_at IS NULL;

CREATE TABLE IF NOT EXISTS agents (
	id         TEXT PRIMARY KEY,
	task_id    TEXT REFERENCES tasks(id) ON DELETE CASCADE,
	name       TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agents_task ON agents(task_id);

CREATE TABLE IF NOT EXISTS checkpoints (
	id         TEXT PRIMARY KEY,
	task_id    TEXT REFERENCES tasks(id) ON DELETE CASCADE,
	data       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_task ON checkpoints(task_id);

-- audit.agent_id intentionally has no cascade: a deleted agent's audit
-- trail is detached (agent_id set NULL), never deleted, in step 1b of
-- executePrune.
CREATE TABLE IF NOT EXISTS audit (
	id         TEXT PRIMARY KEY,
	task_id    TEXT,
	agent_id   TEXT,
	action     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_agent ON audit(agent_id);

-- state is a legacy table retained for backward references; it has no FK
-- cascade and is cleared explicitly during prune (executePrune step 1c).
CREATE TABLE IF NOT EXISTS state (
	task_id TEXT PRIMARY KEY,
	data    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// RunMigrations applies the base schema and every numbered migration in
// order. Safe to call on every Open: each step is individually idempotent.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, baseSchema); err != nil {
		return fmt.Errorf("apply base schema: %w", err)
	}

	steps := []struct {
		name string
		fn   func(*sql.DB) error
	}{
		{"worktree_correlation_columns", migrations.MigrateWorktreeCorrelationColumns},
		{"parent_orphan_guard", migrations.MigrateParentOrphanGuard},
	}

	for _, step := range steps {
		if err := step.fn(db); err != nil {
			return fmt.Errorf("migration %s: %w", step.name, err)
		}
	}
	return nil
}
