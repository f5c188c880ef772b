package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateWorktreeCorrelationColumns adds the passthrough correlation
// columns used to tie a task back to the session and git worktree that
// produced it. Each column is added only if missing, so this is safe to
// run against both fresh and already-migrated databases.
func MigrateWorktreeCorrelationColumns(db *sql.DB) error {
	columns := []struct {
		name       string
		definition string
	}{
		{"session_id", "TEXT"},
		{"feature_branch", "TEXT"},
		{"task_branch", "TEXT"},
		{"worktree_path", "TEXT"},
	}

	for _, col := range columns {
		exists, err := columnExists(db, "tasks", col.name)
		if err != nil {
			return fmt.Errorf("check column %s: %w", col.name, err)
		}
		if exists {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf("ALTER TABLE tasks ADD COLUMN %s %s", col.name, col.definition)); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tasks_session
			ON tasks(session_id) WHERE session_id IS NOT NULL
	`); err != nil {
		return fmt.Errorf("create session index: %w", err)
	}
	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tasks_feature_branch
			ON tasks(feature_branch, status, submitted_at ASC) WHERE feature_branch IS NOT NULL
	`); err != nil {
		return fmt.Errorf("create feature_branch index: %w", err)
	}

	return nil
}

// columnExists checks pragma_table_info rather than attempting the ALTER
// and inspecting the error, so this migration stays idempotent without
// relying on driver-specific error text for "duplicate column".
func columnExists(db *sql.DB, table, column string) (bool, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
