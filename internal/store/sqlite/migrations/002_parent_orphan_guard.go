package migrations

import (
	"database/sql"
	"fmt"
	"strings"
)

// MigrateParentOrphanGuard records, in metadata, that this database has
// been checked for dangling parent_task_id references. parent_task_id is
// deliberately unconstrained by a foreign key (it is orphaned explicitly
// by the prune algorithm, not cascaded by the engine), so a prior version
// of this database could in principle contain a parent_task_id pointing
// at a task row that no longer exists.
//
// Per the migration safety rule, this never proceeds silently: if any
// orphans are found the migration refuses and reports a sample so an
// operator can choose how to resolve them before re-running.
func MigrateParentOrphanGuard(db *sql.DB) error {
	var already string
	err := db.QueryRow(`SELECT value FROM metadata WHERE key = 'parent_orphan_guard_checked'`).Scan(&already)
	if err == nil && already == "true" {
		return nil
	}
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check guard metadata: %w", err)
	}

	rows, err := db.Query(`
		SELECT t.id, t.parent_task_id
		FROM tasks t
		WHERE t.parent_task_id IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM tasks p WHERE p.id = t.parent_task_id)
		LIMIT 10
	`)
	if err != nil {
		return fmt.Errorf("scan for orphaned parent references: %w", err)
	}
	defer rows.Close()

	var samples []string
	for rows.Next() {
		var id, parentID string
		if err := rows.Scan(&id, &parentID); err != nil {
			return fmt.Errorf("scan orphan row: %w", err)
		}
		samples = append(samples, fmt.Sprintf("%s -> missing parent %s", id, parentID))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate orphan rows: %w", err)
	}

	if len(samples) > 0 {
		return fmt.Errorf(
			"found %d task(s) with a parent_task_id referencing a missing task; sample:\n  %s\n"+
				"remediation: (1) clear parent_task_id on these rows, (2) restore the missing parent tasks, "+
				"or (3) run prune with --recursive to remove the whole subtree",
			len(samples), strings.Join(samples, "\n  "),
		)
	}

	_, err = db.Exec(`
		INSERT INTO metadata (key, value) VALUES ('parent_orphan_guard_checked', 'true')
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`)
	if err != nil {
		return fmt.Errorf("record guard metadata: %w", err)
	}
	return nil
}
