package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/odgrim/abathur-swarm/internal/types"
)

const depColumns = `id, dependent_task_id, prerequisite_task_id, dependency_type, created_at, resolved_at`

func scanDependency(row rowScanner) (*types.TaskDependency, error) {
	var d types.TaskDependency
	var resolvedAt sql.NullTime
	if err := row.Scan(&d.ID, &d.DependentTaskID, &d.PrerequisiteTaskID, &d.DependencyType, &d.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}
	return &d, nil
}

func insertDependencyTx(ctx context.Context, exec dbExecutor, d *types.TaskDependency) error {
	_, err := exec.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO task_dependencies (%s) VALUES (?,?,?,?,?,?)
	`, depColumns), d.ID, d.DependentTaskID, d.PrerequisiteTaskID, d.DependencyType, d.CreatedAt, nullTime(d.ResolvedAt))
	return wrapDBError("insert dependency", err)
}

// InsertDependency inserts a single edge in its own transaction.
func (s *Store) InsertDependency(ctx context.Context, d *types.TaskDependency) error {
	return s.withTx(ctx, "insert_dependency", func(conn *sql.Conn) error {
		return insertDependencyTx(ctx, conn, d)
	})
}

// GetUnresolvedEdges returns every edge with resolved_at IS NULL — the
// subgraph that participates in scheduling.
func (s *Store) GetUnresolvedEdges(ctx context.Context) ([]*types.TaskDependency, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM task_dependencies WHERE resolved_at IS NULL
	`, depColumns))
	if err != nil {
		return nil, wrapDBError("get unresolved edges", err)
	}
	defer rows.Close()

	var out []*types.TaskDependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, wrapDBError("scan dependency row", err)
		}
		out = append(out, d)
	}
	return out, wrapDBError("iterate dependency rows", rows.Err())
}

// GetPrerequisites returns the prerequisite task ids for a single task.
func (s *Store) GetPrerequisites(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT prerequisite_task_id FROM task_dependencies WHERE dependent_task_id = ?
	`, taskID)
	if err != nil {
		return nil, wrapDBError("get prerequisites", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("scan prerequisite row", err)
		}
		out = append(out, id)
	}
	return out, wrapDBError("iterate prerequisite rows", rows.Err())
}

// GetDirectDependents returns the task ids that have prereqTaskID as an
// unresolved prerequisite.
func (s *Store) GetDirectDependents(ctx context.Context, prereqTaskID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dependent_task_id FROM task_dependencies
		WHERE prerequisite_task_id = ? AND resolved_at IS NULL
	`, prereqTaskID)
	if err != nil {
		return nil, wrapDBError("get direct dependents", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("scan dependent row", err)
		}
		out = append(out, id)
	}
	return out, wrapDBError("iterate dependent rows", rows.Err())
}

// allPrerequisitesResolvedTx reports whether every prerequisite row for
// taskID has resolved_at set (i.e. no unresolved prerequisite remains).
func allPrerequisitesResolvedTx(ctx context.Context, exec dbExecutor, taskID string) (bool, error) {
	var count int
	err := exec.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM task_dependencies
		WHERE dependent_task_id = ? AND resolved_at IS NULL
	`, taskID).Scan(&count)
	if err != nil {
		return false, wrapDBErrorf(err, "count unresolved prerequisites for %s", taskID)
	}
	return count == 0, nil
}

// resolveEdgesForPrerequisiteTx marks every unresolved edge whose
// prerequisite is taskID as resolved, returning the distinct dependent
// ids affected.
func resolveEdgesForPrerequisiteTx(ctx context.Context, exec dbExecutor, taskID string, resolvedAt interface{}) ([]string, error) {
	rows, err := exec.QueryContext(ctx, `
		SELECT DISTINCT dependent_task_id FROM task_dependencies
		WHERE prerequisite_task_id = ? AND resolved_at IS NULL
	`, taskID)
	if err != nil {
		return nil, wrapDBError("select dependents to resolve", err)
	}
	var dependents []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, wrapDBError("scan dependent to resolve", err)
		}
		dependents = append(dependents, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, wrapDBError("iterate dependents to resolve", err)
	}
	rows.Close()

	if _, err := exec.ExecContext(ctx, `
		UPDATE task_dependencies SET resolved_at = ?
		WHERE prerequisite_task_id = ? AND resolved_at IS NULL
	`, resolvedAt, taskID); err != nil {
		return nil, wrapDBErrorf(err, "resolve edges for prerequisite %s", taskID)
	}
	return dependents, nil
}
