package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/odgrim/abathur-swarm/internal/types"
)

// InsertTaskWithDependencies inserts a task and every prerequisite edge in
// a single transaction, as enqueue_task requires. Callers are responsible
// for assigning the task id, the edge ids, and for having already
// validated prerequisite existence and cycle-freedom.
func (s *Store) InsertTaskWithDependencies(ctx context.Context, task *types.Task, edges []*types.TaskDependency) error {
	return s.withTx(ctx, "insert_task_with_dependencies", func(conn *sql.Conn) error {
		if err := s.insertTaskTx(ctx, conn, task); err != nil {
			return err
		}
		for _, e := range edges {
			if err := insertDependencyTx(ctx, conn, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateTaskDepthAndPriority applies the post-commit follow-up enqueue_task
// performs once dependency_depth and calculated_priority are known. Safe to
// retry: the values depend only on already-stored state.
func (s *Store) UpdateTaskDepthAndPriority(ctx context.Context, taskID string, depth int, priority float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET dependency_depth = ?, calculated_priority = ? WHERE id = ?
	`, depth, priority, taskID)
	return wrapDBErrorf(err, "update depth/priority for task %s", taskID)
}

// CompleteTask transitions taskID to COMPLETED, resolves every edge where
// it is the prerequisite, and promotes any direct dependent whose
// prerequisites are now all resolved from BLOCKED to READY. Returns the
// ids newly transitioned to READY. A task already in a terminal status is
// a no-op (alreadyTerminal=true), not an error.
func (s *Store) CompleteTask(ctx context.Context, taskID string, now time.Time) (unblocked []string, alreadyTerminal bool, err error) {
	err = s.withTx(ctx, "complete_task", func(conn *sql.Conn) error {
		status, err := currentStatusTx(ctx, conn, taskID)
		if err != nil {
			return err
		}
		if status.Terminal() {
			alreadyTerminal = true
			return nil
		}

		if _, err := conn.ExecContext(ctx, `
			UPDATE tasks SET status = ?, completed_at = ?, last_updated_at = ? WHERE id = ?
		`, types.StatusCompleted, now, now, taskID); err != nil {
			return wrapDBErrorf(err, "complete task %s", taskID)
		}

		dependents, err := resolveEdgesForPrerequisiteTx(ctx, conn, taskID, now)
		if err != nil {
			return err
		}

		for _, depID := range dependents {
			resolved, err := allPrerequisitesResolvedTx(ctx, conn, depID)
			if err != nil {
				return err
			}
			if !resolved {
				continue
			}
			result, err := conn.ExecContext(ctx, `
				UPDATE tasks SET status = ?, last_updated_at = ? WHERE id = ? AND status = ?
			`, types.StatusReady, now, depID, types.StatusBlocked)
			if err != nil {
				return wrapDBErrorf(err, "promote dependent %s to ready", depID)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return wrapDBError("check promotion rows affected", err)
			}
			if affected > 0 {
				unblocked = append(unblocked, depID)
			}
		}
		return nil
	})
	return unblocked, alreadyTerminal, err
}

// FailTask transitions taskID to FAILED with errMessage and cascades
// CANCELLED to the transitive closure of its unresolved dependents.
// Returns the cancelled ids (not including taskID itself). A task already
// in a terminal status is a no-op (alreadyTerminal=true), not an error.
func (s *Store) FailTask(ctx context.Context, taskID, errMessage string, now time.Time) (cancelled []string, alreadyTerminal bool, err error) {
	err = s.withTx(ctx, "fail_task", func(conn *sql.Conn) error {
		status, err := currentStatusTx(ctx, conn, taskID)
		if err != nil {
			return err
		}
		if status.Terminal() {
			alreadyTerminal = true
			return nil
		}

		if _, err := conn.ExecContext(ctx, `
			UPDATE tasks SET status = ?, error_message = ?, last_updated_at = ? WHERE id = ?
		`, types.StatusFailed, errMessage, now, taskID); err != nil {
			return wrapDBErrorf(err, "fail task %s", taskID)
		}

		descendants, err := transitiveDependentsTx(ctx, conn, taskID)
		if err != nil {
			return err
		}
		if len(descendants) == 0 {
			return nil
		}
		if err := cancelTasksTx(ctx, conn, descendants, now); err != nil {
			return err
		}
		cancelled = descendants
		return nil
	})
	return cancelled, alreadyTerminal, err
}

// CancelTask transitions taskID directly to CANCELLED (no error message)
// and cascades the same way FailTask does. Returns taskID followed by its
// cancelled descendants. A task already in a terminal status is a no-op
// (alreadyTerminal=true).
func (s *Store) CancelTask(ctx context.Context, taskID string, now time.Time) (cancelled []string, alreadyTerminal bool, err error) {
	err = s.withTx(ctx, "cancel_task", func(conn *sql.Conn) error {
		status, err := currentStatusTx(ctx, conn, taskID)
		if err != nil {
			return err
		}
		if status.Terminal() {
			alreadyTerminal = true
			return nil
		}

		if err := cancelTasksTx(ctx, conn, []string{taskID}, now); err != nil {
			return err
		}

		descendants, err := transitiveDependentsTx(ctx, conn, taskID)
		if err != nil {
			return err
		}
		if len(descendants) > 0 {
			if err := cancelTasksTx(ctx, conn, descendants, now); err != nil {
				return err
			}
		}
		cancelled = append([]string{taskID}, descendants...)
		return nil
	})
	return cancelled, alreadyTerminal, err
}

// RetryTask opens a fresh execution epoch for a terminal task: clears
// started_at, completed_at, and error_message, bumps retry_count, and
// moves status to READY or BLOCKED depending on whether every
// prerequisite edge is still resolved. Returns ErrConflict if taskID is
// not currently in a terminal status.
func (s *Store) RetryTask(ctx context.Context, taskID string, now time.Time) (*types.Task, error) {
	err := s.withTx(ctx, "retry_task", func(conn *sql.Conn) error {
		status, err := currentStatusTx(ctx, conn, taskID)
		if err != nil {
			return err
		}
		if !status.Terminal() {
			return fmt.Errorf("task %s is %s, not a terminal status: %w", taskID, status, ErrConflict)
		}

		resolved, err := allPrerequisitesResolvedTx(ctx, conn, taskID)
		if err != nil {
			return err
		}
		next := types.StatusBlocked
		if resolved {
			next = types.StatusReady
		}

		_, err = conn.ExecContext(ctx, `
			UPDATE tasks SET
				status = ?, retry_count = retry_count + 1,
				started_at = NULL, completed_at = NULL, error_message = NULL,
				last_updated_at = ?
			WHERE id = ?
		`, next, now, taskID)
		return wrapDBErrorf(err, "retry task %s", taskID)
	})
	if err != nil {
		return nil, err
	}
	return s.GetTask(ctx, taskID)
}

func currentStatusTx(ctx context.Context, exec dbExecutor, taskID string) (types.Status, error) {
	var status types.Status
	err := exec.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, taskID).Scan(&status)
	if err != nil {
		return "", wrapDBErrorf(err, "load task %s status", taskID)
	}
	return status, nil
}

func cancelTasksTx(ctx context.Context, exec dbExecutor, ids []string, now time.Time) error {
	clause, args := inClause(ids)
	args = append([]interface{}{types.StatusCancelled, now}, args...)
	_, err := exec.ExecContext(ctx, fmt.Sprintf(`
		UPDATE tasks SET status = ?, last_updated_at = ? WHERE id IN (%s)
	`, clause), args...)
	return wrapDBError("bulk cancel tasks", err)
}

// transitiveDependentsTx walks the unresolved-edge graph breadth-first
// from rootID, returning every task reachable as a dependent (directly or
// transitively). Direct dependents via an unresolved edge can only be
// PENDING, BLOCKED, or already CANCELLED (READY/RUNNING/COMPLETED would
// require the edge already resolved), so cascading a bulk status change
// here never clobbers a task that has already made independent progress.
func transitiveDependentsTx(ctx context.Context, exec dbExecutor, rootID string) ([]string, error) {
	visited := map[string]bool{}
	frontier := []string{rootID}
	var all []string

	for len(frontier) > 0 {
		clause, args := inClause(frontier)
		rows, err := exec.QueryContext(ctx, fmt.Sprintf(`
			SELECT DISTINCT dependent_task_id FROM task_dependencies
			WHERE prerequisite_task_id IN (%s) AND resolved_at IS NULL
		`, clause), args...)
		if err != nil {
			return nil, wrapDBError("query transitive dependents", err)
		}
		var next []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, wrapDBError("scan transitive dependent", err)
			}
			if !visited[id] {
				visited[id] = true
				all = append(all, id)
				next = append(next, id)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, wrapDBError("iterate transitive dependents", err)
		}
		rows.Close()
		frontier = next
	}
	return all, nil
}

// GetQueueStatus aggregates the stats get_queue_status reports.
func (s *Store) GetQueueStatus(ctx context.Context) (*types.Stats, error) {
	stats := &types.Stats{
		CountByStatus:       map[types.Status]int{},
		AvgPriorityByStatus: map[types.Status]float64{},
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*), AVG(calculated_priority) FROM tasks GROUP BY status
	`)
	if err != nil {
		return nil, wrapDBError("group tasks by status", err)
	}
	for rows.Next() {
		var status types.Status
		var count int
		var avg float64
		if err := rows.Scan(&status, &count, &avg); err != nil {
			rows.Close()
			return nil, wrapDBError("scan status group row", err)
		}
		stats.CountByStatus[status] = count
		stats.AvgPriorityByStatus[status] = avg
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, wrapDBError("iterate status group rows", err)
	}
	rows.Close()

	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(dependency_depth), 0) FROM tasks`).Scan(&stats.MaxDependencyDepth); err != nil {
		return nil, wrapDBError("max dependency depth", err)
	}

	var oldestPending sql.NullTime
	if err := s.db.QueryRowContext(ctx, `
		SELECT MIN(submitted_at) FROM tasks WHERE status = ?
	`, types.StatusPending).Scan(&oldestPending); err != nil {
		return nil, wrapDBError("oldest pending task", err)
	}
	if oldestPending.Valid {
		stats.OldestPending = &oldestPending.Time
	}

	var newest sql.NullTime
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(submitted_at) FROM tasks`).Scan(&newest); err != nil {
		return nil, wrapDBError("newest task", err)
	}
	if newest.Valid {
		stats.NewestTask = &newest.Time
	}

	return stats, nil
}
