package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/odgrim/abathur-swarm/internal/types"
)

const pruneChunkSize = 900

// defaultPruneableStatuses is applied when time filters are given without
// an explicit status set.
var defaultPruneableStatuses = []types.Status{types.StatusCompleted, types.StatusFailed, types.StatusCancelled}

// PruneTasks runs the bulk prune algorithm: selects candidates with one
// shared WHERE clause, then in a single transaction orphans children,
// detaches audit, clears the legacy state table, deletes dependency
// edges, and deletes the task rows themselves — chunked to stay under
// the SQL parameter limit. VACUUM, when applicable, runs outside the
// transaction afterward.
func (s *Store) PruneTasks(ctx context.Context, filters types.PruneFilters, now time.Time) (*types.PruneResult, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	effectiveStatuses := filters.Statuses
	if len(effectiveStatuses) == 0 && len(filters.IDs) == 0 && (filters.OlderThanDays != nil || filters.BeforeDate != nil) {
		effectiveStatuses = defaultPruneableStatuses
	}

	result := &types.PruneResult{DryRun: filters.DryRun, BreakdownByStatus: map[types.Status]int{}}

	err := s.withTx(ctx, "prune_tasks", func(conn *sql.Conn) error {
		selected, err := s.selectPruneCandidates(ctx, conn, filters, effectiveStatuses, now)
		if err != nil {
			return err
		}

		if filters.Recursive {
			selected, err = expandRecursivePruneSet(ctx, conn, selected)
			if err != nil {
				return err
			}
		} else {
			var refused []string
			selected, refused, err = excludeParentsWithLiveSelectedChildren(ctx, conn, selected)
			if err != nil {
				return err
			}
			result.RefusedParentIDs = refused
		}

		if len(selected) == 0 {
			return nil
		}

		if err := populatePruneStats(ctx, conn, selected, result); err != nil {
			return err
		}

		if filters.DryRun {
			return nil
		}

		return executePrune(ctx, conn, selected, result)
	})
	if err != nil {
		return nil, err
	}

	if filters.DryRun {
		// Dry-run always suppresses VACUUM and never reports reclaimed bytes,
		// regardless of the requested vacuum_mode.
		return result, nil
	}

	if err := s.applyVacuumPolicy(ctx, filters.VacuumMode, result); err != nil {
		return result, err
	}
	return result, nil
}

// selectPruneCandidates builds and runs the shared selection query,
// returning the ordered list of candidate ids.
func (s *Store) selectPruneCandidates(ctx context.Context, conn *sql.Conn, filters types.PruneFilters, statuses []types.Status, now time.Time) ([]string, error) {
	query := `SELECT id FROM tasks WHERE 1=1`
	var args []interface{}

	if len(filters.IDs) > 0 {
		clause, idArgs := inClause(filters.IDs)
		query += fmt.Sprintf(" AND id IN (%s)", clause)
		args = append(args, idArgs...)
	}
	if filters.OlderThanDays != nil {
		cutoff := now.AddDate(0, 0, -*filters.OlderThanDays)
		query += " AND COALESCE(completed_at, submitted_at) <= ?"
		args = append(args, cutoff)
	}
	if filters.BeforeDate != nil {
		query += " AND COALESCE(completed_at, submitted_at) <= ?"
		args = append(args, *filters.BeforeDate)
	}
	if len(statuses) > 0 {
		clause, statusArgs := inClause(statusesToStrings(statuses))
		query += fmt.Sprintf(" AND status IN (%s)", clause)
		args = append(args, statusArgs...)
	}
	query += " ORDER BY submitted_at ASC"
	if filters.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *filters.Limit)
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("select prune candidates", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("scan prune candidate", err)
		}
		ids = append(ids, id)
	}
	return ids, wrapDBError("iterate prune candidates", rows.Err())
}

// excludeParentsWithLiveSelectedChildren implements the non-recursive
// child-blocker policy: a selected task whose child is ALSO in the
// selection, and that child is not itself in a terminal status, is
// refused rather than deleted. Children that are outside the selection
// are unaffected here — they are orphaned unconditionally in step 1a of
// executePrune, regardless of their liveness (this is how a live child
// can survive a parent's prune, see the scenario library).
func excludeParentsWithLiveSelectedChildren(ctx context.Context, conn *sql.Conn, selected []string) ([]string, []string, error) {
	if len(selected) == 0 {
		return selected, nil, nil
	}
	selectedSet := make(map[string]bool, len(selected))
	for _, id := range selected {
		selectedSet[id] = true
	}

	clause, args := inClause(selected)
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, parent_task_id, status FROM tasks WHERE parent_task_id IN (%s)
	`, clause), args...)
	if err != nil {
		return nil, nil, wrapDBError("query children for child-blocker check", err)
	}
	defer rows.Close()

	refusedSet := make(map[string]bool)
	for rows.Next() {
		var childID, parentID string
		var status types.Status
		if err := rows.Scan(&childID, &parentID, &status); err != nil {
			return nil, nil, wrapDBError("scan child-blocker row", err)
		}
		if selectedSet[childID] && !status.Terminal() {
			refusedSet[parentID] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, wrapDBError("iterate child-blocker rows", err)
	}

	if len(refusedSet) == 0 {
		return selected, nil, nil
	}

	var kept, refused []string
	for _, id := range selected {
		if refusedSet[id] {
			refused = append(refused, id)
		} else {
			kept = append(kept, id)
		}
	}
	return kept, refused, nil
}

// expandRecursivePruneSet follows parent_task_id children transitively
// and validates that every descendant is itself in a terminal status;
// recursive mode refuses the whole operation rather than partially
// prune a live subtree.
func expandRecursivePruneSet(ctx context.Context, conn *sql.Conn, selected []string) ([]string, error) {
	all := make(map[string]bool, len(selected))
	for _, id := range selected {
		all[id] = true
	}

	frontier := append([]string{}, selected...)
	for len(frontier) > 0 {
		clause, args := inClause(frontier)
		rows, err := conn.QueryContext(ctx, fmt.Sprintf(`
			SELECT id, status FROM tasks WHERE parent_task_id IN (%s)
		`, clause), args...)
		if err != nil {
			return nil, wrapDBError("query descendants for recursive prune", err)
		}

		var next []string
		for rows.Next() {
			var id string
			var status types.Status
			if err := rows.Scan(&id, &status); err != nil {
				rows.Close()
				return nil, wrapDBError("scan recursive descendant", err)
			}
			if !status.Terminal() {
				rows.Close()
				return nil, fmt.Errorf("task %s is not in a terminal state; recursive prune requires the entire descendant subtree to be pruneable: %w", id, types.ErrValidation)
			}
			if !all[id] {
				all[id] = true
				next = append(next, id)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, wrapDBError("iterate recursive descendants", err)
		}
		rows.Close()
		frontier = next
	}

	out := make([]string, 0, len(all))
	for id := range all {
		out = append(out, id)
	}
	return out, nil
}

func populatePruneStats(ctx context.Context, conn *sql.Conn, selected []string, result *types.PruneResult) error {
	clause, args := inClause(selected)

	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT status, COUNT(*) FROM tasks WHERE id IN (%s) GROUP BY status
	`, clause), args...)
	if err != nil {
		return wrapDBError("populate prune status breakdown", err)
	}
	for rows.Next() {
		var status types.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return wrapDBError("scan prune breakdown row", err)
		}
		result.BreakdownByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return wrapDBError("iterate prune breakdown rows", err)
	}
	rows.Close()

	var depCount int
	depArgs := append(append([]interface{}{}, args...), args...)
	if err := conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM task_dependencies WHERE dependent_task_id IN (%s) OR prerequisite_task_id IN (%s)
	`, clause, clause), depArgs...).Scan(&depCount); err != nil {
		return wrapDBError("count prune dependency edges", err)
	}

	result.DeletedTasks = len(selected)
	result.DeletedDependencies = depCount
	return nil
}

// executePrune runs the five-step chunked deletion sequence inside the
// already-open transaction.
func executePrune(ctx context.Context, conn *sql.Conn, selected []string, result *types.PruneResult) error {
	for _, c := range chunk(selected, pruneChunkSize) {
		clause, args := inClause(c)

		// 1a. Orphan children rather than cascade: lineage is cut
		// deliberately, scheduling is unaffected.
		if _, err := conn.ExecContext(ctx, fmt.Sprintf(`
			UPDATE tasks SET parent_task_id = NULL WHERE parent_task_id IN (%s)
		`, clause), args...); err != nil {
			return wrapDBError("orphan children", err)
		}

		// 1b. Detach audit before agents cascade (audit.agent_id has no FK
		// cascade of its own).
		if _, err := conn.ExecContext(ctx, fmt.Sprintf(`
			UPDATE audit SET agent_id = NULL
			WHERE agent_id IN (SELECT id FROM agents WHERE task_id IN (%s))
		`, clause), args...); err != nil {
			return wrapDBError("detach audit", err)
		}

		// 1c. Clear the legacy state table (no cascade).
		if _, err := conn.ExecContext(ctx, fmt.Sprintf(`
			DELETE FROM state WHERE task_id IN (%s)
		`, clause), args...); err != nil {
			return wrapDBError("clear legacy state", err)
		}

		// 1d. Delete dependency edges touching this chunk in either
		// direction.
		edgeArgs := append(append([]interface{}{}, args...), args...)
		if _, err := conn.ExecContext(ctx, fmt.Sprintf(`
			DELETE FROM task_dependencies WHERE prerequisite_task_id IN (%s) OR dependent_task_id IN (%s)
		`, clause, clause), edgeArgs...); err != nil {
			return wrapDBError("delete dependency edges", err)
		}

		// 1e. Delete the tasks themselves; agents and checkpoints cascade.
		if _, err := conn.ExecContext(ctx, fmt.Sprintf(`
			DELETE FROM tasks WHERE id IN (%s)
		`, clause), args...); err != nil {
			return wrapDBError("delete tasks", err)
		}
	}
	return nil
}

// applyVacuumPolicy runs VACUUM outside the deleting transaction per the
// requested mode, with the large-prune auto-skip safety valve.
func (s *Store) applyVacuumPolicy(ctx context.Context, mode types.VacuumMode, result *types.PruneResult) error {
	if mode == "" {
		mode = types.VacuumConditional
	}

	if mode == types.VacuumNever {
		return nil
	}
	if result.DeletedTasks == 0 {
		return nil
	}

	if mode == types.VacuumConditional {
		if result.DeletedTasks >= 10000 {
			result.VacuumAutoSkipped = true
			return nil
		}
		if result.DeletedTasks < 100 {
			return nil
		}
	}

	before, err := s.pageUsageBytes(ctx)
	if err != nil {
		return wrapDBError("measure pre-vacuum size", err)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		// A VACUUM failure does not roll back the already-committed delete.
		return wrapDBError("vacuum", err)
	}
	after, err := s.pageUsageBytes(ctx)
	if err != nil {
		return wrapDBError("measure post-vacuum size", err)
	}

	reclaimed := before - after
	result.ReclaimedBytes = &reclaimed
	return nil
}

func (s *Store) pageUsageBytes(ctx context.Context) (int64, error) {
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, err
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, err
	}
	return pageCount * pageSize, nil
}

func statusesToStrings(statuses []types.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}
