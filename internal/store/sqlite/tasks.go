package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/odgrim/abathur-swarm/internal/types"
)

const taskColumns = `
	id, prompt, summary, agent_type, input_data, base_priority, calculated_priority,
	deadline, estimated_duration_seconds, dependency_depth, source, status,
	retry_count, max_retries, max_execution_timeout_seconds,
	submitted_at, started_at, completed_at, last_updated_at,
	parent_task_id, session_id, feature_branch, task_branch, worktree_path,
	result_data, error_message
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*types.Task, error) {
	var t types.Task
	var deadline, startedAt, completedAt sql.NullTime
	var estimatedDuration sql.NullInt64
	var parentTaskID, sessionID, featureBranch, taskBranch, worktreePath sql.NullString
	var resultData, errorMessage sql.NullString

	err := row.Scan(
		&t.ID, &t.Prompt, &t.Summary, &t.AgentType, &t.InputData, &t.BasePriority, &t.CalculatedPriority,
		&deadline, &estimatedDuration, &t.DependencyDepth, &t.Source, &t.Status,
		&t.RetryCount, &t.MaxRetries, &t.MaxExecutionTimeoutSeconds,
		&t.SubmittedAt, &startedAt, &completedAt, &t.LastUpdatedAt,
		&parentTaskID, &sessionID, &featureBranch, &taskBranch, &worktreePath,
		&resultData, &errorMessage,
	)
	if err != nil {
		return nil, err
	}

	if deadline.Valid {
		t.Deadline = &deadline.Time
	}
	if estimatedDuration.Valid {
		v := int(estimatedDuration.Int64)
		t.EstimatedDurationSeconds = &v
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	if parentTaskID.Valid {
		t.ParentTaskID = &parentTaskID.String
	}
	if sessionID.Valid {
		t.SessionID = &sessionID.String
	}
	if featureBranch.Valid {
		t.FeatureBranch = &featureBranch.String
	}
	if taskBranch.Valid {
		t.TaskBranch = &taskBranch.String
	}
	if worktreePath.Valid {
		t.WorktreePath = &worktreePath.String
	}
	if resultData.Valid {
		t.ResultData = &resultData.String
	}
	if errorMessage.Valid {
		t.ErrorMessage = &errorMessage.String
	}
	return &t, nil
}

// InsertTask inserts a new task row. Callers (QueueService) are
// responsible for assigning the ID and computing the initial status.
func (s *Store) InsertTask(ctx context.Context, t *types.Task) error {
	return s.withTx(ctx, "insert_task", func(conn *sql.Conn) error {
		return s.insertTaskTx(ctx, conn, t)
	})
}

func (s *Store) insertTaskTx(ctx context.Context, exec dbExecutor, t *types.Task) error {
	_, err := exec.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO tasks (%s) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, taskColumns),
		t.ID, t.Prompt, t.Summary, t.AgentType, t.InputData, t.BasePriority, t.CalculatedPriority,
		nullTime(t.Deadline), nullInt(t.EstimatedDurationSeconds), t.DependencyDepth, t.Source, t.Status,
		t.RetryCount, t.MaxRetries, t.MaxExecutionTimeoutSeconds,
		t.SubmittedAt, nullTime(t.StartedAt), nullTime(t.CompletedAt), t.LastUpdatedAt,
		nullString(t.ParentTaskID), nullString(t.SessionID), nullString(t.FeatureBranch), nullString(t.TaskBranch), nullString(t.WorktreePath),
		nullString(t.ResultData), nullString(t.ErrorMessage),
	)
	return wrapDBError("insert task", err)
}

// UpdateTask overwrites every mutable column of an existing task row with
// the values on t. Callers own read-modify-write races: the CLI's `task
// update` loads the current row, mutates the fields a user asked for, and
// writes the whole thing back.
func (s *Store) UpdateTask(ctx context.Context, t *types.Task) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			prompt = ?, summary = ?, agent_type = ?, input_data = ?,
			base_priority = ?, calculated_priority = ?, deadline = ?,
			estimated_duration_seconds = ?, dependency_depth = ?, source = ?, status = ?,
			retry_count = ?, max_retries = ?, max_execution_timeout_seconds = ?,
			started_at = ?, completed_at = ?, last_updated_at = ?,
			parent_task_id = ?, session_id = ?, feature_branch = ?, task_branch = ?, worktree_path = ?,
			result_data = ?, error_message = ?
		WHERE id = ?
	`,
		t.Prompt, t.Summary, t.AgentType, t.InputData,
		t.BasePriority, t.CalculatedPriority, nullTime(t.Deadline),
		nullInt(t.EstimatedDurationSeconds), t.DependencyDepth, t.Source, t.Status,
		t.RetryCount, t.MaxRetries, t.MaxExecutionTimeoutSeconds,
		nullTime(t.StartedAt), nullTime(t.CompletedAt), t.LastUpdatedAt,
		nullString(t.ParentTaskID), nullString(t.SessionID), nullString(t.FeatureBranch), nullString(t.TaskBranch), nullString(t.WorktreePath),
		nullString(t.ResultData), nullString(t.ErrorMessage),
		t.ID,
	)
	return wrapDBErrorf(err, "update task %s", t.ID)
}

// GetTask fetches a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*types.Task, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM tasks WHERE id = ?`, taskColumns), id)
	t, err := scanTask(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "get task %s", id)
	}
	return t, nil
}

// ResolveTaskID resolves an exact id or an unambiguous id prefix to its
// full task id. An exact match always wins even if shorter ids also
// share the prefix. Returns ErrNotFound if nothing matches and
// ErrAmbiguous if more than one task shares the prefix.
func (s *Store) ResolveTaskID(ctx context.Context, idOrPrefix string) (string, error) {
	var exact string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM tasks WHERE id = ?`, idOrPrefix).Scan(&exact)
	if err == nil {
		return exact, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", wrapDBErrorf(err, "resolve task id %s", idOrPrefix)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tasks WHERE id LIKE ? || '%' LIMIT 2`, idOrPrefix)
	if err != nil {
		return "", wrapDBErrorf(err, "resolve task prefix %s", idOrPrefix)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", wrapDBError("scan task id match", err)
		}
		matches = append(matches, id)
	}
	if err := rows.Err(); err != nil {
		return "", wrapDBError("iterate task id matches", err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no task matches id or prefix %q: %w", idOrPrefix, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("prefix %q matches more than one task: %w", idOrPrefix, ErrAmbiguous)
	}
}

// ListTaskIDsByPrefix returns every task id sharing the given prefix, with
// no limit. Used to print candidates after ResolveTaskID reports
// ErrAmbiguous.
func (s *Store) ListTaskIDsByPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tasks WHERE id LIKE ? || '%' ORDER BY id`, prefix)
	if err != nil {
		return nil, wrapDBErrorf(err, "list task ids by prefix %s", prefix)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("scan task id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate task ids", err)
	}
	return ids, nil
}

// ListTasksFilter selects tasks by optional equality/inequality filters;
// nil/zero fields are not applied.
type ListTasksFilter struct {
	Status        *types.Status
	ExcludeStatus *types.Status
	Source        *types.Source
	AgentType     *string
	FeatureBranch *string
	Limit         *int
}

// ListTasks lists tasks matching filter, ordered newest-submitted-first.
func (s *Store) ListTasks(ctx context.Context, filter ListTasksFilter) ([]*types.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE 1=1`, taskColumns)
	var args []interface{}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.ExcludeStatus != nil {
		query += " AND status != ?"
		args = append(args, *filter.ExcludeStatus)
	}
	if filter.Source != nil {
		query += " AND source = ?"
		args = append(args, *filter.Source)
	}
	if filter.AgentType != nil {
		query += " AND agent_type = ?"
		args = append(args, *filter.AgentType)
	}
	if filter.FeatureBranch != nil {
		query += " AND feature_branch = ?"
		args = append(args, *filter.FeatureBranch)
	}
	query += " ORDER BY submitted_at DESC"
	if filter.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list tasks", err)
	}
	defer rows.Close()

	var out []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, wrapDBError("scan task row", err)
		}
		out = append(out, t)
	}
	return out, wrapDBError("iterate task rows", rows.Err())
}

// updateTaskStatusTx sets status and last_updated_at for one task within
// an existing transaction and returns the number of rows affected.
func updateTaskStatusTx(ctx context.Context, exec dbExecutor, id string, status types.Status, now time.Time) (int64, error) {
	result, err := exec.ExecContext(ctx, `
		UPDATE tasks SET status = ?, last_updated_at = ? WHERE id = ?
	`, status, now, id)
	if err != nil {
		return 0, wrapDBErrorf(err, "update task %s status", id)
	}
	return result.RowsAffected()
}

// GetStaleRunningTasks returns RUNNING tasks whose last_updated_at is
// older than their own max_execution_timeout_seconds, as of now.
func (s *Store) GetStaleRunningTasks(ctx context.Context, now time.Time) ([]*types.Task, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE status = ?
		  AND (julianday(?) - julianday(last_updated_at)) * 86400 > max_execution_timeout_seconds
	`, taskColumns), types.StatusRunning, now)
	if err != nil {
		return nil, wrapDBError("get stale running tasks", err)
	}
	defer rows.Close()

	var out []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, wrapDBError("scan stale task row", err)
		}
		out = append(out, t)
	}
	return out, wrapDBError("iterate stale task rows", rows.Err())
}

// GetChildTasks returns the direct children of the given parent ids in a
// single query.
func (s *Store) GetChildTasks(ctx context.Context, parentIDs []string) ([]*types.Task, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	clause, args := inClause(parentIDs)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM tasks WHERE parent_task_id IN (%s)
	`, taskColumns, clause), args...)
	if err != nil {
		return nil, wrapDBError("get child tasks", err)
	}
	defer rows.Close()

	var out []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, wrapDBError("scan child task row", err)
		}
		out = append(out, t)
	}
	return out, wrapDBError("iterate child task rows", rows.Err())
}

// DequeueNextTask atomically selects the highest-priority READY task and
// transitions it to RUNNING using a conditional UPDATE rather than a
// SELECT-then-UPDATE, so two concurrent callers cannot both win the same
// row: only the caller whose UPDATE actually matched status='ready' gets
// a result.
func (s *Store) DequeueNextTask(ctx context.Context, now time.Time) (*types.Task, error) {
	var task *types.Task
	err := s.withTx(ctx, "dequeue_next_task", func(conn *sql.Conn) error {
		var id string
		err := conn.QueryRowContext(ctx, `
			SELECT id FROM tasks
			WHERE status = 'ready'
			ORDER BY calculated_priority DESC, submitted_at ASC
			LIMIT 1
		`).Scan(&id)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return wrapDBError("select next ready task", err)
		}

		result, err := conn.ExecContext(ctx, `
			UPDATE tasks SET status = 'running', started_at = ?, last_updated_at = ?
			WHERE id = ? AND status = 'ready'
		`, now, now, id)
		if err != nil {
			return wrapDBErrorf(err, "dequeue task %s", id)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return wrapDBError("check dequeue rows affected", err)
		}
		if affected == 0 {
			// Lost the race to a concurrent dequeue; caller retries.
			return nil
		}

		row := conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM tasks WHERE id = ?`, taskColumns), id)
		task, err = scanTask(row)
		if err != nil {
			return wrapDBErrorf(err, "reload dequeued task %s", id)
		}
		return nil
	})
	return task, err
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullInt(i *int) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
