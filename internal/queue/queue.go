// Package queue is the only writer of task lifecycle state above the
// Store: each lifecycle transition is committed by a single Store
// transaction that leaves the task/dependency invariants true on return.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/odgrim/abathur-swarm/internal/logging"
	"github.com/odgrim/abathur-swarm/internal/priority"
	"github.com/odgrim/abathur-swarm/internal/resolver"
	"github.com/odgrim/abathur-swarm/internal/store/sqlite"
	"github.com/odgrim/abathur-swarm/internal/types"
)

// ErrTaskNotFound is returned by every operation given an unknown task id.
var ErrTaskNotFound = sqlite.ErrNotFound

// Store is the subset of the persistent store the queue needs.
type Store interface {
	GetTask(ctx context.Context, id string) (*types.Task, error)
	ListTasks(ctx context.Context, filter sqlite.ListTasksFilter) ([]*types.Task, error)
	InsertTaskWithDependencies(ctx context.Context, task *types.Task, edges []*types.TaskDependency) error
	UpdateTaskDepthAndPriority(ctx context.Context, taskID string, depth int, priority float64) error
	DequeueNextTask(ctx context.Context, now time.Time) (*types.Task, error)
	CompleteTask(ctx context.Context, taskID string, now time.Time) ([]string, bool, error)
	FailTask(ctx context.Context, taskID, errMessage string, now time.Time) ([]string, bool, error)
	CancelTask(ctx context.Context, taskID string, now time.Time) ([]string, bool, error)
	GetQueueStatus(ctx context.Context) (*types.Stats, error)
	GetStaleRunningTasks(ctx context.Context, now time.Time) ([]*types.Task, error)
	RetryTask(ctx context.Context, taskID string, now time.Time) (*types.Task, error)
}

var _ Store = (*sqlite.Store)(nil)

// Resolver is the subset of the dependency resolver the queue needs.
type Resolver interface {
	DetectCircularDependencies(ctx context.Context, dependentID, prerequisiteID string) error
	CalculateDependencyDepth(ctx context.Context, taskID string) (int, error)
	CalculateSubgraphDepth(ctx context.Context, taskID string, taskIDs []string) (int, error)
	GetExecutionOrder(ctx context.Context, taskIDs []string) ([]string, error)
	Invalidate()
}

var _ Resolver = (*resolver.Resolver)(nil)

// Service implements enqueue/dequeue/complete/fail/cancel over a Store
// and Resolver pair.
type Service struct {
	store    Store
	resolver Resolver
}

// New builds a Service.
func New(store Store, res Resolver) *Service {
	return &Service{store: store, resolver: res}
}

// EnqueueInput is enqueue_task's parameter set; pointer fields are
// optional and fall back to the documented defaults when nil.
type EnqueueInput struct {
	Prompt                     string
	Summary                    string
	Source                     types.Source
	AgentType                  string
	InputData                  string
	BasePriority               *int
	Deadline                   *time.Time
	EstimatedDurationSeconds   *int
	MaxRetries                 *int
	MaxExecutionTimeoutSeconds *int
	Prerequisites              []string
	ParentTaskID               *string
	SessionID                  *string
	FeatureBranch              *string
	TaskBranch                 *string
	WorktreePath               *string
}

// EnqueueTask validates, assigns an id, inserts the task and its
// prerequisite edges in one transaction, then performs the post-commit
// depth/priority follow-up.
func (svc *Service) EnqueueTask(ctx context.Context, in EnqueueInput) (retTask *types.Task, retErr error) {
	ctx, span := logging.StartSpan(ctx, "abathur/queue", "enqueue_task")
	defer func() { logging.EndSpan(span, retErr) }()

	basePriority := types.DefaultBasePriority
	if in.BasePriority != nil {
		basePriority = *in.BasePriority
	}
	agentType := in.AgentType
	if agentType == "" {
		agentType = types.DefaultAgentType
	}
	maxRetries := types.DefaultMaxRetries
	if in.MaxRetries != nil {
		maxRetries = *in.MaxRetries
	}
	maxTimeout := types.DefaultMaxExecutionTimeoutSeconds
	if in.MaxExecutionTimeoutSeconds != nil {
		maxTimeout = *in.MaxExecutionTimeoutSeconds
	}

	id := uuid.NewString()

	prereqStatuses := make([]types.Status, 0, len(in.Prerequisites))
	for _, prereqID := range in.Prerequisites {
		prereqTask, err := svc.store.GetTask(ctx, prereqID)
		if err != nil {
			return nil, fmt.Errorf("prerequisite %s: %w", prereqID, err)
		}
		prereqStatuses = append(prereqStatuses, prereqTask.Status)
		if err := svc.resolver.DetectCircularDependencies(ctx, id, prereqID); err != nil {
			return nil, err
		}
	}

	status := types.StatusReady
	for _, st := range prereqStatuses {
		if st != types.StatusCompleted {
			status = types.StatusBlocked
			break
		}
	}

	now := time.Now().UTC()
	summary := in.Summary
	if summary == "" {
		summary = autoSummary(in.Prompt, in.Source)
	}

	task := &types.Task{
		ID:                         id,
		Prompt:                     in.Prompt,
		Summary:                    summary,
		AgentType:                  agentType,
		InputData:                  in.InputData,
		BasePriority:               basePriority,
		CalculatedPriority:         0,
		Deadline:                   in.Deadline,
		EstimatedDurationSeconds:   in.EstimatedDurationSeconds,
		DependencyDepth:            0,
		Source:                     in.Source,
		Status:                     status,
		MaxRetries:                 maxRetries,
		MaxExecutionTimeoutSeconds: maxTimeout,
		SubmittedAt:                now,
		LastUpdatedAt:              now,
		ParentTaskID:               in.ParentTaskID,
		SessionID:                  in.SessionID,
		FeatureBranch:              in.FeatureBranch,
		TaskBranch:                 in.TaskBranch,
		WorktreePath:               in.WorktreePath,
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}

	edges := make([]*types.TaskDependency, 0, len(in.Prerequisites))
	for _, prereqID := range in.Prerequisites {
		edges = append(edges, &types.TaskDependency{
			ID:                 uuid.NewString(),
			DependentTaskID:    id,
			PrerequisiteTaskID: prereqID,
			DependencyType:     types.DependencySequential,
			CreatedAt:          now,
		})
	}

	if err := svc.store.InsertTaskWithDependencies(ctx, task, edges); err != nil {
		return nil, err
	}
	svc.resolver.Invalidate()
	logging.Debugf("queue: enqueued task %s (status=%s)", id, status)

	if err := svc.recomputePriority(ctx, id, now); err != nil {
		return task, fmt.Errorf("post-commit depth/priority for %s: %w", id, err)
	}
	return svc.store.GetTask(ctx, id)
}

func autoSummary(prompt string, source types.Source) string {
	runes := []rune(prompt)
	limit := types.MaxSummaryLength
	prefix := ""
	if source == types.SourceHuman {
		prefix = "User Prompt: "
		limit = 126
	}
	if len(runes) > limit {
		runes = runes[:limit]
	}
	return prefix + string(runes)
}

func (svc *Service) recomputePriority(ctx context.Context, taskID string, now time.Time) error {
	task, err := svc.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	depth, err := svc.resolver.CalculateDependencyDepth(ctx, taskID)
	if err != nil {
		return err
	}
	return svc.store.UpdateTaskDepthAndPriority(ctx, taskID, depth, priority.Calculate(task, now))
}

// GetNextTask dequeues the highest-priority READY task, if any, and
// transitions it to RUNNING.
func (svc *Service) GetNextTask(ctx context.Context) (*types.Task, error) {
	return svc.store.DequeueNextTask(ctx, time.Now().UTC())
}

// CompleteTask transitions taskID to COMPLETED and promotes any
// newly-unblocked dependents to READY, returning their ids. A task
// already in a terminal state is a no-op, not an error.
func (svc *Service) CompleteTask(ctx context.Context, taskID string) (retUnblocked []string, retErr error) {
	ctx, span := logging.StartSpan(ctx, "abathur/queue", "complete_task", attribute.String("task_id", taskID))
	defer func() { logging.EndSpan(span, retErr) }()

	now := time.Now().UTC()
	unblocked, _, err := svc.store.CompleteTask(ctx, taskID, now)
	if err != nil {
		return nil, err
	}
	svc.resolver.Invalidate()
	logging.Debugf("queue: completed task %s, unblocked %v", taskID, unblocked)

	var followUpErr error
	for _, id := range unblocked {
		if err := svc.recomputePriority(ctx, id, now); err != nil && followUpErr == nil {
			followUpErr = fmt.Errorf("recompute priority for unblocked task %s: %w", id, err)
		}
	}
	return unblocked, followUpErr
}

// FailTask transitions taskID to FAILED with errMessage and cascades
// CANCELLED to the transitive closure of its dependents, returning the
// cancelled ids. A task already in a terminal state is a no-op.
func (svc *Service) FailTask(ctx context.Context, taskID, errMessage string) (retCancelled []string, retErr error) {
	ctx, span := logging.StartSpan(ctx, "abathur/queue", "fail_task", attribute.String("task_id", taskID))
	defer func() { logging.EndSpan(span, retErr) }()

	cancelled, _, err := svc.store.FailTask(ctx, taskID, errMessage, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	svc.resolver.Invalidate()
	logging.Debugf("queue: failed task %s, cancelled %v", taskID, cancelled)
	return cancelled, nil
}

// CancelTask transitions taskID directly to CANCELLED with the same
// cascade as FailTask, returning taskID followed by its cancelled
// descendants.
func (svc *Service) CancelTask(ctx context.Context, taskID string) (retCancelled []string, retErr error) {
	ctx, span := logging.StartSpan(ctx, "abathur/queue", "cancel_task", attribute.String("task_id", taskID))
	defer func() { logging.EndSpan(span, retErr) }()

	cancelled, _, err := svc.store.CancelTask(ctx, taskID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	svc.resolver.Invalidate()
	logging.Debugf("queue: cancelled task %s, cascaded %v", taskID, cancelled)
	return cancelled, nil
}

// GetQueueStatus reports aggregate queue statistics.
func (svc *Service) GetQueueStatus(ctx context.Context) (*types.Stats, error) {
	return svc.store.GetQueueStatus(ctx)
}

// GetTaskExecutionPlan groups taskIDs into depth-ordered batches: batch i
// holds every task whose dependency depth within this set is i. Depth is
// computed against the induced subgraph of taskIDs, not the global
// dependency graph, so prerequisites outside the set don't push every
// batch down and leave leading batches empty. Because depth strictly
// increases along any dependency edge, two tasks in the same batch can
// never depend on each other, so a batch can run fully in parallel.
func (svc *Service) GetTaskExecutionPlan(ctx context.Context, taskIDs []string) ([][]string, error) {
	order, err := svc.resolver.GetExecutionOrder(ctx, taskIDs)
	if err != nil {
		return nil, err
	}

	depthOf := make(map[string]int, len(order))
	maxDepth := 0
	for _, id := range order {
		depth, err := svc.resolver.CalculateSubgraphDepth(ctx, id, taskIDs)
		if err != nil {
			return nil, err
		}
		depthOf[id] = depth
		if depth > maxDepth {
			maxDepth = depth
		}
	}

	plan := make([][]string, maxDepth+1)
	for _, id := range order {
		d := depthOf[id]
		plan[d] = append(plan[d], id)
	}
	return plan, nil
}

// RetryTask opens a fresh execution epoch for a terminal task and
// invalidates the resolver cache, since its status (and so its
// contribution to readiness) just changed.
func (svc *Service) RetryTask(ctx context.Context, taskID string) (retTask *types.Task, retErr error) {
	ctx, span := logging.StartSpan(ctx, "abathur/queue", "retry_task", attribute.String("task_id", taskID))
	defer func() { logging.EndSpan(span, retErr) }()

	task, err := svc.store.RetryTask(ctx, taskID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	svc.resolver.Invalidate()
	logging.Debugf("queue: retried task %s", taskID)
	return task, nil
}

// HandleStaleTasks fails every RUNNING task whose execution timeout has
// elapsed with a synthetic timeout error, cascading cancellation the same
// way an ordinary fail_task does. Returns every cancelled id across all
// stale tasks handled.
func (svc *Service) HandleStaleTasks(ctx context.Context) ([]string, error) {
	stale, err := svc.store.GetStaleRunningTasks(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	var allCancelled []string
	for _, task := range stale {
		cancelled, err := svc.FailTask(ctx, task.ID, "task exceeded max_execution_timeout_seconds")
		if err != nil {
			return allCancelled, fmt.Errorf("fail stale task %s: %w", task.ID, err)
		}
		allCancelled = append(allCancelled, cancelled...)
	}
	return allCancelled, nil
}
