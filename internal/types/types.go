// Package types defines the core task queue data model: tasks, dependency
// edges, and the enums governing their lifecycle.
package types

import "time"

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusBlocked   Status = "blocked"
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// AllStatuses lists every valid Status, in the order surfaced to callers
// when reporting an unknown-status validation error.
var AllStatuses = []Status{
	StatusPending, StatusBlocked, StatusReady, StatusRunning,
	StatusCompleted, StatusFailed, StatusCancelled,
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a sink status: no transition leaves it
// except an explicit retry.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Source identifies who or what submitted a task.
type Source string

const (
	SourceHuman                Source = "human"
	SourceAgentRequirements     Source = "agent_requirements"
	SourceAgentPlanner          Source = "agent_planner"
	SourceAgentImplementation   Source = "agent_implementation"
)

var AllSources = []Source{
	SourceHuman, SourceAgentRequirements, SourceAgentPlanner, SourceAgentImplementation,
}

func (s Source) Valid() bool {
	for _, v := range AllSources {
		if s == v {
			return true
		}
	}
	return false
}

// DependencyType classifies a TaskDependency edge.
type DependencyType string

const (
	DependencySequential DependencyType = "sequential"
	DependencyParallel   DependencyType = "parallel"
)

func (d DependencyType) Valid() bool {
	return d == DependencySequential || d == DependencyParallel
}

// Defaults applied by the queue service when a caller omits a value.
const (
	DefaultBasePriority               = 5
	DefaultMaxRetries                 = 3
	DefaultMaxExecutionTimeoutSeconds = 3600
	DefaultAgentType                  = "requirements-gatherer"
	MinBasePriority                   = 0
	MaxBasePriority                   = 10
	MaxSummaryLength                  = 140
)

// Task is the primary scheduling entity.
type Task struct {
	ID                         string
	Prompt                     string
	Summary                    string
	AgentType                  string
	InputData                  string // opaque JSON, persisted verbatim
	BasePriority               int
	CalculatedPriority         float64
	Deadline                   *time.Time
	EstimatedDurationSeconds   *int
	DependencyDepth            int
	Source                     Source
	Status                     Status
	RetryCount                 int
	MaxRetries                 int
	MaxExecutionTimeoutSeconds int
	SubmittedAt                time.Time
	StartedAt                  *time.Time
	CompletedAt                *time.Time
	LastUpdatedAt              time.Time
	ParentTaskID               *string
	SessionID                  *string
	FeatureBranch              *string
	TaskBranch                 *string
	WorktreePath               *string
	ResultData                 *string
	ErrorMessage               *string
}

// IsStale reports whether a RUNNING task has exceeded its execution
// timeout as of now.
func (t *Task) IsStale(now time.Time) bool {
	if t.Status != StatusRunning {
		return false
	}
	timeout := time.Duration(t.MaxExecutionTimeoutSeconds) * time.Second
	return now.Sub(t.LastUpdatedAt) > timeout
}

// TaskDependency is a directed edge: DependentTaskID requires
// PrerequisiteTaskID to complete first.
type TaskDependency struct {
	ID                  string
	DependentTaskID     string
	PrerequisiteTaskID  string
	DependencyType      DependencyType
	CreatedAt           time.Time
	ResolvedAt          *time.Time
}

// Resolved reports whether the edge no longer participates in scheduling.
func (d *TaskDependency) Resolved() bool {
	return d.ResolvedAt != nil
}

// Stats is the aggregate shape returned by get_queue_status.
type Stats struct {
	CountByStatus       map[Status]int
	AvgPriorityByStatus map[Status]float64
	MaxDependencyDepth  int
	OldestPending       *time.Time
	NewestTask          *time.Time
}

// VacuumMode controls the post-prune space-reclamation policy.
type VacuumMode string

const (
	VacuumAlways      VacuumMode = "always"
	VacuumConditional VacuumMode = "conditional"
	VacuumNever       VacuumMode = "never"
)

func (v VacuumMode) Valid() bool {
	return v == VacuumAlways || v == VacuumConditional || v == VacuumNever
}

// PruneFilters selects the candidate set for a bulk prune.
type PruneFilters struct {
	IDs           []string
	OlderThanDays *int
	BeforeDate    *time.Time
	Statuses      []Status
	Limit         *int
	DryRun        bool
	VacuumMode    VacuumMode
	Recursive     bool
	PreviewDepth  int
}

// PruneResult is the outcome of a bulk prune, whether or not dry-run.
type PruneResult struct {
	DeletedTasks        int
	DeletedDependencies int
	ReclaimedBytes      *int64
	DryRun              bool
	BreakdownByStatus   map[Status]int
	VacuumAutoSkipped   bool
	RefusedParentIDs    []string // parents with live children, non-recursive mode
}
