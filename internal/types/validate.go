package types

import (
	"errors"
	"fmt"
)

// Validation errors. Callers compare with errors.Is.
var (
	ErrValidation = errors.New("validation error")
)

func validationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// Validate checks a Task's invariant-bearing fields. It does not check
// relationships (prerequisite existence, cycles) — that is the Resolver's
// and QueueService's job, since it requires Store access.
func (t *Task) Validate() error {
	if t.Prompt == "" {
		return validationErrorf("prompt is required")
	}
	if len([]rune(t.Summary)) > MaxSummaryLength {
		return validationErrorf("summary must be %d characters or less", MaxSummaryLength)
	}
	if t.BasePriority < MinBasePriority || t.BasePriority > MaxBasePriority {
		return validationErrorf("base_priority must be between %d and %d", MinBasePriority, MaxBasePriority)
	}
	if !t.Status.Valid() {
		return validationErrorf("invalid status %q, valid statuses: %v", t.Status, AllStatuses)
	}
	if !t.Source.Valid() {
		return validationErrorf("invalid source %q, valid sources: %v", t.Source, AllSources)
	}
	if t.ParentTaskID != nil && *t.ParentTaskID == t.ID {
		return validationErrorf("task cannot be its own parent")
	}
	return nil
}

// Validate checks a TaskDependency's self-contained invariants.
func (d *TaskDependency) Validate() error {
	if d.DependentTaskID == "" || d.PrerequisiteTaskID == "" {
		return validationErrorf("dependent and prerequisite task ids are required")
	}
	if d.DependentTaskID == d.PrerequisiteTaskID {
		return validationErrorf("a task cannot depend on itself")
	}
	if !d.DependencyType.Valid() {
		return validationErrorf("invalid dependency type %q", d.DependencyType)
	}
	return nil
}

// Validate checks PruneFilters for the pre-flight rejections the Store
// must apply before building its shared WHERE clause.
func (f *PruneFilters) Validate() error {
	filterCount := 0
	if len(f.IDs) > 0 {
		filterCount++
	}
	if f.OlderThanDays != nil || f.BeforeDate != nil {
		filterCount++
	}
	if len(f.Statuses) > 0 {
		filterCount++
	}
	if filterCount == 0 {
		return validationErrorf("prune requires at least one selection criterion")
	}
	if filterCount > 1 {
		return validationErrorf("ids, time-based filters (older-than/before), and status are mutually exclusive selection methods")
	}
	if len(f.IDs) == 0 {
		for _, st := range f.Statuses {
			switch st {
			case StatusPending, StatusBlocked, StatusReady, StatusRunning:
				return validationErrorf("status %q is not pruneable via filter-based selection; only terminal statuses may be selected this way", st)
			}
		}
	}
	if f.VacuumMode != "" && !f.VacuumMode.Valid() {
		return validationErrorf("invalid vacuum_mode %q", f.VacuumMode)
	}
	if f.Recursive && f.Limit != nil {
		return validationErrorf("--recursive is incompatible with --limit")
	}
	return nil
}
