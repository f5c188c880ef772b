package types

import (
	"strings"
	"testing"
	"time"
)

func TestTaskValidation(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid task",
			task: Task{
				ID:           "task-1",
				Prompt:       "do the thing",
				Status:       StatusReady,
				Source:       SourceHuman,
				BasePriority: 5,
			},
			wantErr: false,
		},
		{
			name: "missing prompt",
			task: Task{
				ID:     "task-1",
				Status: StatusReady,
				Source: SourceHuman,
			},
			wantErr: true,
			errMsg:  "prompt is required",
		},
		{
			name: "summary too long",
			task: Task{
				ID:      "task-1",
				Prompt:  "x",
				Summary: strings.Repeat("a", 141),
				Status:  StatusReady,
				Source:  SourceHuman,
			},
			wantErr: true,
			errMsg:  "summary must be 140 characters or less",
		},
		{
			name: "summary counts runes not bytes",
			task: Task{
				ID:      "task-1",
				Prompt:  "x",
				Summary: strings.Repeat("é", 140),
				Status:  StatusReady,
				Source:  SourceHuman,
			},
			wantErr: false,
		},
		{
			name: "priority too low",
			task: Task{
				ID:           "task-1",
				Prompt:       "x",
				BasePriority: -1,
				Status:       StatusReady,
				Source:       SourceHuman,
			},
			wantErr: true,
			errMsg:  "base_priority must be between 0 and 10",
		},
		{
			name: "priority too high",
			task: Task{
				ID:           "task-1",
				Prompt:       "x",
				BasePriority: 11,
				Status:       StatusReady,
				Source:       SourceHuman,
			},
			wantErr: true,
			errMsg:  "base_priority must be between 0 and 10",
		},
		{
			name: "invalid status",
			task: Task{
				ID:     "task-1",
				Prompt: "x",
				Status: Status("invalid"),
				Source: SourceHuman,
			},
			wantErr: true,
			errMsg:  "invalid status",
		},
		{
			name: "invalid source",
			task: Task{
				ID:     "task-1",
				Prompt: "x",
				Status: StatusReady,
				Source: Source("invalid"),
			},
			wantErr: true,
			errMsg:  "invalid source",
		},
		{
			name: "self parent",
			task: Task{
				ID:           "task-1",
				Prompt:       "x",
				Status:       StatusReady,
				Source:       SourceHuman,
				ParentTaskID: strPtr("task-1"),
			},
			wantErr: true,
			errMsg:  "cannot be its own parent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Fatalf("expected error containing %q, got %q", tt.errMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestTaskDependencyValidation(t *testing.T) {
	tests := []struct {
		name    string
		dep     TaskDependency
		wantErr bool
	}{
		{
			name: "valid edge",
			dep: TaskDependency{
				DependentTaskID:    "b",
				PrerequisiteTaskID: "a",
				DependencyType:     DependencySequential,
			},
			wantErr: false,
		},
		{
			name: "self dependency",
			dep: TaskDependency{
				DependentTaskID:    "a",
				PrerequisiteTaskID: "a",
				DependencyType:     DependencySequential,
			},
			wantErr: true,
		},
		{
			name: "invalid type",
			dep: TaskDependency{
				DependentTaskID:    "b",
				PrerequisiteTaskID: "a",
				DependencyType:     DependencyType("bogus"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dep.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestPruneFiltersValidation(t *testing.T) {
	tests := []struct {
		name    string
		filters PruneFilters
		wantErr bool
	}{
		{
			name:    "empty criteria rejected",
			filters: PruneFilters{},
			wantErr: true,
		},
		{
			name:    "explicit ids accepted regardless of status",
			filters: PruneFilters{IDs: []string{"a"}},
			wantErr: false,
		},
		{
			name:    "filter-based non-terminal status rejected",
			filters: PruneFilters{Statuses: []Status{StatusRunning}},
			wantErr: true,
		},
		{
			name:    "filter-based terminal status accepted",
			filters: PruneFilters{Statuses: []Status{StatusCompleted}},
			wantErr: false,
		},
		{
			name:    "recursive with limit rejected",
			filters: PruneFilters{IDs: []string{"a"}, Recursive: true, Limit: intPtr(10)},
			wantErr: true,
		},
		{
			name:    "ids combined with status filter rejected",
			filters: PruneFilters{IDs: []string{"a"}, Statuses: []Status{StatusCompleted}},
			wantErr: true,
		},
		{
			name:    "older-than combined with status filter rejected",
			filters: PruneFilters{OlderThanDays: intPtr(30), Statuses: []Status{StatusCompleted}},
			wantErr: true,
		},
		{
			name:    "before combined with older-than rejected",
			filters: PruneFilters{OlderThanDays: intPtr(30), BeforeDate: timePtr(time.Now())},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filters.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func strPtr(s string) *string    { return &s }
func intPtr(i int) *int          { return &i }
func timePtr(t time.Time) *time.Time { return &t }
