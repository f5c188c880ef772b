package sqlite

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/odgrim/abathur-swarm/internal/types"
	"github.com/stretchr/testify/require"
)

func TestInsertAndGetTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	deadline := time.Now().UTC().Add(2 * time.Hour)
	dur := 120
	task := newTask(t, types.StatusReady, func(tk *types.Task) {
		tk.Deadline = &deadline
		tk.EstimatedDurationSeconds = &dur
	})
	mustInsertTask(t, s, task)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, task.ID, got.ID)
	require.Equal(t, task.Prompt, got.Prompt)
	require.NotNil(t, got.Deadline)
	require.WithinDuration(t, deadline, *got.Deadline, time.Second)
	require.NotNil(t, got.EstimatedDurationSeconds)
	require.Equal(t, dur, *got.EstimatedDurationSeconds)
}

func TestGetTask_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTask(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListTasks_FiltersByStatusAndSource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	human := newTask(t, types.StatusReady, func(tk *types.Task) { tk.Source = types.SourceHuman })
	agent := newTask(t, types.StatusReady, func(tk *types.Task) { tk.Source = types.SourceAgentPlanner })
	blocked := newTask(t, types.StatusBlocked, func(tk *types.Task) { tk.Source = types.SourceHuman })
	mustInsertTask(t, s, human)
	mustInsertTask(t, s, agent)
	mustInsertTask(t, s, blocked)

	ready := types.StatusReady
	out, err := s.ListTasks(ctx, ListTasksFilter{Status: &ready})
	require.NoError(t, err)
	require.Len(t, out, 2)

	humanSource := types.SourceHuman
	out, err = s.ListTasks(ctx, ListTasksFilter{Status: &ready, Source: &humanSource})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, human.ID, out[0].ID)
}

func TestDequeueNextTask_PicksHighestPriorityReady(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	low := newTask(t, types.StatusReady, func(tk *types.Task) { tk.CalculatedPriority = 1 })
	high := newTask(t, types.StatusReady, func(tk *types.Task) { tk.CalculatedPriority = 99 })
	mustInsertTask(t, s, low)
	mustInsertTask(t, s, high)

	got, err := s.DequeueNextTask(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, high.ID, got.ID)
	require.Equal(t, types.StatusRunning, got.Status)
	require.NotNil(t, got.StartedAt)
}

func TestDequeueNextTask_EmptyQueueReturnsNilNoError(t *testing.T) {
	s := newTestStore(t)
	got, err := s.DequeueNextTask(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Nil(t, got)
}

// TestDequeueNextTask_ConcurrentCallersNeverDoubleAssign exercises the CAS
// UPDATE: with a single READY task, exactly one of N concurrent dequeues
// may win it.
func TestDequeueNextTask_ConcurrentCallersNeverDoubleAssign(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := newTask(t, types.StatusReady, nil)
	mustInsertTask(t, s, task)

	const callers = 8
	var wins int64
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			got, err := s.DequeueNextTask(ctx, time.Now().UTC())
			if err != nil {
				t.Errorf("DequeueNextTask: %v", err)
				return
			}
			if got != nil {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), wins)
}

func TestGetStaleRunningTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := newTask(t, types.StatusRunning, func(tk *types.Task) {
		tk.MaxExecutionTimeoutSeconds = 60
		tk.LastUpdatedAt = time.Now().UTC().Add(-2 * time.Minute)
	})
	fresh := newTask(t, types.StatusRunning, func(tk *types.Task) {
		tk.MaxExecutionTimeoutSeconds = 3600
		tk.LastUpdatedAt = time.Now().UTC()
	})
	mustInsertTask(t, s, old)
	mustInsertTask(t, s, fresh)

	stale, err := s.GetStaleRunningTasks(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, old.ID, stale[0].ID)
}

func TestGetChildTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	parent := newTask(t, types.StatusCompleted, nil)
	mustInsertTask(t, s, parent)
	child := newTask(t, types.StatusReady, func(tk *types.Task) { tk.ParentTaskID = &parent.ID })
	mustInsertTask(t, s, child)

	children, err := s.GetChildTasks(ctx, []string{parent.ID})
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, child.ID, children[0].ID)
}
