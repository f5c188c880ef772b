package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odgrim/abathur-swarm/internal/queue"
	"github.com/odgrim/abathur-swarm/internal/store/sqlite"
	"github.com/odgrim/abathur-swarm/internal/types"
)

func mustEnqueue(t *testing.T, prompt string) *types.Task {
	t.Helper()
	task, err := queueSvc.EnqueueTask(rootCtx, queue.EnqueueInput{Prompt: prompt, Source: types.SourceHuman})
	require.NoError(t, err)
	return task
}

func TestTaskSubmit_CreatesAReadyTaskWithDefaults(t *testing.T) {
	setUpCLI(t)
	resetFlags(t, taskSubmitCmd.Flags())

	require.NoError(t, taskSubmitCmd.RunE(taskSubmitCmd, []string{"write the onboarding doc"}))

	tasks, err := store.ListTasks(rootCtx, sqlite.ListTasksFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, types.StatusReady, tasks[0].Status)
	require.Equal(t, types.DefaultBasePriority, tasks[0].BasePriority)
}

func TestTaskSubmit_RejectsAnInvalidSource(t *testing.T) {
	setUpCLI(t)
	resetFlags(t, taskSubmitCmd.Flags())
	require.NoError(t, taskSubmitCmd.Flags().Set("source", "not-a-real-source"))

	err := taskSubmitCmd.RunE(taskSubmitCmd, []string{"do a thing"})
	require.Error(t, err)
}

func TestTaskShow_ResolvesAnUnambiguousPrefix(t *testing.T) {
	setUpCLI(t)
	task := mustEnqueue(t, "find the bug")

	resetFlags(t, taskShowCmd.Flags())
	require.NoError(t, taskShowCmd.RunE(taskShowCmd, []string{task.ID[:8]}))
}

func TestResolveTaskID_AmbiguousPrefixReturnsErrAmbiguous(t *testing.T) {
	setUpCLI(t)

	t1 := &types.Task{ID: "abc111", Prompt: "one", Status: types.StatusReady, Source: types.SourceHuman}
	t2 := &types.Task{ID: "abc222", Prompt: "two", Status: types.StatusReady, Source: types.SourceHuman}
	require.NoError(t, store.InsertTask(rootCtx, t1))
	require.NoError(t, store.InsertTask(rootCtx, t2))

	_, err := store.ResolveTaskID(rootCtx, "abc")
	require.ErrorIs(t, err, sqlite.ErrAmbiguous)
}

func TestTaskRetry_ReopensAFailedTask(t *testing.T) {
	setUpCLI(t)
	task := mustEnqueue(t, "flaky task")
	_, err := queueSvc.FailTask(rootCtx, task.ID, "boom")
	require.NoError(t, err)

	resetFlags(t, taskRetryCmd.Flags())
	require.NoError(t, taskRetryCmd.RunE(taskRetryCmd, []string{task.ID}))

	after, err := store.GetTask(rootCtx, task.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusReady, after.Status)
}

func TestTaskRetry_RejectsANonTerminalTask(t *testing.T) {
	setUpCLI(t)
	task := mustEnqueue(t, "still ready")

	resetFlags(t, taskRetryCmd.Flags())
	err := taskRetryCmd.RunE(taskRetryCmd, []string{task.ID})
	require.Error(t, err)
}

func TestTaskCancel_RefusesARunningTaskWithoutForce(t *testing.T) {
	setUpCLI(t)
	task := mustEnqueue(t, "long running")
	running, err := queueSvc.GetNextTask(rootCtx)
	require.NoError(t, err)
	require.Equal(t, task.ID, running.ID)

	resetFlags(t, taskCancelCmd.Flags())
	err = taskCancelCmd.RunE(taskCancelCmd, []string{task.ID})
	require.Error(t, err)

	require.NoError(t, taskCancelCmd.Flags().Set("force", "true"))
	require.NoError(t, taskCancelCmd.RunE(taskCancelCmd, []string{task.ID}))

	after, err := store.GetTask(rootCtx, task.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusCancelled, after.Status)
}

func TestTaskCheckStale_ReportsNoCascadesWhenNothingIsStale(t *testing.T) {
	setUpCLI(t)
	mustEnqueue(t, "fresh task")

	resetFlags(t, taskCheckStaleCmd.Flags())
	require.NoError(t, taskCheckStaleCmd.RunE(taskCheckStaleCmd, nil))
}

func TestTaskUpdate_RejectsPriorityChangeOnARunningTask(t *testing.T) {
	setUpCLI(t)
	task := mustEnqueue(t, "in flight")
	_, err := queueSvc.GetNextTask(rootCtx) // dequeues task to RUNNING
	require.NoError(t, err)

	resetFlags(t, taskUpdateCmd.Flags())
	require.NoError(t, taskUpdateCmd.Flags().Set("set-priority", "true"))
	require.NoError(t, taskUpdateCmd.Flags().Set("priority", "9"))

	err = taskUpdateCmd.RunE(taskUpdateCmd, []string{task.ID})
	require.Error(t, err)
}

func TestTaskUpdate_AppliesSummaryChangeOnAReadyTask(t *testing.T) {
	setUpCLI(t)
	task := mustEnqueue(t, "needs a better summary")

	resetFlags(t, taskUpdateCmd.Flags())
	require.NoError(t, taskUpdateCmd.Flags().Set("summary", "clearer summary"))
	require.NoError(t, taskUpdateCmd.RunE(taskUpdateCmd, []string{task.ID}))

	after, err := store.GetTask(rootCtx, task.ID)
	require.NoError(t, err)
	require.Equal(t, "clearer summary", after.Summary)
}
