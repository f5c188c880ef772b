package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odgrim/abathur-swarm/internal/types"
)

func TestTaskPrune_DeletesCompletedTasksMatchingID(t *testing.T) {
	setUpCLI(t)
	task := mustEnqueue(t, "done already")
	_, err := queueSvc.GetNextTask(rootCtx)
	require.NoError(t, err)
	_, err = queueSvc.CompleteTask(rootCtx, task.ID)
	require.NoError(t, err)

	resetFlags(t, taskPruneCmd.Flags())
	require.NoError(t, taskPruneCmd.RunE(taskPruneCmd, []string{task.ID}))

	_, err = store.GetTask(rootCtx, task.ID)
	require.Error(t, err)
}

func TestTaskPrune_DryRunLeavesRowsInPlace(t *testing.T) {
	setUpCLI(t)
	task := mustEnqueue(t, "done already")
	_, err := queueSvc.GetNextTask(rootCtx)
	require.NoError(t, err)
	_, err = queueSvc.CompleteTask(rootCtx, task.ID)
	require.NoError(t, err)

	resetFlags(t, taskPruneCmd.Flags())
	require.NoError(t, taskPruneCmd.Flags().Set("dry-run", "true"))
	require.NoError(t, taskPruneCmd.RunE(taskPruneCmd, []string{task.ID}))

	got, err := store.GetTask(rootCtx, task.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, got.Status)
}

func TestTaskPrune_RejectsMalformedOlderThan(t *testing.T) {
	setUpCLI(t)
	resetFlags(t, taskPruneCmd.Flags())
	require.NoError(t, taskPruneCmd.Flags().Set("older-than", "not-a-duration"))

	err := taskPruneCmd.RunE(taskPruneCmd, nil)
	require.Error(t, err)
}

func TestTaskPrune_RejectsCombiningIDsWithAStatusFilter(t *testing.T) {
	setUpCLI(t)
	task := mustEnqueue(t, "done already")
	_, err := queueSvc.GetNextTask(rootCtx)
	require.NoError(t, err)
	_, err = queueSvc.CompleteTask(rootCtx, task.ID)
	require.NoError(t, err)

	resetFlags(t, taskPruneCmd.Flags())
	require.NoError(t, taskPruneCmd.Flags().Set("status", "completed"))
	err = taskPruneCmd.RunE(taskPruneCmd, []string{task.ID})
	require.Error(t, err)

	got, err := store.GetTask(rootCtx, task.ID)
	require.NoError(t, err, "rejected prune must not delete anything")
	require.Equal(t, types.StatusCompleted, got.Status)
}
