package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odgrim/abathur-swarm/internal/config"
	"github.com/odgrim/abathur-swarm/internal/store/sqlite"
)

func TestSwarmStatus_WithNoOrchestratorRunningReportsQueueOnly(t *testing.T) {
	setUpCLI(t)
	mustEnqueue(t, "queued work")

	require.NoError(t, swarmStatusCmd.RunE(swarmStatusCmd, nil))
}

func TestSwarmStart_RunsToCompletionWithATaskLimitOfZero(t *testing.T) {
	setUpCLI(t)
	mustEnqueue(t, "never gets spawned")
	cfg = &config.Config{MaxConcurrentAgents: 1}

	resetFlags(t, swarmStartCmd.Flags())
	require.NoError(t, swarmStartCmd.Flags().Set("task-limit", "0"))
	require.NoError(t, swarmStartCmd.RunE(swarmStartCmd, nil))

	tasks, err := store.ListTasks(rootCtx, sqlite.ListTasksFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
}
