// Swarm commands: start the worker pool, report its status. Adapted from
// the teacher's cmd/bd/swarm.go command group and rendering helpers.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/odgrim/abathur-swarm/internal/executor"
	"github.com/odgrim/abathur-swarm/internal/swarm"
	"github.com/odgrim/abathur-swarm/internal/types"
)

var activeOrchestrator *swarm.Orchestrator

var swarmCmd = &cobra.Command{
	Use:     "swarm",
	GroupID: "swarm",
	Short:   "Run and inspect the bounded worker pool",
}

func init() {
	swarmCmd.AddCommand(swarmStartCmd, swarmStatusCmd)

	swarmStartCmd.Flags().Int("max-agents", 0, "override max_concurrent_agents for this run")
	swarmStartCmd.Flags().Int("task-limit", -1, "stop after this many completions (-1, the default, = use config; unlimited when config sets none)")
	swarmStartCmd.Flags().Int("poll-interval", 0, "override the idle poll interval in seconds for this run")
}

var swarmStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the worker pool until shutdown or task_limit is reached",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		CheckReadonly("swarm start")

		maxConcurrent := cfg.MaxConcurrentAgents
		if v, _ := cmd.Flags().GetInt("max-agents"); v > 0 {
			maxConcurrent = v
		}
		taskLimit := cfg.TaskLimit
		if v, _ := cmd.Flags().GetInt("task-limit"); v >= 0 {
			taskLimit = &v
		}
		pollInterval := cfg.PollInterval
		if v, _ := cmd.Flags().GetInt("poll-interval"); v > 0 {
			pollInterval = time.Duration(v) * time.Second
		}

		// No real LLM backend is wired yet (out of scope); NewNoopExecutor
		// lets the pool, retry policy, and lifecycle wiring run end to end
		// against canned successes until one is plugged in.
		exec := executor.NewRetryingExecutor(executor.NewNoopExecutor(), 3)
		orchestrator := swarm.New(queueSvc, exec, swarm.Config{
			MaxConcurrentAgents: maxConcurrent,
			TaskLimit:           taskLimit,
			PollInterval:        pollInterval,
			ShutdownTimeout:     cfg.ShutdownTimeout,
		}, log.New(os.Stderr, "swarm: ", log.LstdFlags))
		activeOrchestrator = orchestrator

		fmt.Fprintf(os.Stderr, "swarm: starting with max_concurrent_agents=%d\n", maxConcurrent)
		return orchestrator.Run(rootCtx)
	},
}

// swarmStatusCmd reports from persisted queue state, since `swarm status`
// is typically invoked from a process separate from the one running
// `swarm start` in the foreground. When a swarm happens to be running in
// this same process, its live active/spawned/completed counters are
// reported alongside.
var swarmStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report queue status and, if running in this process, live swarm counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := queueSvc.GetQueueStatus(rootCtx)
		if err != nil {
			return err
		}

		if jsonOutput {
			out := map[string]interface{}{"queue": stats}
			if activeOrchestrator != nil {
				out["orchestrator"] = activeOrchestrator.Stats()
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		for _, status := range []string{"ready", "blocked", "running", "pending", "completed", "failed", "cancelled"} {
			fmt.Printf("%-10s %d\n", status, stats.CountByStatus[types.Status(status)])
		}
		if activeOrchestrator != nil {
			s := activeOrchestrator.Stats()
			fmt.Printf("\nlive in this process: active=%d spawned=%d completed=%d\n", s.Active, s.Spawned, s.Completed)
		}
		return nil
	},
}
