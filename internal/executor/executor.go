// Package executor defines the port the orchestrator drives to run a task
// against whatever backend actually does the work (an LLM agent, typically).
// The port is deliberately narrow: one method, one result shape.
package executor

import (
	"context"

	"github.com/odgrim/abathur-swarm/internal/types"
)

// Result is the outcome of one task execution. Success/failure is a
// business outcome carried in the struct, not an error return — only
// infrastructure failures (backend unreachable, timeout dialing out) are
// reported as an error.
type Result struct {
	TaskID       string
	AgentID      string
	Success      bool
	ResultData   string
	ErrorMessage string
}

// Executor runs one task to completion. Implementations must not return an
// error for a business failure (the task's own work failing) — that is
// reported via Result.Success=false and Result.ErrorMessage. An error
// return is reserved for infrastructure failures (the backend could not be
// reached, a request could not be issued at all) and must be safe to
// retry. Implementations must be safe to call concurrently for distinct
// tasks.
type Executor interface {
	Execute(ctx context.Context, task *types.Task) (Result, error)
}
