package executor

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/odgrim/abathur-swarm/internal/types"
)

// NoopExecutor records every Result it returns and returns a configurable
// canned Result without ever invoking a real backend; calls answered with
// InfraErr are not recorded. It stands in for a
// real LLM executor both in orchestrator tests and as the `swarm start`
// default when no real executor is wired, so a fresh checkout can run the
// whole pipeline end to end before a real backend is plugged in.
type NoopExecutor struct {
	mu    sync.Mutex
	calls []Result

	// Outcome, if set, is returned (with TaskID/AgentID filled in) for
	// every call. InfraErr, if set, is returned instead and Outcome is
	// ignored for that call.
	Outcome  Result
	InfraErr error
}

// NewNoopExecutor returns a NoopExecutor that reports success by default.
func NewNoopExecutor() *NoopExecutor {
	return &NoopExecutor{Outcome: Result{Success: true}}
}

// Execute returns InfraErr if set, without recording the call; otherwise
// it records and returns the configured canned outcome for task.
func (e *NoopExecutor) Execute(ctx context.Context, task *types.Task) (Result, error) {
	if e.InfraErr != nil {
		return Result{}, e.InfraErr
	}
	result := e.Outcome
	result.TaskID = task.ID
	result.AgentID = uuid.NewString()

	e.mu.Lock()
	e.calls = append(e.calls, result)
	e.mu.Unlock()
	return result, nil
}

// Calls returns every Result this executor has produced so far, in call
// order.
func (e *NoopExecutor) Calls() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.calls...)
}
