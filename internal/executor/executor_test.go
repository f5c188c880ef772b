package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/odgrim/abathur-swarm/internal/types"
	"github.com/stretchr/testify/require"
)

func testTask() *types.Task {
	return &types.Task{ID: "task-1"}
}

func TestNoopExecutor_RecordsCallsAndReturnsConfiguredOutcome(t *testing.T) {
	e := NewNoopExecutor()
	e.Outcome = Result{Success: true, ResultData: "done"}

	result, err := e.Execute(context.Background(), testTask())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "task-1", result.TaskID)
	require.NotEmpty(t, result.AgentID)

	require.Len(t, e.Calls(), 1)
}

func TestNoopExecutor_SurfacesConfiguredInfraError(t *testing.T) {
	e := NewNoopExecutor()
	e.InfraErr = errors.New("backend unreachable")

	_, err := e.Execute(context.Background(), testTask())
	require.Error(t, err)
	require.Empty(t, e.Calls())
}

func TestRetryingExecutor_RetriesTransientErrorThenSucceeds(t *testing.T) {
	attempts := 0
	var flaky stubExecutor = func(ctx context.Context, task *types.Task) (Result, error) {
		attempts++
		if attempts < 3 {
			return Result{}, errors.New("transient network blip")
		}
		return Result{TaskID: task.ID, Success: true}, nil
	}

	r := NewRetryingExecutor(flaky, 5)
	result, err := r.Execute(context.Background(), testTask())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 3, attempts)
}

func TestRetryingExecutor_StopsImmediatelyOnPermanentError(t *testing.T) {
	attempts := 0
	var always stubExecutor = func(ctx context.Context, task *types.Task) (Result, error) {
		attempts++
		return Result{}, fmt.Errorf("auth rejected: %w", ErrPermanent)
	}

	r := NewRetryingExecutor(always, 5)
	_, err := r.Execute(context.Background(), testTask())
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestRetryingExecutor_DoesNotRetryBusinessFailure(t *testing.T) {
	attempts := 0
	var rejects stubExecutor = func(ctx context.Context, task *types.Task) (Result, error) {
		attempts++
		return Result{Success: false, ErrorMessage: "bad prompt"}, nil
	}

	r := NewRetryingExecutor(rejects, 5)
	result, err := r.Execute(context.Background(), testTask())
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, 1, attempts)
}

type stubExecutor func(ctx context.Context, task *types.Task) (Result, error)

func (f stubExecutor) Execute(ctx context.Context, task *types.Task) (Result, error) {
	return f(ctx, task)
}
