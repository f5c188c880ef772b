package executor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/odgrim/abathur-swarm/internal/types"
)

// ErrPermanent marks an infrastructure error as not worth retrying (e.g.
// malformed request, auth rejected outright). Wrap with fmt.Errorf("...:
// %w", ErrPermanent) from an Executor implementation to skip the backoff.
var ErrPermanent = errors.New("permanent executor error")

// RetryingExecutor wraps an Executor so that infrastructure errors (the
// underlying Execute call returning a non-nil error, as opposed to a
// business failure reported via Result.Success=false) are retried with
// exponential backoff before being surfaced to the caller. Business
// failures are never retried: Execute returning (Result{Success: false},
// nil) passes straight through.
type RetryingExecutor struct {
	inner      Executor
	maxRetries uint64
}

// NewRetryingExecutor wraps inner with up to maxRetries retries of a
// transient infrastructure error.
func NewRetryingExecutor(inner Executor, maxRetries uint64) *RetryingExecutor {
	return &RetryingExecutor{inner: inner, maxRetries: maxRetries}
}

var _ Executor = (*RetryingExecutor)(nil)

// Execute runs inner.Execute, retrying on a transient infrastructure error.
func (e *RetryingExecutor) Execute(ctx context.Context, task *types.Task) (Result, error) {
	var result Result
	bo := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(func(b *backoff.ExponentialBackOff) {
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 2 * time.Second
		}), e.maxRetries), ctx)

	err := backoff.Retry(func() error {
		var execErr error
		result, execErr = e.inner.Execute(ctx, task)
		if execErr == nil {
			return nil
		}
		if errors.Is(execErr, ErrPermanent) {
			return backoff.Permanent(execErr)
		}
		return execErr
	}, bo)
	return result, err
}
