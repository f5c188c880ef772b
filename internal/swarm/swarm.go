// Package swarm runs a bounded pool of concurrent task executions against
// the QueueService and Executor ports: a poll loop that keeps up to
// max_concurrent_agents executions active, counts completions against an
// optional task limit, and drains cleanly on shutdown.
package swarm

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/odgrim/abathur-swarm/internal/executor"
	"github.com/odgrim/abathur-swarm/internal/logging"
	"github.com/odgrim/abathur-swarm/internal/types"
)

// DefaultPollInterval is how often the driver checks for new work when the
// queue is empty and nothing is active.
const DefaultPollInterval = 2 * time.Second

// DefaultShutdownTimeout bounds how long Run waits, once its loop stops
// spawning, for in-flight executions to drain before cancelling them.
const DefaultShutdownTimeout = 30 * time.Second

// QueueService is the subset of internal/queue.Service the orchestrator
// drives.
type QueueService interface {
	GetNextTask(ctx context.Context) (*types.Task, error)
	CompleteTask(ctx context.Context, taskID string) ([]string, error)
	FailTask(ctx context.Context, taskID, errMessage string) ([]string, error)
}

// Config controls one orchestrator run.
type Config struct {
	// MaxConcurrentAgents bounds active_executions. Must be >= 1.
	MaxConcurrentAgents int
	// TaskLimit, if non-nil, stops spawning once that many completions have
	// passed through the orchestrator. TaskLimit=0 halts before any spawn.
	TaskLimit *int
	// PollInterval is the sleep between polls when idle. Defaults to
	// DefaultPollInterval.
	PollInterval time.Duration
	// ShutdownTimeout bounds how long Run waits for in-flight work to
	// drain after its loop stops. Defaults to DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

func (c Config) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return DefaultPollInterval
}

func (c Config) shutdownTimeout() time.Duration {
	if c.ShutdownTimeout > 0 {
		return c.ShutdownTimeout
	}
	return DefaultShutdownTimeout
}

// Stats is a point-in-time snapshot of orchestrator counters, the backing
// data for `swarm status`.
type Stats struct {
	Active    int
	Spawned   int64
	Completed int64
}

// Orchestrator drives QueueService against Executor under the bounds in
// Config.
type Orchestrator struct {
	queue  QueueService
	exec   executor.Executor
	cfg    Config
	logger *log.Logger

	meter metric.Meter

	active      atomic.Int64
	spawned     atomic.Int64
	completed   atomic.Int64
	shutdownSet atomic.Bool

	completions chan struct{}
}

// New builds an Orchestrator. logger defaults to log.Default() when nil.
func New(queue QueueService, exec executor.Executor, cfg Config, logger *log.Logger) *Orchestrator {
	if cfg.MaxConcurrentAgents <= 0 {
		cfg.MaxConcurrentAgents = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		queue:       queue,
		exec:        exec,
		cfg:         cfg,
		logger:      logger,
		meter:       otel.Meter("github.com/odgrim/abathur-swarm/internal/swarm"),
		completions: make(chan struct{}, cfg.MaxConcurrentAgents),
	}
}

// Shutdown requests a graceful stop: the loop stops spawning new
// executions but lets already-started ones run to completion.
func (o *Orchestrator) Shutdown() {
	o.shutdownSet.Store(true)
}

// Stats reports current counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Active:    int(o.active.Load()),
		Spawned:   o.spawned.Load(),
		Completed: o.completed.Load(),
	}
}

// Run executes the poll loop until shutdown (requested or ctx cancelled)
// and the active set has drained, or until ShutdownTimeout elapses after a
// shutdown is requested, whichever triggers first cancellation.
func (o *Orchestrator) Run(ctx context.Context) error {
	activeGauge, _ := o.meter.Int64UpDownCounter("swarm.active_executions")
	completedCounter, _ := o.meter.Int64Counter("swarm.completions")

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	g := &errgroup.Group{}
	g.SetLimit(o.cfg.MaxConcurrentAgents)

	go func() {
		<-ctx.Done()
		o.Shutdown()
	}()

	for {
		if o.shutdownSet.Load() {
			break
		}
		if o.cfg.TaskLimit != nil && o.completed.Load() >= int64(*o.cfg.TaskLimit) {
			break
		}

		spawnedThisRound := o.fillActive(runCtx, g, activeGauge, completedCounter)

		if !spawnedThisRound && o.active.Load() == 0 {
			select {
			case <-runCtx.Done():
				o.Shutdown()
			case <-time.After(o.cfg.pollInterval()):
			}
			continue
		}

		if o.active.Load() > 0 {
			select {
			case <-o.completions:
			case <-runCtx.Done():
				o.Shutdown()
			}
		}
	}

	return o.drain(g, cancelRun)
}

// fillActive spawns executions through g while active < max and work is
// available, returning whether it spawned at least one. The active < max
// check must happen before get_next_task, not after: get_next_task already
// transitions the task to RUNNING as a side effect, so a task it returns
// must always be admitted, never discarded for lack of a slot. g.SetLimit
// backs this same bound as a second line of defense; g.Go never blocks
// here since a slot is already known free.
func (o *Orchestrator) fillActive(ctx context.Context, g *errgroup.Group, activeGauge metric.Int64UpDownCounter, completedCounter metric.Int64Counter) bool {
	spawned := false
	for int(o.active.Load()) < o.cfg.MaxConcurrentAgents {
		if o.cfg.TaskLimit != nil && o.completed.Load() >= int64(*o.cfg.TaskLimit) {
			break
		}

		task, err := o.queue.GetNextTask(ctx)
		if err != nil {
			o.logger.Printf("get_next_task error: %v", err)
			logging.Debugf("swarm: get_next_task error: %v", err)
			break
		}
		if task == nil {
			break
		}

		o.active.Add(1)
		o.spawned.Add(1)
		spawned = true
		activeGauge.Add(ctx, 1)

		g.Go(func() error {
			o.runOne(ctx, task, activeGauge, completedCounter)
			return nil
		})
	}
	return spawned
}

// runOne executes task, converts the outcome into complete_task or
// fail_task, and signals completion.
func (o *Orchestrator) runOne(ctx context.Context, task *types.Task, activeGauge metric.Int64UpDownCounter, completedCounter metric.Int64Counter) {
	defer func() {
		o.active.Add(-1)
		activeGauge.Add(context.Background(), -1)
		select {
		case o.completions <- struct{}{}:
		default:
		}
	}()

	var execErr error
	ctx, span := logging.StartSpan(ctx, "github.com/odgrim/abathur-swarm/internal/swarm", "execute_task",
		attribute.String("task.id", task.ID))
	defer func() { logging.EndSpan(span, execErr) }()

	result, err := o.exec.Execute(ctx, task)
	execErr = err
	if err != nil {
		o.reportOutcome(ctx, task.ID, false, err.Error())
		o.completed.Add(1)
		completedCounter.Add(context.Background(), 1)
		return
	}

	if result.Success {
		o.reportOutcome(ctx, task.ID, true, "")
	} else {
		o.reportOutcome(ctx, task.ID, false, result.ErrorMessage)
	}
	o.completed.Add(1)
	completedCounter.Add(context.Background(), 1)
}

func (o *Orchestrator) reportOutcome(ctx context.Context, taskID string, success bool, errMessage string) {
	if success {
		if _, err := o.queue.CompleteTask(ctx, taskID); err != nil {
			o.logger.Printf("complete_task(%s) error: %v", taskID, err)
			return
		}
		logging.Debugf("swarm: task %s completed", taskID)
		return
	}
	if _, err := o.queue.FailTask(ctx, taskID, errMessage); err != nil {
		o.logger.Printf("fail_task(%s) error: %v", taskID, err)
		return
	}
	logging.Debugf("swarm: task %s failed: %s", taskID, errMessage)
}

// drain waits for the active set to empty, bounded by ShutdownTimeout. On
// timeout it calls cancelRun to abort remaining executions and returns
// immediately with the partial result set.
func (o *Orchestrator) drain(g *errgroup.Group, cancelRun context.CancelFunc) error {
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancelRun()
		return nil
	case <-time.After(o.cfg.shutdownTimeout()):
		cancelRun()
		return errors.New("swarm: shutdown timed out with executions still active")
	}
}
