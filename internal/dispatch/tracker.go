package dispatch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/clumio-code/bulk-restore/internal/api"
	resterrors "github.com/clumio-code/bulk-restore/internal/errors"
	"github.com/clumio-code/bulk-restore/internal/logger"
)

// TaskReader reads restore task state from the provider
type TaskReader interface {
	ReadTask(ctx context.Context, taskID string) (api.Task, error)
}

// PollConfig bounds the task polling loop
type PollConfig struct {
	Interval    time.Duration // first poll delay
	MaxInterval time.Duration // backoff ceiling between polls
	MaxAttempts int           // polls before giving up on the task
	Timeout     time.Duration // wall-clock ceiling, 0 = none
}

// DefaultPollConfig returns the polling defaults
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    5 * time.Second,
		MaxInterval: 60 * time.Second,
		MaxAttempts: 60,
		Timeout:     2 * time.Hour,
	}
}

// Tracker polls restore tasks until they reach a terminal status
type Tracker struct {
	tasks TaskReader
	cfg   PollConfig
	log   logger.Logger
}

// NewTracker creates a task tracker
func NewTracker(tasks TaskReader, cfg PollConfig, log logger.Logger) *Tracker {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultPollConfig()
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Tracker{tasks: tasks, cfg: cfg, log: log}
}

// Await polls one task until it is terminal, returning the polls spent.
// Exceeding the attempt ceiling returns a poll-exhausted error; the task
// may still be running on the provider side, the tracker just stops
// watching it.
func (t *Tracker) Await(ctx context.Context, taskID string) (api.Task, int, error) {
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.cfg.Interval
	bo.MaxInterval = t.cfg.MaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	var last api.Task
	var lastErr error
	for attempt := 1; attempt <= t.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return last, attempt - 1, resterrors.NewPollExhaustedError(taskID, attempt-1, ctx.Err())
		case <-time.After(bo.NextBackOff()):
		}

		task, err := t.tasks.ReadTask(ctx, taskID)
		if err != nil {
			// Transient read failures burn an attempt but keep polling;
			// the task itself may be progressing fine.
			if resterrors.IsTransient(err) {
				lastErr = err
				t.log.Debug("task read failed, will retry",
					"task_id", taskID, "attempt", attempt, "error", err)
				continue
			}
			return last, attempt, err
		}
		last = task
		lastErr = nil

		if task.Terminal() {
			t.log.Debug("task reached terminal status",
				"task_id", taskID, "status", task.Status, "attempts", attempt)
			return task, attempt, nil
		}
		t.log.Debug("task still running",
			"task_id", taskID, "status", task.Status, "attempt", attempt)
	}

	return last, t.cfg.MaxAttempts, resterrors.NewPollExhaustedError(taskID, t.cfg.MaxAttempts, lastErr)
}
