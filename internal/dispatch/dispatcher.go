package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clumio-code/bulk-restore/internal/api"
	resterrors "github.com/clumio-code/bulk-restore/internal/errors"
	"github.com/clumio-code/bulk-restore/internal/logger"
)

// RestoreStarter starts restores on the provider
type RestoreStarter interface {
	StartRestore(ctx context.Context, req api.RestoreRequest) (taskID string, err error)
}

// Progress tracks dispatcher progress across workers
type Progress struct {
	TotalJobs     int32  `json:"total_jobs"`
	CompletedJobs int32  `json:"completed_jobs"`
	CurrentAsset  string `json:"current_asset"`
}

// ProgressCallback is called after every job completes
type ProgressCallback func(progress *Progress)

// Result is the outcome of one dispatcher run. Jobs holds one entry per
// input job in input order, regardless of outcome.
type Result struct {
	Jobs      []*Job        `json:"jobs"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Partial   int           `json:"partial"`
	Duration  time.Duration `json:"duration"`
	Workers   int           `json:"workers"`
}

// Dispatcher runs restore jobs through a bounded worker pool. Each job is
// started, then tracked to a terminal task status; one job failing never
// stops its siblings.
type Dispatcher struct {
	starter  RestoreStarter
	tracker  *Tracker
	workers  int
	log      logger.Logger
	progress *Progress
	callback ProgressCallback
}

// NewDispatcher creates a dispatcher with the given worker limit
func NewDispatcher(starter RestoreStarter, tracker *Tracker, workers int, log logger.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Dispatcher{
		starter:  starter,
		tracker:  tracker,
		workers:  workers,
		log:      log,
		progress: &Progress{},
	}
}

// SetProgressCallback sets the progress callback
func (d *Dispatcher) SetProgressCallback(cb ProgressCallback) {
	d.callback = cb
}

// Run executes all jobs and blocks until every one is terminal
func (d *Dispatcher) Run(ctx context.Context, jobs []*Job) *Result {
	start := time.Now()

	workers := d.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	atomic.StoreInt32(&d.progress.TotalJobs, int32(len(jobs)))
	atomic.StoreInt32(&d.progress.CompletedJobs, 0)

	queue := make(chan int, len(jobs))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				select {
				case <-ctx.Done():
					jobs[idx].Fail(resterrors.NewDispatchError("restore run cancelled", ctx.Err()))
				default:
					// Jobs failed before dispatch (target resolution)
					// pass through so the report still carries them.
					if !jobs[idx].State.Terminal() {
						d.runJob(ctx, jobs[idx])
					}
				}
				atomic.AddInt32(&d.progress.CompletedJobs, 1)
				if d.callback != nil {
					d.callback(d.progress)
				}
			}
		}()
	}

	for i := range jobs {
		queue <- i
	}
	close(queue)
	wg.Wait()

	result := &Result{
		Jobs:     jobs,
		Total:    len(jobs),
		Workers:  workers,
		Duration: time.Since(start),
	}
	for _, j := range jobs {
		switch j.State {
		case StateSucceeded:
			result.Succeeded++
		case StatePartialSuccess:
			result.Partial++
		default:
			result.Failed++
		}
	}
	return result
}

// runJob drives one job from Pending to a terminal state
func (d *Dispatcher) runJob(ctx context.Context, job *Job) {
	job.StartedAt = time.Now()

	taskID, err := d.starter.StartRestore(ctx, *job.Request)
	if err != nil {
		job.Fail(resterrors.NewDispatchError("restore start rejected", err))
		d.log.Error("restore dispatch failed",
			"set", job.SetName, "asset", job.Asset.Key(), "error", err)
		return
	}
	job.TaskID = taskID
	job.State = StateDispatched
	d.log.Info("restore dispatched",
		"set", job.SetName, "asset", job.Asset.Key(), "task_id", taskID)

	job.State = StateRunning
	task, attempts, err := d.tracker.Await(ctx, taskID)
	job.Attempts = attempts
	if err != nil {
		job.Fail(err)
		d.log.Error("restore tracking failed",
			"set", job.SetName, "asset", job.Asset.Key(), "task_id", taskID, "error", err)
		return
	}

	switch task.Status {
	case api.TaskCompleted:
		job.Finish(StateSucceeded)
		d.log.Info("restore succeeded",
			"set", job.SetName, "asset", job.Asset.Key(), "task_id", taskID)
	case api.TaskAborted:
		// The provider stopped the task after partial progress.
		job.Finish(StatePartialSuccess)
		job.Reason = "task aborted by provider after partial progress"
		d.log.Warn("restore partially completed",
			"set", job.SetName, "asset", job.Asset.Key(), "task_id", taskID)
	default:
		job.Fail(&resterrors.RestoreError{
			Code:     resterrors.ErrCodeTaskFailed,
			Category: resterrors.CategoryRestore,
			Message:  "restore task " + taskID + " finished with status " + task.Status,
		})
		d.log.Error("restore failed",
			"set", job.SetName, "asset", job.Asset.Key(), "task_id", taskID, "status", task.Status)
	}
}
