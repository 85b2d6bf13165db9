// Package dispatch starts restore jobs with bounded concurrency and tracks
// each one to a terminal state.
package dispatch

import (
	"time"

	"github.com/clumio-code/bulk-restore/internal/api"
	"github.com/clumio-code/bulk-restore/internal/asset"
)

// State is the lifecycle state of one restore job
type State string

const (
	StatePending        State = "pending"
	StateDispatched     State = "dispatched"
	StateRunning        State = "running"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
	StatePartialSuccess State = "partial_success"
)

// Terminal reports whether the state is final
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StatePartialSuccess:
		return true
	}
	return false
}

// Job is one restore of one discovered backup. A job moves Pending ->
// Dispatched -> Running -> terminal; failures at any stage go straight to
// Failed with the cause recorded.
type Job struct {
	SetName string           `json:"restore_set"`
	Asset   asset.Discovered `json:"asset"`
	Request *api.RestoreRequest `json:"-"`

	TaskID     string    `json:"task_id,omitempty"`
	State      State     `json:"state"`
	Attempts   int       `json:"poll_attempts,omitempty"`
	Err        error     `json:"-"`
	Reason     string    `json:"reason,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// NewJob creates a pending job
func NewJob(setName string, d asset.Discovered, req *api.RestoreRequest) *Job {
	return &Job{
		SetName: setName,
		Asset:   d,
		Request: req,
		State:   StatePending,
	}
}

// Fail moves the job to Failed with the cause. Calling Fail on an already
// terminal job is a no-op so a job can only fail once.
func (j *Job) Fail(err error) {
	if j.State.Terminal() {
		return
	}
	j.State = StateFailed
	j.Err = err
	if err != nil {
		j.Reason = err.Error()
	}
	j.FinishedAt = time.Now()
}

// Finish moves the job to the given terminal state
func (j *Job) Finish(s State) {
	if j.State.Terminal() {
		return
	}
	j.State = s
	j.FinishedAt = time.Now()
}

// Duration is the wall-clock time from dispatch to completion
func (j *Job) Duration() time.Duration {
	if j.StartedAt.IsZero() || j.FinishedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}
