// Package report aggregates restore job outcomes into per-set and overall
// reports.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/clumio-code/bulk-restore/internal/api"
	"github.com/clumio-code/bulk-restore/internal/asset"
	"github.com/clumio-code/bulk-restore/internal/dispatch"
	resterrors "github.com/clumio-code/bulk-restore/internal/errors"
	"github.com/clumio-code/bulk-restore/internal/fs"
)

// SetStatus is the rolled-up status of one restore set
type SetStatus string

const (
	SetSucceeded SetStatus = "succeeded"
	SetFailed    SetStatus = "failed"
	SetPartial   SetStatus = "partial"
	SetSkipped   SetStatus = "skipped"
	SetNoMatch   SetStatus = "no_match"
)

// Outcome is the report line for one restore job. Source and Target carry
// the discovered backup record and the resolved restore request so a written
// report can be replayed without re-running discovery.
type Outcome struct {
	AssetType  string        `json:"asset_type"`
	SourceID   string        `json:"source_id"`
	BackupID   string        `json:"backup_id"`
	TargetID   string        `json:"target_id,omitempty"`
	TaskID     string        `json:"task_id,omitempty"`
	State      string        `json:"state"`
	Reason     string        `json:"reason,omitempty"`
	ErrorCode  string        `json:"error_code,omitempty"`
	Attempts   int           `json:"poll_attempts,omitempty"`
	Duration   time.Duration `json:"duration_ns,omitempty"`
	StartedAt  time.Time     `json:"started_at,omitempty"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`

	Source *asset.Discovered   `json:"source,omitempty"`
	Target *api.RestoreRequest `json:"resolved_target,omitempty"`
}

// AssetFailure records one asset type whose discovery failed inside an
// otherwise running set
type AssetFailure struct {
	AssetType string `json:"asset_type"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
}

// SetReport is the outcome of one restore set
type SetReport struct {
	Name       string    `json:"name"`
	Status     SetStatus `json:"status"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Partial    int       `json:"partial"`
	Skipped    bool      `json:"skipped,omitempty"`
	SkipReason string    `json:"skip_reason,omitempty"`
	// NoMatches lists filtered asset types that discovered nothing.
	NoMatches []string `json:"no_match_asset_types,omitempty"`
	// Failures lists asset types whose discovery failed; the remaining
	// types in the set still ran.
	Failures []AssetFailure `json:"discovery_failures,omitempty"`
	Outcomes []Outcome      `json:"outcomes"`
}

// Report is the overall invocation report
type Report struct {
	GeneratedAt time.Time     `json:"generated_at"`
	RunToken    string        `json:"run_token"`
	Duration    time.Duration `json:"duration_ns"`
	Sets        []SetReport   `json:"restore_sets"`
	Total       int           `json:"total"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Partial     int           `json:"partial"`
}

// AllSucceeded reports whether every job in every set succeeded and no
// asset type failed discovery
func (r *Report) AllSucceeded() bool {
	if r.Failed != 0 || r.Partial != 0 || r.Total == 0 {
		return false
	}
	for _, s := range r.Sets {
		if len(s.Failures) > 0 {
			return false
		}
	}
	return true
}

// HasFailures reports whether any job failed, partially succeeded, or any
// asset type failed discovery
func (r *Report) HasFailures() bool {
	if r.Failed > 0 || r.Partial > 0 {
		return true
	}
	for _, s := range r.Sets {
		if len(s.Failures) > 0 {
			return true
		}
	}
	return false
}

// Aggregator collects per-set results into one report
type Aggregator struct {
	runToken string
	started  time.Time
	sets     []SetReport
}

// NewAggregator creates an aggregator for one invocation
func NewAggregator(runToken string) *Aggregator {
	return &Aggregator{
		runToken: runToken,
		started:  time.Now(),
	}
}

// AddSet records the dispatcher result of one restore set. Every job appears
// in the report exactly once; outcomes sort by source resource id so runs
// over the same inventory diff cleanly.
func (a *Aggregator) AddSet(name string, result *dispatch.Result, noMatches []string, failures []AssetFailure) {
	sr := SetReport{
		Name:      name,
		NoMatches: append([]string(nil), noMatches...),
		Failures:  append([]AssetFailure(nil), failures...),
	}
	if result != nil {
		sr.Total = result.Total
		sr.Succeeded = result.Succeeded
		sr.Failed = result.Failed
		sr.Partial = result.Partial
		for _, j := range result.Jobs {
			sr.Outcomes = append(sr.Outcomes, outcomeFromJob(j))
		}
		sort.SliceStable(sr.Outcomes, func(i, k int) bool {
			if sr.Outcomes[i].SourceID != sr.Outcomes[k].SourceID {
				return sr.Outcomes[i].SourceID < sr.Outcomes[k].SourceID
			}
			return sr.Outcomes[i].AssetType < sr.Outcomes[k].AssetType
		})
	}
	sr.Status = setStatus(sr)
	a.sets = append(a.sets, sr)
}

// AddSkippedSet records a set that never dispatched (cancelled, or failed
// before discovery completed)
func (a *Aggregator) AddSkippedSet(name, reason string) {
	a.sets = append(a.sets, SetReport{
		Name:       name,
		Status:     SetSkipped,
		Skipped:    true,
		SkipReason: reason,
	})
}

// Build finalizes the overall report
func (a *Aggregator) Build() *Report {
	r := &Report{
		GeneratedAt: time.Now(),
		RunToken:    a.runToken,
		Duration:    time.Since(a.started),
		Sets:        a.sets,
	}
	for _, s := range a.sets {
		r.Total += s.Total
		r.Succeeded += s.Succeeded
		r.Failed += s.Failed
		r.Partial += s.Partial
	}
	return r
}

// Write serializes the report as indented JSON to the given path
func (r *Report) Write(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := fs.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing report to %s: %w", path, err)
	}
	return nil
}

// Load reads a previously written report, for restore-only reruns
func Load(path string) (*Report, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report %s: %w", path, err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing report %s: %w", path, err)
	}
	return &r, nil
}

func outcomeFromJob(j *dispatch.Job) Outcome {
	o := Outcome{
		AssetType:  string(j.Asset.Type),
		SourceID:   j.Asset.ResourceID,
		BackupID:   j.Asset.BackupID,
		TaskID:     j.TaskID,
		State:      string(j.State),
		Reason:     j.Reason,
		Attempts:   j.Attempts,
		Duration:   j.Duration(),
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
	if j.Err != nil {
		o.ErrorCode = string(resterrors.GetCode(j.Err))
	}
	src := j.Asset
	o.Source = &src
	o.Target = j.Request
	o.TargetID = targetID(j.Request)
	return o
}

// targetID names the concrete restore destination where the request carries
// one
func targetID(req *api.RestoreRequest) string {
	if req == nil {
		return ""
	}
	switch {
	case req.RDS != nil:
		return req.RDS.Name
	case req.DynamoDB != nil:
		return req.DynamoDB.TableName
	case req.ProtectionGroup != nil:
		return req.ProtectionGroup.BucketID
	case req.EBS != nil:
		return req.EBS.EnvironmentID
	case req.EC2 != nil:
		return req.EC2.EnvironmentID
	}
	return ""
}

func setStatus(sr SetReport) SetStatus {
	switch {
	case sr.Total == 0 && len(sr.Failures) == 0:
		return SetNoMatch
	case sr.Total == 0:
		return SetFailed
	case sr.Failed == 0 && sr.Partial == 0 && len(sr.Failures) == 0:
		return SetSucceeded
	case sr.Succeeded == 0 && sr.Partial == 0:
		return SetFailed
	default:
		return SetPartial
	}
}
