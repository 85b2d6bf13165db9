// Package engine orchestrates a full bulk-restore invocation: discovery,
// target resolution, dispatch, and reporting across restore sets.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/clumio-code/bulk-restore/internal/asset"
	"github.com/clumio-code/bulk-restore/internal/discovery"
	"github.com/clumio-code/bulk-restore/internal/dispatch"
	resterrors "github.com/clumio-code/bulk-restore/internal/errors"
	"github.com/clumio-code/bulk-restore/internal/logger"
	"github.com/clumio-code/bulk-restore/internal/plan"
	"github.com/clumio-code/bulk-restore/internal/report"
	"github.com/clumio-code/bulk-restore/internal/target"
)

// Provider is the full provider surface the engine needs. *api.Client
// satisfies it.
type Provider interface {
	discovery.Catalog
	target.Environments
	dispatch.RestoreStarter
	dispatch.TaskReader
}

// Options tunes one engine run
type Options struct {
	MaxConcurrentRestores int
	Poll                  dispatch.PollConfig
	DiscoverOnly          bool
	RunToken              string
	ProgressCallback      dispatch.ProgressCallback

	// OnlyAssets, when non-empty, narrows dispatch to the listed assets
	// (keys as returned by asset.Discovered.Key).
	OnlyAssets map[string]bool
}

// Engine runs restore definitions end to end
type Engine struct {
	provider Provider
	log      logger.Logger
	opts     Options
}

// New creates an engine
func New(provider Provider, log logger.Logger, opts Options) *Engine {
	if log == nil {
		log = logger.NewNullLogger()
	}
	if opts.MaxConcurrentRestores < 1 {
		opts.MaxConcurrentRestores = 4
	}
	if opts.Poll.MaxAttempts <= 0 {
		opts.Poll = dispatch.DefaultPollConfig()
	}
	if opts.RunToken == "" {
		opts.RunToken = target.NewRunToken()
	}
	return &Engine{provider: provider, log: log, opts: opts}
}

// SetInventory is one restore set's discovered backups, grouped by asset
// type, plus the types that matched nothing and the types whose discovery
// failed
type SetInventory struct {
	Set       *plan.RestoreSet
	Assets    []asset.Discovered
	NoMatches []string
	Failures  []report.AssetFailure
	Err       error
}

// Run executes every restore set in the definition and returns the
// aggregated report. Sets run concurrently and fail independently; Run only
// returns an error when no set could run at all.
func (e *Engine) Run(ctx context.Context, def *plan.Definition) (*report.Report, error) {
	agg := report.NewAggregator(e.opts.RunToken)

	type setResult struct {
		name      string
		result    *dispatch.Result
		noMatches []string
		failures  []report.AssetFailure
		cancelled bool
	}

	results := make([]setResult, len(def.RestoreSets))
	var wg sync.WaitGroup
	for i := range def.RestoreSets {
		set := &def.RestoreSets[i]
		if set.Cancelled {
			results[i] = setResult{name: set.Name, cancelled: true}
			e.log.Info("restore set cancelled, skipping", "set", set.Name)
			continue
		}
		wg.Add(1)
		go func(i int, set *plan.RestoreSet) {
			defer wg.Done()
			res, noMatches, failures := e.runSet(ctx, set)
			results[i] = setResult{name: set.Name, result: res, noMatches: noMatches, failures: failures}
		}(i, set)
	}
	wg.Wait()

	var ran int
	for _, r := range results {
		if r.cancelled {
			agg.AddSkippedSet(r.name, "cancelled in the restore definition")
			continue
		}
		agg.AddSet(r.name, r.result, r.noMatches, r.failures)
		ran++
	}

	rep := agg.Build()
	if ran == 0 && len(def.RestoreSets) > 0 {
		return rep, resterrors.NewDispatchError("no restore set could run", nil)
	}
	return rep, nil
}

// Discover resolves the inventory for every restore set without dispatching
// anything
func (e *Engine) Discover(ctx context.Context, def *plan.Definition) []SetInventory {
	out := make([]SetInventory, len(def.RestoreSets))
	var wg sync.WaitGroup
	for i := range def.RestoreSets {
		set := &def.RestoreSets[i]
		out[i].Set = set
		if set.Cancelled {
			continue
		}
		wg.Add(1)
		go func(inv *SetInventory, set *plan.RestoreSet) {
			defer wg.Done()
			inv.Assets, inv.NoMatches, inv.Failures = e.discoverSet(ctx, set)
			var errs *multierror.Error
			for _, f := range inv.Failures {
				errs = multierror.Append(errs, fmt.Errorf("%s: %s", f.AssetType, f.Error))
			}
			inv.Err = errs.ErrorOrNil()
		}(&out[i], set)
	}
	wg.Wait()
	return out
}

// runSet drives one restore set: discover, resolve, dispatch, track. An
// asset type whose discovery fails is recorded and skipped; the rest of the
// set still runs. Per-asset failures land in the dispatch result.
func (e *Engine) runSet(ctx context.Context, set *plan.RestoreSet) (*dispatch.Result, []string, []report.AssetFailure) {
	op := e.log.StartOperation(fmt.Sprintf("restore set %s", set.Name))

	assets, noMatches, failures := e.discoverSet(ctx, set)
	for _, f := range failures {
		e.log.Error("asset type discovery failed",
			"set", set.Name, "asset_type", f.AssetType, "error", f.Error)
	}
	if len(assets) == 0 {
		if len(failures) > 0 {
			op.Fail("discovery failed for every matching asset type")
		} else {
			op.Complete("no matching backups")
		}
		return &dispatch.Result{}, noMatches, failures
	}
	op.Update(fmt.Sprintf("discovered %d backups", len(assets)))

	resolver := target.NewResolver(e.provider, e.log, e.opts.RunToken)
	jobs := make([]*dispatch.Job, 0, len(assets))
	for _, d := range assets {
		job := dispatch.NewJob(set.Name, d, nil)
		req, err := resolver.Resolve(ctx, set, d)
		if err != nil {
			// The job still enters the pool so the report keeps one
			// outcome per discovered backup.
			job.Fail(err)
			e.log.Error("target resolution failed",
				"set", set.Name, "asset", d.Key(), "error", err)
		} else {
			job.Request = req
		}
		jobs = append(jobs, job)
	}

	tracker := dispatch.NewTracker(e.provider, e.opts.Poll, e.log)
	dispatcher := dispatch.NewDispatcher(e.provider, tracker, e.opts.MaxConcurrentRestores, e.log)
	if e.opts.ProgressCallback != nil {
		dispatcher.SetProgressCallback(e.opts.ProgressCallback)
	}
	result := dispatcher.Run(ctx, jobs)

	switch {
	case result.Failed > 0:
		op.Fail(fmt.Sprintf("%d of %d restores failed", result.Failed, result.Total))
	case len(failures) > 0:
		op.Fail(fmt.Sprintf("%d restores finished, %d asset types failed discovery",
			result.Total, len(failures)))
	default:
		op.Complete(fmt.Sprintf("%d restores finished", result.Total))
	}
	return result, noMatches, failures
}

// discoverSet discovers every filtered asset type of one set. Asset types
// that match nothing are recorded separately from asset types whose
// discovery failed; neither stops the remaining types, so the set restores
// everything it still can.
func (e *Engine) discoverSet(ctx context.Context, set *plan.RestoreSet) ([]asset.Discovered, []string, []report.AssetFailure) {
	disc := discovery.NewEngine(e.provider, e.log)

	var (
		assets    []asset.Discovered
		noMatches []string
		failures  []report.AssetFailure
	)
	for _, at := range set.AssetTypes() {
		found, err := disc.Discover(ctx, set, at)
		if err != nil {
			if resterrors.IsNoMatch(err) {
				noMatches = append(noMatches, string(at))
				continue
			}
			failures = append(failures, report.AssetFailure{
				AssetType: string(at),
				Error:     err.Error(),
				ErrorCode: string(resterrors.GetCode(err)),
			})
			continue
		}
		assets = append(assets, found...)
	}
	if len(e.opts.OnlyAssets) > 0 {
		kept := assets[:0]
		for _, d := range assets {
			if e.opts.OnlyAssets[d.Key()] {
				kept = append(kept, d)
			}
		}
		assets = kept
	}
	return assets, noMatches, failures
}

// RunFromReport replays the non-succeeded jobs of a previous report without
// re-running discovery. Each set dispatches directly from the source record
// and resolved request its outcomes carry.
func (e *Engine) RunFromReport(ctx context.Context, prev *report.Report) (*report.Report, error) {
	agg := report.NewAggregator(e.opts.RunToken)

	type setJobs struct {
		name string
		jobs []*dispatch.Job
	}
	var runnable []setJobs
	for _, ps := range prev.Sets {
		if ps.Skipped {
			agg.AddSkippedSet(ps.Name, ps.SkipReason)
			continue
		}
		jobs, err := e.jobsFromOutcomes(ps)
		if err != nil {
			return nil, err
		}
		if len(jobs) == 0 {
			agg.AddSkippedSet(ps.Name, "no failed jobs in the source report")
			continue
		}
		runnable = append(runnable, setJobs{name: ps.Name, jobs: jobs})
	}

	results := make([]*dispatch.Result, len(runnable))
	var wg sync.WaitGroup
	for i, sj := range runnable {
		wg.Add(1)
		go func(i int, sj setJobs) {
			defer wg.Done()
			op := e.log.StartOperation(fmt.Sprintf("restore set %s (rerun)", sj.name))
			tracker := dispatch.NewTracker(e.provider, e.opts.Poll, e.log)
			dispatcher := dispatch.NewDispatcher(e.provider, tracker, e.opts.MaxConcurrentRestores, e.log)
			if e.opts.ProgressCallback != nil {
				dispatcher.SetProgressCallback(e.opts.ProgressCallback)
			}
			results[i] = dispatcher.Run(ctx, sj.jobs)
			if results[i].Failed > 0 {
				op.Fail(fmt.Sprintf("%d of %d restores failed", results[i].Failed, results[i].Total))
			} else {
				op.Complete(fmt.Sprintf("%d restores finished", results[i].Total))
			}
		}(i, sj)
	}
	wg.Wait()

	for i, sj := range runnable {
		agg.AddSet(sj.name, results[i], nil, nil)
	}
	return agg.Build(), nil
}

// jobsFromOutcomes rebuilds dispatch jobs for every outcome of a previous
// set that did not succeed
func (e *Engine) jobsFromOutcomes(ps report.SetReport) ([]*dispatch.Job, error) {
	var jobs []*dispatch.Job
	for _, o := range ps.Outcomes {
		if o.State == string(dispatch.StateSucceeded) {
			continue
		}
		if o.Source == nil || o.Target == nil {
			return nil, resterrors.NewValidationError(resterrors.ErrCodeInvalidInput,
				fmt.Sprintf("report outcome %s/%s carries no restore request; regenerate the report with this version",
					ps.Name, o.SourceID))
		}
		jobs = append(jobs, dispatch.NewJob(ps.Name, *o.Source, o.Target))
	}
	return jobs, nil
}
