package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clumio-code/bulk-restore/internal/api"
	"github.com/clumio-code/bulk-restore/internal/asset"
	"github.com/clumio-code/bulk-restore/internal/dispatch"
	resterrors "github.com/clumio-code/bulk-restore/internal/errors"
	"github.com/clumio-code/bulk-restore/internal/plan"
	"github.com/clumio-code/bulk-restore/internal/report"
)

// fakeProvider implements the full Provider surface in memory
type fakeProvider struct {
	mu        sync.Mutex
	backups   []asset.Discovered
	statuses  map[string]string // task id -> status
	started   []api.RestoreRequest
	listErr   map[asset.Type]error
	listCalls int
}

func (f *fakeProvider) ListBackups(ctx context.Context, q api.Query, page int) (api.BackupPage, error) {
	f.mu.Lock()
	f.listCalls++
	err := f.listErr[q.Type]
	f.mu.Unlock()
	if err != nil {
		return api.BackupPage{}, err
	}
	var items []asset.Discovered
	for _, b := range f.backups {
		if b.Type == q.Type {
			items = append(items, b)
		}
	}
	return api.BackupPage{Items: items, TotalPages: 1}, nil
}

func (f *fakeProvider) ListEnvironments(ctx context.Context, account, region string) ([]api.Environment, error) {
	return []api.Environment{{ID: "env-1", Account: account, Region: "us-west-2"}}, nil
}

func (f *fakeProvider) FindProtectionGroup(ctx context.Context, name string) (string, []string, error) {
	return "", nil, nil
}

func (f *fakeProvider) ListProtectionGroupAssets(ctx context.Context, groupID string, bucketNames []string) ([]string, error) {
	return nil, nil
}

func (f *fakeProvider) ResolveEnvironment(ctx context.Context, account, region string) (string, error) {
	return "env-" + account + "-" + region, nil
}

func (f *fakeProvider) FindBucket(ctx context.Context, account, region, name string) (string, string, error) {
	return "bucket-id", "env-1", nil
}

func (f *fakeProvider) StartRestore(ctx context.Context, req api.RestoreRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, req)
	return "task-" + req.BackupID, nil
}

func (f *fakeProvider) ReadTask(ctx context.Context, taskID string) (api.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[taskID]
	if !ok {
		status = api.TaskCompleted
	}
	return api.Task{ID: taskID, Status: status}, nil
}

func fastOptions() Options {
	return Options{
		MaxConcurrentRestores: 2,
		RunToken:              "abcdefghijklm",
		Poll: dispatch.PollConfig{
			Interval:    time.Millisecond,
			MaxInterval: 2 * time.Millisecond,
			MaxAttempts: 3,
		},
	}
}

func ebsBackup(volume, backupID string) asset.Discovered {
	return asset.Discovered{
		Type:       asset.TypeEBS,
		Account:    "111111111111",
		Region:     "us-west-2",
		ResourceID: volume,
		BackupID:   backupID,
		StartTime:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		EBS: &asset.EBSBackup{
			VolumeID:   volume,
			AZ:         "us-west-2a",
			VolumeType: "gp3",
			Tags:       []asset.Tag{{Key: "env", Value: "prod"}},
		},
	}
}

func testDefinition() *plan.Definition {
	def := &plan.Definition{
		RestoreSets: []plan.RestoreSet{
			{
				SourceAccount: "111111111111",
				SourceRegions: []string{"us-west-2"},
				AssetFilters: map[string]plan.AssetFilter{
					"EBS": {Tags: map[string]string{"env": "prod"}},
				},
				Targets: plan.TargetSpecs{
					TargetAccount: "111111111111",
					EBS:           &plan.EBSTarget{},
				},
			},
		},
	}
	if err := def.Validate(); err != nil {
		panic(err)
	}
	def.RestoreSets[0].Name = "set-1"
	return def
}

func TestRunRestoresEveryDiscoveredBackup(t *testing.T) {
	provider := &fakeProvider{
		backups: []asset.Discovered{
			ebsBackup("vol-1", "bk-1"),
			ebsBackup("vol-2", "bk-2"),
		},
	}
	eng := New(provider, nil, fastOptions())

	rep, err := eng.Run(context.Background(), testDefinition())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Total != 2 || rep.Succeeded != 2 {
		t.Fatalf("report = %d total, %d succeeded, want 2/2", rep.Total, rep.Succeeded)
	}
	if len(provider.started) != 2 {
		t.Errorf("provider saw %d restore starts", len(provider.started))
	}
	for _, req := range provider.started {
		if req.RunToken != "abcdefghijklm" {
			t.Errorf("request run token = %q", req.RunToken)
		}
		if req.EBS == nil || req.EBS.AZ != "us-west-2a" {
			t.Errorf("request did not inherit recorded config: %+v", req.EBS)
		}
	}
}

func TestRunRecordsNoMatchWithoutFailing(t *testing.T) {
	provider := &fakeProvider{}
	eng := New(provider, nil, fastOptions())

	rep, err := eng.Run(context.Background(), testDefinition())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	set := rep.Sets[0]
	if set.Status != report.SetNoMatch {
		t.Errorf("set status = %s, want no_match", set.Status)
	}
	if len(set.NoMatches) != 1 || set.NoMatches[0] != "EBS" {
		t.Errorf("NoMatches = %v", set.NoMatches)
	}
}

func TestRunSkipsCancelledSets(t *testing.T) {
	provider := &fakeProvider{backups: []asset.Discovered{ebsBackup("vol-1", "bk-1")}}
	def := testDefinition()
	def.RestoreSets[0].Cancelled = true

	eng := New(provider, nil, fastOptions())
	rep, err := eng.Run(context.Background(), def)
	if err == nil {
		t.Fatal("Run() = nil error, want failure when no set could run")
	}
	if len(rep.Sets) != 1 || !rep.Sets[0].Skipped {
		t.Errorf("cancelled set missing from report: %+v", rep.Sets)
	}
	if len(provider.started) != 0 {
		t.Errorf("cancelled set dispatched %d restores", len(provider.started))
	}
}

func TestRunIsolatesResolutionFailures(t *testing.T) {
	bad := ebsBackup("vol-bad", "bk-bad")
	bad.EBS.VolumeType = "st1"

	provider := &fakeProvider{
		backups: []asset.Discovered{ebsBackup("vol-ok", "bk-ok"), bad},
	}
	def := testDefinition()
	// st1 cannot take provisioned IOPS, so vol-bad fails resolution while
	// vol-ok dispatches normally.
	def.RestoreSets[0].Targets.EBS = &plan.EBSTarget{TargetIOPS: 5000}

	eng := New(provider, nil, fastOptions())
	rep, err := eng.Run(context.Background(), def)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Total != 2 {
		t.Fatalf("report total = %d, want both discovered backups", rep.Total)
	}
	if rep.Failed != 1 || rep.Succeeded != 1 {
		t.Fatalf("report = %d succeeded, %d failed, want 1/1", rep.Succeeded, rep.Failed)
	}
	var failed report.Outcome
	for _, o := range rep.Sets[0].Outcomes {
		if o.State == string(dispatch.StateFailed) {
			failed = o
		}
	}
	if failed.SourceID != "vol-bad" {
		t.Errorf("failed outcome = %+v, want vol-bad", failed)
	}
	if failed.ErrorCode != string(resterrors.ErrCodeIncompatibleTarget) {
		t.Errorf("failed outcome code = %s", failed.ErrorCode)
	}
	if len(provider.started) != 1 {
		t.Errorf("provider saw %d starts, pre-dispatch failure leaked", len(provider.started))
	}
}

func TestRunOnlyAssetsFilter(t *testing.T) {
	provider := &fakeProvider{
		backups: []asset.Discovered{
			ebsBackup("vol-1", "bk-1"),
			ebsBackup("vol-2", "bk-2"),
		},
	}
	opts := fastOptions()
	opts.OnlyAssets = map[string]bool{"EBS/vol-2": true}

	eng := New(provider, nil, opts)
	rep, err := eng.Run(context.Background(), testDefinition())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Total != 1 {
		t.Fatalf("report total = %d, want only the listed asset", rep.Total)
	}
	if rep.Sets[0].Outcomes[0].SourceID != "vol-2" {
		t.Errorf("restored %s, want vol-2", rep.Sets[0].Outcomes[0].SourceID)
	}
}

func rdsBackup(name, backupID string) asset.Discovered {
	return asset.Discovered{
		Type:       asset.TypeRDS,
		Account:    "111111111111",
		Region:     "us-west-2",
		ResourceID: name,
		BackupID:   backupID,
		StartTime:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		RDS: &asset.RDSBackup{
			ResourceName: name,
			Tags:         []asset.Tag{{Key: "env", Value: "prod"}},
		},
	}
}

func TestRunIsolatesDiscoveryFailures(t *testing.T) {
	provider := &fakeProvider{
		backups: []asset.Discovered{rdsBackup("db-1", "bk-rds")},
		listErr: map[asset.Type]error{asset.TypeEBS: errors.New("catalog unavailable")},
	}
	def := testDefinition()
	def.RestoreSets[0].AssetFilters["RDS"] = plan.AssetFilter{Tags: map[string]string{"env": "prod"}}
	def.RestoreSets[0].Targets.RDS = &plan.RDSTarget{TargetRDSName: "db-1-restore"}

	eng := New(provider, nil, fastOptions())
	rep, err := eng.Run(context.Background(), def)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(provider.started) != 1 {
		t.Fatalf("started %d restores, want the RDS restore despite the EBS failure", len(provider.started))
	}
	set := rep.Sets[0]
	if set.Total != 1 || set.Succeeded != 1 {
		t.Fatalf("set = %d total, %d succeeded, want 1/1", set.Total, set.Succeeded)
	}
	if len(set.Failures) != 1 || set.Failures[0].AssetType != "EBS" {
		t.Fatalf("Failures = %+v, want the EBS discovery failure recorded", set.Failures)
	}
	if set.Status != report.SetPartial {
		t.Errorf("set status = %s, want partial", set.Status)
	}
	if rep.AllSucceeded() {
		t.Error("AllSucceeded() = true with a discovery failure")
	}
	if !rep.HasFailures() {
		t.Error("HasFailures() = false with a discovery failure")
	}
}

func TestRunRecordsSetFailedWhenEveryTypeFailsDiscovery(t *testing.T) {
	provider := &fakeProvider{
		listErr: map[asset.Type]error{asset.TypeEBS: errors.New("catalog unavailable")},
	}
	eng := New(provider, nil, fastOptions())
	rep, err := eng.Run(context.Background(), testDefinition())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	set := rep.Sets[0]
	if set.Status != report.SetFailed {
		t.Errorf("set status = %s, want failed", set.Status)
	}
	if len(set.Failures) != 1 {
		t.Errorf("Failures = %+v, want one entry", set.Failures)
	}
}

func TestRunFromReportDispatchesWithoutDiscovery(t *testing.T) {
	src := ebsBackup("vol-bad", "bk-bad")
	prev := &report.Report{
		Sets: []report.SetReport{{
			Name: "set-1",
			Outcomes: []report.Outcome{
				{
					AssetType: "EBS",
					SourceID:  "vol-ok",
					State:     string(dispatch.StateSucceeded),
				},
				{
					AssetType: "EBS",
					SourceID:  "vol-bad",
					State:     string(dispatch.StateFailed),
					Source:    &src,
					Target: &api.RestoreRequest{
						Type:     asset.TypeEBS,
						BackupID: "bk-bad",
						EBS: &api.EBSRestoreTarget{
							EnvironmentID: "env-1",
							AZ:            "us-west-2a",
							VolumeType:    "gp3",
						},
					},
				},
			},
		}},
	}

	provider := &fakeProvider{}
	eng := New(provider, nil, fastOptions())
	rep, err := eng.RunFromReport(context.Background(), prev)
	if err != nil {
		t.Fatalf("RunFromReport() error = %v", err)
	}
	if provider.listCalls != 0 {
		t.Errorf("replay ran %d catalog queries, want none", provider.listCalls)
	}
	if len(provider.started) != 1 || provider.started[0].BackupID != "bk-bad" {
		t.Fatalf("started = %+v, want exactly the failed backup", provider.started)
	}
	if rep.Total != 1 || rep.Succeeded != 1 {
		t.Errorf("report = %d total, %d succeeded, want 1/1", rep.Total, rep.Succeeded)
	}
}

func TestRunFromReportRejectsOutcomesWithoutRequests(t *testing.T) {
	prev := &report.Report{
		Sets: []report.SetReport{{
			Name: "set-1",
			Outcomes: []report.Outcome{
				{AssetType: "EBS", SourceID: "vol-1", State: string(dispatch.StateFailed)},
			},
		}},
	}
	eng := New(&fakeProvider{}, nil, fastOptions())
	_, err := eng.RunFromReport(context.Background(), prev)
	if err == nil {
		t.Fatal("RunFromReport() = nil error for a report without recorded requests")
	}
	if resterrors.GetCode(err) != resterrors.ErrCodeInvalidInput {
		t.Errorf("error code = %s, want invalid input", resterrors.GetCode(err))
	}
}

func TestRunFromReportSkipsCleanSets(t *testing.T) {
	prev := &report.Report{
		Sets: []report.SetReport{{
			Name: "set-1",
			Outcomes: []report.Outcome{
				{AssetType: "EBS", SourceID: "vol-1", State: string(dispatch.StateSucceeded)},
			},
		}},
	}
	provider := &fakeProvider{}
	eng := New(provider, nil, fastOptions())
	rep, err := eng.RunFromReport(context.Background(), prev)
	if err != nil {
		t.Fatalf("RunFromReport() error = %v", err)
	}
	if rep.Total != 0 {
		t.Errorf("report total = %d, want nothing rerun", rep.Total)
	}
	if len(rep.Sets) != 1 || !rep.Sets[0].Skipped {
		t.Errorf("sets = %+v, want the clean set recorded as skipped", rep.Sets)
	}
	if len(provider.started) != 0 {
		t.Errorf("clean replay started %d restores", len(provider.started))
	}
}

func TestDiscoverOnly(t *testing.T) {
	provider := &fakeProvider{
		backups: []asset.Discovered{ebsBackup("vol-1", "bk-1")},
	}
	eng := New(provider, nil, fastOptions())

	inventory := eng.Discover(context.Background(), testDefinition())
	if len(inventory) != 1 {
		t.Fatalf("got %d inventories", len(inventory))
	}
	if len(inventory[0].Assets) != 1 {
		t.Errorf("discovered %d assets, want 1", len(inventory[0].Assets))
	}
	if len(provider.started) != 0 {
		t.Error("discover-only run dispatched restores")
	}
}
