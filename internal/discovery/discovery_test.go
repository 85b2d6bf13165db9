package discovery

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/clumio-code/bulk-restore/internal/api"
	"github.com/clumio-code/bulk-restore/internal/asset"
	resterrors "github.com/clumio-code/bulk-restore/internal/errors"
	"github.com/clumio-code/bulk-restore/internal/plan"
)

type fakeCatalog struct {
	pages       map[int][]asset.Discovered // page -> items
	totalPages  int
	listErr     error
	envs        []api.Environment
	groups      map[string]string   // name -> id
	groupAssets map[string][]string // id -> asset ids
	listCalls   int
	queries     []api.Query
}

func (f *fakeCatalog) ListBackups(ctx context.Context, q api.Query, page int) (api.BackupPage, error) {
	f.listCalls++
	f.queries = append(f.queries, q)
	if f.listErr != nil {
		return api.BackupPage{}, f.listErr
	}
	return api.BackupPage{
		Items:      f.pages[page],
		TotalPages: f.totalPages,
	}, nil
}

func (f *fakeCatalog) ListEnvironments(ctx context.Context, account, region string) ([]api.Environment, error) {
	return f.envs, nil
}

func (f *fakeCatalog) FindProtectionGroup(ctx context.Context, name string) (string, []string, error) {
	return f.groups[name], []string{"bucket-a", "bucket-b"}, nil
}

func (f *fakeCatalog) ListProtectionGroupAssets(ctx context.Context, groupID string, bucketNames []string) ([]string, error) {
	return f.groupAssets[groupID], nil
}

func ebsBackup(id, volume, account, region string, taken time.Time) asset.Discovered {
	return asset.Discovered{
		Type:       asset.TypeEBS,
		Account:    account,
		Region:     region,
		ResourceID: volume,
		BackupID:   id,
		StartTime:  taken,
		EBS: &asset.EBSBackup{
			VolumeID: volume,
			Tags:     []asset.Tag{{Key: "env", Value: "prod"}},
		},
	}
}

func ebsSet() *plan.RestoreSet {
	return &plan.RestoreSet{
		Name:          "set-1",
		SourceAccount: "111111111111",
		SourceRegions: []string{"us-west-2"},
		AssetFilters: map[string]plan.AssetFilter{
			"EBS": {Tags: map[string]string{"env": "prod"}},
		},
		Targets: plan.TargetSpecs{
			TargetAccount: "111111111111",
			EBS:           &plan.EBSTarget{},
		},
	}
}

func TestDiscoverKeepsLatestPerResource(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(48 * time.Hour)
	cat := &fakeCatalog{
		totalPages: 1,
		pages: map[int][]asset.Discovered{
			1: {
				ebsBackup("bk-old", "vol-1", "111111111111", "us-west-2", older),
				ebsBackup("bk-new", "vol-1", "111111111111", "us-west-2", newer),
				ebsBackup("bk-2", "vol-2", "111111111111", "us-west-2", older),
			},
		},
	}

	got, err := NewEngine(cat, nil).Discover(context.Background(), ebsSet(), asset.TypeEBS)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d backups, want 2 (one per resource)", len(got))
	}
	// Sorted by resource id, latest backup wins.
	if got[0].BackupID != "bk-new" {
		t.Errorf("vol-1 kept backup %s, want bk-new", got[0].BackupID)
	}
	if got[1].ResourceID != "vol-2" {
		t.Errorf("second resource = %s, want vol-2", got[1].ResourceID)
	}
}

func TestDiscoverPaginates(t *testing.T) {
	taken := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	cat := &fakeCatalog{
		totalPages: 3,
		pages: map[int][]asset.Discovered{
			1: {ebsBackup("bk-1", "vol-1", "111111111111", "us-west-2", taken)},
			2: {ebsBackup("bk-2", "vol-2", "111111111111", "us-west-2", taken)},
			3: {ebsBackup("bk-3", "vol-3", "111111111111", "us-west-2", taken)},
		},
	}

	got, err := NewEngine(cat, nil).Discover(context.Background(), ebsSet(), asset.TypeEBS)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d backups across pages, want 3", len(got))
	}
	if cat.listCalls != 3 {
		t.Errorf("catalog queried %d times, want 3", cat.listCalls)
	}
}

func TestDiscoverFiltersAccountRegionAndTags(t *testing.T) {
	taken := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	wrongTag := ebsBackup("bk-tag", "vol-t", "111111111111", "us-west-2", taken)
	wrongTag.EBS.Tags = []asset.Tag{{Key: "env", Value: "dev"}}

	cat := &fakeCatalog{
		totalPages: 1,
		pages: map[int][]asset.Discovered{
			1: {
				ebsBackup("bk-ok", "vol-1", "111111111111", "us-west-2", taken),
				ebsBackup("bk-acct", "vol-2", "999999999999", "us-west-2", taken),
				ebsBackup("bk-region", "vol-3", "111111111111", "eu-west-1", taken),
				wrongTag,
			},
		},
	}

	got, err := NewEngine(cat, nil).Discover(context.Background(), ebsSet(), asset.TypeEBS)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 1 || got[0].BackupID != "bk-ok" {
		t.Fatalf("got %v, want only bk-ok", got)
	}
}

func TestDiscoverNoMatch(t *testing.T) {
	cat := &fakeCatalog{totalPages: 1}
	_, err := NewEngine(cat, nil).Discover(context.Background(), ebsSet(), asset.TypeEBS)
	if err == nil {
		t.Fatal("Discover() = nil error, want no-match")
	}
	if !resterrors.IsNoMatch(err) {
		t.Errorf("IsNoMatch() = false for %v", err)
	}
}

func TestDiscoverWrapsListErrors(t *testing.T) {
	cat := &fakeCatalog{
		listErr: resterrors.NewProviderError("boom", nil),
	}
	_, err := NewEngine(cat, nil).Discover(context.Background(), ebsSet(), asset.TypeEBS)
	if err == nil {
		t.Fatal("Discover() = nil error, want discovery error")
	}
	if resterrors.GetCode(err) != resterrors.ErrCodeDiscoveryFailed {
		t.Errorf("error code = %s, want %s", resterrors.GetCode(err), resterrors.ErrCodeDiscoveryFailed)
	}
}

func TestDiscoverEnumeratesRegionsWhenOmitted(t *testing.T) {
	taken := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	cat := &fakeCatalog{
		totalPages: 1,
		pages: map[int][]asset.Discovered{
			1: {
				ebsBackup("bk-west", "vol-w", "111111111111", "us-west-2", taken),
				ebsBackup("bk-east", "vol-e", "111111111111", "us-east-1", taken),
			},
		},
		envs: []api.Environment{
			{ID: "env-1", Account: "111111111111", Region: "us-west-2"},
			{ID: "env-2", Account: "111111111111", Region: "us-east-1"},
		},
	}

	set := ebsSet()
	set.SourceRegions = nil
	got, err := NewEngine(cat, nil).Discover(context.Background(), set, asset.TypeEBS)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d backups, want matches from both connected regions", len(got))
	}
}

func TestDiscoverProtectionGroups(t *testing.T) {
	taken := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	pgItem := asset.Discovered{
		Type:       asset.TypeProtectionGroup,
		Account:    "111111111111",
		Region:     "us-west-2",
		ResourceID: "pg-1",
		BackupID:   "bk-pg",
		StartTime:  taken,
		ProtectionGroup: &asset.ProtectionGroupBackup{
			GroupID: "pg-1",
		},
	}
	cat := &fakeCatalog{
		totalPages:  1,
		pages:       map[int][]asset.Discovered{1: {pgItem}},
		groups:      map[string]string{"daily-docs": "pg-1"},
		groupAssets: map[string][]string{"pg-1": {"asset-1", "asset-2"}},
	}

	set := &plan.RestoreSet{
		Name:          "pg-set",
		SourceAccount: "111111111111",
		AssetFilters: map[string]plan.AssetFilter{
			"ProtectionGroup": {
				ProtectionGroups: []plan.ProtectionGroupFilter{{Name: "daily-docs"}},
			},
		},
		Targets: plan.TargetSpecs{
			TargetAccount:   "111111111111",
			ProtectionGroup: &plan.ProtectionGroupTarget{TargetBucket: "restore-bucket"},
		},
	}

	got, err := NewEngine(cat, nil).Discover(context.Background(), set, asset.TypeProtectionGroup)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d backups, want 1", len(got))
	}
	pg := got[0].ProtectionGroup
	if pg.GroupName != "daily-docs" {
		t.Errorf("GroupName = %q", pg.GroupName)
	}
	if len(pg.AssetIDs) != 2 {
		t.Errorf("AssetIDs = %v, want the group's asset ids", pg.AssetIDs)
	}
	if len(pg.BucketNames) != 2 {
		t.Errorf("BucketNames = %v, want the group's buckets", pg.BucketNames)
	}
}

func TestDiscoverScopesQueriesPerRegion(t *testing.T) {
	taken := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	cat := &fakeCatalog{
		totalPages: 1,
		pages: map[int][]asset.Discovered{
			1: {
				ebsBackup("bk-west", "vol-w", "111111111111", "us-west-2", taken),
				ebsBackup("bk-east", "vol-e", "111111111111", "us-east-1", taken),
			},
		},
	}

	set := ebsSet()
	set.SourceRegions = []string{"us-east-1", "us-west-2"}
	got, err := NewEngine(cat, nil).Discover(context.Background(), set, asset.TypeEBS)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d backups, want one per region", len(got))
	}
	// One traversal per region, each constrained to that account and region
	// instead of re-listing the whole catalog.
	if cat.listCalls != 2 {
		t.Fatalf("catalog queried %d times, want 2", cat.listCalls)
	}
	for i, region := range []string{"us-east-1", "us-west-2"} {
		q := cat.queries[i]
		if !strings.Contains(q.Filter, `"account_native_id": {"$eq": "111111111111"}`) {
			t.Errorf("query %d filter %q missing account constraint", i, q.Filter)
		}
		if !strings.Contains(q.Filter, `"aws_region": {"$eq": "`+region+`"}`) {
			t.Errorf("query %d filter %q not scoped to %s", i, q.Filter, region)
		}
	}
}

func TestWithScope(t *testing.T) {
	got := withScope("", "111111111111", "us-west-2")
	if !strings.Contains(got, `"account_native_id"`) || !strings.Contains(got, `"aws_region"`) {
		t.Errorf("withScope empty = %s", got)
	}
	got = withScope(`{"start_timestamp": {"$lte": "x"}}`, "111111111111", "us-west-2")
	if !strings.Contains(got, "start_timestamp") ||
		!strings.Contains(got, `"aws_region": {"$eq": "us-west-2"}`) {
		t.Errorf("withScope merged = %s", got)
	}
}

func TestWithGroupID(t *testing.T) {
	got := withGroupID("", "pg-1")
	if !strings.Contains(got, `"protection_group_id"`) {
		t.Errorf("withGroupID empty = %s", got)
	}
	got = withGroupID(`{"start_timestamp": {"$lte": "x"}}`, "pg-1")
	if !strings.Contains(got, "start_timestamp") || !strings.Contains(got, "protection_group_id") {
		t.Errorf("withGroupID merged = %s", got)
	}
}
