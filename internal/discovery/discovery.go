// Package discovery executes discovery queries against the backup catalog,
// paginating, filtering, and deduplicating the matched backups.
package discovery

import (
	"context"
	"sort"
	"time"

	"github.com/clumio-code/bulk-restore/internal/api"
	"github.com/clumio-code/bulk-restore/internal/asset"
	resterrors "github.com/clumio-code/bulk-restore/internal/errors"
	"github.com/clumio-code/bulk-restore/internal/filter"
	"github.com/clumio-code/bulk-restore/internal/logger"
	"github.com/clumio-code/bulk-restore/internal/plan"
)

// Catalog is the slice of the provider the discovery engine needs
type Catalog interface {
	ListBackups(ctx context.Context, q api.Query, page int) (api.BackupPage, error)
	ListEnvironments(ctx context.Context, account, region string) ([]api.Environment, error)
	FindProtectionGroup(ctx context.Context, name string) (id string, bucketNames []string, err error)
	ListProtectionGroupAssets(ctx context.Context, groupID string, bucketNames []string) ([]string, error)
}

// Engine discovers backups for restore sets
type Engine struct {
	catalog Catalog
	log     logger.Logger
	now     func() time.Time
}

// NewEngine creates a discovery engine
func NewEngine(catalog Catalog, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Engine{
		catalog: catalog,
		log:     log,
		now:     time.Now,
	}
}

// SetClock overrides the engine clock (useful for testing time windows)
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Discover resolves the matching backups for one asset type of a restore
// set: one discovery query per source region, paginated, deduplicated by
// source resource keeping the most recent backup point.
//
// Zero matches return a NoMatchError; the caller records it without failing
// sibling asset types.
func (e *Engine) Discover(ctx context.Context, set *plan.RestoreSet, at asset.Type) ([]asset.Discovered, error) {
	af, ok := set.AssetFilters[string(at)]
	if !ok {
		return nil, resterrors.NewInternalError(resterrors.ErrCodeLogicError,
			"discovery requested for an unfiltered asset type")
	}

	var (
		matched []asset.Discovered
		err     error
	)
	if at == asset.TypeProtectionGroup {
		matched, err = e.discoverProtectionGroups(ctx, set, af)
	} else {
		matched, err = e.discoverTagged(ctx, set, at, af)
	}
	if err != nil {
		return nil, err
	}

	matched = dedupe(matched)
	if len(matched) == 0 {
		return nil, resterrors.NewNoMatchError(string(at))
	}

	e.log.Info("discovery finished",
		"set", set.Name, "asset_type", string(at), "matched", len(matched))
	return matched, nil
}

// discoverTagged handles the tag-filtered asset types (EBS, EC2, RDS,
// DynamoDB): one query traversal per source region, each scoped to that
// account and region in the filter expression, with tag narrowing applied
// record-side.
func (e *Engine) discoverTagged(ctx context.Context, set *plan.RestoreSet, at asset.Type, af plan.AssetFilter) ([]asset.Discovered, error) {
	q, err := filter.Build(set, at, e.now())
	if err != nil {
		return nil, err
	}

	regions, err := e.sourceRegions(ctx, set)
	if err != nil {
		return nil, err
	}

	var matched []asset.Discovered
	for _, region := range regions {
		rq := q
		rq.Filter = withScope(q.Filter, set.SourceAccount, region)
		items, err := e.listAll(ctx, rq)
		if err != nil {
			return nil, err
		}
		before := len(matched)
		for _, d := range items {
			if d.Account != set.SourceAccount || d.Region != region {
				continue
			}
			if !filter.MatchTags(d.Tags(), af.Tags) {
				continue
			}
			matched = append(matched, d)
		}
		e.log.Debug("discovery query done",
			"set", set.Name, "asset_type", string(at), "region", region,
			"matched", len(matched)-before)
	}
	return matched, nil
}

// discoverProtectionGroups handles the named-group filter style: resolve
// each named group, collect its S3 asset ids, then list its backups.
func (e *Engine) discoverProtectionGroups(ctx context.Context, set *plan.RestoreSet, af plan.AssetFilter) ([]asset.Discovered, error) {
	var matched []asset.Discovered
	for _, pgf := range af.ProtectionGroups {
		groupID, groupBuckets, err := e.catalog.FindProtectionGroup(ctx, pgf.Name)
		if err != nil {
			return nil, resterrors.NewDiscoveryError("protection group lookup failed", err)
		}
		if groupID == "" {
			e.log.Warn("protection group not found", "set", set.Name, "name", pgf.Name)
			continue
		}

		assetIDs, err := e.catalog.ListProtectionGroupAssets(ctx, groupID, pgf.BucketNames)
		if err != nil {
			return nil, resterrors.NewDiscoveryError("protection group asset listing failed", err)
		}
		if len(assetIDs) == 0 {
			e.log.Warn("protection group has no matching buckets",
				"set", set.Name, "name", pgf.Name)
			continue
		}

		q, err := filter.Build(set, asset.TypeProtectionGroup, e.now())
		if err != nil {
			return nil, err
		}
		q.Filter = withGroupID(q.Filter, groupID)

		items, err := e.listAll(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, d := range items {
			if d.ProtectionGroup == nil {
				continue
			}
			d.ProtectionGroup.GroupName = pgf.Name
			d.ProtectionGroup.AssetIDs = assetIDs
			buckets := pgf.BucketNames
			if len(buckets) == 0 {
				buckets = groupBuckets
			}
			d.ProtectionGroup.BucketNames = buckets
			matched = append(matched, d)
		}
	}
	return matched, nil
}

// listAll traverses every page of one query. The traversal always restarts
// from page 1; no cursor state survives between calls.
func (e *Engine) listAll(ctx context.Context, q api.Query) ([]asset.Discovered, error) {
	var items []asset.Discovered
	for page := 1; ; page++ {
		result, err := e.catalog.ListBackups(ctx, q, page)
		if err != nil {
			if resterrors.IsTransient(err) {
				return nil, err
			}
			return nil, resterrors.NewDiscoveryError("backup listing failed", err)
		}
		items = append(items, result.Items...)
		if page >= result.TotalPages || len(result.Items) == 0 {
			break
		}
	}
	return items, nil
}

// sourceRegions resolves the regions to discover in: the declared list, or
// every region the account is connected in
func (e *Engine) sourceRegions(ctx context.Context, set *plan.RestoreSet) ([]string, error) {
	if len(set.SourceRegions) > 0 {
		return set.SourceRegions, nil
	}
	envs, err := e.catalog.ListEnvironments(ctx, set.SourceAccount, "")
	if err != nil {
		return nil, resterrors.NewDiscoveryError("region listing failed", err)
	}
	if len(envs) == 0 {
		return nil, &resterrors.RestoreError{
			Code:     resterrors.ErrCodeNoEnvironment,
			Category: resterrors.CategoryDiscovery,
			Message:  "account " + set.SourceAccount + " has no connected regions",
		}
	}
	regions := make([]string, 0, len(envs))
	for _, env := range envs {
		regions = append(regions, env.Region)
	}
	sort.Strings(regions)
	return regions, nil
}

// dedupe keeps the most recent backup point per source resource. Bulk
// restore intends "restore the latest eligible backup per resource", not
// every historical point.
func dedupe(items []asset.Discovered) []asset.Discovered {
	latest := make(map[string]asset.Discovered, len(items))
	for _, d := range items {
		key := d.Key()
		if prev, ok := latest[key]; !ok || d.StartTime.After(prev.StartTime) {
			latest[key] = d
		}
	}
	out := make([]asset.Discovered, 0, len(latest))
	for _, d := range latest {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out
}

// withGroupID adds the protection-group constraint to a filter expression
func withGroupID(filterJSON, groupID string) string {
	if filterJSON == "" {
		return `{"protection_group_id": {"$eq": "` + groupID + `"}}`
	}
	// Splice into the existing top-level object.
	return filterJSON[:len(filterJSON)-1] + `, "protection_group_id": {"$eq": "` + groupID + `"}}`
}

// withScope adds the account and region constraints to a filter expression
// so each per-region traversal lists only that region's backups instead of
// the whole catalog
func withScope(filterJSON, account, region string) string {
	scope := `"account_native_id": {"$eq": "` + account + `"}, "aws_region": {"$eq": "` + region + `"}`
	if filterJSON == "" {
		return "{" + scope + "}"
	}
	return filterJSON[:len(filterJSON)-1] + `, ` + scope + `}`
}
