// Package filter turns a restore set's declarative filters into concrete
// discovery queries against the backup catalog.
package filter

import (
	"encoding/json"
	"time"

	"github.com/clumio-code/bulk-restore/internal/api"
	"github.com/clumio-code/bulk-restore/internal/asset"
	resterrors "github.com/clumio-code/bulk-restore/internal/errors"
	"github.com/clumio-code/bulk-restore/internal/plan"
)

const (
	startTimestampField = "start_timestamp"

	// ISO-8601, the grammar the catalog expects in comparison values
	timestampLayout = "2006-01-02T15:04:05Z"
)

// Build produces the discovery query for one asset type of a restore set.
// The returned query carries the time window and meta-status expression; tag
// matching happens record-side (see MatchTags) because the catalog does not
// index source tags.
func Build(set *plan.RestoreSet, at asset.Type, now time.Time) (api.Query, error) {
	expr := map[string]any{}

	sortOrder, err := applyWindow(expr, set.Window, now)
	if err != nil {
		return api.Query{}, err
	}

	applyMetaStatus(expr, set.MetaStatus)

	var filterJSON string
	if len(expr) > 0 {
		raw, err := json.Marshal(expr)
		if err != nil {
			return api.Query{}, err
		}
		filterJSON = string(raw)
	}

	return api.Query{
		Type:   at,
		Filter: filterJSON,
		Sort:   sortOrder,
	}, nil
}

// applyWindow adds the relative time window to the expression and returns
// the sort order. No window means "most recent first, any time".
//
// Direction "before" spans from (now - end offset) back across the maximum
// window; "after" spans forward from the midnight (now - start offset) days
// ago up to (now - end offset).
func applyWindow(expr map[string]any, w *plan.SearchWindow, now time.Time) (string, error) {
	descending := "-" + startTimestampField

	if w == nil || w.Direction == "" {
		if w != nil && (w.StartDayOffset != 0 || w.EndDayOffset != 0) {
			return "", resterrors.NewInvalidFilterError(
				"search day offsets require a search_direction")
		}
		return descending, nil
	}

	switch w.Direction {
	case "before":
		if w.EndDayOffset < 0 || w.MaxWindowDays < 0 {
			return "", resterrors.NewInvalidFilterError(
				"search_direction before requires non-negative day offsets")
		}
		end := now.AddDate(0, 0, -w.EndDayOffset)
		window := map[string]any{"$lte": end.UTC().Format(timestampLayout)}
		if w.MaxWindowDays > 0 {
			floor := end.AddDate(0, 0, -w.MaxWindowDays)
			window["$gt"] = floor.UTC().Format(timestampLayout)
		}
		expr[startTimestampField] = window
		return descending, nil

	case "after":
		if w.StartDayOffset <= 0 {
			return "", resterrors.NewInvalidFilterError(
				"search_direction after requires a positive start_search_day_offset")
		}
		if w.EndDayOffset < 0 || w.EndDayOffset > w.StartDayOffset {
			return "", resterrors.NewInvalidFilterError(
				"end_search_day_offset must lie between now and the start offset")
		}
		start := midnightDaysAgo(now, w.StartDayOffset)
		end := now.AddDate(0, 0, -w.EndDayOffset)
		expr[startTimestampField] = map[string]any{
			"$gt":  start.UTC().Format(timestampLayout),
			"$lte": end.UTC().Format(timestampLayout),
		}
		return startTimestampField, nil

	default:
		return "", resterrors.NewInvalidFilterError(
			"search_direction must be \"before\" or \"after\"")
	}
}

// applyMetaStatus adds the meta-status expression: values within one field
// are OR'd ($in), fields are AND'd (separate keys)
func applyMetaStatus(expr map[string]any, m plan.MetaStatusFilter) {
	if len(m.ProtectionStatusIn) > 0 {
		expr["protection_status"] = map[string]any{"$in": m.ProtectionStatusIn}
	}
	if len(m.BackupStatusIn) > 0 {
		expr["backup_status"] = map[string]any{"$in": m.BackupStatusIn}
	}
	if len(m.DeletedStatusIn) > 0 {
		expr["deletion_status"] = map[string]any{"$in": m.DeletedStatusIn}
	}
}

// midnightDaysAgo returns midnight UTC n days before now
func midnightDaysAgo(now time.Time, n int) time.Time {
	day := now.UTC().AddDate(0, 0, -n)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

// MatchTags reports whether the recorded tags satisfy the tag filter: every
// requested key must be present with the requested value (AND semantics)
func MatchTags(tags []asset.Tag, want map[string]string) bool {
	if len(want) == 0 {
		return true
	}
	have := asset.TagMap(tags)
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}
