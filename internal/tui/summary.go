package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/clumio-code/bulk-restore/internal/report"
)

// RenderSummary renders the final invocation report for the terminal
func RenderSummary(r *report.Report) string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Bulk Restore Summary"))
	b.WriteString("\n\n")

	b.WriteString(LabelStyle.Render("Run token: "))
	b.WriteString(r.RunToken)
	b.WriteString("\n")
	b.WriteString(LabelStyle.Render("Duration:  "))
	b.WriteString(r.Duration.Round(time.Second).String())
	b.WriteString("\n")
	b.WriteString(LabelStyle.Render("Finished:  "))
	b.WriteString(humanize.Time(r.GeneratedAt))
	b.WriteString("\n\n")

	for _, s := range r.Sets {
		b.WriteString(HeaderStyle.Render(s.Name))
		b.WriteString(" ")
		b.WriteString(renderSetStatus(s))
		b.WriteString("\n")
		if s.Skipped {
			b.WriteString(DimStyle.Render("  skipped: " + s.SkipReason))
			b.WriteString("\n")
			continue
		}
		for _, t := range s.NoMatches {
			b.WriteString(DimStyle.Render("  " + t + ": no matching backups"))
			b.WriteString("\n")
		}
		for _, f := range s.Failures {
			b.WriteString(ErrorStyle.Render("  [FAIL]"))
			b.WriteString(fmt.Sprintf("  %-16s discovery failed", f.AssetType))
			b.WriteString(dimReason(f.Error))
			b.WriteString("\n")
		}
		for _, o := range s.Outcomes {
			b.WriteString(renderOutcome(o))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	totals := fmt.Sprintf("%s restores: %s succeeded, %s failed, %s partial",
		humanize.Comma(int64(r.Total)),
		humanize.Comma(int64(r.Succeeded)),
		humanize.Comma(int64(r.Failed)),
		humanize.Comma(int64(r.Partial)))
	if r.AllSucceeded() {
		b.WriteString(SuccessStyle.Render("[OK] " + totals))
	} else if r.Failed > 0 {
		b.WriteString(ErrorStyle.Render("[FAIL] " + totals))
	} else {
		b.WriteString(WarningStyle.Render("[!] " + totals))
	}
	b.WriteString("\n")

	return b.String()
}

func renderSetStatus(s report.SetReport) string {
	switch s.Status {
	case report.SetSucceeded:
		return SuccessStyle.Render("[OK]")
	case report.SetFailed:
		return ErrorStyle.Render("[FAIL]")
	case report.SetPartial:
		return WarningStyle.Render("[!]")
	case report.SetNoMatch:
		return DimStyle.Render("[no match]")
	default:
		return DimStyle.Render("[skipped]")
	}
}

func renderOutcome(o report.Outcome) string {
	line := fmt.Sprintf("  %-16s %-24s %s", o.AssetType, o.SourceID, o.State)
	switch o.State {
	case "succeeded":
		return SuccessStyle.Render("  [OK]") + line
	case "partial_success":
		return WarningStyle.Render("  [!]") + line + dimReason(o.Reason)
	default:
		return ErrorStyle.Render("  [FAIL]") + line + dimReason(o.Reason)
	}
}

func dimReason(reason string) string {
	if reason == "" {
		return ""
	}
	return " " + DimStyle.Render(reason)
}
