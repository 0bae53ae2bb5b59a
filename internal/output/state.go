package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/waypointhq/waypoint/internal/core"
)

// RateLimits renders stored rate limit records.
func RateLimits(format Format, entries []core.RateLimitEntry) (string, error) {
	sheet := Sheet{
		Title:  "Rate Limits",
		Header: table.Row{"Caller", "Endpoint", "Burst", "Burst Start", "Window", "Window Start"},
		Empty:  "(no stored rate limit state)",
	}
	for _, e := range entries {
		sheet.Rows = append(sheet.Rows, table.Row{
			e.CallerID,
			e.Endpoint,
			e.Record.BurstCount,
			timestamp(e.Record.BurstStart),
			e.Record.WindowCount,
			timestamp(e.Record.WindowStart),
		})
	}
	if len(entries) > 0 {
		sheet.Footer = table.Row{"", "", "", "", "", fmt.Sprintf("%d record(s)", len(entries))}
	}
	if entries == nil {
		entries = []core.RateLimitEntry{}
	}
	return Render(format, sheet, entries)
}

// ResetResult summarizes a rate limit reset or cache purge.
type ResetResult struct {
	Matched int   `json:"matched"`
	Deleted int64 `json:"deleted"`
	DryRun  bool  `json:"dry_run"`
}

// Reset renders a ResetResult. noun names what was deleted.
func Reset(format Format, noun string, result ResetResult) (string, error) {
	if format == FormatJSON {
		return Render(format, Sheet{}, result)
	}
	if result.DryRun {
		return fmt.Sprintf("Would delete %d %s", result.Matched, noun), nil
	}
	return fmt.Sprintf("Deleted %d/%d %s", result.Deleted, result.Matched, noun), nil
}

// CacheStats renders per-namespace cache statistics.
func CacheStats(format Format, stats []core.CacheStats) (string, error) {
	sheet := Sheet{
		Title:  "Response Cache",
		Header: table.Row{"Namespace", "Entries", "Oldest", "Newest"},
		Empty:  "(response cache is empty)",
	}
	total := 0
	for _, s := range stats {
		total += s.Entries
		sheet.Rows = append(sheet.Rows, table.Row{s.Namespace, s.Entries, optionalTime(s.Oldest), optionalTime(s.Newest)})
	}
	if len(stats) > 0 {
		sheet.Footer = table.Row{"Total", total, "", ""}
	}
	if stats == nil {
		stats = []core.CacheStats{}
	}
	return Render(format, sheet, stats)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func optionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return timestamp(*t)
}
