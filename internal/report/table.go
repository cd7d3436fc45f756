package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/vanilla/proftimers/pkg/timers"
)

// RenderSummary writes one row per timer of a summary.
func RenderSummary(w io.Writer, s timers.Summary) error {
	names := make([]string, 0, len(s.Timers))
	for name := range s.Timers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})

	table := tablewriter.NewWriter(w)
	table.Header("Timer", "Total", "Count", "Max", "Time (ms)")
	for _, name := range names {
		t := s.Timers[name]
		if err := table.Append(
			name,
			t.Human,
			fmt.Sprintf("%d", t.Count),
			timers.FormatDuration(t.Max),
			fmt.Sprintf("%.3f", t.Time),
		); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nevent=%s elapsed=%s peak_memory=%s\n", s.Event, elapsedString(s.RequestElapsedMs), formatBytes(s.PeakMemory))
	return nil
}

// RenderSummaries writes one row per stored summary.
func RenderSummaries(w io.Writer, summaries []*timers.Summary) error {
	table := tablewriter.NewWriter(w)
	table.Header("Request", "Event", "Logged", "Elapsed", "Peak Memory", "Timers")
	for _, s := range summaries {
		if err := table.Append(
			s.RequestID,
			s.Event,
			s.LoggedAt.Format("2006-01-02 15:04:05"),
			elapsedString(s.RequestElapsedMs),
			formatBytes(s.PeakMemory),
			fmt.Sprintf("%d", len(s.Timers)),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

func elapsedString(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return timers.FormatDuration(float64(*ms))
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
