package output

import (
	"fmt"
	"io"
	"strings"
)

// MarkdownWriter writes reports as Markdown tables.
type MarkdownWriter struct{}

func withMarkdown(outputPath string, fn func(io.Writer)) error {
	out, file, err := openOutputWriter(outputPath)
	if err != nil {
		return err
	}
	if file != nil {
		defer file.Close()
	}
	fn(out)
	return nil
}

// WriteEvents outputs the event listing as Markdown.
func (w *MarkdownWriter) WriteEvents(report *EventReport, options OutputOptions) error {
	events := limitTop(report.Events, options.Top)
	return withMarkdown(options.OutputPath, func(out io.Writer) {
		fmt.Fprintln(out, "# Events")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "**Source:** %s\n\n", escapeMarkdown(report.Source))
		fmt.Fprintf(out, "**Total Events:** %d\n\n", len(report.Events))
		fmt.Fprintln(out, "| # | Event | Time | Author | Tags | Message |")
		fmt.Fprintln(out, "|---|-------|------|--------|------|---------|")
		for i, ev := range events {
			fmt.Fprintf(out, "| %d | `%s` | %s | %s | %s | %s |\n",
				i+1, shortHash(ev.NativeID), ev.Timestamp.Format(reportDateTimeLayout),
				escapeMarkdown(authorNames(ev)), escapeMarkdown(strings.Join(ev.Tags, ", ")),
				escapeMarkdown(truncateMessage(firstLine(ev.Message()), 60)))
		}
	})
}

// WriteActions outputs the action listing as Markdown.
func (w *MarkdownWriter) WriteActions(report *ActionReport, options OutputOptions) error {
	actions := limitTop(report.Actions, options.Top)
	return withMarkdown(options.OutputPath, func(out io.Writer) {
		fmt.Fprintln(out, "# Actions")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "**Source:** %s\n\n", escapeMarkdown(report.Source))
		fmt.Fprintf(out, "**Total Actions:** %d\n\n", len(report.Actions))
		fmt.Fprintln(out, "| # | Event | Parent | Kind | Path |")
		fmt.Fprintln(out, "|---|-------|--------|------|------|")
		for i, a := range actions {
			parent := "-"
			if p := parentOf(a); p != "" {
				parent = "`" + shortHash(p) + "`"
			}
			fmt.Fprintf(out, "| %d | `%s` | %s | %s | `%s` |\n",
				i+1, shortHash(a.Event.NativeID), parent, a.Kind, a.Item.NativeID)
		}
	})
}

// WriteHotspots outputs the hotspot ranking as Markdown.
func (w *MarkdownWriter) WriteHotspots(report *HotspotReport, options OutputOptions) error {
	scores := limitTop(report.Scores, options.Top)
	return withMarkdown(options.OutputPath, func(out io.Writer) {
		fmt.Fprintln(out, "# Hotspot Analysis Results")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "**Source:** %s\n\n", escapeMarkdown(report.Source))
		if !report.Until.IsZero() {
			fmt.Fprintf(out, "**Period:** %s to %s\n\n", report.Since.Format(reportDateLayout), report.Until.Format(reportDateLayout))
		}
		fmt.Fprintf(out, "**Events:** %d, **Bugfixes:** %d\n\n", report.Events, report.Fixes)
		fmt.Fprintln(out, "## Top Hotspots")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "| # | Path | Score | Fixes | Changes | Authors | Burst |")
		fmt.Fprintln(out, "|---|------|-------|-------|---------|---------|-------|")
		for i, s := range scores {
			fmt.Fprintf(out, "| %d | `%s` | %.4f | %d | %d | %d | %.2f |\n",
				i+1, s.Path, s.Score, s.Fixes, s.Changes, s.Authors, s.Burst)
		}
	})
}

// WriteCoupling outputs the coupling analysis as Markdown.
func (w *MarkdownWriter) WriteCoupling(report *CouplingReport, options OutputOptions) error {
	res := report.Result
	pairs := limitTop(res.Pairs, options.Top)
	return withMarkdown(options.OutputPath, func(out io.Writer) {
		fmt.Fprintln(out, "# Change Coupling Analysis Results")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "**Source:** %s\n\n", escapeMarkdown(report.Source))
		fmt.Fprintf(out, "**Total Events:** %d, **Total Items:** %d, **Total Pairs:** %d\n\n",
			res.Events, res.Items, res.TotalPairs)
		if len(pairs) == 0 {
			fmt.Fprintln(out, "No significant couplings found.")
			return
		}
		fmt.Fprintln(out, "## Coupled Item Pairs")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "| # | Item A | Item B | Co-Changes | Jaccard | Lift |")
		fmt.Fprintln(out, "|---|--------|--------|------------|---------|------|")
		for i, p := range pairs {
			fmt.Fprintf(out, "| %d | `%s` | `%s` | %d | %.3f | %.2f |\n",
				i+1, p.A.NativeID, p.B.NativeID, p.CoChanges, p.Jaccard, p.Lift)
		}
	})
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"|", "\\|",
		"*", "\\*",
		"_", "\\_",
		"`", "\\`",
	)
	return replacer.Replace(s)
}
