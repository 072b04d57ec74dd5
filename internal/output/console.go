package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/masmgr/harmony-go/internal/model"
)

// ConsoleWriter writes human-readable, colored tables.
type ConsoleWriter struct{}

var title = color.New(color.FgGreen, color.Bold)

func withConsole(outputPath string, fn func(io.Writer, *tabwriter.Writer)) error {
	out, file, err := openOutputWriter(outputPath)
	if err != nil {
		return err
	}
	if file != nil {
		defer file.Close()
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fn(out, tw)
	return tw.Flush()
}

// WriteEvents outputs the event listing to the console.
func (w *ConsoleWriter) WriteEvents(report *EventReport, options OutputOptions) error {
	events := limitTop(report.Events, options.Top)
	return withConsole(options.OutputPath, func(out io.Writer, tw *tabwriter.Writer) {
		title.Fprintln(out, "Events")
		fmt.Fprintf(out, "Source: %s\n", report.Source)
		fmt.Fprintf(out, "Total events: %d\n\n", len(report.Events))

		fmt.Fprintln(tw, "#\tEvent\tTime\tAuthor\tParents\tTags\tMessage")
		for i, ev := range events {
			parents := make([]string, len(ev.Parents))
			for j, p := range ev.Parents {
				parents[j] = shortHash(p.NativeID)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				i+1,
				color.CyanString(shortHash(ev.NativeID)),
				ev.Timestamp.Format(reportDateTimeLayout),
				authorNames(ev),
				strings.Join(parents, " "),
				strings.Join(ev.Tags, ","),
				truncateMessage(firstLine(ev.Message()), 50),
			)
		}
	})
}

// WriteActions outputs the action listing to the console.
func (w *ConsoleWriter) WriteActions(report *ActionReport, options OutputOptions) error {
	actions := limitTop(report.Actions, options.Top)
	return withConsole(options.OutputPath, func(out io.Writer, tw *tabwriter.Writer) {
		title.Fprintln(out, "Actions")
		fmt.Fprintf(out, "Source: %s\n", report.Source)
		fmt.Fprintf(out, "Total actions: %d\n\n", len(report.Actions))

		fmt.Fprintln(tw, "#\tEvent\tParent\tKind\tPath")
		for i, a := range actions {
			parent := shortHash(parentOf(a))
			if parent == "" {
				parent = "-"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
				i+1,
				shortHash(a.Event.NativeID),
				parent,
				kindColor(a.Kind)("%s", a.Kind),
				a.Item.NativeID,
			)
		}
	})
}

// WriteHotspots outputs the hotspot ranking to the console.
func (w *ConsoleWriter) WriteHotspots(report *HotspotReport, options OutputOptions) error {
	scores := limitTop(report.Scores, options.Top)
	return withConsole(options.OutputPath, func(out io.Writer, tw *tabwriter.Writer) {
		title.Fprintln(out, "Hotspot Analysis Results")
		fmt.Fprintf(out, "Source: %s\n", report.Source)
		if !report.Until.IsZero() {
			fmt.Fprintf(out, "Period: %s to %s\n", report.Since.Format(reportDateLayout), report.Until.Format(reportDateLayout))
		}
		fmt.Fprintf(out, "Events: %d, bugfixes: %d\n\n", report.Events, report.Fixes)

		if len(scores) == 0 {
			fmt.Fprintln(out, "No hotspots found.")
			return
		}
		fmt.Fprintln(tw, "#\tPath\tScore\tFixes\tChanges\tAuthors\tBurst\tLast Change")
		for i, s := range scores {
			score := fmt.Sprintf("%.4f", s.Score)
			if s.Fixes > 0 {
				score = color.RedString(score)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%.2f\t%s\n",
				i+1, s.Path, score, s.Fixes, s.Changes, s.Authors, s.Burst,
				s.LastChange.Format(reportDateLayout))
		}
	})
}

// WriteCoupling outputs the coupling analysis to the console.
func (w *ConsoleWriter) WriteCoupling(report *CouplingReport, options OutputOptions) error {
	res := report.Result
	pairs := limitTop(res.Pairs, options.Top)
	return withConsole(options.OutputPath, func(out io.Writer, tw *tabwriter.Writer) {
		title.Fprintln(out, "Change Coupling Analysis Results")
		fmt.Fprintf(out, "Source: %s\n", report.Source)
		fmt.Fprintf(out, "Total events: %d, Total items: %d, Total pairs: %d\n\n",
			res.Events, res.Items, res.TotalPairs)

		if len(pairs) == 0 {
			fmt.Fprintln(out, "No significant couplings found.")
			return
		}
		fmt.Fprintln(tw, "#\tItem A\tItem B\tCo-Changes\tJaccard\tLift")
		for i, p := range pairs {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.3f\t%.2f\n",
				i+1, p.A.NativeID, p.B.NativeID, p.CoChanges, p.Jaccard, p.Lift)
		}
	})
}

func kindColor(k model.ActionKind) func(string, ...interface{}) string {
	switch k {
	case model.ActionCreate:
		return color.GreenString
	case model.ActionDelete:
		return color.RedString
	default:
		return color.YellowString
	}
}
