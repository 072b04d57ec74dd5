package output

import (
	"encoding/csv"
	"fmt"
	"strings"
	"time"
)

// CSVWriter writes reports as CSV with a header row.
type CSVWriter struct{}

// WriteEvents outputs the event listing as CSV.
func (w *CSVWriter) WriteEvents(report *EventReport, options OutputOptions) error {
	events := limitTop(report.Events, options.Top)
	rows := [][]string{{"Event", "Timestamp", "Authors", "Parents", "Tags", "Message"}}
	for _, ev := range events {
		rows = append(rows, []string{
			ev.NativeID,
			ev.Timestamp.Format(time.RFC3339),
			authorNames(ev),
			strings.Join(parentIDs(ev), " "),
			strings.Join(ev.Tags, " "),
			firstLine(ev.Message()),
		})
	}
	return writeCSV(options.OutputPath, rows)
}

// WriteActions outputs the action listing as CSV.
func (w *CSVWriter) WriteActions(report *ActionReport, options OutputOptions) error {
	actions := limitTop(report.Actions, options.Top)
	rows := [][]string{{"Event", "Parent", "Kind", "Path"}}
	for _, a := range actions {
		rows = append(rows, []string{a.Event.NativeID, parentOf(a), a.Kind.String(), a.Item.NativeID})
	}
	return writeCSV(options.OutputPath, rows)
}

// WriteHotspots outputs the hotspot ranking as CSV.
func (w *CSVWriter) WriteHotspots(report *HotspotReport, options OutputOptions) error {
	scores := limitTop(report.Scores, options.Top)
	rows := [][]string{{"Path", "Score", "Fixes", "Changes", "Authors", "Burst", "LastChange"}}
	for _, s := range scores {
		rows = append(rows, []string{
			s.Path,
			fmt.Sprintf("%.6f", s.Score),
			fmt.Sprintf("%d", s.Fixes),
			fmt.Sprintf("%d", s.Changes),
			fmt.Sprintf("%d", s.Authors),
			fmt.Sprintf("%.6f", s.Burst),
			s.LastChange.Format(reportDateTimeLayout),
		})
	}
	return writeCSV(options.OutputPath, rows)
}

// WriteCoupling outputs the coupling analysis as CSV.
func (w *CSVWriter) WriteCoupling(report *CouplingReport, options OutputOptions) error {
	pairs := limitTop(report.Result.Pairs, options.Top)
	rows := [][]string{{"ItemA", "ItemB", "CoChanges", "ChangesA", "ChangesB", "Jaccard", "Lift"}}
	for _, p := range pairs {
		rows = append(rows, []string{
			p.A.NativeID,
			p.B.NativeID,
			fmt.Sprintf("%d", p.CoChanges),
			fmt.Sprintf("%d", p.ChangesA),
			fmt.Sprintf("%d", p.ChangesB),
			fmt.Sprintf("%.6f", p.Jaccard),
			fmt.Sprintf("%.6f", p.Lift),
		})
	}
	return writeCSV(options.OutputPath, rows)
}

func writeCSV(outputPath string, rows [][]string) error {
	out, file, err := openOutputWriter(outputPath)
	if err != nil {
		return err
	}
	if file != nil {
		defer file.Close()
	}
	writer := csv.NewWriter(out)
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return writer.Error()
}
