package output

import (
	"encoding/json"
	"time"
)

// JSONWriter writes reports as indented JSON documents.
type JSONWriter struct{}

// JSONEventReport is the JSON output structure for an event listing.
type JSONEventReport struct {
	Source      string      `json:"source"`
	GeneratedAt string      `json:"generatedAt"`
	TotalEvents int         `json:"totalEvents"`
	Events      []JSONEvent `json:"events"`
}

// JSONEvent is one Event in JSON output.
type JSONEvent struct {
	ID        string            `json:"id"`
	Timestamp string            `json:"timestamp"`
	Authors   []JSONAuthor      `json:"authors"`
	Parents   []string          `json:"parents"`
	Tags      []string          `json:"tags,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// JSONAuthor is one Author in JSON output.
type JSONAuthor struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// JSONActionReport is the JSON output structure for an action listing.
type JSONActionReport struct {
	Source       string       `json:"source"`
	GeneratedAt  string       `json:"generatedAt"`
	TotalActions int          `json:"totalActions"`
	Actions      []JSONAction `json:"actions"`
}

// JSONAction is one Action in JSON output. Parent is omitted for diffs
// against the empty tree.
type JSONAction struct {
	Event  string `json:"event"`
	Parent string `json:"parent,omitempty"`
	Kind   string `json:"kind"`
	Path   string `json:"path"`
}

// JSONHotspotReport is the JSON output structure for a hotspot analysis.
type JSONHotspotReport struct {
	Source      string        `json:"source"`
	Since       string        `json:"since,omitempty"`
	Until       string        `json:"until,omitempty"`
	GeneratedAt string        `json:"generatedAt"`
	Events      int           `json:"events"`
	Fixes       int           `json:"fixes"`
	Items       []JSONHotspot `json:"items"`
}

// JSONHotspot is one ranked Item in JSON output.
type JSONHotspot struct {
	Path       string  `json:"path"`
	Score      float64 `json:"score"`
	Fixes      int     `json:"fixes"`
	Changes    int     `json:"changes"`
	Authors    int     `json:"authors"`
	Burst      float64 `json:"burst"`
	LastChange string  `json:"lastChange"`
}

// JSONCouplingReport is the JSON output structure for coupling analysis.
type JSONCouplingReport struct {
	Source      string         `json:"source"`
	GeneratedAt string         `json:"generatedAt"`
	TotalEvents int            `json:"totalEvents"`
	TotalItems  int            `json:"totalItems"`
	TotalPairs  int            `json:"totalPairs"`
	Pairs       []JSONCoupling `json:"pairs"`
}

// JSONCoupling is one coupled pair in JSON output.
type JSONCoupling struct {
	ItemA     string  `json:"itemA"`
	ItemB     string  `json:"itemB"`
	CoChanges int     `json:"coChanges"`
	ChangesA  int     `json:"changesA"`
	ChangesB  int     `json:"changesB"`
	Jaccard   float64 `json:"jaccard"`
	Lift      float64 `json:"lift"`
}

// WriteEvents outputs the event listing as JSON.
func (w *JSONWriter) WriteEvents(report *EventReport, options OutputOptions) error {
	events := limitTop(report.Events, options.Top)
	out := JSONEventReport{
		Source:      report.Source,
		GeneratedAt: report.GeneratedAt.Format(time.RFC3339),
		TotalEvents: len(report.Events),
		Events:      make([]JSONEvent, len(events)),
	}
	for i, ev := range events {
		authors := make([]JSONAuthor, len(ev.Authors))
		for j, a := range ev.Authors {
			authors[j] = JSONAuthor{Name: a.Name, Email: a.Email}
		}
		out.Events[i] = JSONEvent{
			ID:        ev.NativeID,
			Timestamp: ev.Timestamp.Format(time.RFC3339),
			Authors:   authors,
			Parents:   parentIDs(ev),
			Tags:      ev.Tags,
			Metadata:  ev.Metadata,
		}
	}
	return writeJSON(options.OutputPath, out)
}

// WriteActions outputs the action listing as JSON.
func (w *JSONWriter) WriteActions(report *ActionReport, options OutputOptions) error {
	actions := limitTop(report.Actions, options.Top)
	out := JSONActionReport{
		Source:       report.Source,
		GeneratedAt:  report.GeneratedAt.Format(time.RFC3339),
		TotalActions: len(report.Actions),
		Actions:      make([]JSONAction, len(actions)),
	}
	for i, a := range actions {
		out.Actions[i] = JSONAction{
			Event:  a.Event.NativeID,
			Parent: parentOf(a),
			Kind:   a.Kind.String(),
			Path:   a.Item.NativeID,
		}
	}
	return writeJSON(options.OutputPath, out)
}

// WriteHotspots outputs the hotspot ranking as JSON.
func (w *JSONWriter) WriteHotspots(report *HotspotReport, options OutputOptions) error {
	scores := limitTop(report.Scores, options.Top)
	out := JSONHotspotReport{
		Source:      report.Source,
		GeneratedAt: report.GeneratedAt.Format(time.RFC3339),
		Events:      report.Events,
		Fixes:       report.Fixes,
		Items:       make([]JSONHotspot, len(scores)),
	}
	if !report.Until.IsZero() {
		out.Since = report.Since.Format(reportDateLayout)
		out.Until = report.Until.Format(reportDateLayout)
	}
	for i, s := range scores {
		out.Items[i] = JSONHotspot{
			Path:       s.Path,
			Score:      s.Score,
			Fixes:      s.Fixes,
			Changes:    s.Changes,
			Authors:    s.Authors,
			Burst:      s.Burst,
			LastChange: s.LastChange.Format(time.RFC3339),
		}
	}
	return writeJSON(options.OutputPath, out)
}

// WriteCoupling outputs the coupling analysis as JSON.
func (w *JSONWriter) WriteCoupling(report *CouplingReport, options OutputOptions) error {
	res := report.Result
	pairs := limitTop(res.Pairs, options.Top)
	out := JSONCouplingReport{
		Source:      report.Source,
		GeneratedAt: report.GeneratedAt.Format(time.RFC3339),
		TotalEvents: res.Events,
		TotalItems:  res.Items,
		TotalPairs:  res.TotalPairs,
		Pairs:       make([]JSONCoupling, len(pairs)),
	}
	for i, p := range pairs {
		out.Pairs[i] = JSONCoupling{
			ItemA:     p.A.NativeID,
			ItemB:     p.B.NativeID,
			CoChanges: p.CoChanges,
			ChangesA:  p.ChangesA,
			ChangesB:  p.ChangesB,
			Jaccard:   p.Jaccard,
			Lift:      p.Lift,
		}
	}
	return writeJSON(options.OutputPath, out)
}

func writeJSON(outputPath string, v any) error {
	out, file, err := openOutputWriter(outputPath)
	if err != nil {
		return err
	}
	if file != nil {
		defer file.Close()
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
