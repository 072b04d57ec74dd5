package output

import (
	"fmt"
	"time"

	"github.com/masmgr/harmony-go/internal/analysis/coupling"
	"github.com/masmgr/harmony-go/internal/analysis/hotspot"
	"github.com/masmgr/harmony-go/internal/model"
)

var (
	_ ReportWriter = (*ConsoleWriter)(nil)
	_ ReportWriter = (*JSONWriter)(nil)
	_ ReportWriter = (*CSVWriter)(nil)
	_ ReportWriter = (*MarkdownWriter)(nil)
)

// OutputFormat represents the output format type.
type OutputFormat string

const (
	FormatConsole  OutputFormat = "console"
	FormatJSON     OutputFormat = "json"
	FormatCSV      OutputFormat = "csv"
	FormatMarkdown OutputFormat = "markdown"
)

// ParseFormat validates a format name. The empty string means console.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case "":
		return FormatConsole, nil
	case FormatConsole, FormatJSON, FormatCSV, FormatMarkdown:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want console, json, csv or markdown)", s)
	}
}

// OutputOptions controls output behavior.
type OutputOptions struct {
	Format     OutputFormat
	Top        int
	OutputPath string
}

// EventReport lists the Events of a Source in persistence order.
type EventReport struct {
	Source      string
	GeneratedAt time.Time
	Events      []*model.Event
}

// ActionReport lists the Actions of a Source.
type ActionReport struct {
	Source      string
	GeneratedAt time.Time
	Actions     []*model.Action
}

// HotspotReport holds a ranked hotspot analysis.
type HotspotReport struct {
	Source      string
	Since       time.Time
	Until       time.Time
	GeneratedAt time.Time
	Events      int
	Fixes       int
	Scores      []hotspot.Score
}

// CouplingReport holds a change coupling analysis.
type CouplingReport struct {
	Source      string
	GeneratedAt time.Time
	Result      *coupling.Result
}

// ReportWriter renders every report kind in one format.
type ReportWriter interface {
	WriteEvents(report *EventReport, options OutputOptions) error
	WriteActions(report *ActionReport, options OutputOptions) error
	WriteHotspots(report *HotspotReport, options OutputOptions) error
	WriteCoupling(report *CouplingReport, options OutputOptions) error
}

// NewReportWriter creates a report writer for the specified format.
func NewReportWriter(format OutputFormat) ReportWriter {
	switch format {
	case FormatJSON:
		return &JSONWriter{}
	case FormatCSV:
		return &CSVWriter{}
	case FormatMarkdown:
		return &MarkdownWriter{}
	default:
		return &ConsoleWriter{}
	}
}
