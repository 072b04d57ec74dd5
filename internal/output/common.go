package output

import (
	"io"
	"os"
	"strings"

	"github.com/masmgr/harmony-go/internal/model"
)

const (
	reportDateLayout     = "2006-01-02"
	reportDateTimeLayout = "2006-01-02T15:04:05"
	shortHashLen         = 8
)

// stdout receives reports without an output path.
var stdout io.Writer = os.Stdout

func limitTop[T any](items []T, top int) []T {
	if top <= 0 || top >= len(items) {
		return items
	}
	return items[:top]
}

func openOutputWriter(outputPath string) (io.Writer, *os.File, error) {
	if outputPath == "" {
		return stdout, nil, nil
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return nil, nil, err
	}
	return file, file, nil
}

func shortHash(h string) string {
	if len(h) <= shortHashLen {
		return h
	}
	return h[:shortHashLen]
}

func firstLine(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return strings.TrimSpace(msg)
}

func truncateMessage(msg string, maxLen int) string {
	if len(msg) <= maxLen {
		return msg
	}
	return msg[:maxLen-3] + "..."
}

func authorNames(ev *model.Event) string {
	names := make([]string, len(ev.Authors))
	for i, a := range ev.Authors {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

func parentIDs(ev *model.Event) []string {
	ids := make([]string, len(ev.Parents))
	for i, p := range ev.Parents {
		ids[i] = p.NativeID
	}
	return ids
}

// parentOf is the parent event id of an Action, empty against the empty tree.
func parentOf(a *model.Action) string {
	if a.Parent == nil {
		return ""
	}
	return a.Parent.NativeID
}
