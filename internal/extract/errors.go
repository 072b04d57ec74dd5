package extract

import "fmt"

// BackendError reports that the repository backend failed while walking
// history or computing a diff. It aborts extraction of the Source.
type BackendError struct {
	Source string // source name
	Op     string // operation that failed, e.g. "walk" or "diff <hash>"
	Err    error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("source %s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// ClassificationWarning reports a change whose kind has no Action
// equivalent. The change is skipped and extraction continues.
type ClassificationWarning struct {
	Event   string // native id of the event
	Status  string // status reported by the differ
	OldPath string
	NewPath string
}

func (w ClassificationWarning) String() string {
	path := w.NewPath
	if path == "" {
		path = w.OldPath
	}
	return fmt.Sprintf("event %s: unclassified change %q on %s", w.Event, w.Status, path)
}
