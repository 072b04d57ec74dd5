package hotspot

import (
	"regexp"
	"strings"

	"github.com/masmgr/harmony-go/internal/model"
)

// Detector recognizes bugfix Events by matching their commit message
// against regex patterns.
type Detector struct {
	patterns []*regexp.Regexp
}

// NewDetector compiles patterns case-insensitively. Blank patterns are
// skipped.
func NewDetector(patterns []string) (*Detector, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "(?i)") {
			p = "(?i)" + p
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return &Detector{patterns: compiled}, nil
}

// IsBugfix reports whether message matches any pattern.
func (d *Detector) IsBugfix(message string) bool {
	for _, re := range d.patterns {
		if re.MatchString(message) {
			return true
		}
	}
	return false
}

// Fixes returns the set of bugfix Events among events, keyed by Event ID.
func (d *Detector) Fixes(events []*model.Event) map[uint]*model.Event {
	fixes := make(map[uint]*model.Event)
	if len(d.patterns) == 0 {
		return fixes
	}
	for _, ev := range events {
		if d.IsBugfix(ev.Message()) {
			fixes[ev.ID] = ev
		}
	}
	return fixes
}
