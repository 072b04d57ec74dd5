package git

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// PathFilter applies include/exclude glob patterns to repository paths.
// Exclude patterns win. Without include patterns every path not excluded
// matches. Results are cached; a PathFilter is safe for concurrent use.
type PathFilter struct {
	include []string
	exclude []string

	mu    sync.Mutex
	cache map[string]bool
}

// NewPathFilter validates the patterns and returns a filter.
func NewPathFilter(include, exclude []string) (*PathFilter, error) {
	for _, p := range exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, doublestar.ErrBadPattern)
		}
	}
	for _, p := range include {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid include pattern %q: %w", p, doublestar.ErrBadPattern)
		}
	}
	return &PathFilter{
		include: include,
		exclude: exclude,
		cache:   make(map[string]bool),
	}, nil
}

// Empty reports whether the filter accepts every path.
func (f *PathFilter) Empty() bool {
	return f == nil || (len(f.include) == 0 && len(f.exclude) == 0)
}

// Match reports whether path passes the filter.
func (f *PathFilter) Match(path string) bool {
	if f.Empty() {
		return true
	}

	// Normalize path separators
	path = strings.ReplaceAll(path, "\\", "/")

	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.cache[path]; ok {
		return v
	}
	v := f.match(path)
	f.cache[path] = v
	return v
}

func (f *PathFilter) match(path string) bool {
	for _, pattern := range f.exclude {
		if matched, _ := doublestar.Match(pattern, path); matched {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, pattern := range f.include {
		if matched, _ := doublestar.Match(pattern, path); matched {
			return true
		}
	}
	return false
}

// Apply returns the changes whose path passes the filter.
func (f *PathFilter) Apply(changes []Change) []Change {
	if f.Empty() {
		return changes
	}
	kept := make([]Change, 0, len(changes))
	for _, c := range changes {
		if f.Match(c.Path()) {
			kept = append(kept, c)
		}
	}
	return kept
}
