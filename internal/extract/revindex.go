package extract

import (
	"context"
	"strings"
	"sync"

	"github.com/masmgr/harmony-go/internal/git"
)

// RevisionIndex holds what one extraction session knows about the
// repository: tag names by commit and the commits seen by the builder.
// The builder fills it; the action phase only reads it.
type RevisionIndex struct {
	tags map[string][]string

	mu      sync.RWMutex
	commits map[string]git.Commit
}

// NewRevisionIndex reads the tags of backend. A tag maps to its peeled
// commit when it has one, else to the object it points at.
func NewRevisionIndex(ctx context.Context, backend git.Backend) (*RevisionIndex, error) {
	refs, err := backend.Tags(ctx)
	if err != nil {
		return nil, err
	}

	idx := &RevisionIndex{
		tags:    make(map[string][]string),
		commits: make(map[string]git.Commit),
	}
	for _, ref := range refs {
		target := ref.Peeled
		if target == "" {
			target = ref.Target
		}
		if target == "" {
			continue
		}
		idx.tags[target] = append(idx.tags[target], shortTagName(ref.Name))
	}
	return idx, nil
}

func shortTagName(ref string) string {
	if i := strings.LastIndexByte(ref, '/'); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// Tags returns the tag names attached to commit, in reference name order.
func (x *RevisionIndex) Tags(commit string) []string {
	tags := x.tags[commit]
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}

// Remember caches c for the action phase.
func (x *RevisionIndex) Remember(c git.Commit) {
	x.mu.Lock()
	x.commits[c.Hash] = c
	x.mu.Unlock()
}

// Commit returns the cached commit with the given hash.
func (x *RevisionIndex) Commit(hash string) (git.Commit, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	c, ok := x.commits[hash]
	return c, ok
}

// Len returns the number of cached commits.
func (x *RevisionIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.commits)
}
