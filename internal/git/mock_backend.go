package git

import (
	"context"
	"fmt"
)

// MockBackend is a test double for Repository. Commits are walked in the
// order given; Diffs are looked up by DiffKey.
type MockBackend struct {
	TagRefs []TagRef
	Refs    map[string]string // ref name -> commit hash
	Commits []Commit
	Diffs   map[string][]Change

	TagsErr error
	WalkErr error
	DiffErr map[string]error // keyed like Diffs
}

// DiffKey is the lookup key for a diff from tree from to tree to.
func DiffKey(from, to string) string {
	return from + ".." + to
}

func (m *MockBackend) Tags(_ context.Context) ([]TagRef, error) {
	if m.TagsErr != nil {
		return nil, m.TagsErr
	}
	return m.TagRefs, nil
}

func (m *MockBackend) ResolveRef(_ context.Context, name string) (string, bool, error) {
	h, ok := m.Refs[name]
	return h, ok, nil
}

func (m *MockBackend) Walk(ctx context.Context, from string, fn func(Commit) error) error {
	if m.WalkErr != nil {
		return m.WalkErr
	}
	found := false
	for _, c := range m.Commits {
		if c.Hash == from {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("walk from %s: commit not found", from)
	}
	for _, c := range m.Commits {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockBackend) Diff(_ context.Context, fromTree, toTree string) ([]Change, error) {
	key := DiffKey(fromTree, toTree)
	if err, ok := m.DiffErr[key]; ok {
		return nil, err
	}
	return m.Diffs[key], nil
}
