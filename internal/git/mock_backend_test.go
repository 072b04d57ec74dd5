package git

import (
	"context"
	"errors"
	"testing"
)

func TestMockBackend(t *testing.T) {
	ctx := context.Background()
	m := &MockBackend{
		Refs:    map[string]string{"refs/heads/master": "b"},
		Commits: []Commit{{Hash: "a"}, {Hash: "b", Parents: []string{"a"}}},
		Diffs: map[string][]Change{
			DiffKey("", "ta"): {{Kind: ChangeKindAdded, NewPath: "x"}},
		},
		DiffErr: map[string]error{DiffKey("ta", "tb"): errors.New("corrupt")},
	}

	t.Run("resolves known refs only", func(t *testing.T) {
		if h, ok, err := m.ResolveRef(ctx, "refs/heads/master"); err != nil || !ok || h != "b" {
			t.Errorf("ResolveRef = %q, %v, %v", h, ok, err)
		}
		if _, ok, err := m.ResolveRef(ctx, "refs/heads/none"); err != nil || ok {
			t.Errorf("missing ref resolved: %v, %v", ok, err)
		}
	})

	t.Run("walks commits in order", func(t *testing.T) {
		var seen []string
		err := m.Walk(ctx, "b", func(c Commit) error {
			seen = append(seen, c.Hash)
			return nil
		})
		if err != nil || len(seen) != 2 || seen[0] != "a" {
			t.Errorf("Walk = %v, %v", seen, err)
		}
		if err := m.Walk(ctx, "zzz", func(Commit) error { return nil }); err == nil {
			t.Error("expected error walking from unknown commit")
		}
	})

	t.Run("returns diffs and errors", func(t *testing.T) {
		changes, err := m.Diff(ctx, "", "ta")
		if err != nil || len(changes) != 1 {
			t.Errorf("Diff = %+v, %v", changes, err)
		}
		if _, err := m.Diff(ctx, "ta", "tb"); err == nil {
			t.Error("expected configured diff error")
		}
		if changes, err := m.Diff(ctx, "x", "y"); err != nil || len(changes) != 0 {
			t.Errorf("unknown diff = %+v, %v", changes, err)
		}
	})
}

func TestMockBackend_ImplementsInterface(t *testing.T) {
	var _ Backend = (*MockBackend)(nil)
}
