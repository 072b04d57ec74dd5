package extract

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/masmgr/harmony-go/internal/git"
)

func TestNewRevisionIndex_Tags(t *testing.T) {
	backend := &git.MockBackend{
		TagRefs: []git.TagRef{
			{Name: "refs/tags/release/1.0", Target: "tagobj1", Peeled: "c1"},
			{Name: "refs/tags/v0.9", Target: "c1"},
			{Name: "refs/tags/v2", Target: "c2"},
			{Name: "refs/tags/broken"},
		},
	}

	idx, err := NewRevisionIndex(context.Background(), backend)
	if err != nil {
		t.Fatalf("NewRevisionIndex: %v", err)
	}

	if got := idx.Tags("c1"); !reflect.DeepEqual(got, []string{"1.0", "v0.9"}) {
		t.Errorf("Tags(c1) = %v, expected [1.0 v0.9]", got)
	}
	if got := idx.Tags("c2"); !reflect.DeepEqual(got, []string{"v2"}) {
		t.Errorf("Tags(c2) = %v", got)
	}
	if got := idx.Tags("tagobj1"); got != nil {
		t.Errorf("annotated tag object should not carry tags: %v", got)
	}
	if got := idx.Tags("c3"); got != nil {
		t.Errorf("Tags(c3) = %v, expected nil", got)
	}

	// Callers get a copy.
	got := idx.Tags("c1")
	got[0] = "mutated"
	if idx.Tags("c1")[0] != "1.0" {
		t.Error("Tags returned internal slice")
	}
}

func TestNewRevisionIndex_Error(t *testing.T) {
	backend := &git.MockBackend{TagsErr: errors.New("packed-refs unreadable")}
	if _, err := NewRevisionIndex(context.Background(), backend); err == nil {
		t.Error("expected error")
	}
}

func TestRevisionIndex_CommitCache(t *testing.T) {
	idx, err := NewRevisionIndex(context.Background(), &git.MockBackend{})
	if err != nil {
		t.Fatalf("NewRevisionIndex: %v", err)
	}
	if _, ok := idx.Commit("a"); ok {
		t.Error("empty index returned a commit")
	}
	idx.Remember(git.Commit{Hash: "a", Tree: "ta"})
	c, ok := idx.Commit("a")
	if !ok || c.Tree != "ta" {
		t.Errorf("Commit(a) = %+v, %v", c, ok)
	}
	if idx.Len() != 1 {
		t.Errorf("Len() = %d, expected 1", idx.Len())
	}
}
