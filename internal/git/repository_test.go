package git_test

import (
	"context"
	"errors"
	"os/exec"
	"sort"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/masmgr/harmony-go/internal/git"
	"github.com/masmgr/harmony-go/internal/git/gittest"
)

func openRepo(t *testing.T, r *gittest.Repo, opts git.Options) *git.Repository {
	t.Helper()
	repo, err := git.Open(r.Dir, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return repo
}

func TestOpen_Errors(t *testing.T) {
	if _, err := git.Open(t.TempDir(), git.Options{}); err == nil {
		t.Error("expected error opening a directory that is not a repository")
	}

	r := gittest.New(t)
	if _, err := git.Open(r.Dir, git.Options{Differ: "svn"}); err == nil {
		t.Error("expected error for unknown differ")
	}
	if _, err := git.Open(r.Dir, git.Options{Exclude: []string{"["}}); err == nil {
		t.Error("expected error for invalid exclude glob")
	}
}

func TestRepository_Tags(t *testing.T) {
	r := gittest.New(t)
	r.Write("a.txt", "a")
	c1 := r.Commit("first")
	r.Write("b.txt", "b")
	c2 := r.Commit("second")

	r.Tag("v2-light", c2, "")
	annotated := r.Tag("v1.0", c1, "release 1.0")
	r.Tag("v1.0-signed", annotated, "tag of a tag")

	repo := openRepo(t, r, git.Options{})
	tags, err := repo.Tags(context.Background())
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if len(tags) != 3 {
		t.Fatalf("tags = %d, expected 3: %+v", len(tags), tags)
	}
	if !sort.SliceIsSorted(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name }) {
		t.Errorf("tags not sorted by name: %+v", tags)
	}

	byName := map[string]git.TagRef{}
	for _, tag := range tags {
		byName[tag.Name] = tag
	}

	light := byName["refs/tags/v2-light"]
	if light.Target != c2.String() || light.Peeled != "" {
		t.Errorf("lightweight tag = %+v, expected target %s and no peel", light, c2)
	}
	ann := byName["refs/tags/v1.0"]
	if ann.Target != annotated.String() || ann.Peeled != c1.String() {
		t.Errorf("annotated tag = %+v, expected peel to %s", ann, c1)
	}
	nested := byName["refs/tags/v1.0-signed"]
	if nested.Peeled != c1.String() {
		t.Errorf("nested tag peeled = %s, expected %s", nested.Peeled, c1)
	}
}

func TestRepository_Tags_SkipsUndecodableTag(t *testing.T) {
	r := gittest.New(t)
	r.Write("a.txt", "a")
	c1 := r.Commit("first")
	r.Tag("v1.0", c1, "release 1.0")

	bad := r.WriteLooseObject("bogus", []byte("not a tag"))
	r.SetRef("refs/tags/bad", bad)
	r.SetRef("refs/tags/gone", plumbing.NewHash("1111111111111111111111111111111111111111"))

	repo := openRepo(t, r, git.Options{})
	tags, err := repo.Tags(context.Background())
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if len(tags) != 1 || tags[0].Name != "refs/tags/v1.0" || tags[0].Peeled != c1.String() {
		t.Errorf("tags = %+v, expected only refs/tags/v1.0", tags)
	}
}

func TestRepository_ResolveRef(t *testing.T) {
	r := gittest.New(t)
	r.Write("a.txt", "a")
	c1 := r.Commit("first")
	r.SetRef("refs/remotes/origin/master", c1)
	r.Tag("v1", c1, "annotated")

	repo := openRepo(t, r, git.Options{})
	ctx := context.Background()

	tests := []struct {
		name   string
		ref    string
		wantOK bool
	}{
		{name: "local branch", ref: "refs/heads/master", wantOK: true},
		{name: "remote branch", ref: "refs/remotes/origin/master", wantOK: true},
		{name: "annotated tag peels to commit", ref: "refs/tags/v1", wantOK: true},
		{name: "missing", ref: "refs/remotes/origin/trunk", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, ok, err := repo.ResolveRef(ctx, tt.ref)
			if err != nil {
				t.Fatalf("ResolveRef: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, expected %v", ok, tt.wantOK)
			}
			if ok && h != c1.String() {
				t.Errorf("hash = %s, expected %s", h, c1)
			}
		})
	}
}

// buildMergeRepo creates:
//
//	A (f=v1, g=v1) -- C (g=v2) -- M
//	  \                          /
//	   B (f=v2) ----------------
//
// M has parents [C, B] and content f=v2, g=v2.
func buildMergeRepo(t *testing.T) (r *gittest.Repo, a, b, c, m plumbing.Hash) {
	t.Helper()
	r = gittest.New(t)
	r.Write("f.txt", "v1")
	r.Write("g.txt", "v1")
	a = r.Commit("A")

	r.Branch("feature")
	r.Write("f.txt", "v2")
	b = r.Commit("B")

	r.Checkout("master")
	r.Write("g.txt", "v2")
	c = r.Commit("C")

	r.Write("f.txt", "v2")
	m = r.Commit("Merge branch 'feature'", c, b)
	return r, a, b, c, m
}

func TestRepository_Walk_ParentsFirst(t *testing.T) {
	r, a, b, c, m := buildMergeRepo(t)
	repo := openRepo(t, r, git.Options{})

	var order []string
	var merge git.Commit
	err := repo.Walk(context.Background(), m.String(), func(cm git.Commit) error {
		order = append(order, cm.Hash)
		if cm.Hash == m.String() {
			merge = cm
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if len(order) != 4 {
		t.Fatalf("walked %d commits, expected 4", len(order))
	}
	pos := map[string]int{}
	for i, h := range order {
		pos[h] = i
	}
	if pos[a.String()] != 0 {
		t.Errorf("root not first: %v", order)
	}
	if pos[m.String()] != 3 {
		t.Errorf("merge not last: %v", order)
	}
	if pos[b.String()] < pos[a.String()] || pos[c.String()] < pos[a.String()] {
		t.Errorf("child before parent: %v", order)
	}

	if len(merge.Parents) != 2 || merge.Parents[0] != c.String() || merge.Parents[1] != b.String() {
		t.Errorf("merge parents = %v, expected [C B]", merge.Parents)
	}
	if merge.Tree != r.Tree(m) {
		t.Errorf("merge tree = %s, expected %s", merge.Tree, r.Tree(m))
	}
	if merge.Message != "Merge branch 'feature'" && merge.Message != "Merge branch 'feature'\n" {
		t.Errorf("merge message = %q", merge.Message)
	}
}

func TestRepository_Walk_StopsOnCallbackError(t *testing.T) {
	r, _, _, _, m := buildMergeRepo(t)
	repo := openRepo(t, r, git.Options{})

	stop := errors.New("stop")
	calls := 0
	err := repo.Walk(context.Background(), m.String(), func(git.Commit) error {
		calls++
		return stop
	})
	if err != stop {
		t.Errorf("err = %v, expected %v", err, stop)
	}
	if calls != 1 {
		t.Errorf("calls = %d, expected 1", calls)
	}
}

func diffByPath(changes []git.Change) map[string]git.Change {
	out := map[string]git.Change{}
	for _, c := range changes {
		out[c.Path()] = c
	}
	return out
}

func testDiff(t *testing.T, differ git.DifferMode) {
	r := gittest.New(t)
	r.Write("keep.txt", "1")
	r.Write("edit.txt", "1")
	r.Write("gone.txt", "1")
	r.Write("old.txt", "rename me")
	c1 := r.Commit("one")

	r.Write("edit.txt", "2")
	r.Remove("gone.txt")
	r.Remove("old.txt")
	r.Write("new.txt", "rename me")
	c2 := r.Commit("two")

	repo := openRepo(t, r, git.Options{Differ: differ})
	ctx := context.Background()

	root, err := repo.Diff(ctx, "", r.Tree(c1))
	if err != nil {
		t.Fatalf("Diff root: %v", err)
	}
	if len(root) != 4 {
		t.Fatalf("root changes = %d, expected 4: %+v", len(root), root)
	}
	for _, c := range root {
		if c.Kind != git.ChangeKindAdded {
			t.Errorf("root change %s kind = %v, expected added", c.Path(), c.Kind)
		}
	}

	changes, err := repo.Diff(ctx, r.Tree(c1), r.Tree(c2))
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	got := diffByPath(changes)
	want := map[string]git.ChangeKind{
		"edit.txt": git.ChangeKindModified,
		"gone.txt": git.ChangeKindDeleted,
		"old.txt":  git.ChangeKindDeleted,
		"new.txt":  git.ChangeKindAdded,
	}
	if len(got) != len(want) {
		t.Fatalf("changes = %+v, expected %v", changes, want)
	}
	for path, kind := range want {
		c, ok := got[path]
		if !ok {
			t.Errorf("missing change for %s", path)
			continue
		}
		if c.Kind != kind {
			t.Errorf("%s kind = %v, expected %v", path, c.Kind, kind)
		}
	}
	if got["gone.txt"].NewPath != "" || got["gone.txt"].OldPath != "gone.txt" {
		t.Errorf("deletion paths = %+v", got["gone.txt"])
	}
	if got["new.txt"].OldPath != "" || got["new.txt"].NewPath != "new.txt" {
		t.Errorf("addition paths = %+v", got["new.txt"])
	}
}

func TestRepository_Diff_Native(t *testing.T) {
	testDiff(t, git.DifferNative)
}

func TestRepository_Diff_CLI(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git executable not available")
	}
	testDiff(t, git.DifferCLI)
}

func TestRepository_Diff_Filters(t *testing.T) {
	r := gittest.New(t)
	r.Write("src/main.go", "package main")
	r.Write("src/main_test.go", "package main")
	r.Write("vendor/lib/lib.go", "package lib")
	r.Write("README.md", "readme")
	c := r.Commit("init")

	repo := openRepo(t, r, git.Options{
		Include: []string{"**/*.go"},
		Exclude: []string{"vendor/**", "**/*_test.go"},
	})
	changes, err := repo.Diff(context.Background(), "", r.Tree(c))
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(changes) != 1 || changes[0].Path() != "src/main.go" {
		t.Errorf("changes = %+v, expected only src/main.go", changes)
	}
}
