package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/masmgr/harmony-go/internal/dao"
	"github.com/masmgr/harmony-go/internal/git"
	"github.com/masmgr/harmony-go/internal/logging"
	"github.com/masmgr/harmony-go/internal/model"
	"github.com/masmgr/harmony-go/internal/store/boltstore"
)

var testRefs = []string{
	"refs/remotes/origin/master",
	"refs/remotes/origin/HEAD",
	"refs/remotes/origin/trunk",
	"refs/heads/master",
}

func newStore(t *testing.T) dao.Dao {
	t.Helper()
	s, err := boltstore.New(filepath.Join(t.TempDir(), "extract.bolt"), logging.Discard())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Disconnect() })
	return s
}

func newExtractor(d dao.Dao, workers int) *Extractor {
	return NewExtractor(d, Options{Workers: workers, Refs: testRefs}, logging.Discard())
}

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func mockCommit(hash string, minute int, parents ...string) git.Commit {
	when := base.Add(time.Duration(minute) * time.Minute)
	return git.Commit{
		Hash:      hash,
		Tree:      "t" + hash,
		Parents:   parents,
		Author:    git.Signature{Name: "alice", Email: "alice@example.com", When: when},
		Committer: git.Signature{Name: "alice", Email: "alice@example.com", When: when},
		Message:   "commit " + hash,
	}
}

func added(paths ...string) []git.Change {
	var out []git.Change
	for _, p := range paths {
		out = append(out, git.Change{Kind: git.ChangeKindAdded, NewPath: p, Status: "A"})
	}
	return out
}

func actionsFor(t *testing.T, d dao.Dao, src *model.Source) []*model.Action {
	t.Helper()
	actions, err := d.GetActions(context.Background(), src)
	if err != nil {
		t.Fatalf("GetActions: %v", err)
	}
	return actions
}

func TestRun_RootCommitCreatesWithoutParent(t *testing.T) {
	d := newStore(t)
	backend := &git.MockBackend{
		Refs:    map[string]string{"refs/heads/master": "c1"},
		Commits: []git.Commit{mockCommit("c1", 0)},
		Diffs:   map[string][]git.Change{git.DiffKey("", "tc1"): added("x", "y")},
	}
	src := &model.Source{Name: "root"}

	sum, err := newExtractor(d, 2).Run(context.Background(), src, backend)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Events != 1 || sum.Actions != 2 {
		t.Errorf("summary = %+v", sum)
	}

	actions := actionsFor(t, d, src)
	if len(actions) != 2 {
		t.Fatalf("actions = %d, expected 2", len(actions))
	}
	paths := map[string]bool{}
	for _, a := range actions {
		if a.Kind != model.ActionCreate {
			t.Errorf("%s kind = %s, expected Create", a.Item.NativeID, a.Kind)
		}
		if a.Parent != nil {
			t.Errorf("%s has parent %s, expected none", a.Item.NativeID, a.Parent.NativeID)
		}
		paths[a.Item.NativeID] = true
	}
	if !paths["x"] || !paths["y"] {
		t.Errorf("paths = %v, expected x and y", paths)
	}
}

func TestRun_MergeEditsOnlyAgainstChangedParent(t *testing.T) {
	d := newStore(t)
	backend := &git.MockBackend{
		Refs: map[string]string{"refs/remotes/origin/master": "m"},
		Commits: []git.Commit{
			mockCommit("a", 0),
			mockCommit("p2", 1, "a"),
			mockCommit("p1", 2, "a"),
			mockCommit("m", 3, "p1", "p2"),
		},
		Diffs: map[string][]git.Change{
			git.DiffKey("", "ta"):    added("f", "g"),
			git.DiffKey("ta", "tp1"): {{Kind: git.ChangeKindModified, OldPath: "g", NewPath: "g", Status: "M"}},
			git.DiffKey("ta", "tp2"): {{Kind: git.ChangeKindModified, OldPath: "f", NewPath: "f", Status: "M"}},
			git.DiffKey("tp1", "tm"): {{Kind: git.ChangeKindModified, OldPath: "f", NewPath: "f", Status: "M"}},
			git.DiffKey("tp2", "tm"): {{Kind: git.ChangeKindModified, OldPath: "g", NewPath: "g", Status: "M"}},
		},
	}
	src := &model.Source{Name: "merge"}

	if _, err := newExtractor(d, 4).Run(context.Background(), src, backend); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var onF []*model.Action
	for _, a := range actionsFor(t, d, src) {
		if a.Event.NativeID == "m" && a.Item.NativeID == "f" {
			onF = append(onF, a)
		}
	}
	if len(onF) != 1 {
		t.Fatalf("merge actions on f = %d, expected 1", len(onF))
	}
	if onF[0].Kind != model.ActionEdit || onF[0].Parent == nil || onF[0].Parent.NativeID != "p1" {
		t.Errorf("merge action on f = %s parent %v, expected Edit against p1", onF[0].Kind, onF[0].Parent)
	}
}

func TestRun_DeleteUsesOldPath(t *testing.T) {
	d := newStore(t)
	backend := &git.MockBackend{
		Refs:    map[string]string{"refs/heads/master": "b"},
		Commits: []git.Commit{mockCommit("a", 0), mockCommit("b", 1, "a")},
		Diffs: map[string][]git.Change{
			git.DiffKey("", "ta"):   added("z"),
			git.DiffKey("ta", "tb"): {{Kind: git.ChangeKindDeleted, OldPath: "z", Status: "D"}},
		},
	}
	src := &model.Source{Name: "delete"}
	if _, err := newExtractor(d, 1).Run(context.Background(), src, backend); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var deletes []*model.Action
	for _, a := range actionsFor(t, d, src) {
		if a.Kind == model.ActionDelete {
			deletes = append(deletes, a)
		}
	}
	if len(deletes) != 1 || deletes[0].Item.NativeID != "z" || deletes[0].Event.NativeID != "b" {
		t.Errorf("deletes = %+v", deletes)
	}
}

func TestRun_RenameCreatesNewPathOnly(t *testing.T) {
	d := newStore(t)
	backend := &git.MockBackend{
		Refs:    map[string]string{"refs/heads/master": "b"},
		Commits: []git.Commit{mockCommit("a", 0), mockCommit("b", 1, "a")},
		Diffs: map[string][]git.Change{
			git.DiffKey("", "ta"):   added("a.txt"),
			git.DiffKey("ta", "tb"): {{Kind: git.ChangeKindRenamed, OldPath: "a.txt", NewPath: "b.txt", Status: "R100"}},
		},
	}
	src := &model.Source{Name: "rename"}
	if _, err := newExtractor(d, 1).Run(context.Background(), src, backend); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var onB []*model.Action
	for _, a := range actionsFor(t, d, src) {
		if a.Event.NativeID != "b" {
			continue
		}
		if a.Item.NativeID == "a.txt" {
			t.Errorf("rename produced an action on the old path: %s", a.Kind)
		}
		onB = append(onB, a)
	}
	if len(onB) != 1 || onB[0].Kind != model.ActionCreate || onB[0].Item.NativeID != "b.txt" {
		t.Errorf("rename actions = %+v", onB)
	}
}

func TestRun_NoHeadRefYieldsNothing(t *testing.T) {
	d := newStore(t)
	backend := &git.MockBackend{
		Refs:    map[string]string{"refs/heads/develop": "a"},
		Commits: []git.Commit{mockCommit("a", 0)},
	}
	src := &model.Source{Name: "nohead"}
	sum, err := newExtractor(d, 1).Run(context.Background(), src, backend)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Events != 0 || sum.Actions != 0 || sum.Head != "" {
		t.Errorf("summary = %+v, expected empty", sum)
	}
	events, err := d.GetEvents(context.Background(), src)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events = %d, expected 0", len(events))
	}
}

func TestRun_RefsTriedInOrder(t *testing.T) {
	d := newStore(t)
	backend := &git.MockBackend{
		Refs: map[string]string{
			"refs/remotes/origin/trunk": "b",
			"refs/heads/master":         "a",
		},
		Commits: []git.Commit{mockCommit("a", 0), mockCommit("b", 1, "a")},
	}
	sum, err := newExtractor(d, 1).Run(context.Background(), &model.Source{Name: "order"}, backend)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Head != "b" {
		t.Errorf("head = %q, expected trunk's commit b", sum.Head)
	}
}

func TestRun_TopologicalOrderAndRoots(t *testing.T) {
	d := newStore(t)
	backend := &git.MockBackend{
		Refs: map[string]string{"refs/heads/master": "m"},
		Commits: []git.Commit{
			mockCommit("r1", 0),
			mockCommit("r2", 1),
			mockCommit("a", 2, "r1"),
			mockCommit("m", 3, "a", "r2"),
		},
	}
	src := &model.Source{Name: "topo"}
	if _, err := newExtractor(d, 2).Run(context.Background(), src, backend); err != nil {
		t.Fatalf("Run: %v", err)
	}

	events, err := d.GetEvents(context.Background(), src)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	pos := map[string]int{}
	roots := 0
	for i, e := range events {
		pos[e.NativeID] = i
		if e.IsRoot() {
			roots++
		}
	}
	for _, e := range events {
		for _, p := range e.Parents {
			if pos[p.NativeID] >= pos[e.NativeID] {
				t.Errorf("parent %s persisted after %s", p.NativeID, e.NativeID)
			}
		}
	}
	if roots != 2 {
		t.Errorf("roots = %d, expected 2", roots)
	}
}

func TestRun_EventContent(t *testing.T) {
	d := newStore(t)
	c := mockCommit("a", 0)
	c.Committer = git.Signature{Name: "bob", Email: "bob@example.com", When: base.Add(time.Hour)}
	c.Message = "subject\n\nbody"
	backend := &git.MockBackend{
		TagRefs: []git.TagRef{{Name: "refs/tags/v1", Target: "a"}},
		Refs:    map[string]string{"refs/heads/master": "a"},
		Commits: []git.Commit{c},
	}
	src := &model.Source{Name: "content"}
	if _, err := newExtractor(d, 1).Run(context.Background(), src, backend); err != nil {
		t.Fatalf("Run: %v", err)
	}

	ev, err := d.GetEvent(context.Background(), src, "a")
	if err != nil || ev == nil {
		t.Fatalf("GetEvent: %v, %v", ev, err)
	}
	if !ev.Timestamp.Equal(c.Committer.When) {
		t.Errorf("timestamp = %v, expected committer time %v", ev.Timestamp, c.Committer.When)
	}
	if ev.Message() != "subject\n\nbody" {
		t.Errorf("message = %q", ev.Message())
	}
	if len(ev.Tags) != 1 || ev.Tags[0] != "v1" {
		t.Errorf("tags = %v", ev.Tags)
	}
	if ev.Metadata[model.MetadataAuthorName] != "alice" {
		t.Errorf("author_name = %q", ev.Metadata[model.MetadataAuthorName])
	}
	if len(ev.Authors) != 1 || ev.Authors[0].NativeID != "bob" || ev.Authors[0].Email != "bob@example.com" {
		t.Errorf("authors = %+v, expected committer bob", ev.Authors)
	}
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	d := newStore(t)
	backend := &git.MockBackend{
		Refs:    map[string]string{"refs/heads/master": "b"},
		Commits: []git.Commit{mockCommit("a", 0), mockCommit("b", 1, "a")},
		Diffs: map[string][]git.Change{
			git.DiffKey("", "ta"):   added("x", "y"),
			git.DiffKey("ta", "tb"): {{Kind: git.ChangeKindModified, OldPath: "x", NewPath: "x", Status: "M"}},
		},
	}
	ctx := context.Background()
	x := newExtractor(d, 3)

	first, err := x.Run(ctx, &model.Source{Name: "again"}, backend)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	src := &model.Source{Name: "again"}
	second, err := x.Run(ctx, src, backend)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if first.NewEvents != 2 || second.NewEvents != 0 {
		t.Errorf("new events = %d then %d, expected 2 then 0", first.NewEvents, second.NewEvents)
	}
	if first.Session == second.Session {
		t.Error("sessions should differ between runs")
	}
	if got := len(actionsFor(t, d, src)); got != 3 {
		t.Errorf("actions after rerun = %d, expected 3", got)
	}
	for _, p := range []string{"x", "y"} {
		it, err := d.GetItem(ctx, src, p)
		if err != nil || it == nil {
			t.Errorf("item %s: %v, %v", p, it, err)
		}
	}
	events, err := d.GetEvents(ctx, src)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("events = %d, expected 2", len(events))
	}
}

func TestRun_ClassificationWarningsAreReported(t *testing.T) {
	d := newStore(t)
	backend := &git.MockBackend{
		Refs:    map[string]string{"refs/heads/master": "a"},
		Commits: []git.Commit{mockCommit("a", 0)},
		Diffs: map[string][]git.Change{
			git.DiffKey("", "ta"): {
				{Kind: git.ChangeKindAdded, NewPath: "ok.go", Status: "A"},
				{Kind: git.ChangeKindUnknown, OldPath: "odd", NewPath: "odd", Status: "X"},
			},
		},
	}
	sum, err := newExtractor(d, 1).Run(context.Background(), &model.Source{Name: "warn"}, backend)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Actions != 1 {
		t.Errorf("actions = %d, expected 1", sum.Actions)
	}
	if len(sum.Warnings) != 1 || sum.Warnings[0].Status != "X" || sum.Warnings[0].Event != "a" {
		t.Errorf("warnings = %+v", sum.Warnings)
	}
}

func TestRun_DiffFailureIsBackendError(t *testing.T) {
	d := newStore(t)
	cause := errors.New("object missing")
	backend := &git.MockBackend{
		Refs: map[string]string{"refs/heads/master": "m"},
		Commits: []git.Commit{
			mockCommit("a", 0),
			mockCommit("b", 1, "a"),
			mockCommit("m", 2, "a", "b"),
		},
		Diffs: map[string][]git.Change{
			git.DiffKey("ta", "tm"): added("from-first-parent"),
		},
		DiffErr: map[string]error{git.DiffKey("tb", "tm"): cause},
	}
	src := &model.Source{Name: "broken"}
	_, err := newExtractor(d, 1).Run(context.Background(), src, backend)
	if err == nil {
		t.Fatal("expected error")
	}
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("error %v is not a BackendError", err)
	}
	if be.Source != "broken" || !errors.Is(err, cause) {
		t.Errorf("backend error = %+v", be)
	}

	// The action saved against the first parent stays.
	found := false
	for _, a := range actionsFor(t, d, src) {
		if a.Item.NativeID == "from-first-parent" {
			found = true
		}
	}
	if !found {
		t.Error("action for the first parent was rolled back")
	}
}

func TestRun_WalkFailureKeepsSavedEvents(t *testing.T) {
	d := newStore(t)
	backend := &git.MockBackend{
		Refs:    map[string]string{"refs/heads/master": "a"},
		Commits: []git.Commit{mockCommit("a", 0)},
		WalkErr: errors.New("pack corrupt"),
	}
	_, err := newExtractor(d, 1).Run(context.Background(), &model.Source{Name: "walk"}, backend)
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("error %v is not a BackendError", err)
	}
}

func TestRun_ManyEventsShareItems(t *testing.T) {
	d := newStore(t)
	const n = 40
	backend := &git.MockBackend{
		Refs:  map[string]string{"refs/heads/master": fmt.Sprintf("c%02d", n-1)},
		Diffs: map[string][]git.Change{},
	}
	for i := 0; i < n; i++ {
		hash := fmt.Sprintf("c%02d", i)
		var parents []string
		from := ""
		if i > 0 {
			parents = []string{fmt.Sprintf("c%02d", i-1)}
			from = "t" + parents[0]
		}
		backend.Commits = append(backend.Commits, mockCommit(hash, i, parents...))
		kind := git.ChangeKindModified
		if i == 0 {
			kind = git.ChangeKindAdded
		}
		backend.Diffs[git.DiffKey(from, "t"+hash)] = []git.Change{
			{Kind: kind, OldPath: "shared.go", NewPath: "shared.go"},
			{Kind: git.ChangeKindAdded, NewPath: fmt.Sprintf("own%02d.go", i)},
		}
	}
	src := &model.Source{Name: "parallel"}
	sum, err := newExtractor(d, 8).Run(context.Background(), src, backend)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Actions != 2*n {
		t.Errorf("actions = %d, expected %d", sum.Actions, 2*n)
	}

	items := map[uint]string{}
	for _, a := range actionsFor(t, d, src) {
		if prev, ok := items[a.Item.ID]; ok && prev != a.Item.NativeID {
			t.Fatalf("item %d maps to %s and %s", a.Item.ID, prev, a.Item.NativeID)
		}
		items[a.Item.ID] = a.Item.NativeID
	}
	shared := 0
	for _, p := range items {
		if p == "shared.go" {
			shared++
		}
	}
	if shared != 1 {
		t.Errorf("shared.go stored as %d items, expected 1", shared)
	}
}

func TestRunSources(t *testing.T) {
	d := newStore(t)
	backends := map[string]*git.MockBackend{
		"/repos/one": {
			Refs:    map[string]string{"refs/heads/master": "a"},
			Commits: []git.Commit{mockCommit("a", 0)},
			Diffs:   map[string][]git.Change{git.DiffKey("", "ta"): added("one.go")},
		},
		"/repos/two": {
			Refs:    map[string]string{"refs/heads/master": "a"},
			Commits: []git.Commit{mockCommit("a", 0)},
			Diffs:   map[string][]git.Change{git.DiffKey("", "ta"): added("two.go", "more.go")},
		},
	}
	var mu sync.Mutex
	opened := 0
	open := func(path string) (git.Backend, error) {
		mu.Lock()
		defer mu.Unlock()
		opened++
		b, ok := backends[path]
		if !ok {
			return nil, fmt.Errorf("no repo at %s", path)
		}
		return b, nil
	}

	specs := []SourceSpec{{Name: "one", Path: "/repos/one"}, {Name: "two", Path: "/repos/two"}}
	sums, err := newExtractor(d, 2).RunSources(context.Background(), specs, open)
	if err != nil {
		t.Fatalf("RunSources: %v", err)
	}
	if opened != 2 || len(sums) != 2 {
		t.Fatalf("opened %d, summaries %d", opened, len(sums))
	}
	if sums[0].Source != "one" || sums[0].Actions != 1 || sums[1].Source != "two" || sums[1].Actions != 2 {
		t.Errorf("summaries = %+v, %+v", sums[0], sums[1])
	}

	// Same native ids in both sources stay separate.
	one, _ := d.FindSource(context.Background(), "one")
	two, _ := d.FindSource(context.Background(), "two")
	if one == nil || two == nil || one.ID == two.ID {
		t.Fatalf("sources = %v, %v", one, two)
	}
	if len(actionsFor(t, d, one)) != 1 || len(actionsFor(t, d, two)) != 2 {
		t.Error("actions leaked between sources")
	}

	_, err = newExtractor(d, 1).RunSources(context.Background(), []SourceSpec{{Name: "x", Path: "/nowhere"}}, open)
	if err == nil {
		t.Error("expected error for unopenable source")
	}
}
