// Package daotest provides a contract test-suite that every dao.Dao
// implementation runs against itself.
package daotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masmgr/harmony-go/internal/dao"
	"github.com/masmgr/harmony-go/internal/model"
)

// Opener returns a fresh, empty Dao. The suite disconnects it.
type Opener func(t *testing.T) dao.Dao

type metricPayload struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

func (metricPayload) PayloadKind() string { return "daotest.metric" }

type notePayload struct {
	Text string `json:"text"`
}

func (notePayload) PayloadKind() string { return "daotest.note" }

// Run executes the contract suite.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, d dao.Dao)
	}{
		{"Sources", testSources},
		{"Authors", testAuthors},
		{"Items", testItems},
		{"Events", testEvents},
		{"EventTimesOutsideNanoRange", testEventTimes},
		{"Actions", testActions},
		{"SourceIsolation", testSourceIsolation},
		{"Data", testData},
		{"Refresh", testRefresh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := open(t)
			defer d.Disconnect()
			tt.fn(t, d)
		})
	}

	t.Run("Disconnect", func(t *testing.T) {
		testDisconnect(t, open(t))
	})
}

func newSource(t *testing.T, d dao.Dao, name string) *model.Source {
	t.Helper()
	src := &model.Source{Name: name, Path: "/repos/" + name, Kind: "git"}
	require.NoError(t, d.SaveSource(context.Background(), src))
	require.NotZero(t, src.ID)
	return src
}

func testSources(t *testing.T, d dao.Dao) {
	ctx := context.Background()

	got, err := d.GetSource(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = d.FindSource(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	src := newSource(t, d, "alpha")

	got, err = d.GetSource(ctx, src.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alpha", got.Name)
	assert.Equal(t, "/repos/alpha", got.Path)
	assert.Equal(t, "git", got.Kind)

	src.Path = "/moved/alpha"
	require.NoError(t, d.SaveSource(ctx, src))

	got, err = d.FindSource(ctx, "alpha")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, src.ID, got.ID)
	assert.Equal(t, "/moved/alpha", got.Path)

	// Saving under an ID the store has never assigned inserts the record.
	ghost := &model.Source{ID: 42, Name: "ghost", Path: "/repos/ghost"}
	require.NoError(t, d.SaveSource(ctx, ghost))
	assert.Equal(t, uint(42), ghost.ID)

	got, err = d.GetSource(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ghost", got.Name)

	got, err = d.FindSource(ctx, "ghost")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint(42), got.ID)

	next := newSource(t, d, "after-ghost")
	assert.Greater(t, next.ID, uint(42))
}

func testAuthors(t *testing.T, d dao.Dao) {
	ctx := context.Background()
	src := newSource(t, d, "authors")

	got, err := d.GetAuthor(ctx, src, "alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	a := model.NewAuthor(src, "alice")
	a.Email = "alice@example.com"
	require.NoError(t, d.SaveAuthor(ctx, a))
	require.NotZero(t, a.ID)

	got, err = d.GetAuthor(ctx, src, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, "alice@example.com", got.Email)
	require.NotNil(t, got.Source)
	assert.Equal(t, src.ID, got.Source.ID)

	a.Email = "alice@new.example.com"
	require.NoError(t, d.SaveAuthor(ctx, a))
	got, err = d.GetAuthor(ctx, src, "alice")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "alice@new.example.com", got.Email)
}

func testItems(t *testing.T, d dao.Dao) {
	ctx := context.Background()
	src := newSource(t, d, "items")

	got, err := d.GetItem(ctx, src, "src/main.go")
	require.NoError(t, err)
	assert.Nil(t, got)

	it := model.NewItem(src, "src/main.go")
	require.NoError(t, d.SaveItem(ctx, it))
	require.NotZero(t, it.ID)

	got, err = d.GetItem(ctx, src, "src/main.go")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, it.ID, got.ID)
	assert.Equal(t, "src/main.go", got.NativeID)
}

func saveEvent(t *testing.T, d dao.Dao, src *model.Source, id string, when time.Time, parents ...*model.Event) *model.Event {
	t.Helper()
	e := &model.Event{
		Source:    src,
		NativeID:  id,
		Timestamp: when,
		Parents:   parents,
		Metadata:  map[string]string{model.MetadataCommitMessage: "commit " + id},
	}
	require.NoError(t, d.SaveEvent(context.Background(), e))
	require.NotZero(t, e.ID)
	return e
}

func testEvents(t *testing.T, d dao.Dao) {
	ctx := context.Background()
	src := newSource(t, d, "events")

	got, err := d.GetEvent(ctx, src, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	events, err := d.GetEvents(ctx, src)
	require.NoError(t, err)
	assert.Empty(t, events)

	author := model.NewAuthor(src, "bob")
	require.NoError(t, d.SaveAuthor(ctx, author))

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	root := saveEvent(t, d, src, "c1", base)
	left := saveEvent(t, d, src, "c2", base.Add(time.Hour), root)
	right := saveEvent(t, d, src, "c3", base.Add(2*time.Hour), root)

	merge := &model.Event{
		Source:    src,
		NativeID:  "c4",
		Timestamp: base.Add(3 * time.Hour),
		Parents:   []*model.Event{left, right},
		Authors:   []*model.Author{author},
		Tags:      []string{"v1.0", "release"},
		Metadata: map[string]string{
			model.MetadataCommitMessage: "Merge branch 'right'\n\nDetails",
			model.MetadataAuthorName:    "bob",
		},
	}
	require.NoError(t, d.SaveEvent(ctx, merge))

	got, err = d.GetEvent(ctx, src, "c4")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, merge.ID, got.ID)
	assert.True(t, got.Timestamp.Equal(merge.Timestamp), "timestamp %v != %v", got.Timestamp, merge.Timestamp)
	require.Len(t, got.Parents, 2)
	assert.Equal(t, "c2", got.Parents[0].NativeID)
	assert.Equal(t, "c3", got.Parents[1].NativeID)
	require.Len(t, got.Authors, 1)
	assert.Equal(t, "bob", got.Authors[0].NativeID)
	assert.Equal(t, []string{"v1.0", "release"}, got.Tags)
	assert.Equal(t, "Merge branch 'right'\n\nDetails", got.Message())
	assert.Equal(t, "bob", got.Metadata[model.MetadataAuthorName])

	events, err = d.GetEvents(ctx, src)
	require.NoError(t, err)
	require.Len(t, events, 4)
	for i, want := range []string{"c1", "c2", "c3", "c4"} {
		assert.Equal(t, want, events[i].NativeID)
	}
	assert.Empty(t, events[0].Parents)
	require.Len(t, events[3].Parents, 2)
	assert.Same(t, events[1], events[3].Parents[0])
	assert.Same(t, events[2], events[3].Parents[1])
}

func testEventTimes(t *testing.T, d dao.Dao) {
	ctx := context.Background()
	src := newSource(t, d, "times")

	times := map[string]time.Time{
		"old":    time.Date(1600, 3, 1, 12, 0, 0, 123456789, time.FixedZone("", 5*3600+1800)),
		"future": time.Date(2400, 12, 31, 23, 59, 59, 1, time.FixedZone("", -8*3600)),
		"epoch":  time.Unix(0, 0).UTC(),
	}
	for id, when := range times {
		require.NoError(t, d.SaveEvent(ctx, &model.Event{Source: src, NativeID: id, Timestamp: when}))
	}

	for id, when := range times {
		got, err := d.GetEvent(ctx, src, id)
		require.NoError(t, err)
		require.NotNil(t, got, id)
		assert.True(t, got.Timestamp.Equal(when), "%s: got %s, expected %s", id, got.Timestamp, when)
		_, gotOffset := got.Timestamp.Zone()
		_, wantOffset := when.Zone()
		assert.Equal(t, wantOffset, gotOffset, id)
	}
}

func testActions(t *testing.T, d dao.Dao) {
	ctx := context.Background()
	src := newSource(t, d, "actions")

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	root := saveEvent(t, d, src, "r1", base)
	child := saveEvent(t, d, src, "r2", base.Add(time.Minute), root)

	x := model.NewItem(src, "x.txt")
	require.NoError(t, d.SaveItem(ctx, x))

	create := &model.Action{Source: src, Item: x, Kind: model.ActionCreate, Event: root}
	require.NoError(t, d.SaveAction(ctx, create))
	require.NotZero(t, create.ID)

	edit := &model.Action{Source: src, Item: x, Kind: model.ActionEdit, Event: child, Parent: root}
	require.NoError(t, d.SaveAction(ctx, edit))
	require.NotZero(t, edit.ID)
	assert.NotEqual(t, create.ID, edit.ID)

	dup := &model.Action{Source: src, Item: x, Kind: model.ActionEdit, Event: child, Parent: root}
	require.NoError(t, d.SaveAction(ctx, dup))
	assert.Equal(t, edit.ID, dup.ID)

	dupRoot := &model.Action{Source: src, Item: x, Kind: model.ActionCreate, Event: root}
	require.NoError(t, d.SaveAction(ctx, dupRoot))
	assert.Equal(t, create.ID, dupRoot.ID)

	actions, err := d.GetActions(ctx, src)
	require.NoError(t, err)
	require.Len(t, actions, 2)

	assert.Equal(t, model.ActionCreate, actions[0].Kind)
	assert.Equal(t, "x.txt", actions[0].Item.NativeID)
	assert.Equal(t, "r1", actions[0].Event.NativeID)
	assert.Nil(t, actions[0].Parent)

	assert.Equal(t, model.ActionEdit, actions[1].Kind)
	assert.Equal(t, "r2", actions[1].Event.NativeID)
	require.NotNil(t, actions[1].Parent)
	assert.Equal(t, "r1", actions[1].Parent.NativeID)
}

func testSourceIsolation(t *testing.T, d dao.Dao) {
	ctx := context.Background()
	a := newSource(t, d, "iso-a")
	b := newSource(t, d, "iso-b")

	when := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	saveEvent(t, d, a, "same", when)
	require.NoError(t, d.SaveItem(ctx, model.NewItem(a, "README")))
	require.NoError(t, d.SaveAuthor(ctx, model.NewAuthor(a, "carol")))

	ev, err := d.GetEvent(ctx, b, "same")
	require.NoError(t, err)
	assert.Nil(t, ev)

	it, err := d.GetItem(ctx, b, "README")
	require.NoError(t, err)
	assert.Nil(t, it)

	au, err := d.GetAuthor(ctx, b, "carol")
	require.NoError(t, err)
	assert.Nil(t, au)

	other := saveEvent(t, d, b, "same", when)
	mine, err := d.GetEvent(ctx, a, "same")
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.NotEqual(t, other.ID, mine.ID)

	events, err := d.GetEvents(ctx, b)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func testData(t *testing.T, d dao.Dao) {
	ctx := context.Background()
	src := newSource(t, d, "data")
	it := model.NewItem(src, "main.go")
	require.NoError(t, d.SaveItem(ctx, it))
	key := it.ElementKey()

	_, ok, err := dao.GetData[metricPayload](ctx, d, "churn", key)
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := dao.GetDataList[metricPayload](ctx, d, "churn", key)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, dao.SaveData(ctx, d, "churn", key, metricPayload{Value: 1.5, Label: "first"}))
	require.NoError(t, dao.SaveData(ctx, d, "churn", key, metricPayload{Value: 2.5, Label: "second"}))
	require.NoError(t, dao.SaveData(ctx, d, "churn", key, notePayload{Text: "hello"}))
	require.NoError(t, dao.SaveData(ctx, d, "other", key, metricPayload{Value: 9}))
	require.NoError(t, dao.SaveData(ctx, d, "churn", model.ElementKey{Kind: model.ElementEvent, ID: it.ID}, metricPayload{Value: 7}))

	first, ok, err := dao.GetData[metricPayload](ctx, d, "churn", key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, metricPayload{Value: 1.5, Label: "first"}, first)

	list, err = dao.GetDataList[metricPayload](ctx, d, "churn", key)
	require.NoError(t, err)
	assert.Equal(t, []metricPayload{{Value: 1.5, Label: "first"}, {Value: 2.5, Label: "second"}}, list)

	note, ok, err := dao.GetData[notePayload](ctx, d, "churn", key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", note.Text)

	raw, err := d.ListData(ctx, "other", key, metricPayload{}.PayloadKind())
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, "other", raw[0].Analysis)
	assert.Equal(t, key, raw[0].Key)
	assert.NotZero(t, raw[0].ID)
}

func testRefresh(t *testing.T, d dao.Dao) {
	ctx := context.Background()
	src := newSource(t, d, "refresh")

	src.Path = "/unsaved"
	require.NoError(t, d.RefreshElement(ctx, src))
	assert.Equal(t, "/repos/refresh", src.Path)

	au := model.NewAuthor(src, "dave")
	au.Email = "dave@example.com"
	require.NoError(t, d.SaveAuthor(ctx, au))
	au.Email = "changed@example.com"
	require.NoError(t, d.RefreshElement(ctx, au))
	assert.Equal(t, "dave@example.com", au.Email)

	it := model.NewItem(src, "a.go")
	require.NoError(t, d.SaveItem(ctx, it))
	it.NativeID = "b.go"
	require.NoError(t, d.RefreshElement(ctx, it))
	assert.Equal(t, "a.go", it.NativeID)

	ev := saveEvent(t, d, src, "e1", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	ev.Tags = []string{"local-only"}
	ev.Metadata[model.MetadataCommitMessage] = "edited"
	require.NoError(t, d.RefreshElement(ctx, ev))
	assert.Empty(t, ev.Tags)
	assert.Equal(t, "commit e1", ev.Message())

	ac := &model.Action{Source: src, Item: it, Kind: model.ActionCreate, Event: ev}
	require.NoError(t, d.SaveAction(ctx, ac))
	ac.Kind = model.ActionDelete
	require.NoError(t, d.RefreshElement(ctx, ac))
	assert.Equal(t, model.ActionCreate, ac.Kind)

	missing := &model.Item{ID: 4242}
	assert.Error(t, d.RefreshElement(ctx, missing))
}

func testDisconnect(t *testing.T, d dao.Dao) {
	ctx := context.Background()
	require.NoError(t, d.Disconnect())

	_, err := d.GetSource(ctx, 1)
	assert.True(t, errors.Is(err, dao.ErrDisconnected), "GetSource after Disconnect: %v", err)

	err = d.SaveSource(ctx, &model.Source{Name: "late"})
	assert.True(t, errors.Is(err, dao.ErrDisconnected), "SaveSource after Disconnect: %v", err)
}
