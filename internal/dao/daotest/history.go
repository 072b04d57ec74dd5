package daotest

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/masmgr/harmony-go/internal/dao"
	"github.com/masmgr/harmony-go/internal/model"
)

// History seeds a linear history into a Dao, one Event per Commit call, for
// tests of code that reads extracted data.
type History struct {
	Dao     dao.Dao
	Source  *model.Source
	Items   map[string]*model.Item
	Authors map[string]*model.Author

	t    testing.TB
	last *model.Event
}

// NewHistory saves a Source named name in d.
func NewHistory(t testing.TB, d dao.Dao, name string) *History {
	t.Helper()
	src := &model.Source{Name: name, Kind: "git"}
	require.NoError(t, d.SaveSource(context.Background(), src))
	return &History{
		Dao:     d,
		Source:  src,
		Items:   map[string]*model.Item{},
		Authors: map[string]*model.Author{},
		t:       t,
	}
}

// Commit saves an Event by author whose only parent is the previous one,
// and one Action per entry of changes. The message doubles as NativeID.
func (h *History) Commit(author, message string, when time.Time, changes map[string]model.ActionKind) *model.Event {
	h.t.Helper()
	ctx := context.Background()

	a, ok := h.Authors[author]
	if !ok {
		a = model.NewAuthor(h.Source, author)
		require.NoError(h.t, h.Dao.SaveAuthor(ctx, a))
		h.Authors[author] = a
	}
	ev := &model.Event{
		Source:    h.Source,
		NativeID:  message,
		Timestamp: when,
		Authors:   []*model.Author{a},
		Metadata:  map[string]string{model.MetadataCommitMessage: message},
	}
	if h.last != nil {
		ev.Parents = []*model.Event{h.last}
	}
	require.NoError(h.t, h.Dao.SaveEvent(ctx, ev))

	paths := make([]string, 0, len(changes))
	for p := range changes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		it, ok := h.Items[p]
		if !ok {
			it = model.NewItem(h.Source, p)
			require.NoError(h.t, h.Dao.SaveItem(ctx, it))
			h.Items[p] = it
		}
		act := &model.Action{Source: h.Source, Item: it, Kind: changes[p], Event: ev, Parent: h.last}
		require.NoError(h.t, h.Dao.SaveAction(ctx, act))
	}
	h.last = ev
	return ev
}
