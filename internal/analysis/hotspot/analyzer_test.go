package hotspot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masmgr/harmony-go/internal/dao"
	"github.com/masmgr/harmony-go/internal/dao/daotest"
	"github.com/masmgr/harmony-go/internal/logging"
	"github.com/masmgr/harmony-go/internal/model"
	"github.com/masmgr/harmony-go/internal/store/boltstore"
)

func newHistory(t *testing.T) *daotest.History {
	t.Helper()
	s, err := boltstore.New(filepath.Join(t.TempDir(), "h.bolt"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Disconnect() })
	return daotest.NewHistory(t, s, "repo")
}

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func day(n int) time.Time { return t0.Add(time.Duration(n) * 24 * time.Hour) }

func seed(t *testing.T) *daotest.History {
	h := newHistory(t)
	h.Commit("alice", "initial import", day(0), map[string]model.ActionKind{"a.go": model.ActionCreate, "b.go": model.ActionCreate})
	h.Commit("alice", "fix: crash in a", day(1), map[string]model.ActionKind{"a.go": model.ActionEdit})
	h.Commit("alice", "add c", day(2), map[string]model.ActionKind{"c.go": model.ActionCreate})
	h.Commit("bob", "bug: c broke a", day(3), map[string]model.ActionKind{"a.go": model.ActionEdit, "c.go": model.ActionEdit})
	h.Commit("bob", "fix: drop c", day(4), map[string]model.ActionKind{"c.go": model.ActionDelete})
	return h
}

func defaultOptions() Options {
	return Options{Patterns: []string{`\bfix\b`, `\bbug\b`}, BurstDays: 7}
}

func TestAnalyzer_Run(t *testing.T) {
	h := seed(t)
	a, err := NewAnalyzer(h.Dao, defaultOptions(), logging.Discard())
	require.NoError(t, err)

	res, err := a.Run(context.Background(), h.Source)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Events)
	assert.Equal(t, 3, res.Fixes)
	assert.True(t, res.Since.Equal(day(0)))
	assert.True(t, res.Until.Equal(day(4)))

	require.Len(t, res.Scores, 3)
	assert.Equal(t, []string{"a.go", "c.go", "b.go"}, []string{res.Scores[0].Path, res.Scores[1].Path, res.Scores[2].Path})

	top := res.Scores[0]
	assert.Equal(t, 2, top.Fixes)
	assert.Equal(t, 3, top.Changes)
	assert.Equal(t, 2, top.Authors)
	assert.True(t, top.LastChange.Equal(day(3)))
	assert.InDelta(t, SigmoidScore(day(4), day(0), day(1))+SigmoidScore(day(4), day(0), day(3)), top.Score, 1e-9)
	assert.Equal(t, 1.0, top.Burst)

	// The Delete of c.go by a fix does not count.
	assert.Equal(t, 1, res.Scores[1].Fixes)
	assert.Equal(t, 2, res.Scores[1].Changes)
	assert.Zero(t, res.Scores[2].Score)
}

func TestAnalyzer_StoresLatestScorePerItem(t *testing.T) {
	h := seed(t)
	ctx := context.Background()
	a, err := NewAnalyzer(h.Dao, defaultOptions(), logging.Discard())
	require.NoError(t, err)

	first, err := a.Run(ctx, h.Source)
	require.NoError(t, err)
	second, err := a.Run(ctx, h.Source)
	require.NoError(t, err)
	require.NotEqual(t, first.Session, second.Session)

	got, ok, err := Latest(ctx, h.Dao, h.Items["a.go"])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.Session, got.Session)
	assert.Equal(t, "a.go", got.Path)
	assert.Equal(t, 2, got.Fixes)

	all, err := dao.GetDataList[Score](ctx, h.Dao, AnalysisName, h.Items["a.go"].ElementKey())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, ok, err = Latest(ctx, h.Dao, &model.Item{ID: 999})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnalyzer_WindowAndMax(t *testing.T) {
	h := newHistory(t)
	old := t0.AddDate(-3, 0, 0)
	h.Commit("alice", "fix: ancient", old, map[string]model.ActionKind{"old.go": model.ActionCreate})
	h.Commit("alice", "fix: recent", day(0), map[string]model.ActionKind{"new.go": model.ActionCreate})
	h.Commit("alice", "fix: again", day(1), map[string]model.ActionKind{"new.go": model.ActionEdit, "other.go": model.ActionCreate})

	opts := defaultOptions()
	opts.WindowYears = 1
	opts.Max = 1
	a, err := NewAnalyzer(h.Dao, opts, logging.Discard())
	require.NoError(t, err)

	res, err := a.Run(context.Background(), h.Source)
	require.NoError(t, err)
	assert.True(t, res.Since.Equal(day(1).AddDate(-1, 0, 0)))
	assert.Equal(t, 2, res.Events)
	require.Len(t, res.Scores, 1)
	assert.Equal(t, "new.go", res.Scores[0].Path)

	_, ok, err := Latest(context.Background(), h.Dao, h.Items["old.go"])
	require.NoError(t, err)
	assert.False(t, ok, "item outside the window should not be scored")
}

func TestAnalyzer_EmptySource(t *testing.T) {
	h := newHistory(t)
	a, err := NewAnalyzer(h.Dao, defaultOptions(), logging.Discard())
	require.NoError(t, err)

	res, err := a.Run(context.Background(), h.Source)
	require.NoError(t, err)
	assert.Empty(t, res.Scores)
	assert.Zero(t, res.Events)
}

func TestNewAnalyzer_InvalidPattern(t *testing.T) {
	h := newHistory(t)
	_, err := NewAnalyzer(h.Dao, Options{Patterns: []string{"("}}, logging.Discard())
	assert.Error(t, err)
}
