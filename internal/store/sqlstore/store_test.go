package sqlstore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masmgr/harmony-go/internal/dao"
	"github.com/masmgr/harmony-go/internal/dao/daotest"
	"github.com/masmgr/harmony-go/internal/logging"
	"github.com/masmgr/harmony-go/internal/model"
)

func TestStore_Contract(t *testing.T) {
	daotest.Run(t, func(t *testing.T) dao.Dao {
		path := filepath.Join(t.TempDir(), "harmony_test.db")
		s, err := New(context.Background(), path, logging.Discard())
		require.NoError(t, err)
		return s
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "harmony.db")

	s, err := New(ctx, path, logging.Discard())
	require.NoError(t, err)

	src := &model.Source{Name: "repo", Path: "/tmp/repo"}
	require.NoError(t, s.SaveSource(ctx, src))

	when := time.Date(2023, 7, 4, 9, 30, 0, 0, time.FixedZone("", 2*3600))
	ev := &model.Event{Source: src, NativeID: "abc", Timestamp: when, Tags: []string{"v0.1"}}
	require.NoError(t, s.SaveEvent(ctx, ev))
	require.NoError(t, s.Disconnect())

	// Migrations are applied again on reopen and must be a no-op.
	s, err = New(ctx, path, logging.Discard())
	require.NoError(t, err)
	defer s.Disconnect()

	got, err := s.FindSource(ctx, "repo")
	require.NoError(t, err)
	require.NotNil(t, got)

	e, err := s.GetEvent(ctx, got, "abc")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.Timestamp.Equal(when))
	_, offset := e.Timestamp.Zone()
	assert.Equal(t, 2*3600, offset)
	assert.Equal(t, []string{"v0.1"}, e.Tags)
}

func TestStore_SaveActionRequiresPersistedRefs(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, filepath.Join(t.TempDir(), "h.db"), logging.Discard())
	require.NoError(t, err)
	defer s.Disconnect()

	src := &model.Source{Name: "repo"}
	require.NoError(t, s.SaveSource(ctx, src))

	err = s.SaveAction(ctx, &model.Action{
		Source: src,
		Item:   model.NewItem(src, "unsaved.go"),
		Kind:   model.ActionCreate,
		Event:  &model.Event{Source: src, NativeID: "x"},
	})
	assert.Error(t, err)
}

func TestStore_MigrationsLogAtDebug(t *testing.T) {
	ctx := context.Background()

	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.InfoLevel)
	s, err := New(ctx, filepath.Join(t.TempDir(), "info.db"), log)
	require.NoError(t, err)
	require.NoError(t, s.Disconnect())
	assert.Empty(t, hook.AllEntries(), "nothing should be logged above debug")

	log, hook = logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	s, err = New(ctx, filepath.Join(t.TempDir(), "debug.db"), log)
	require.NoError(t, err)
	require.NoError(t, s.Disconnect())

	applied := false
	for _, e := range hook.AllEntries() {
		assert.Equal(t, logrus.DebugLevel, e.Level)
		if e.Data["component"] == "migrations" && strings.Contains(e.Message, "00001_init.sql") {
			applied = true
		}
	}
	assert.True(t, applied, "expected migration progress at debug level")
}

func TestStore_MigratesNanosecondTimestamps(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "v1.db")

	db, err := Open(path)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, goose.SetDialect("sqlite3"))
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrationsFS)
	require.NoError(t, goose.UpToContext(ctx, sqlDB, "migrations", 1))

	after := time.Date(2021, 6, 1, 8, 30, 15, 250, time.FixedZone("", 3600))
	before := time.Date(1969, 12, 31, 23, 59, 59, 500000000, time.UTC)
	require.NoError(t, db.Exec(`INSERT INTO sources (name, path, kind) VALUES ('legacy', '/legacy', 'git')`).Error)
	require.NoError(t, db.Exec(`INSERT INTO events (source_id, native_id, timestamp, tz_offset) VALUES (1, 'after', ?, 3600)`,
		after.UnixNano()).Error)
	require.NoError(t, db.Exec(`INSERT INTO events (source_id, native_id, timestamp, tz_offset) VALUES (1, 'before', ?, 0)`,
		before.UnixNano()).Error)
	require.NoError(t, sqlDB.Close())

	s, err := New(ctx, path, logging.Discard())
	require.NoError(t, err)
	defer s.Disconnect()

	src, err := s.FindSource(ctx, "legacy")
	require.NoError(t, err)
	require.NotNil(t, src)
	for id, want := range map[string]time.Time{"after": after, "before": before} {
		e, err := s.GetEvent(ctx, src, id)
		require.NoError(t, err)
		require.NotNil(t, e, id)
		assert.True(t, e.Timestamp.Equal(want), "%s: got %s, expected %s", id, e.Timestamp, want)
	}
}
