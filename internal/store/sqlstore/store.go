package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/masmgr/harmony-go/internal/dao"
	"github.com/masmgr/harmony-go/internal/model"
)

// Store implements dao.Dao on SQLite through GORM.
type Store struct {
	db     *gorm.DB
	logger logrus.FieldLogger
	closed atomic.Bool
}

// Compile-time interface conformance check.
var _ dao.Dao = (*Store)(nil)

func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
	}, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection serializes access.
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// New opens the database at path, applies migrations and returns a Store.
func New(ctx context.Context, path string, log logrus.FieldLogger) (*Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := RunMigrations(ctx, db, log); err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.WithField("path", path).Debug("sqlite store ready")
	return &Store{db: db, logger: log}, nil
}

func (s *Store) conn(ctx context.Context) (*gorm.DB, error) {
	if s.closed.Load() {
		return nil, dao.ErrDisconnected
	}
	return s.db.WithContext(ctx), nil
}

func (s *Store) Disconnect() error {
	if s.closed.Swap(true) {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// first runs q and reports whether a row was found.
func first(q *gorm.DB, dest any) (bool, error) {
	err := q.Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) SaveSource(ctx context.Context, src *model.Source) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	m := SourceModel{ID: src.ID, Name: src.Name, Path: src.Path, Kind: src.Kind}
	if m.Kind == "" {
		m.Kind = "git"
	}
	if m.ID == 0 {
		err = db.Create(&m).Error
	} else {
		res := db.Model(&SourceModel{ID: m.ID}).Updates(map[string]any{
			"name": m.Name,
			"path": m.Path,
			"kind": m.Kind,
		})
		err = res.Error
		if err == nil && res.RowsAffected == 0 {
			// Unknown ID: insert under it, like the bolt store.
			err = db.Create(&m).Error
		}
	}
	if err != nil {
		return fmt.Errorf("save source %q: %w", src.Name, err)
	}
	src.ID = m.ID
	src.Kind = m.Kind
	return nil
}

func toSource(m SourceModel) *model.Source {
	return &model.Source{ID: m.ID, Name: m.Name, Path: m.Path, Kind: m.Kind}
}

func (s *Store) GetSource(ctx context.Context, id uint) (*model.Source, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var m SourceModel
	ok, err := first(db.Where("id = ?", id), &m)
	if err != nil || !ok {
		return nil, err
	}
	return toSource(m), nil
}

func (s *Store) FindSource(ctx context.Context, name string) (*model.Source, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var m SourceModel
	ok, err := first(db.Where("name = ?", name), &m)
	if err != nil || !ok {
		return nil, err
	}
	return toSource(m), nil
}

func (s *Store) SaveAuthor(ctx context.Context, a *model.Author) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if a.Source == nil || a.Source.ID == 0 {
		return fmt.Errorf("save author %q: source is not persisted", a.NativeID)
	}
	m := AuthorModel{ID: a.ID, SourceID: a.Source.ID, NativeID: a.NativeID, Name: a.Name, Email: a.Email}
	if m.ID == 0 {
		err = db.Create(&m).Error
	} else {
		err = db.Save(&m).Error
	}
	if err != nil {
		return fmt.Errorf("save author %q: %w", a.NativeID, err)
	}
	a.ID = m.ID
	return nil
}

func toAuthor(src *model.Source, m AuthorModel) *model.Author {
	return &model.Author{ID: m.ID, Source: src, NativeID: m.NativeID, Name: m.Name, Email: m.Email}
}

func (s *Store) GetAuthor(ctx context.Context, src *model.Source, nativeID string) (*model.Author, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var m AuthorModel
	ok, err := first(db.Where("source_id = ? AND native_id = ?", src.ID, nativeID), &m)
	if err != nil || !ok {
		return nil, err
	}
	return toAuthor(src, m), nil
}

func (s *Store) SaveItem(ctx context.Context, i *model.Item) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if i.Source == nil || i.Source.ID == 0 {
		return fmt.Errorf("save item %q: source is not persisted", i.NativeID)
	}
	m := ItemModel{ID: i.ID, SourceID: i.Source.ID, NativeID: i.NativeID}
	if m.ID == 0 {
		err = db.Create(&m).Error
	} else {
		err = db.Save(&m).Error
	}
	if err != nil {
		return fmt.Errorf("save item %q: %w", i.NativeID, err)
	}
	i.ID = m.ID
	return nil
}

func (s *Store) GetItem(ctx context.Context, src *model.Source, nativeID string) (*model.Item, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var m ItemModel
	ok, err := first(db.Where("source_id = ? AND native_id = ?", src.ID, nativeID), &m)
	if err != nil || !ok {
		return nil, err
	}
	return &model.Item{ID: m.ID, Source: src, NativeID: m.NativeID}, nil
}

func (s *Store) SaveEvent(ctx context.Context, e *model.Event) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if e.Source == nil || e.Source.ID == 0 {
		return fmt.Errorf("save event %s: source is not persisted", e.NativeID)
	}

	_, offset := e.Timestamp.Zone()
	m := EventModel{
		ID:             e.ID,
		SourceID:       e.Source.ID,
		NativeID:       e.NativeID,
		Timestamp:      e.Timestamp.Unix(),
		TimestampNanos: e.Timestamp.Nanosecond(),
		TZOffset:       offset,
		Tags:           e.Tags,
		Metadata:       e.Metadata,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if m.ID == 0 {
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Save(&m).Error; err != nil {
				return err
			}
			if err := tx.Where("event_id = ?", m.ID).Delete(&EventParentModel{}).Error; err != nil {
				return err
			}
			if err := tx.Where("event_id = ?", m.ID).Delete(&EventAuthorModel{}).Error; err != nil {
				return err
			}
		}

		for pos, p := range e.Parents {
			if p.ID == 0 {
				return fmt.Errorf("parent %s is not persisted", p.NativeID)
			}
			if err := tx.Create(&EventParentModel{EventID: m.ID, Position: pos, ParentID: p.ID}).Error; err != nil {
				return err
			}
		}
		for pos, a := range e.Authors {
			if a.ID == 0 {
				return fmt.Errorf("author %s is not persisted", a.NativeID)
			}
			if err := tx.Create(&EventAuthorModel{EventID: m.ID, Position: pos, AuthorID: a.ID}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save event %s: %w", e.NativeID, err)
	}
	e.ID = m.ID
	return nil
}

func toEvent(src *model.Source, m EventModel) *model.Event {
	ts := time.Unix(m.Timestamp, int64(m.TimestampNanos)).In(time.FixedZone("", m.TZOffset))
	return &model.Event{
		ID:        m.ID,
		Source:    src,
		NativeID:  m.NativeID,
		Timestamp: ts,
		Tags:      m.Tags,
		Metadata:  m.Metadata,
	}
}

// loadEventLinks fills parents and authors of e. Parents are resolved
// through known when present, otherwise loaded without their own links.
func (s *Store) loadEventLinks(db *gorm.DB, src *model.Source, e *model.Event, known map[uint]*model.Event) error {
	var parents []EventParentModel
	if err := db.Where("event_id = ?", e.ID).Order("position").Find(&parents).Error; err != nil {
		return err
	}
	e.Parents = nil
	for _, p := range parents {
		if pe, ok := known[p.ParentID]; ok {
			e.Parents = append(e.Parents, pe)
			continue
		}
		var pm EventModel
		if err := db.Where("id = ?", p.ParentID).Take(&pm).Error; err != nil {
			return fmt.Errorf("load parent %d: %w", p.ParentID, err)
		}
		e.Parents = append(e.Parents, toEvent(src, pm))
	}

	var authors []AuthorModel
	err := db.Table("authors").
		Select("authors.*").
		Joins("JOIN event_authors ON event_authors.author_id = authors.id").
		Where("event_authors.event_id = ?", e.ID).
		Order("event_authors.position").
		Find(&authors).Error
	if err != nil {
		return err
	}
	e.Authors = nil
	for _, a := range authors {
		e.Authors = append(e.Authors, toAuthor(src, a))
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, src *model.Source, nativeID string) (*model.Event, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var m EventModel
	ok, err := first(db.Where("source_id = ? AND native_id = ?", src.ID, nativeID), &m)
	if err != nil || !ok {
		return nil, err
	}
	e := toEvent(src, m)
	if err := s.loadEventLinks(db, src, e, nil); err != nil {
		return nil, fmt.Errorf("get event %s: %w", nativeID, err)
	}
	return e, nil
}

func (s *Store) GetEvents(ctx context.Context, src *model.Source) ([]*model.Event, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows []EventModel
	if err := db.Where("source_id = ?", src.ID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	events := make([]*model.Event, 0, len(rows))
	byID := make(map[uint]*model.Event, len(rows))
	for _, m := range rows {
		e := toEvent(src, m)
		events = append(events, e)
		byID[e.ID] = e
	}

	var links []EventParentModel
	err = db.Table("event_parents").
		Select("event_parents.*").
		Joins("JOIN events ON events.id = event_parents.event_id").
		Where("events.source_id = ?", src.ID).
		Order("event_parents.event_id, event_parents.position").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("get event parents: %w", err)
	}
	for _, l := range links {
		child, parent := byID[l.EventID], byID[l.ParentID]
		if child == nil || parent == nil {
			continue
		}
		child.Parents = append(child.Parents, parent)
	}

	var authorLinks []EventAuthorModel
	err = db.Table("event_authors").
		Select("event_authors.*").
		Joins("JOIN events ON events.id = event_authors.event_id").
		Where("events.source_id = ?", src.ID).
		Order("event_authors.event_id, event_authors.position").
		Find(&authorLinks).Error
	if err != nil {
		return nil, fmt.Errorf("get event authors: %w", err)
	}
	var authorRows []AuthorModel
	if err := db.Where("source_id = ?", src.ID).Find(&authorRows).Error; err != nil {
		return nil, fmt.Errorf("get authors: %w", err)
	}
	authors := make(map[uint]*model.Author, len(authorRows))
	for _, a := range authorRows {
		authors[a.ID] = toAuthor(src, a)
	}
	for _, l := range authorLinks {
		if e, a := byID[l.EventID], authors[l.AuthorID]; e != nil && a != nil {
			e.Authors = append(e.Authors, a)
		}
	}

	return events, nil
}

func (s *Store) SaveAction(ctx context.Context, a *model.Action) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if a.Source == nil || a.Item == nil || a.Event == nil {
		return fmt.Errorf("save action: source, item and event are required")
	}
	if a.Item.ID == 0 || a.Event.ID == 0 {
		return fmt.Errorf("save action on %s: item or event is not persisted", a.Item.NativeID)
	}

	m := ActionModel{
		ID:       a.ID,
		SourceID: a.Source.ID,
		ItemID:   a.Item.ID,
		Kind:     string(a.Kind),
		EventID:  a.Event.ID,
	}
	if a.Parent != nil {
		if a.Parent.ID == 0 {
			return fmt.Errorf("save action on %s: parent event is not persisted", a.Item.NativeID)
		}
		m.ParentEventID = a.Parent.ID
	}

	if m.ID != 0 {
		if err := db.Save(&m).Error; err != nil {
			return fmt.Errorf("save action %d: %w", m.ID, err)
		}
		return nil
	}

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&m)
	if res.Error != nil {
		return fmt.Errorf("save action on %s: %w", a.Item.NativeID, res.Error)
	}
	if res.RowsAffected == 0 {
		var existing ActionModel
		err := db.Where("event_id = ? AND parent_event_id = ? AND item_id = ? AND kind = ?",
			m.EventID, m.ParentEventID, m.ItemID, m.Kind).Take(&existing).Error
		if err != nil {
			return fmt.Errorf("load existing action on %s: %w", a.Item.NativeID, err)
		}
		m.ID = existing.ID
	}
	a.ID = m.ID
	return nil
}

func (s *Store) GetActions(ctx context.Context, src *model.Source) ([]*model.Action, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows []ActionModel
	if err := db.Where("source_id = ?", src.ID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get actions: %w", err)
	}
	if len(rows) == 0 {
		return []*model.Action{}, nil
	}

	var itemRows []ItemModel
	if err := db.Where("source_id = ?", src.ID).Find(&itemRows).Error; err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}
	items := make(map[uint]*model.Item, len(itemRows))
	for _, m := range itemRows {
		items[m.ID] = &model.Item{ID: m.ID, Source: src, NativeID: m.NativeID}
	}

	var eventRows []EventModel
	if err := db.Where("source_id = ?", src.ID).Find(&eventRows).Error; err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	events := make(map[uint]*model.Event, len(eventRows))
	for _, m := range eventRows {
		events[m.ID] = toEvent(src, m)
	}

	actions := make([]*model.Action, 0, len(rows))
	for _, m := range rows {
		a := &model.Action{
			ID:     m.ID,
			Source: src,
			Item:   items[m.ItemID],
			Kind:   model.ActionKind(m.Kind),
			Event:  events[m.EventID],
		}
		if m.ParentEventID != 0 {
			a.Parent = events[m.ParentEventID]
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func (s *Store) SaveData(ctx context.Context, d *model.Data) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	m := DataModel{
		ID:          d.ID,
		Analysis:    d.Analysis,
		ElementKind: int(d.Key.Kind),
		ElementID:   d.Key.ID,
		PayloadKind: d.PayloadKind,
		Payload:     d.Payload,
	}
	if m.ID == 0 {
		err = db.Create(&m).Error
	} else {
		err = db.Save(&m).Error
	}
	if err != nil {
		return fmt.Errorf("save %s data for %s: %w", d.Analysis, d.Key, err)
	}
	d.ID = m.ID
	return nil
}

func (s *Store) ListData(ctx context.Context, analysis string, key model.ElementKey, payloadKind string) ([]*model.Data, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []DataModel
	err = db.Where("analysis = ? AND element_kind = ? AND element_id = ? AND payload_kind = ?",
		analysis, int(key.Kind), key.ID, payloadKind).Order("id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list %s data for %s: %w", analysis, key, err)
	}
	result := make([]*model.Data, 0, len(rows))
	for _, m := range rows {
		result = append(result, &model.Data{
			ID:          m.ID,
			Analysis:    m.Analysis,
			Key:         model.ElementKey{Kind: model.ElementKind(m.ElementKind), ID: m.ElementID},
			PayloadKind: m.PayloadKind,
			Payload:     m.Payload,
		})
	}
	return result, nil
}

func (s *Store) RefreshElement(ctx context.Context, el model.Element) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	key := el.ElementKey()

	var found bool
	switch v := el.(type) {
	case *model.Source:
		var m SourceModel
		if found, err = first(db.Where("id = ?", v.ID), &m); found {
			*v = *toSource(m)
		}
	case *model.Author:
		var m AuthorModel
		if found, err = first(db.Where("id = ?", v.ID), &m); found {
			*v = *toAuthor(s.sourceOf(ctx, v.Source, m.SourceID), m)
		}
	case *model.Item:
		var m ItemModel
		if found, err = first(db.Where("id = ?", v.ID), &m); found {
			*v = model.Item{ID: m.ID, Source: s.sourceOf(ctx, v.Source, m.SourceID), NativeID: m.NativeID}
		}
	case *model.Event:
		var m EventModel
		if found, err = first(db.Where("id = ?", v.ID), &m); found {
			src := s.sourceOf(ctx, v.Source, m.SourceID)
			e := toEvent(src, m)
			if err = s.loadEventLinks(db, src, e, nil); err == nil {
				*v = *e
			}
		}
	case *model.Action:
		var m ActionModel
		if found, err = first(db.Where("id = ?", v.ID), &m); found {
			err = s.refreshAction(ctx, db, v, m)
		}
	default:
		return fmt.Errorf("refresh %T: unsupported element", el)
	}
	if err != nil {
		return fmt.Errorf("refresh %s: %w", key, err)
	}
	if !found {
		return fmt.Errorf("refresh %s: not found", key)
	}
	return nil
}

func (s *Store) refreshAction(ctx context.Context, db *gorm.DB, a *model.Action, m ActionModel) error {
	src := s.sourceOf(ctx, a.Source, m.SourceID)

	var im ItemModel
	if err := db.Where("id = ?", m.ItemID).Take(&im).Error; err != nil {
		return err
	}
	var em EventModel
	if err := db.Where("id = ?", m.EventID).Take(&em).Error; err != nil {
		return err
	}
	refreshed := model.Action{
		ID:     m.ID,
		Source: src,
		Item:   &model.Item{ID: im.ID, Source: src, NativeID: im.NativeID},
		Kind:   model.ActionKind(m.Kind),
		Event:  toEvent(src, em),
	}
	if m.ParentEventID != 0 {
		var pm EventModel
		if err := db.Where("id = ?", m.ParentEventID).Take(&pm).Error; err != nil {
			return err
		}
		refreshed.Parent = toEvent(src, pm)
	}
	*a = refreshed
	return nil
}

// sourceOf keeps the caller's source pointer when it matches id.
func (s *Store) sourceOf(ctx context.Context, current *model.Source, id uint) *model.Source {
	if current != nil && current.ID == id {
		return current
	}
	src, err := s.GetSource(ctx, id)
	if err != nil || src == nil {
		return &model.Source{ID: id}
	}
	return src
}
