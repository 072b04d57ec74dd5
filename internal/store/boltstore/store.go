package boltstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/masmgr/harmony-go/internal/dao"
	"github.com/masmgr/harmony-go/internal/model"
)

// Store implements dao.Dao on a bbolt file. Records are JSON encoded;
// secondary index buckets map native identifiers to record IDs.
type Store struct {
	mu     sync.RWMutex
	db     *bolt.DB
	logger logrus.FieldLogger
}

// Compile-time interface conformance check.
var _ dao.Dao = (*Store)(nil)

// New opens (or creates) the bbolt file at path.
func New(path string, log logrus.FieldLogger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	log.WithField("path", path).Debug("bolt store ready")
	return &Store{db: db, logger: log}, nil
}

func (s *Store) view(fn func(tx *bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return dao.ErrDisconnected
	}
	return s.db.View(fn)
}

func (s *Store) update(fn func(tx *bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return dao.ErrDisconnected
	}
	return s.db.Update(fn)
}

func (s *Store) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func toSource(r sourceRecord) *model.Source {
	return &model.Source{ID: r.ID, Name: r.Name, Path: r.Path, Kind: r.Kind}
}

func (s *Store) SaveSource(_ context.Context, src *model.Source) error {
	err := s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSources)
		byName := tx.Bucket(bucketSourcesByName)

		r := sourceRecord{ID: src.ID, Name: src.Name, Path: src.Path, Kind: src.Kind}
		if r.Kind == "" {
			r.Kind = "git"
		}
		if id, ok := lookupID(byName, []byte(r.Name)); ok && id != r.ID {
			return fmt.Errorf("name already used by source %d", id)
		}
		if r.ID == 0 {
			id, err := nextID(b)
			if err != nil {
				return err
			}
			r.ID = id
		} else if old, ok, err := getRecord[sourceRecord](b, itob(r.ID)); err != nil {
			return err
		} else if ok && old.Name != r.Name {
			if err := byName.Delete([]byte(old.Name)); err != nil {
				return err
			}
		} else if uint64(r.ID) > b.Sequence() {
			if err := b.SetSequence(uint64(r.ID)); err != nil {
				return err
			}
		}
		if err := putRecord(b, itob(r.ID), r); err != nil {
			return err
		}
		if err := byName.Put([]byte(r.Name), itob(r.ID)); err != nil {
			return err
		}
		src.ID = r.ID
		src.Kind = r.Kind
		return nil
	})
	if err != nil {
		return fmt.Errorf("save source %q: %w", src.Name, err)
	}
	return nil
}

func (s *Store) GetSource(_ context.Context, id uint) (*model.Source, error) {
	var src *model.Source
	err := s.view(func(tx *bolt.Tx) error {
		r, ok, err := getRecord[sourceRecord](tx.Bucket(bucketSources), itob(id))
		if ok {
			src = toSource(r)
		}
		return err
	})
	return src, err
}

func (s *Store) FindSource(_ context.Context, name string) (*model.Source, error) {
	var src *model.Source
	err := s.view(func(tx *bolt.Tx) error {
		id, ok := lookupID(tx.Bucket(bucketSourcesByName), []byte(name))
		if !ok {
			return nil
		}
		r, ok, err := getRecord[sourceRecord](tx.Bucket(bucketSources), itob(id))
		if ok {
			src = toSource(r)
		}
		return err
	})
	return src, err
}

// saveIndexed stores a record whose identity within a source is nativeID.
func saveIndexed(tx *bolt.Tx, bucket, index []byte, id *uint, sourceID uint, nativeID string, record func(id uint) any) error {
	b := tx.Bucket(bucket)
	idx := tx.Bucket(index)
	key := nativeKey(sourceID, nativeID)

	if existing, ok := lookupID(idx, key); ok && existing != *id {
		if *id != 0 {
			return fmt.Errorf("native id %q already used by record %d", nativeID, existing)
		}
		return fmt.Errorf("native id %q already exists", nativeID)
	}
	if *id == 0 {
		next, err := nextID(b)
		if err != nil {
			return err
		}
		*id = next
	}
	if err := putRecord(b, itob(*id), record(*id)); err != nil {
		return err
	}
	return idx.Put(key, itob(*id))
}

func (s *Store) SaveAuthor(_ context.Context, a *model.Author) error {
	if a.Source == nil || a.Source.ID == 0 {
		return fmt.Errorf("save author %q: source is not persisted", a.NativeID)
	}
	id := a.ID
	err := s.update(func(tx *bolt.Tx) error {
		return saveIndexed(tx, bucketAuthors, bucketAuthorsIdx, &id, a.Source.ID, a.NativeID, func(id uint) any {
			return authorRecord{ID: id, SourceID: a.Source.ID, NativeID: a.NativeID, Name: a.Name, Email: a.Email}
		})
	})
	if err != nil {
		return fmt.Errorf("save author %q: %w", a.NativeID, err)
	}
	a.ID = id
	return nil
}

func toAuthor(src *model.Source, r authorRecord) *model.Author {
	return &model.Author{ID: r.ID, Source: src, NativeID: r.NativeID, Name: r.Name, Email: r.Email}
}

func (s *Store) GetAuthor(_ context.Context, src *model.Source, nativeID string) (*model.Author, error) {
	var a *model.Author
	err := s.view(func(tx *bolt.Tx) error {
		id, ok := lookupID(tx.Bucket(bucketAuthorsIdx), nativeKey(src.ID, nativeID))
		if !ok {
			return nil
		}
		r, ok, err := getRecord[authorRecord](tx.Bucket(bucketAuthors), itob(id))
		if ok {
			a = toAuthor(src, r)
		}
		return err
	})
	return a, err
}

func (s *Store) SaveItem(_ context.Context, i *model.Item) error {
	if i.Source == nil || i.Source.ID == 0 {
		return fmt.Errorf("save item %q: source is not persisted", i.NativeID)
	}
	id := i.ID
	err := s.update(func(tx *bolt.Tx) error {
		return saveIndexed(tx, bucketItems, bucketItemsIdx, &id, i.Source.ID, i.NativeID, func(id uint) any {
			return itemRecord{ID: id, SourceID: i.Source.ID, NativeID: i.NativeID}
		})
	})
	if err != nil {
		return fmt.Errorf("save item %q: %w", i.NativeID, err)
	}
	i.ID = id
	return nil
}

func (s *Store) GetItem(_ context.Context, src *model.Source, nativeID string) (*model.Item, error) {
	var it *model.Item
	err := s.view(func(tx *bolt.Tx) error {
		id, ok := lookupID(tx.Bucket(bucketItemsIdx), nativeKey(src.ID, nativeID))
		if !ok {
			return nil
		}
		r, ok, err := getRecord[itemRecord](tx.Bucket(bucketItems), itob(id))
		if ok {
			it = &model.Item{ID: r.ID, Source: src, NativeID: r.NativeID}
		}
		return err
	})
	return it, err
}

func (s *Store) SaveEvent(_ context.Context, e *model.Event) error {
	if e.Source == nil || e.Source.ID == 0 {
		return fmt.Errorf("save event %s: source is not persisted", e.NativeID)
	}

	r := eventRecord{
		ID:        e.ID,
		SourceID:  e.Source.ID,
		NativeID:  e.NativeID,
		Timestamp: e.Timestamp,
		Tags:      e.Tags,
		Metadata:  e.Metadata,
	}
	for _, p := range e.Parents {
		if p.ID == 0 {
			return fmt.Errorf("save event %s: parent %s is not persisted", e.NativeID, p.NativeID)
		}
		r.Parents = append(r.Parents, p.ID)
	}
	for _, a := range e.Authors {
		if a.ID == 0 {
			return fmt.Errorf("save event %s: author %s is not persisted", e.NativeID, a.NativeID)
		}
		r.Authors = append(r.Authors, a.ID)
	}

	id := r.ID
	err := s.update(func(tx *bolt.Tx) error {
		err := saveIndexed(tx, bucketEvents, bucketEventsIdx, &id, r.SourceID, r.NativeID, func(id uint) any {
			r.ID = id
			return r
		})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketEventsBySrc).Put(childKey(r.SourceID, id), nil)
	})
	if err != nil {
		return fmt.Errorf("save event %s: %w", e.NativeID, err)
	}
	e.ID = id
	return nil
}

func toEvent(src *model.Source, r eventRecord) *model.Event {
	return &model.Event{
		ID:        r.ID,
		Source:    src,
		NativeID:  r.NativeID,
		Timestamp: r.Timestamp,
		Tags:      r.Tags,
		Metadata:  r.Metadata,
	}
}

// linkEvent resolves the parent and author references of r onto e.
func linkEvent(tx *bolt.Tx, src *model.Source, e *model.Event, r eventRecord, known map[uint]*model.Event, authors map[uint]*model.Author) error {
	events := tx.Bucket(bucketEvents)
	for _, pid := range r.Parents {
		if pe, ok := known[pid]; ok {
			e.Parents = append(e.Parents, pe)
			continue
		}
		pr, ok, err := getRecord[eventRecord](events, itob(pid))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("parent %d of event %s not found", pid, r.NativeID)
		}
		e.Parents = append(e.Parents, toEvent(src, pr))
	}

	ab := tx.Bucket(bucketAuthors)
	for _, aid := range r.Authors {
		if a, ok := authors[aid]; ok {
			e.Authors = append(e.Authors, a)
			continue
		}
		ar, ok, err := getRecord[authorRecord](ab, itob(aid))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("author %d of event %s not found", aid, r.NativeID)
		}
		a := toAuthor(src, ar)
		if authors != nil {
			authors[aid] = a
		}
		e.Authors = append(e.Authors, a)
	}
	return nil
}

func (s *Store) GetEvent(_ context.Context, src *model.Source, nativeID string) (*model.Event, error) {
	var e *model.Event
	err := s.view(func(tx *bolt.Tx) error {
		id, ok := lookupID(tx.Bucket(bucketEventsIdx), nativeKey(src.ID, nativeID))
		if !ok {
			return nil
		}
		r, ok, err := getRecord[eventRecord](tx.Bucket(bucketEvents), itob(id))
		if err != nil || !ok {
			return err
		}
		found := toEvent(src, r)
		if err := linkEvent(tx, src, found, r, nil, nil); err != nil {
			return err
		}
		e = found
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", nativeID, err)
	}
	return e, nil
}

func (s *Store) GetEvents(_ context.Context, src *model.Source) ([]*model.Event, error) {
	events := []*model.Event{}
	err := s.view(func(tx *bolt.Tx) error {
		eb := tx.Bucket(bucketEvents)
		byID := make(map[uint]*model.Event)
		authors := make(map[uint]*model.Author)

		prefix := itob(src.ID)
		c := tx.Bucket(bucketEventsBySrc).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			id := btoi(k[8:])
			r, ok, err := getRecord[eventRecord](eb, itob(id))
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			e := toEvent(src, r)
			// Parents are always saved before their children.
			if err := linkEvent(tx, src, e, r, byID, authors); err != nil {
				return err
			}
			byID[id] = e
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	return events, nil
}

func (s *Store) SaveAction(_ context.Context, a *model.Action) error {
	if a.Source == nil || a.Item == nil || a.Event == nil {
		return fmt.Errorf("save action: source, item and event are required")
	}
	if a.Item.ID == 0 || a.Event.ID == 0 {
		return fmt.Errorf("save action on %s: item or event is not persisted", a.Item.NativeID)
	}
	r := actionRecord{
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
		r.ParentEventID = a.Parent.ID
	}

	err := s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketActions)
		idx := tx.Bucket(bucketActionsIdx)
		key := actionTupleKey(r)

		if existing, ok := lookupID(idx, key); ok {
			if r.ID == 0 || r.ID == existing {
				r.ID = existing
				return nil
			}
			return fmt.Errorf("tuple already stored as action %d", existing)
		}
		if r.ID == 0 {
			id, err := nextID(b)
			if err != nil {
				return err
			}
			r.ID = id
		} else if old, ok, err := getRecord[actionRecord](b, itob(r.ID)); err != nil {
			return err
		} else if ok {
			if err := idx.Delete(actionTupleKey(old)); err != nil {
				return err
			}
		}
		if err := putRecord(b, itob(r.ID), r); err != nil {
			return err
		}
		if err := idx.Put(key, itob(r.ID)); err != nil {
			return err
		}
		return tx.Bucket(bucketActionsBySrc).Put(childKey(r.SourceID, r.ID), nil)
	})
	if err != nil {
		return fmt.Errorf("save action on %s: %w", a.Item.NativeID, err)
	}
	a.ID = r.ID
	return nil
}

func (s *Store) GetActions(_ context.Context, src *model.Source) ([]*model.Action, error) {
	actions := []*model.Action{}
	err := s.view(func(tx *bolt.Tx) error {
		ab := tx.Bucket(bucketActions)
		ib := tx.Bucket(bucketItems)
		eb := tx.Bucket(bucketEvents)
		items := make(map[uint]*model.Item)
		events := make(map[uint]*model.Event)

		item := func(id uint) (*model.Item, error) {
			if it, ok := items[id]; ok {
				return it, nil
			}
			r, ok, err := getRecord[itemRecord](ib, itob(id))
			if err != nil || !ok {
				return nil, err
			}
			it := &model.Item{ID: r.ID, Source: src, NativeID: r.NativeID}
			items[id] = it
			return it, nil
		}
		event := func(id uint) (*model.Event, error) {
			if e, ok := events[id]; ok {
				return e, nil
			}
			r, ok, err := getRecord[eventRecord](eb, itob(id))
			if err != nil || !ok {
				return nil, err
			}
			e := toEvent(src, r)
			events[id] = e
			return e, nil
		}

		prefix := itob(src.ID)
		c := tx.Bucket(bucketActionsBySrc).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			r, ok, err := getRecord[actionRecord](ab, k[8:])
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			a := &model.Action{ID: r.ID, Source: src, Kind: model.ActionKind(r.Kind)}
			if a.Item, err = item(r.ItemID); err != nil {
				return err
			}
			if a.Event, err = event(r.EventID); err != nil {
				return err
			}
			if r.ParentEventID != 0 {
				if a.Parent, err = event(r.ParentEventID); err != nil {
					return err
				}
			}
			actions = append(actions, a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get actions: %w", err)
	}
	return actions, nil
}

func (s *Store) SaveData(_ context.Context, d *model.Data) error {
	r := dataRecord{
		ID:          d.ID,
		Analysis:    d.Analysis,
		ElementKind: int(d.Key.Kind),
		ElementID:   d.Key.ID,
		PayloadKind: d.PayloadKind,
		Payload:     d.Payload,
	}
	err := s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketData)
		if r.ID == 0 {
			id, err := nextID(b)
			if err != nil {
				return err
			}
			r.ID = id
		} else if old, ok, err := getRecord[dataRecord](b, itob(r.ID)); err != nil {
			return err
		} else if ok {
			oldKey := append(dataPrefix(old.Analysis, old.ElementKind, old.ElementID, old.PayloadKind), itob(old.ID)...)
			if err := tx.Bucket(bucketDataIdx).Delete(oldKey); err != nil {
				return err
			}
		}
		if err := putRecord(b, itob(r.ID), r); err != nil {
			return err
		}
		key := append(dataPrefix(r.Analysis, r.ElementKind, r.ElementID, r.PayloadKind), itob(r.ID)...)
		return tx.Bucket(bucketDataIdx).Put(key, nil)
	})
	if err != nil {
		return fmt.Errorf("save %s data for %s: %w", d.Analysis, d.Key, err)
	}
	d.ID = r.ID
	return nil
}

func (s *Store) ListData(_ context.Context, analysis string, key model.ElementKey, payloadKind string) ([]*model.Data, error) {
	result := []*model.Data{}
	err := s.view(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketData)
		prefix := dataPrefix(analysis, int(key.Kind), key.ID, payloadKind)
		c := tx.Bucket(bucketDataIdx).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			r, ok, err := getRecord[dataRecord](b, k[len(prefix):])
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			result = append(result, &model.Data{
				ID:          r.ID,
				Analysis:    r.Analysis,
				Key:         model.ElementKey{Kind: model.ElementKind(r.ElementKind), ID: r.ElementID},
				PayloadKind: r.PayloadKind,
				Payload:     r.Payload,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s data for %s: %w", analysis, key, err)
	}
	return result, nil
}

func (s *Store) RefreshElement(ctx context.Context, el model.Element) error {
	key := el.ElementKey()
	found := false

	err := s.view(func(tx *bolt.Tx) error {
		var err error
		switch v := el.(type) {
		case *model.Source:
			var r sourceRecord
			if r, found, err = getRecord[sourceRecord](tx.Bucket(bucketSources), itob(v.ID)); found {
				*v = *toSource(r)
			}
		case *model.Author:
			var r authorRecord
			if r, found, err = getRecord[authorRecord](tx.Bucket(bucketAuthors), itob(v.ID)); found {
				*v = *toAuthor(sourceOf(tx, v.Source, r.SourceID), r)
			}
		case *model.Item:
			var r itemRecord
			if r, found, err = getRecord[itemRecord](tx.Bucket(bucketItems), itob(v.ID)); found {
				*v = model.Item{ID: r.ID, Source: sourceOf(tx, v.Source, r.SourceID), NativeID: r.NativeID}
			}
		case *model.Event:
			var r eventRecord
			if r, found, err = getRecord[eventRecord](tx.Bucket(bucketEvents), itob(v.ID)); found {
				src := sourceOf(tx, v.Source, r.SourceID)
				e := toEvent(src, r)
				if err = linkEvent(tx, src, e, r, nil, nil); err == nil {
					*v = *e
				}
			}
		case *model.Action:
			var r actionRecord
			if r, found, err = getRecord[actionRecord](tx.Bucket(bucketActions), itob(v.ID)); found {
				err = refreshAction(tx, v, r)
			}
		default:
			return fmt.Errorf("unsupported element %T", el)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("refresh %s: %w", key, err)
	}
	if !found {
		return fmt.Errorf("refresh %s: not found", key)
	}
	return nil
}

func refreshAction(tx *bolt.Tx, a *model.Action, r actionRecord) error {
	src := sourceOf(tx, a.Source, r.SourceID)
	eb := tx.Bucket(bucketEvents)

	ir, ok, err := getRecord[itemRecord](tx.Bucket(bucketItems), itob(r.ItemID))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("item %d not found", r.ItemID)
	}
	er, ok, err := getRecord[eventRecord](eb, itob(r.EventID))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("event %d not found", r.EventID)
	}

	refreshed := model.Action{
		ID:     r.ID,
		Source: src,
		Item:   &model.Item{ID: ir.ID, Source: src, NativeID: ir.NativeID},
		Kind:   model.ActionKind(r.Kind),
		Event:  toEvent(src, er),
	}
	if r.ParentEventID != 0 {
		pr, ok, err := getRecord[eventRecord](eb, itob(r.ParentEventID))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("parent event %d not found", r.ParentEventID)
		}
		refreshed.Parent = toEvent(src, pr)
	}
	*a = refreshed
	return nil
}

// sourceOf keeps the caller's source pointer when it matches id.
func sourceOf(tx *bolt.Tx, current *model.Source, id uint) *model.Source {
	if current != nil && current.ID == id {
		return current
	}
	r, ok, err := getRecord[sourceRecord](tx.Bucket(bucketSources), itob(id))
	if err != nil || !ok {
		return &model.Source{ID: id}
	}
	return toSource(r)
}
