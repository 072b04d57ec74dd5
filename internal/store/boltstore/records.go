package boltstore

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSources       = []byte("sources")
	bucketSourcesByName = []byte("sources_by_name")
	bucketAuthors       = []byte("authors")
	bucketAuthorsIdx    = []byte("authors_idx")
	bucketItems         = []byte("items")
	bucketItemsIdx      = []byte("items_idx")
	bucketEvents        = []byte("events")
	bucketEventsIdx     = []byte("events_idx")
	bucketEventsBySrc   = []byte("events_by_source")
	bucketActions       = []byte("actions")
	bucketActionsIdx    = []byte("actions_idx")
	bucketActionsBySrc  = []byte("actions_by_source")
	bucketData          = []byte("data")
	bucketDataIdx       = []byte("data_idx")
)

var allBuckets = [][]byte{
	bucketSources, bucketSourcesByName,
	bucketAuthors, bucketAuthorsIdx,
	bucketItems, bucketItemsIdx,
	bucketEvents, bucketEventsIdx, bucketEventsBySrc,
	bucketActions, bucketActionsIdx, bucketActionsBySrc,
	bucketData, bucketDataIdx,
}

type sourceRecord struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
	Kind string `json:"kind"`
}

type authorRecord struct {
	ID       uint   `json:"id"`
	SourceID uint   `json:"sourceId"`
	NativeID string `json:"nativeId"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

type itemRecord struct {
	ID       uint   `json:"id"`
	SourceID uint   `json:"sourceId"`
	NativeID string `json:"nativeId"`
}

type eventRecord struct {
	ID        uint              `json:"id"`
	SourceID  uint              `json:"sourceId"`
	NativeID  string            `json:"nativeId"`
	Timestamp time.Time         `json:"timestamp"`
	Parents   []uint            `json:"parents,omitempty"`
	Authors   []uint            `json:"authors,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type actionRecord struct {
	ID            uint   `json:"id"`
	SourceID      uint   `json:"sourceId"`
	ItemID        uint   `json:"itemId"`
	Kind          string `json:"kind"`
	EventID       uint   `json:"eventId"`
	ParentEventID uint   `json:"parentEventId,omitempty"`
}

type dataRecord struct {
	ID          uint   `json:"id"`
	Analysis    string `json:"analysis"`
	ElementKind int    `json:"elementKind"`
	ElementID   uint   `json:"elementId"`
	PayloadKind string `json:"payloadKind"`
	Payload     []byte `json:"payload"`
}

// itob encodes id big-endian so keys sort numerically.
func itob(id uint) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func btoi(b []byte) uint {
	return uint(binary.BigEndian.Uint64(b))
}

// nativeKey scopes a native identifier to its source.
func nativeKey(sourceID uint, nativeID string) []byte {
	return append(itob(sourceID), nativeID...)
}

func childKey(parentID, childID uint) []byte {
	return append(itob(parentID), itob(childID)...)
}

func actionTupleKey(r actionRecord) []byte {
	var buf bytes.Buffer
	buf.Write(itob(r.EventID))
	buf.Write(itob(r.ParentEventID))
	buf.Write(itob(r.ItemID))
	buf.WriteString(r.Kind)
	return buf.Bytes()
}

func dataPrefix(analysis string, kind int, elementID uint, payloadKind string) []byte {
	var buf bytes.Buffer
	buf.WriteString(analysis)
	buf.WriteByte(0)
	buf.Write(itob(uint(kind)))
	buf.Write(itob(elementID))
	buf.WriteString(payloadKind)
	buf.WriteByte(0)
	return buf.Bytes()
}

func getRecord[T any](b *bolt.Bucket, key []byte) (T, bool, error) {
	var v T
	raw := b.Get(key)
	if raw == nil {
		return v, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, err
	}
	return v, true, nil
}

func putRecord(b *bolt.Bucket, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, raw)
}

// lookupID resolves an index entry to the record ID it points at.
func lookupID(idx *bolt.Bucket, key []byte) (uint, bool) {
	v := idx.Get(key)
	if v == nil {
		return 0, false
	}
	return btoi(v), true
}

// nextID returns the ID of a new record in b.
func nextID(b *bolt.Bucket) (uint, error) {
	seq, err := b.NextSequence()
	if err != nil {
		return 0, err
	}
	return uint(seq), nil
}
