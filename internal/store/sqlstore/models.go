package sqlstore

import "time"

type SourceModel struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;not null"`
	Path      string `gorm:"not null"`
	Kind      string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SourceModel) TableName() string { return "sources" }

type AuthorModel struct {
	ID       uint   `gorm:"primaryKey"`
	SourceID uint   `gorm:"not null;index:idx_authors_native,unique"`
	NativeID string `gorm:"not null;index:idx_authors_native,unique"`
	Name     string `gorm:"not null"`
	Email    string `gorm:"not null"`
}

func (AuthorModel) TableName() string { return "authors" }

type ItemModel struct {
	ID       uint   `gorm:"primaryKey"`
	SourceID uint   `gorm:"not null;index:idx_items_native,unique"`
	NativeID string `gorm:"not null;index:idx_items_native,unique"`
}

func (ItemModel) TableName() string { return "items" }

// EventModel stores the timestamp as unix seconds and nanoseconds plus the
// zone offset, so the committer's local time survives the round trip for
// any year git accepts.
type EventModel struct {
	ID             uint              `gorm:"primaryKey"`
	SourceID       uint              `gorm:"not null;index:idx_events_native,unique"`
	NativeID       string            `gorm:"not null;index:idx_events_native,unique"`
	Timestamp      int64             `gorm:"not null"`
	TimestampNanos int               `gorm:"column:timestamp_nanos;not null"`
	TZOffset       int               `gorm:"column:tz_offset;not null"`
	Tags           []string          `gorm:"serializer:json"`
	Metadata       map[string]string `gorm:"serializer:json"`
}

func (EventModel) TableName() string { return "events" }

type EventParentModel struct {
	EventID  uint `gorm:"primaryKey"`
	Position int  `gorm:"primaryKey"`
	ParentID uint `gorm:"not null"`
}

func (EventParentModel) TableName() string { return "event_parents" }

type EventAuthorModel struct {
	EventID  uint `gorm:"primaryKey"`
	Position int  `gorm:"primaryKey"`
	AuthorID uint `gorm:"not null"`
}

func (EventAuthorModel) TableName() string { return "event_authors" }

// ActionModel uses ParentEventID 0 for root diffs so the uniqueness index
// also covers actions without a parent.
type ActionModel struct {
	ID            uint   `gorm:"primaryKey"`
	SourceID      uint   `gorm:"not null;index"`
	ItemID        uint   `gorm:"not null;index:idx_actions_tuple,unique"`
	Kind          string `gorm:"not null;index:idx_actions_tuple,unique"`
	EventID       uint   `gorm:"not null;index:idx_actions_tuple,unique"`
	ParentEventID uint   `gorm:"not null;index:idx_actions_tuple,unique"`
}

func (ActionModel) TableName() string { return "actions" }

type DataModel struct {
	ID          uint   `gorm:"primaryKey"`
	Analysis    string `gorm:"not null;index:idx_data_element"`
	ElementKind int    `gorm:"not null;index:idx_data_element"`
	ElementID   uint   `gorm:"not null;index:idx_data_element"`
	PayloadKind string `gorm:"not null;index:idx_data_element"`
	Payload     []byte `gorm:"not null"`
}

func (DataModel) TableName() string { return "data" }
