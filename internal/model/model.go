package model

import "time"

// MetadataCommitMessage is the Event metadata key holding the full commit message.
const MetadataCommitMessage = "commit_message"

// Additional metadata keys recorded by the git extractor.
const (
	MetadataAuthorName  = "author_name"
	MetadataAuthorEmail = "author_email"
	MetadataAuthorTime  = "author_time"
)

// Element is implemented by every persisted model entity.
type Element interface {
	ElementKey() ElementKey
}

// Source identifies one tracked repository. It owns every Event, Item,
// Author and Action extracted from it.
type Source struct {
	ID   uint
	Name string
	Path string
	Kind string
}

// ElementKey returns the addressing key of the source.
func (s *Source) ElementKey() ElementKey { return ElementKey{Kind: ElementSource, ID: s.ID} }

// Author is a contributor within a Source, keyed by NativeID.
type Author struct {
	ID       uint
	Source   *Source
	NativeID string
	Name     string
	Email    string
}

// NewAuthor creates an author whose display name is its native identifier.
func NewAuthor(src *Source, name string) *Author {
	return &Author{Source: src, NativeID: name, Name: name}
}

// ElementKey returns the addressing key of the author.
func (a *Author) ElementKey() ElementKey { return ElementKey{Kind: ElementAuthor, ID: a.ID} }

// Item is a logical file path within a Source.
type Item struct {
	ID       uint
	Source   *Source
	NativeID string
}

// NewItem creates an item for the given path.
func NewItem(src *Source, path string) *Item {
	return &Item{Source: src, NativeID: path}
}

// ElementKey returns the addressing key of the item.
func (i *Item) ElementKey() ElementKey { return ElementKey{Kind: ElementItem, ID: i.ID} }

// Event is one historical change-set. Timestamp is the committer time.
type Event struct {
	ID        uint
	Source    *Source
	NativeID  string
	Timestamp time.Time
	Parents   []*Event
	Authors   []*Author
	Tags      []string
	Metadata  map[string]string
}

// ElementKey returns the addressing key of the event.
func (e *Event) ElementKey() ElementKey { return ElementKey{Kind: ElementEvent, ID: e.ID} }

// IsRoot reports whether the event has no parents.
func (e *Event) IsRoot() bool { return len(e.Parents) == 0 }

// IsMerge reports whether the event has two or more parents.
func (e *Event) IsMerge() bool { return len(e.Parents) > 1 }

// Message returns the full commit message stored in the metadata.
func (e *Event) Message() string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[MetadataCommitMessage]
}

// Action is one file-level effect of an Event relative to one parent.
// Parent is nil when the diff was taken against the empty tree.
type Action struct {
	ID     uint
	Source *Source
	Item   *Item
	Kind   ActionKind
	Event  *Event
	Parent *Event
}

// ElementKey returns the addressing key of the action.
func (a *Action) ElementKey() ElementKey { return ElementKey{Kind: ElementAction, ID: a.ID} }

// ActionKind classifies a file change.
type ActionKind string

const (
	ActionCreate ActionKind = "Create"
	ActionEdit   ActionKind = "Edit"
	ActionDelete ActionKind = "Delete"
)

// String returns the name of the kind.
func (k ActionKind) String() string { return string(k) }

// Valid reports whether k is one of the known kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionCreate, ActionEdit, ActionDelete:
		return true
	default:
		return false
	}
}
