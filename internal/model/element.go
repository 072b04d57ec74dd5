package model

import "fmt"

// ElementKind enumerates the model entity types that analysis data can be
// attached to. Values are persisted and must stay stable.
type ElementKind int

const (
	ElementSource ElementKind = iota
	ElementEvent
	ElementItem
	ElementAuthor
	ElementAction
)

// String returns a string representation of the element kind.
func (k ElementKind) String() string {
	switch k {
	case ElementSource:
		return "source"
	case ElementEvent:
		return "event"
	case ElementItem:
		return "item"
	case ElementAuthor:
		return "author"
	case ElementAction:
		return "action"
	default:
		return fmt.Sprintf("element(%d)", int(k))
	}
}

// ElementKey addresses a single model element.
type ElementKey struct {
	Kind ElementKind
	ID   uint
}

func (k ElementKey) String() string {
	return fmt.Sprintf("%s/%d", k.Kind, k.ID)
}

// Data is an analysis-defined payload attached to one model element.
// Payload holds the serialized value and PayloadKind names its type.
type Data struct {
	ID          uint
	Analysis    string
	Key         ElementKey
	PayloadKind string
	Payload     []byte
}
