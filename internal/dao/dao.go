package dao

import (
	"context"
	"errors"

	"github.com/masmgr/harmony-go/internal/model"
)

// ErrDisconnected is returned by every operation of a Dao after Disconnect.
var ErrDisconnected = errors.New("dao: disconnected")

// Dao is the persistence boundary for the extracted model and for analysis
// data. Lookups return a nil result, not an error, when nothing matches.
// Save operations assign the ID of a new entity and update an existing one.
type Dao interface {
	SaveSource(ctx context.Context, s *model.Source) error
	GetSource(ctx context.Context, id uint) (*model.Source, error)
	FindSource(ctx context.Context, name string) (*model.Source, error)

	// RefreshElement reloads el from the store, discarding unsaved changes.
	RefreshElement(ctx context.Context, el model.Element) error

	GetEvent(ctx context.Context, s *model.Source, nativeID string) (*model.Event, error)
	// GetEvents returns the events of s in the order they were first saved.
	GetEvents(ctx context.Context, s *model.Source) ([]*model.Event, error)
	SaveEvent(ctx context.Context, e *model.Event) error

	SaveItem(ctx context.Context, i *model.Item) error
	GetItem(ctx context.Context, s *model.Source, nativeID string) (*model.Item, error)

	SaveAuthor(ctx context.Context, a *model.Author) error
	GetAuthor(ctx context.Context, s *model.Source, nativeID string) (*model.Author, error)

	// SaveAction stores a. Saving an action whose (event, parent, item, kind)
	// tuple already exists assigns the existing ID instead of duplicating it.
	SaveAction(ctx context.Context, a *model.Action) error
	GetActions(ctx context.Context, s *model.Source) ([]*model.Action, error)

	SaveData(ctx context.Context, d *model.Data) error
	ListData(ctx context.Context, analysis string, key model.ElementKey, payloadKind string) ([]*model.Data, error)

	// Disconnect releases the store. No operation is valid afterwards.
	Disconnect() error
}
