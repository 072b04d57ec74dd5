package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/masmgr/harmony-go/internal/dao"
	"github.com/masmgr/harmony-go/internal/git"
	"github.com/masmgr/harmony-go/internal/model"
)

// EventBuilder turns the commit graph of a backend into persisted Events.
type EventBuilder struct {
	dao     dao.Dao
	backend git.Backend
	index   *RevisionIndex
	refs    []string
	logger  logrus.FieldLogger
}

// BuildResult is what Build produced for one Source.
type BuildResult struct {
	Head      string         // resolved head commit, empty when no ref resolved
	Events    []*model.Event // in persistence order
	NewEvents int            // events saved by this run, the rest were reused
}

// NewEventBuilder returns a builder that starts from the first of refs that
// resolves.
func NewEventBuilder(d dao.Dao, backend git.Backend, index *RevisionIndex, refs []string, log logrus.FieldLogger) *EventBuilder {
	return &EventBuilder{dao: d, backend: backend, index: index, refs: refs, logger: log}
}

func (b *EventBuilder) resolveHead(ctx context.Context, src *model.Source) (string, string, error) {
	for _, ref := range b.refs {
		h, ok, err := b.backend.ResolveRef(ctx, ref)
		if err != nil {
			return "", "", &BackendError{Source: src.Name, Op: "resolve " + ref, Err: err}
		}
		if ok {
			return h, ref, nil
		}
	}
	return "", "", nil
}

// Build walks history from the head ref, oldest first, and saves one Event
// per commit. Events already stored for the Source are reused, so an
// interrupted run can be repeated.
func (b *EventBuilder) Build(ctx context.Context, src *model.Source) (*BuildResult, error) {
	head, ref, err := b.resolveHead(ctx, src)
	if err != nil {
		return nil, err
	}
	res := &BuildResult{Head: head}
	if head == "" {
		b.logger.WithField("refs", b.refs).Warn("no head reference found, nothing to extract")
		return res, nil
	}
	b.logger.WithFields(logrus.Fields{"ref": ref, "head": head}).Debug("walking history")

	known := make(map[string]*model.Event)
	authors := make(map[string]*model.Author)

	var saveErr error
	err = b.backend.Walk(ctx, head, func(c git.Commit) error {
		b.index.Remember(c)
		ev, created, err := b.event(ctx, src, c, known, authors)
		if err != nil {
			saveErr = err
			return err
		}
		known[c.Hash] = ev
		res.Events = append(res.Events, ev)
		if created {
			res.NewEvents++
		}
		return nil
	})
	if saveErr != nil {
		return res, saveErr
	}
	if err != nil {
		return res, &BackendError{Source: src.Name, Op: "walk " + head, Err: err}
	}
	return res, nil
}

func (b *EventBuilder) event(ctx context.Context, src *model.Source, c git.Commit, known map[string]*model.Event, authors map[string]*model.Author) (*model.Event, bool, error) {
	existing, err := b.dao.GetEvent(ctx, src, c.Hash)
	if err != nil {
		return nil, false, fmt.Errorf("get event %s: %w", c.Hash, err)
	}
	if existing != nil {
		// Link to the events of this run so the graph shares pointers.
		for i, p := range existing.Parents {
			if kp, ok := known[p.NativeID]; ok {
				existing.Parents[i] = kp
			}
		}
		return existing, false, nil
	}

	author, err := b.author(ctx, src, c.Committer, authors)
	if err != nil {
		return nil, false, err
	}

	parents := make([]*model.Event, 0, len(c.Parents))
	for _, p := range c.Parents {
		pe, ok := known[p]
		if !ok {
			b.logger.WithFields(logrus.Fields{"event": c.Hash, "parent": p}).Warn("parent commit not in history, link dropped")
			continue
		}
		parents = append(parents, pe)
	}

	ev := &model.Event{
		Source:    src,
		NativeID:  c.Hash,
		Timestamp: c.Committer.When,
		Parents:   parents,
		Authors:   []*model.Author{author},
		Tags:      b.index.Tags(c.Hash),
		Metadata: map[string]string{
			model.MetadataCommitMessage: c.Message,
			model.MetadataAuthorName:    c.Author.Name,
			model.MetadataAuthorEmail:   c.Author.Email,
			model.MetadataAuthorTime:    c.Author.When.Format(time.RFC3339),
		},
	}
	if err := b.dao.SaveEvent(ctx, ev); err != nil {
		return nil, false, err
	}
	return ev, true, nil
}

// author gets or creates the Author for a committer. The name is the
// native identity; the first email seen is kept.
func (b *EventBuilder) author(ctx context.Context, src *model.Source, sig git.Signature, cache map[string]*model.Author) (*model.Author, error) {
	if a, ok := cache[sig.Name]; ok {
		return a, nil
	}
	a, err := b.dao.GetAuthor(ctx, src, sig.Name)
	if err != nil {
		return nil, fmt.Errorf("get author %s: %w", sig.Name, err)
	}
	if a == nil {
		a = model.NewAuthor(src, sig.Name)
		a.Email = sig.Email
		if err := b.dao.SaveAuthor(ctx, a); err != nil {
			return nil, err
		}
	}
	cache[sig.Name] = a
	return a, nil
}
