// Package extract normalizes repository history into the model: it builds
// the Event graph of a Source and then the Actions of every Event.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/masmgr/harmony-go/internal/dao"
	"github.com/masmgr/harmony-go/internal/git"
	"github.com/masmgr/harmony-go/internal/model"
)

// Options configures an Extractor.
type Options struct {
	Workers int      // concurrent Events in the action phase
	Refs    []string // head candidates, tried in order
}

// Extractor runs extraction sessions against a store.
type Extractor struct {
	dao    dao.Dao
	opts   Options
	logger logrus.FieldLogger
}

// Summary describes one finished extraction session.
type Summary struct {
	Source    string
	Session   string
	Head      string
	Events    int
	NewEvents int
	Actions   int
	Warnings  []ClassificationWarning
	Duration  time.Duration
}

// NewExtractor returns an Extractor writing to d.
func NewExtractor(d dao.Dao, opts Options, log logrus.FieldLogger) *Extractor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Extractor{dao: d, opts: opts, logger: log}
}

// Run extracts src from backend: first the complete Event graph, then the
// Actions of every Event on up to Options.Workers goroutines. A started
// Event always runs to completion; after the first failure no further
// Events start and that failure is returned.
func (x *Extractor) Run(ctx context.Context, src *model.Source, backend git.Backend) (*Summary, error) {
	start := time.Now()
	session := uuid.NewString()
	log := x.logger.WithFields(logrus.Fields{"source": src.Name, "session": session})

	if err := x.ensureSource(ctx, src); err != nil {
		return nil, err
	}

	index, err := NewRevisionIndex(ctx, backend)
	if err != nil {
		return nil, &BackendError{Source: src.Name, Op: "list tags", Err: err}
	}

	log.Info("building event graph")
	built, err := NewEventBuilder(x.dao, backend, index, x.opts.Refs, log).Build(ctx, src)
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		Source:    src.Name,
		Session:   session,
		Head:      built.Head,
		Events:    len(built.Events),
		NewEvents: built.NewEvents,
	}
	log.WithFields(logrus.Fields{"events": sum.Events, "new": sum.NewEvents}).Info("event graph complete")

	results, err := x.extractActions(ctx, src, backend, index, built.Events, log)
	for _, r := range results {
		if r == nil {
			continue
		}
		sum.Actions += len(r.Actions)
		sum.Warnings = append(sum.Warnings, r.Warnings...)
	}
	sum.Duration = time.Since(start)
	if err != nil {
		return sum, err
	}

	log.WithFields(logrus.Fields{
		"actions":  sum.Actions,
		"warnings": len(sum.Warnings),
		"duration": sum.Duration.Round(time.Millisecond),
	}).Info("extraction complete")
	return sum, nil
}

func (x *Extractor) extractActions(ctx context.Context, src *model.Source, backend git.Backend, index *RevisionIndex, events []*model.Event, log logrus.FieldLogger) ([]*EventActions, error) {
	ax := NewActionExtractor(x.dao, backend, index, src, log)
	results := make([]*EventActions, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.opts.Workers)
	// Work inside an Event ignores cancellation; gctx only gates new Events.
	work := context.WithoutCancel(ctx)

	for i, ev := range events {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := ax.Extract(work, ev)
			results[i] = res
			if err != nil {
				return fmt.Errorf("extract actions of %s: %w", ev.NativeID, err)
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return results, err
}

// ensureSource saves src, reusing the stored Source with the same name.
func (x *Extractor) ensureSource(ctx context.Context, src *model.Source) error {
	if src.Kind == "" {
		src.Kind = "git"
	}
	if src.ID == 0 {
		existing, err := x.dao.FindSource(ctx, src.Name)
		if err != nil {
			return fmt.Errorf("find source %s: %w", src.Name, err)
		}
		if existing != nil {
			src.ID = existing.ID
		}
	}
	return x.dao.SaveSource(ctx, src)
}

// SourceSpec names a repository to extract.
type SourceSpec struct {
	Name string
	Path string
}

// BackendOpener opens the backend for a repository path.
type BackendOpener func(path string) (git.Backend, error)

// RunSources extracts several Sources concurrently, one session each. The
// summaries are returned in the order of specs; entries of Sources that did
// not finish are nil.
func (x *Extractor) RunSources(ctx context.Context, specs []SourceSpec, open BackendOpener) ([]*Summary, error) {
	summaries := make([]*Summary, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		g.Go(func() error {
			backend, err := open(spec.Path)
			if err != nil {
				return fmt.Errorf("open %s: %w", spec.Name, err)
			}
			src := &model.Source{Name: spec.Name, Path: spec.Path, Kind: "git"}
			sum, err := x.Run(gctx, src, backend)
			if err != nil {
				return err
			}
			summaries[i] = sum
			return nil
		})
	}
	return summaries, g.Wait()
}
