package extract

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/masmgr/harmony-go/internal/dao"
	"github.com/masmgr/harmony-go/internal/git"
	"github.com/masmgr/harmony-go/internal/model"
)

// ActionExtractor computes and saves the Actions of single Events. One
// extractor serves every worker of a Source.
type ActionExtractor struct {
	dao     dao.Dao
	backend git.Backend
	index   *RevisionIndex
	src     *model.Source
	items   *itemResolver
	logger  logrus.FieldLogger
}

// EventActions is the outcome of extracting one Event.
type EventActions struct {
	Actions  []*model.Action
	Warnings []ClassificationWarning
}

// NewActionExtractor returns an extractor for the Events of src. index must
// hold every commit the Events refer to.
func NewActionExtractor(d dao.Dao, backend git.Backend, index *RevisionIndex, src *model.Source, log logrus.FieldLogger) *ActionExtractor {
	return &ActionExtractor{
		dao:     d,
		backend: backend,
		index:   index,
		src:     src,
		items:   newItemResolver(d, src),
		logger:  log,
	}
}

// Extract diffs ev against each of its parents, or against the empty tree
// for a root, and saves one Action per changed path per parent. Actions
// saved for earlier parents are kept when a later diff fails.
func (x *ActionExtractor) Extract(ctx context.Context, ev *model.Event) (*EventActions, error) {
	commit, ok := x.index.Commit(ev.NativeID)
	if !ok {
		return nil, fmt.Errorf("event %s: commit not in revision index", ev.NativeID)
	}

	res := &EventActions{}
	if ev.IsRoot() {
		if err := x.extractAgainst(ctx, ev, nil, "", commit.Tree, res); err != nil {
			return res, err
		}
		return res, nil
	}

	for _, p := range ev.Parents {
		pc, ok := x.index.Commit(p.NativeID)
		if !ok {
			return res, fmt.Errorf("event %s: parent %s not in revision index", ev.NativeID, p.NativeID)
		}
		if err := x.extractAgainst(ctx, ev, p, pc.Tree, commit.Tree, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (x *ActionExtractor) extractAgainst(ctx context.Context, ev, parent *model.Event, fromTree, toTree string, res *EventActions) error {
	changes, err := x.backend.Diff(ctx, fromTree, toTree)
	if err != nil {
		op := "diff " + ev.NativeID
		if parent != nil {
			op += " against " + parent.NativeID
		}
		return &BackendError{Source: x.src.Name, Op: op, Err: err}
	}

	for _, c := range changes {
		cl, warn := Classify(ev.NativeID, c)
		if warn != nil {
			x.logger.WithFields(logrus.Fields{
				"event":  ev.NativeID,
				"status": warn.Status,
				"path":   c.Path(),
			}).Warn("skipping unclassified change")
			res.Warnings = append(res.Warnings, *warn)
			continue
		}

		item, err := x.items.resolve(ctx, cl.Path)
		if err != nil {
			return err
		}
		a := &model.Action{
			Source: x.src,
			Item:   item,
			Kind:   cl.Kind,
			Event:  ev,
			Parent: parent,
		}
		if err := x.dao.SaveAction(ctx, a); err != nil {
			return err
		}
		res.Actions = append(res.Actions, a)
	}
	return nil
}
