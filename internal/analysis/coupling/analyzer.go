// Package coupling finds Items that tend to change in the same Event.
package coupling

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/masmgr/harmony-go/internal/dao"
	"github.com/masmgr/harmony-go/internal/model"
)

// AnalysisName namespaces the Data written by this package.
const AnalysisName = "coupling"

// Link is the payload stored on both Items of a coupled pair. Confidence is
// directional: the share of this Item's changes that also changed Partner.
type Link struct {
	Partner    string  `json:"partner"`
	CoChanges  int     `json:"coChanges"`
	Jaccard    float64 `json:"jaccard"`
	Confidence float64 `json:"confidence"`
	Lift       float64 `json:"lift"`
	Session    string  `json:"session"`
}

// PayloadKind implements dao.Payload.
func (Link) PayloadKind() string { return "coupling.Link" }

// Pair is a coupled pair of Items. A sorts before B case-insensitively.
type Pair struct {
	A, B      *model.Item
	CoChanges int
	ChangesA  int
	ChangesB  int
	Jaccard   float64 // |A ∩ B| / |A ∪ B|
	Lift      float64 // P(A,B) / (P(A) × P(B))
}

// Options configures an Analyzer.
type Options struct {
	MinCoChanges     int
	MinJaccard       float64
	MaxFilesPerEvent int // larger Events are ignored as sweeping changes
	TopPairs         int
}

// Result is the outcome of one analysis run.
type Result struct {
	Source     string
	Session    string
	Events     int
	Items      int
	TotalPairs int
	Pairs      []Pair
}

// Analyzer computes change coupling from stored Actions.
type Analyzer struct {
	dao    dao.Dao
	opts   Options
	logger logrus.FieldLogger
}

// NewAnalyzer returns an Analyzer writing Links to d.
func NewAnalyzer(d dao.Dao, opts Options, log logrus.FieldLogger) *Analyzer {
	return &Analyzer{dao: d, opts: opts, logger: log}
}

type pairKey struct{ a, b uint }

// Run counts co-changes per Event, keeps the pairs above the thresholds and
// stores a Link on each Item of the TopPairs strongest pairs.
func (a *Analyzer) Run(ctx context.Context, src *model.Source) (*Result, error) {
	session := uuid.NewString()
	log := a.logger.WithFields(logrus.Fields{"source": src.Name, "analysis": AnalysisName, "session": session})

	actions, err := a.dao.GetActions(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}

	// Item IDs changed per Event, in first-seen order.
	var order []uint
	touched := make(map[uint][]*model.Item)
	seen := make(map[pairKey]struct{}) // (event, item)
	for _, act := range actions {
		if act.Kind == model.ActionDelete {
			continue
		}
		k := pairKey{act.Event.ID, act.Item.ID}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := touched[act.Event.ID]; !ok {
			order = append(order, act.Event.ID)
		}
		touched[act.Event.ID] = append(touched[act.Event.ID], act.Item)
	}

	items := make(map[uint]*model.Item)
	changes := make(map[uint]int)
	co := make(map[pairKey]int)
	for _, evID := range order {
		changed := touched[evID]
		for _, it := range changed {
			items[it.ID] = it
			changes[it.ID]++
		}
		if len(changed) < 2 || (a.opts.MaxFilesPerEvent > 0 && len(changed) > a.opts.MaxFilesPerEvent) {
			continue
		}
		for i := 0; i < len(changed)-1; i++ {
			for j := i + 1; j < len(changed); j++ {
				co[orderedKey(changed[i], changed[j])]++
			}
		}
	}

	res := &Result{
		Source:     src.Name,
		Session:    session,
		Events:     len(order),
		Items:      len(items),
		TotalPairs: len(co),
	}
	total := float64(len(order))
	for k, n := range co {
		if n < a.opts.MinCoChanges {
			continue
		}
		ca, cb := changes[k.a], changes[k.b]
		jaccard := float64(n) / float64(ca+cb-n)
		if jaccard < a.opts.MinJaccard {
			continue
		}
		lift := (float64(n) / total) / ((float64(ca) / total) * (float64(cb) / total))
		res.Pairs = append(res.Pairs, Pair{
			A: items[k.a], B: items[k.b],
			CoChanges: n, ChangesA: ca, ChangesB: cb,
			Jaccard: jaccard, Lift: lift,
		})
	}

	sort.Slice(res.Pairs, func(i, j int) bool {
		pi, pj := res.Pairs[i], res.Pairs[j]
		if pi.Jaccard != pj.Jaccard {
			return pi.Jaccard > pj.Jaccard
		}
		if pi.CoChanges != pj.CoChanges {
			return pi.CoChanges > pj.CoChanges
		}
		if pi.A.NativeID != pj.A.NativeID {
			return pi.A.NativeID < pj.A.NativeID
		}
		return pi.B.NativeID < pj.B.NativeID
	})
	if a.opts.TopPairs > 0 && len(res.Pairs) > a.opts.TopPairs {
		res.Pairs = res.Pairs[:a.opts.TopPairs]
	}

	for _, p := range res.Pairs {
		if err := a.saveLink(ctx, p.A, p.B, p, p.ChangesA, session); err != nil {
			return nil, err
		}
		if err := a.saveLink(ctx, p.B, p.A, p, p.ChangesB, session); err != nil {
			return nil, err
		}
	}

	log.WithFields(logrus.Fields{
		"events": res.Events,
		"items":  res.Items,
		"pairs":  len(res.Pairs),
	}).Info("coupling analysis complete")
	return res, nil
}

func (a *Analyzer) saveLink(ctx context.Context, on, partner *model.Item, p Pair, changes int, session string) error {
	l := Link{
		Partner:    partner.NativeID,
		CoChanges:  p.CoChanges,
		Jaccard:    p.Jaccard,
		Confidence: float64(p.CoChanges) / float64(changes),
		Lift:       p.Lift,
		Session:    session,
	}
	if err := dao.SaveData(ctx, a.dao, AnalysisName, on.ElementKey(), l); err != nil {
		return fmt.Errorf("save link %s -> %s: %w", on.NativeID, partner.NativeID, err)
	}
	return nil
}

// Links returns the Links stored for item by the latest run that linked it.
func Links(ctx context.Context, d dao.Dao, item *model.Item) ([]Link, error) {
	all, err := dao.GetDataList[Link](ctx, d, AnalysisName, item.ElementKey())
	if err != nil || len(all) == 0 {
		return nil, err
	}
	session := all[len(all)-1].Session
	var out []Link
	for _, l := range all {
		if l.Session == session {
			out = append(out, l)
		}
	}
	return out, nil
}

func orderedKey(x, y *model.Item) pairKey {
	lx, ly := strings.ToLower(x.NativeID), strings.ToLower(y.NativeID)
	if lx > ly || (lx == ly && x.ID > y.ID) {
		x, y = y, x
	}
	return pairKey{x.ID, y.ID}
}
