// Package hotspot ranks the Items of a Source by how often, and how
// recently, bugfix Events touched them. Results are stored as Data on each
// Item under the "hotspots" analysis.
package hotspot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/masmgr/harmony-go/internal/dao"
	"github.com/masmgr/harmony-go/internal/model"
)

// AnalysisName namespaces the Data written by this package.
const AnalysisName = "hotspots"

// Score is the hotspot payload stored per Item.
type Score struct {
	Path       string    `json:"path"`
	Score      float64   `json:"score"`
	Fixes      int       `json:"fixes"`
	Changes    int       `json:"changes"`
	Authors    int       `json:"authors"`
	Burst      float64   `json:"burst"`
	LastChange time.Time `json:"lastChange"`
	Session    string    `json:"session"`
}

// PayloadKind implements dao.Payload.
func (Score) PayloadKind() string { return "hotspot.Score" }

// Options configures an Analyzer.
type Options struct {
	Patterns    []string // bugfix message patterns
	Max         int      // ranked entries returned, 0 for all
	WindowYears int      // history considered, counted back from the newest Event; 0 for all
	BurstDays   int      // window of the burst score
}

// Result is the outcome of one analysis run.
type Result struct {
	Source  string
	Session string
	Since   time.Time
	Until   time.Time
	Events  int
	Fixes   int
	Scores  []Score // ranked, at most Options.Max
}

// Analyzer computes hotspots from extracted Events and Actions.
type Analyzer struct {
	dao      dao.Dao
	detector *Detector
	opts     Options
	logger   logrus.FieldLogger
}

// NewAnalyzer returns an Analyzer, or an error when a pattern does not
// compile.
func NewAnalyzer(d dao.Dao, opts Options, log logrus.FieldLogger) (*Analyzer, error) {
	det, err := NewDetector(opts.Patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid bugfix pattern: %w", err)
	}
	if opts.BurstDays <= 0 {
		opts.BurstDays = 7
	}
	return &Analyzer{dao: d, detector: det, opts: opts, logger: log}, nil
}

type itemStats struct {
	item    *model.Item
	changes map[uint]time.Time
	fixes   map[uint]time.Time
	authors map[string]struct{}
}

// Run scores every Item changed inside the window and stores one Score per
// Item. Delete Actions are ignored.
func (a *Analyzer) Run(ctx context.Context, src *model.Source) (*Result, error) {
	session := uuid.NewString()
	log := a.logger.WithFields(logrus.Fields{"source": src.Name, "analysis": AnalysisName, "session": session})

	events, err := a.dao.GetEvents(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	res := &Result{Source: src.Name, Session: session}
	if len(events) == 0 {
		log.Warn("no events stored, run extract first")
		return res, nil
	}

	res.Since, res.Until = timeRange(events)
	if a.opts.WindowYears > 0 {
		if w := res.Until.AddDate(-a.opts.WindowYears, 0, 0); w.After(res.Since) {
			res.Since = w
		}
	}

	fixes := a.detector.Fixes(events)
	byID := make(map[uint]*model.Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
		if !ev.Timestamp.Before(res.Since) {
			res.Events++
			if _, ok := fixes[ev.ID]; ok {
				res.Fixes++
			}
		}
	}

	actions, err := a.dao.GetActions(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}

	stats := make(map[uint]*itemStats)
	for _, act := range actions {
		// Events loaded with the Actions carry no Authors.
		ev, ok := byID[act.Event.ID]
		if !ok {
			ev = act.Event
		}
		if act.Kind == model.ActionDelete || ev.Timestamp.Before(res.Since) {
			continue
		}
		st, ok := stats[act.Item.ID]
		if !ok {
			st = &itemStats{
				item:    act.Item,
				changes: make(map[uint]time.Time),
				fixes:   make(map[uint]time.Time),
				authors: make(map[string]struct{}),
			}
			stats[act.Item.ID] = st
		}
		// Merges yield one Action per parent; count the Event once.
		st.changes[ev.ID] = ev.Timestamp
		for _, au := range ev.Authors {
			st.authors[au.NativeID] = struct{}{}
		}
		if _, ok := fixes[ev.ID]; ok {
			st.fixes[ev.ID] = ev.Timestamp
		}
	}

	window := time.Duration(a.opts.BurstDays) * 24 * time.Hour
	scores := make([]Score, 0, len(stats))
	for _, st := range stats {
		s := Score{
			Path:    st.item.NativeID,
			Fixes:   len(st.fixes),
			Changes: len(st.changes),
			Authors: len(st.authors),
			Session: session,
		}
		times := make([]time.Time, 0, len(st.changes))
		for _, t := range st.changes {
			times = append(times, t)
			if t.After(s.LastChange) {
				s.LastChange = t
			}
		}
		s.Burst = BurstScore(times, window)
		for _, t := range st.fixes {
			s.Score += SigmoidScore(res.Until, res.Since, t)
		}
		if err := dao.SaveData(ctx, a.dao, AnalysisName, st.item.ElementKey(), s); err != nil {
			return nil, fmt.Errorf("save score of %s: %w", s.Path, err)
		}
		scores = append(scores, s)
	}

	res.Scores = Rank(scores, a.opts.Max)
	log.WithFields(logrus.Fields{
		"events": res.Events,
		"fixes":  res.Fixes,
		"items":  len(scores),
	}).Info("hotspot analysis complete")
	return res, nil
}

// Rank sorts scores by score, then changes, then path, and keeps the first
// max entries when max is positive. It sorts in place.
func Rank(scores []Score, max int) []Score {
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		if scores[i].Changes != scores[j].Changes {
			return scores[i].Changes > scores[j].Changes
		}
		return scores[i].Path < scores[j].Path
	})
	if max > 0 && max < len(scores) {
		scores = scores[:max]
	}
	return scores
}

// Latest returns the most recent Score stored for item.
func Latest(ctx context.Context, d dao.Dao, item *model.Item) (Score, bool, error) {
	list, err := dao.GetDataList[Score](ctx, d, AnalysisName, item.ElementKey())
	if err != nil || len(list) == 0 {
		return Score{}, false, err
	}
	return list[len(list)-1], true, nil
}

func timeRange(events []*model.Event) (oldest, newest time.Time) {
	oldest, newest = events[0].Timestamp, events[0].Timestamp
	for _, ev := range events[1:] {
		if ev.Timestamp.Before(oldest) {
			oldest = ev.Timestamp
		}
		if ev.Timestamp.After(newest) {
			newest = ev.Timestamp
		}
	}
	return oldest, newest
}
