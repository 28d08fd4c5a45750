// Package ranking scores event and claim candidates by embedding similarity
// blended with how well their dates fit the query's temporal intent.
package ranking

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
)

// Ranker is safe for concurrent use; it holds only immutable config.
type Ranker struct {
	cfg Config
	now func() time.Time
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithClock overrides the current-time source.
func WithClock(now func() time.Time) Option {
	return func(r *Ranker) { r.now = now }
}

// New builds a Ranker over cfg.
func New(cfg Config, opts ...Option) *Ranker {
	r := &Ranker{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Config returns the constants in use.
func (r *Ranker) Config() Config { return r.cfg }

// Today is the current UTC calendar date at midnight.
func (r *Ranker) Today() time.Time { return apptype.DateOnly(r.now()) }

// Scoring returns the event formula anchored at today.
func (r *Ranker) Scoring(today time.Time) apptype.EventScoring {
	return apptype.EventScoring{
		Today:            apptype.DateOnly(today),
		SimilarityWeight: r.cfg.SimilarityWeight,
		TimeWeight:       r.cfg.TimeWeight,
		RecentDecay:      r.cfg.RecentDecay,
		HistoricScale:    r.cfg.HistoricScale,
		DefaultScale:     r.cfg.DefaultScale,
		UndatedRelevance: r.cfg.UndatedRelevance,
	}
}

// KeepsUndated reports whether events without a start date survive in mode.
func (r *Ranker) KeepsUndated(mode apptype.DateRangeMode) bool {
	return mode == apptype.DateRangeUnspecified && r.cfg.IncludeUndated
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. Mismatched
// lengths and zero-norm vectors yield 0.
func Cosine(a, b []float32) float64 {
	s, _ := cosine(a, b)
	return s
}

func cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 || math.IsNaN(dot) {
		return 0, false
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, s)), true
}

// YearsAgo counts whole calendar days between start and now, in years.
func YearsAgo(start, now time.Time) float64 { return apptype.YearsAgo(start, now) }

// TimeRelevance maps an event age onto [0, 1] for the given mode.
func (r *Ranker) TimeRelevance(mode apptype.DateRangeMode, yearsAgo float64) float64 {
	return r.Scoring(r.now()).TimeRelevance(mode, yearsAgo)
}

// Window returns the start-date bounds for mode relative to now. The upper
// bound is always today so future-dated events never match.
func (r *Ranker) Window(mode apptype.DateRangeMode, now time.Time) apptype.TimeWindow {
	today := apptype.DateOnly(now)
	w := apptype.TimeWindow{NotAfter: &today}
	switch mode {
	case apptype.DateRangeRecent:
		from := r.cfg.RecentWindow.Before(today)
		w.NotBefore = &from
	case apptype.DateRangeLatest:
		from := r.cfg.LatestWindow.Before(today)
		w.NotBefore = &from
	case apptype.DateRangeHistoric:
		before := r.cfg.HistoricMinAge.Before(today)
		w.Before = &before
	}
	return w
}

// Score fills Similarity, TimeRelevance and CombinedScore on a copy of c.
// ok is false when the candidate must be dropped.
func (r *Ranker) Score(query []float32, mode apptype.DateRangeMode, window apptype.TimeWindow, c apptype.CandidateItem) (apptype.CandidateItem, bool) {
	sim, valid := cosine(query, c.Embedding)
	if !valid || sim < r.cfg.SimilarityThreshold {
		return c, false
	}
	c.Similarity = sim
	switch c.Kind {
	case apptype.KindClaim:
		c.TimeRelevance = 1
		c.CombinedScore = sim
		return c, true
	case apptype.KindEvent:
		var start *time.Time
		if c.Event != nil && c.Event.StartDate != nil {
			d := apptype.DateOnly(*c.Event.StartDate)
			if !window.Contains(d) {
				return c, false
			}
			start = &d
		} else if !r.KeepsUndated(mode) {
			return c, false
		}
		c.CombinedScore, c.TimeRelevance = r.Scoring(*window.NotAfter).Combined(mode, sim, start)
		return c, true
	}
	return c, false
}

// Rank scores candidates against query, drops what falls below the threshold
// or outside the mode's window, and returns the top maxEvents events and
// maxClaims claims by descending combined score. Ties keep input order.
func (r *Ranker) Rank(query []float32, mode apptype.DateRangeMode, candidates []apptype.CandidateItem, maxEvents, maxClaims int) (events, claims []apptype.CandidateItem) {
	now := r.now()
	window := r.Window(mode, now)
	events = []apptype.CandidateItem{}
	claims = []apptype.CandidateItem{}
	for _, c := range candidates {
		scored, ok := r.Score(query, mode, window, c)
		if !ok {
			continue
		}
		if scored.Kind == apptype.KindEvent {
			events = append(events, scored)
		} else {
			claims = append(claims, scored)
		}
	}
	byScore := func(a, b apptype.CandidateItem) int {
		return cmp.Compare(b.CombinedScore, a.CombinedScore)
	}
	slices.SortStableFunc(events, byScore)
	slices.SortStableFunc(claims, byScore)
	return capped(events, maxEvents), capped(claims, maxClaims)
}

func capped(items []apptype.CandidateItem, n int) []apptype.CandidateItem {
	if n < 0 {
		n = 0
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}
