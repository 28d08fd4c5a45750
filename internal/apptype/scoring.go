package apptype

import (
	"math"
	"time"
)

const daysPerYear = 365.25

// EventScoring is the event half of the ranking formula. Graph stores use it
// to select their event pool by combined score; the ranker applies it again.
type EventScoring struct {
	Today            time.Time
	SimilarityWeight float64
	TimeWeight       float64
	RecentDecay      float64
	HistoricScale    float64
	DefaultScale     float64
	UndatedRelevance float64
}

// YearsAgo counts whole calendar days between start and now, in years.
func YearsAgo(start, now time.Time) float64 {
	days := math.Floor(DateOnly(now).Sub(DateOnly(start)).Hours() / 24)
	return days / daysPerYear
}

// DateOnly truncates t to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// TimeRelevance maps an event age onto [0, 1] for the given mode.
func (s EventScoring) TimeRelevance(mode DateRangeMode, yearsAgo float64) float64 {
	switch mode {
	case DateRangeRecent, DateRangeLatest:
		return math.Exp(-yearsAgo * s.RecentDecay)
	case DateRangeHistoric:
		return 1 - math.Exp(-yearsAgo/s.HistoricScale)
	default:
		return 1 / (1 + yearsAgo/s.DefaultScale)
	}
}

// Combined blends similarity with the time relevance of start. A nil start
// scores with UndatedRelevance.
func (s EventScoring) Combined(mode DateRangeMode, similarity float64, start *time.Time) (combined, timeRelevance float64) {
	timeRelevance = s.UndatedRelevance
	if start != nil {
		timeRelevance = s.TimeRelevance(mode, YearsAgo(*start, s.Today))
	}
	return s.SimilarityWeight*similarity + s.TimeWeight*timeRelevance, timeRelevance
}
