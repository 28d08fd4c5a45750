package ranking

import (
	"fmt"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
)

// Config holds the scoring constants. They were chosen empirically and are
// overridable through env (RANK_*) and the tuning file.
type Config struct {
	SimilarityWeight    float64
	TimeWeight          float64
	RecentDecay         float64
	HistoricScale       float64
	DefaultScale        float64
	SimilarityThreshold float64
	UndatedRelevance    float64
	// IncludeUndated keeps events without a start date in unspecified mode.
	IncludeUndated bool

	RecentWindow   config.Period
	LatestWindow   config.Period
	HistoricMinAge config.Period
}

// DefaultConfig returns the built-in constants.
func DefaultConfig() Config {
	return Config{
		SimilarityWeight:    0.7,
		TimeWeight:          0.3,
		RecentDecay:         0.33,
		HistoricScale:       50,
		DefaultScale:        5,
		SimilarityThreshold: 0.3,
		UndatedRelevance:    0.5,
		RecentWindow:        config.Period{Months: 3},
		LatestWindow:        config.Period{Days: 3},
		HistoricMinAge:      config.Period{Years: 50},
	}
}

// NewConfig layers env over the defaults, then the tuning file over both.
func NewConfig() (Config, error) {
	cfg := DefaultConfig()
	cfg.SimilarityWeight = config.GetFloat("RANK_SIMILARITY_WEIGHT", cfg.SimilarityWeight)
	cfg.TimeWeight = config.GetFloat("RANK_TIME_WEIGHT", cfg.TimeWeight)
	cfg.RecentDecay = config.GetFloat("RANK_RECENT_DECAY", cfg.RecentDecay)
	cfg.HistoricScale = config.GetFloat("RANK_HISTORIC_SCALE", cfg.HistoricScale)
	cfg.DefaultScale = config.GetFloat("RANK_DEFAULT_SCALE", cfg.DefaultScale)
	cfg.SimilarityThreshold = config.GetFloat("RANK_SIMILARITY_THRESHOLD", cfg.SimilarityThreshold)
	cfg.UndatedRelevance = config.GetFloat("RANK_UNDATED_RELEVANCE", cfg.UndatedRelevance)
	cfg.IncludeUndated = config.GetBool("RANK_INCLUDE_UNDATED", cfg.IncludeUndated)

	tuning, err := config.TuningFromEnv()
	if err != nil {
		return cfg, err
	}
	cfg = cfg.WithTuning(tuning.Ranking)
	return cfg, cfg.Validate()
}

// WithTuning returns a copy with every non-nil tuning field applied.
func (c Config) WithTuning(t config.RankingTuning) Config {
	setF := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setF(&c.SimilarityWeight, t.SimilarityWeight)
	setF(&c.TimeWeight, t.TimeWeight)
	setF(&c.RecentDecay, t.RecentDecay)
	setF(&c.HistoricScale, t.HistoricScale)
	setF(&c.DefaultScale, t.DefaultScale)
	setF(&c.SimilarityThreshold, t.SimilarityThreshold)
	setF(&c.UndatedRelevance, t.UndatedRelevance)
	if t.IncludeUndated != nil {
		c.IncludeUndated = *t.IncludeUndated
	}
	if t.RecentWindow != nil {
		c.RecentWindow = *t.RecentWindow
	}
	if t.LatestWindow != nil {
		c.LatestWindow = *t.LatestWindow
	}
	if t.HistoricMinAge != nil {
		c.HistoricMinAge = *t.HistoricMinAge
	}
	return c
}

// Validate rejects constants that would divide by zero or flip ordering.
func (c Config) Validate() error {
	if c.HistoricScale <= 0 || c.DefaultScale <= 0 {
		return fmt.Errorf("ranking scales must be positive (historic=%v default=%v)", c.HistoricScale, c.DefaultScale)
	}
	if c.RecentDecay < 0 {
		return fmt.Errorf("ranking recent decay must be non-negative, got %v", c.RecentDecay)
	}
	if c.SimilarityWeight < 0 || c.TimeWeight < 0 {
		return fmt.Errorf("ranking weights must be non-negative (similarity=%v time=%v)", c.SimilarityWeight, c.TimeWeight)
	}
	if c.SimilarityThreshold < -1 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be within [-1, 1], got %v", c.SimilarityThreshold)
	}
	return nil
}
