package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
)

// Tuning is the optional YAML file that overrides empirically chosen
// constants. Nil fields keep their defaults.
type Tuning struct {
	Ranking  RankingTuning     `yaml:"ranking"`
	IdealMix *apptype.IdealMix `yaml:"ideal_mix"`
	Context  ContextTuning     `yaml:"context"`
}

type RankingTuning struct {
	SimilarityWeight    *float64 `yaml:"similarity_weight"`
	TimeWeight          *float64 `yaml:"time_weight"`
	RecentDecay         *float64 `yaml:"recent_decay"`
	HistoricScale       *float64 `yaml:"historic_scale"`
	DefaultScale        *float64 `yaml:"default_scale"`
	SimilarityThreshold *float64 `yaml:"similarity_threshold"`
	UndatedRelevance    *float64 `yaml:"undated_relevance"`
	IncludeUndated      *bool    `yaml:"include_undated"`
	RecentWindow        *Period  `yaml:"recent_window"`
	LatestWindow        *Period  `yaml:"latest_window"`
	HistoricMinAge      *Period  `yaml:"historic_min_age"`
}

// Period is a calendar offset of years, months and days.
type Period struct {
	Years  int `yaml:"years"`
	Months int `yaml:"months"`
	Days   int `yaml:"days"`
}

// Before returns t shifted back by the period. Years and months move first
// and clamp the day to the end of the target month, so May 31 minus three
// months is Feb 28 (or 29); days are subtracted after that.
func (p Period) Before(t time.Time) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m-time.Month(p.Months), 1, 0, 0, 0, 0, t.Location()).AddDate(-p.Years, 0, 0)
	last := first.AddDate(0, 1, -1).Day()
	shifted := time.Date(first.Year(), first.Month(), min(d, last), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	return shifted.AddDate(0, 0, -p.Days)
}

type ContextTuning struct {
	MaxChars         *int     `yaml:"max_chars"`
	ExcerptThreshold *float64 `yaml:"excerpt_threshold"`
	MaxPerConcept    *int     `yaml:"max_relationships_per_concept"`
}

// LoadTuning reads path; an empty path yields an empty Tuning.
func LoadTuning(path string) (*Tuning, error) {
	t := &Tuning{}
	if path == "" {
		return t, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, t); err != nil {
		return nil, fmt.Errorf("failed to parse tuning file %s: %w", path, err)
	}
	return t, nil
}

// TuningFromEnv loads MINDGRAPH_TUNING_FILE when set.
func TuningFromEnv() (*Tuning, error) {
	return LoadTuning(GetString("MINDGRAPH_TUNING_FILE", ""))
}
