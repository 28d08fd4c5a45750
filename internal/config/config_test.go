package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("MG_STR", "  value ")
	t.Setenv("MG_INT", "42")
	t.Setenv("MG_BAD_INT", "forty-two")
	t.Setenv("MG_FLOAT", "0.35")
	t.Setenv("MG_BOOL", "yes")
	t.Setenv("MG_DUR", "45")
	t.Setenv("MG_DUR2", "1m30s")

	assert.Equal(t, "value", GetString("MG_STR", "x"))
	assert.Equal(t, "x", GetString("MG_UNSET", "x"))
	assert.Equal(t, 42, GetInt("MG_INT", 1))
	assert.Equal(t, 1, GetInt("MG_BAD_INT", 1))
	assert.InDelta(t, 0.35, GetFloat("MG_FLOAT", 0), 1e-9)
	assert.True(t, GetBool("MG_BOOL", false))
	assert.Equal(t, 45*time.Second, GetDuration("MG_DUR", time.Second))
	assert.Equal(t, 90*time.Second, GetDuration("MG_DUR2", time.Second))
}

func TestPeriodBefore(t *testing.T) {
	now := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC), Period{Months: 3}.Before(now))
	assert.Equal(t, time.Date(1974, 5, 31, 12, 0, 0, 0, time.UTC), Period{Years: 50}.Before(now))
}

func TestPeriodBeforeClampsMonthEnd(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	cases := []struct {
		name string
		p    Period
		from time.Time
		want time.Time
	}{
		{"non-leap february", Period{Months: 3}, day(2025, 5, 31), day(2025, 2, 28)},
		{"thirty day month", Period{Months: 1}, day(2025, 3, 31), day(2025, 2, 28)},
		{"across year boundary", Period{Months: 3}, day(2025, 1, 31), day(2024, 10, 31)},
		{"leap day to non-leap year", Period{Years: 50}, day(2024, 2, 29), day(1974, 2, 28)},
		{"leap day to leap year", Period{Years: 4}, day(2024, 2, 29), day(2020, 2, 29)},
		{"days after months", Period{Months: 1, Days: 3}, day(2025, 3, 31), day(2025, 2, 25)},
		{"days only", Period{Days: 3}, day(2024, 3, 1), day(2024, 2, 27)},
		{"mid month unchanged", Period{Months: 3}, day(2025, 6, 15), day(2025, 3, 15)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.p.Before(tc.from))
		})
	}
}

func TestLoadTuning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ranking:
  similarity_weight: 0.6
  time_weight: 0.4
  recent_window:
    days: 30
ideal_mix:
  events: 10
  claims: 5
  chunks: 1
context:
  max_chars: 5000
`), 0o644))

	tn, err := LoadTuning(path)
	require.NoError(t, err)
	require.NotNil(t, tn.Ranking.SimilarityWeight)
	assert.InDelta(t, 0.6, *tn.Ranking.SimilarityWeight, 1e-9)
	require.NotNil(t, tn.Ranking.RecentWindow)
	assert.Equal(t, Period{Days: 30}, *tn.Ranking.RecentWindow)
	assert.Nil(t, tn.Ranking.HistoricScale)
	require.NotNil(t, tn.IdealMix)
	assert.Equal(t, 10, tn.IdealMix.Events)
	assert.Equal(t, 5000, *tn.Context.MaxChars)

	empty, err := LoadTuning("")
	require.NoError(t, err)
	assert.Nil(t, empty.IdealMix)

	_, err = LoadTuning(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
