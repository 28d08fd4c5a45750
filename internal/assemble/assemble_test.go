package assemble

import (
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
)

func sampleInput() Input {
	d := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return Input{
		Relationships: []apptype.ConceptRelationship{{Source: "Climate Change", Target: "Sea Level", Type: "RAISES"}},
		Events: []apptype.CandidateItem{
			apptype.NewEvent("e1", nil, apptype.EventFields{Name: "Heatwave", Description: "Record temperatures", StartDate: &d, Emotion: "fear"}),
			apptype.NewEvent("e2", nil, apptype.EventFields{Name: "Summit", Emotion: "anxiety"}),
			apptype.NewEvent("e3", nil, apptype.EventFields{Name: "Flood", Description: "Coastal flooding", Emotion: "fear"}),
		},
		Claims: []apptype.CandidateItem{
			apptype.NewClaim("c1", nil, apptype.ClaimFields{Content: "Warming is accelerating", Source: "IPCC"}),
		},
		Excerpts: []apptype.TextExcerpt{
			{Label: "Book B", Content: "b1"},
			{Label: "Book A", Content: "a1"},
			{Label: "Book B", Content: "b2"},
		},
		CoTAnswers: []string{"\n## Q1\n\nA1\n", "\n## Q2\n\nA2\n"},
		History:    []apptype.Turn{{User: "hi", AI: "hello"}, {User: "more", AI: "sure"}},
		Query:      "What now?",
	}
}

func TestBuildSectionOrder(t *testing.T) {
	out := New(Config{}).Build(sampleInput())
	require.False(t, out.Truncated)
	p := out.Prompt
	markers := []string{
		"## Concept Map",
		"Climate Change RAISES Sea Level.",
		"## Emotional Context\nanxiety, fear.",
		"## Memory\nHeatwave: Record temperatures\n  emotion: fear\n  start_date: 2024-05-01\n",
		"Summit: No description.\n  emotion: anxiety\n",
		"## Ideas\nWarming is accelerating\n  source: IPCC\n",
		"## Knowledge From Books You Have Read",
		"From Book B:\n\nb1\n\nb2\n\n",
		"From Book A:\n\na1\n\n",
		"# Chain-of-Thoughts Reasoning\n\n## Q1\n\nA1\n\n\n## Q2",
		"# Conversation History\nUser: hi\nAI: hello\nUser: more\nAI: sure\n",
		"User: What now?\n\nAI: ",
	}
	last := -1
	for _, m := range markers {
		idx := strings.Index(p, m)
		require.GreaterOrEqual(t, idx, 0, "missing %q in prompt", m)
		assert.Greater(t, idx, last, "section %q out of order", m)
		last = idx
	}
	assert.Equal(t, 1, strings.Count(p, "From Book B:"))
	assert.True(t, strings.HasSuffix(p, "AI: "))
	assert.Equal(t, utf8.RuneCountInString(p), out.Length)
}

func TestBuildEmptySections(t *testing.T) {
	out := New(Config{}).Build(Input{Query: "q"})
	assert.Contains(t, out.Prompt, "No relevant concept relationships found.")
	assert.Contains(t, out.Prompt, "## Emotional Context\n.\n")
	assert.True(t, strings.HasSuffix(out.Prompt, "User: q\n\nAI: "))
}

func TestBuildWithinBudget(t *testing.T) {
	in := sampleInput()
	in.CoTAnswers = []string{strings.Repeat("x", 120000)}
	a := New(Config{MaxChars: 100000})
	full := New(Config{MaxChars: 1 << 30}).Build(in).Prompt

	out := a.Build(in)
	require.True(t, out.Truncated)
	assert.LessOrEqual(t, utf8.RuneCountInString(out.Prompt), 100000+utf8.RuneCountInString(TruncationMarker))
	assert.True(t, strings.HasSuffix(out.Prompt, TruncationMarker))
	assert.True(t, strings.HasPrefix(full, strings.TrimSuffix(out.Prompt, TruncationMarker)))
	assert.Equal(t, utf8.RuneCountInString(out.Prompt), out.Length)
}

func TestTruncateRunes(t *testing.T) {
	out := Truncate("héllo wörld", 4)
	assert.Equal(t, "héll"+TruncationMarker, out.Prompt)
	assert.True(t, out.Truncated)

	out = Truncate("short", 5)
	assert.Equal(t, "short", out.Prompt)
	assert.False(t, out.Truncated)

	out = Truncate("abc", 0)
	assert.Equal(t, TruncationMarker, out.Prompt)
}

func TestTruncateNegativeLimit(t *testing.T) {
	out := Truncate("abc", -5)
	assert.Equal(t, TruncationMarker, out.Prompt)
	assert.True(t, out.Truncated)
	assert.Equal(t, utf8.RuneCountInString(TruncationMarker), out.Length)
	assert.Equal(t, Truncate("abc", 0), out)

	out = Truncate("", -1)
	assert.Equal(t, "", out.Prompt)
	assert.False(t, out.Truncated)
	assert.Zero(t, out.Length)
}

func TestNewConfigTuningFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/tuning.yaml"
	require.NoError(t, writeFile(path, "context:\n  max_chars: 1234\n"))
	t.Setenv("MINDGRAPH_TUNING_FILE", path)
	t.Setenv("CONTEXT_MAX_CHARS", "999")
	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 1234, cfg.MaxChars)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
