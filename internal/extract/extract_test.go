package extract

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/llm"
)

type fakeLLM struct {
	chunks []string
	delay  time.Duration
	err    error
	last   llm.Request
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Stream(ctx context.Context, req llm.Request) iter.Seq2[string, error] {
	f.last = req
	return func(yield func(string, error) bool) {
		for _, c := range f.chunks {
			if f.delay > 0 {
				select {
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				case <-time.After(f.delay):
				}
			}
			if !yield(c, nil) {
				return
			}
		}
		if f.err != nil {
			yield("", f.err)
		}
	}
}

func newExtractor(p llm.Provider) *Extractor {
	return New(p, Config{Timeout: time.Second, MaxQuestions: 2, DefaultMix: apptype.DefaultIdealMix()})
}

func TestExtractFullResponse(t *testing.T) {
	p := &fakeLLM{chunks: []string{
		"```json\n{\"key_entities\": [\"IPCC\"], ",
		`"key_concepts": ["climate change", "Climate Change", "carbon budget"], "time_reference": "2023",`,
		` "chain_of_thought_questions": [{"question": "What drives {warming}?", "reasoning_types": ["Deductive", "bogus"]},`,
		` {"question": "Who reports it?", "reasoning_types": []}, {"question": "Third?", "reasoning_types": ["abstract"]}],`,
		` "ideal_mix": {"events": 5, "claims_ideas": 6}}`,
		"\n```",
	}}
	el := newExtractor(p).Extract(context.Background(), "What is the current state of climate change?", 0)

	assert.True(t, p.last.JSON)
	assert.Contains(t, p.last.Prompt, "current state of climate change")
	assert.Equal(t, []string{"IPCC"}, el.KeyEntities)
	assert.Equal(t, []string{"Climate Change", "Carbon Budget"}, el.KeyConcepts)
	require.NotNil(t, el.TimeReference)
	assert.Equal(t, "2023", *el.TimeReference)
	require.Len(t, el.ChainOfThoughtQuestions, 2)
	assert.Equal(t, []apptype.ReasoningType{apptype.ReasoningDeductive}, el.ChainOfThoughtQuestions[0].ReasoningTypes)
	assert.Equal(t, []apptype.ReasoningType{apptype.ReasoningDeductive}, el.ChainOfThoughtQuestions[1].ReasoningTypes)
	assert.Equal(t, apptype.IdealMix{Events: 5, Claims: 6, Chunks: 3}, el.IdealMix)
	assert.False(t, el.Partial)
}

func TestExtractStopsAtCompleteObject(t *testing.T) {
	p := &fakeLLM{chunks: []string{`{"key_entities": [], "key_concepts": ["x"]}`, " trailing garbage"}}
	el := newExtractor(p).Extract(context.Background(), "q", 0)
	assert.Equal(t, []string{"X"}, el.KeyConcepts)
}

func TestExtractMissingTimeReference(t *testing.T) {
	p := &fakeLLM{chunks: []string{`{"key_entities": ["Paris"], "key_concepts": ["urbanism"], "chain_of_thought_questions": []}`}}
	el := newExtractor(p).Extract(context.Background(), "q", 0)
	assert.Nil(t, el.TimeReference)
	assert.Equal(t, []string{"Paris"}, el.KeyEntities)
	assert.Empty(t, el.ChainOfThoughtQuestions)
	assert.Equal(t, apptype.DefaultIdealMix(), el.IdealMix)
}

func TestExtractParseFailureYieldsDefaults(t *testing.T) {
	p := &fakeLLM{chunks: []string{"I cannot answer that."}}
	el := newExtractor(p).Extract(context.Background(), "q", 0)
	assert.Empty(t, el.KeyEntities)
	assert.Empty(t, el.KeyConcepts)
	assert.Nil(t, el.TimeReference)
	assert.Empty(t, el.ChainOfThoughtQuestions)
	assert.Equal(t, apptype.DefaultIdealMix(), el.IdealMix)
	assert.False(t, el.Partial)
}

func TestExtractProviderError(t *testing.T) {
	p := &fakeLLM{err: errors.New("down")}
	el := newExtractor(p).Extract(context.Background(), "q", 0)
	assert.Equal(t, apptype.DefaultQueryElements(), el)
}

func TestExtractTimeoutKeepsAccumulated(t *testing.T) {
	p := &fakeLLM{chunks: []string{`{"key_entities": ["A"], `, `"key_concepts": ["b"]}`}, delay: 100 * time.Millisecond}
	e := New(p, Config{Timeout: 150 * time.Millisecond, PartialRecovery: true})
	el := e.Extract(context.Background(), "q", 0)
	assert.True(t, el.Partial)
	assert.Equal(t, []string{"A"}, el.KeyEntities)
	assert.Empty(t, el.KeyConcepts)
}

func TestExtractPartialRecovery(t *testing.T) {
	truncated := `{"key_entities": [], "key_concepts": ["free will", "determinism"], "time_reference": null,
 "chain_of_thought_questions": [{"question": "Is choice \"real\"?", "reasoning_types": ["abstract"]}, {"question": "What does neuro`
	p := &fakeLLM{chunks: []string{truncated}}
	e := New(p, Config{Timeout: time.Second, PartialRecovery: true})
	el := e.Extract(context.Background(), "q", 5)
	assert.True(t, el.Partial)
	assert.Equal(t, []string{"Free Will", "Determinism"}, el.KeyConcepts)
	require.Len(t, el.ChainOfThoughtQuestions, 1)
	assert.Equal(t, `Is choice "real"?`, el.ChainOfThoughtQuestions[0].Question)
	assert.Equal(t, []apptype.ReasoningType{apptype.ReasoningAbstract}, el.ChainOfThoughtQuestions[0].ReasoningTypes)
}

func TestRecoverNothing(t *testing.T) {
	_, ok := Recover("no json here", apptype.DefaultIdealMix())
	assert.False(t, ok)
}

func TestNormalizeCapsConceptsWithoutEntities(t *testing.T) {
	concepts := make([]string, 15)
	for i := range concepts {
		concepts[i] = "concept " + string(rune('a'+i))
	}
	el := apptype.DefaultQueryElements()
	el.KeyConcepts = concepts
	out := Normalize(el, 2)
	assert.Len(t, out.KeyConcepts, 10)

	el.KeyEntities = []string{"Someone"}
	out = Normalize(el, 2)
	assert.Len(t, out.KeyConcepts, 15)
}

func TestParseClaimsAlias(t *testing.T) {
	el, err := Parse(`{"ideal_mix": {"events": 1, "claims": 2, "chunks": 0}}`, apptype.DefaultIdealMix())
	require.NoError(t, err)
	assert.Equal(t, apptype.IdealMix{Events: 1, Claims: 2, Chunks: 0}, el.IdealMix)

	el, err = Parse(`{"ideal_mix": {"claims": 2, "claims_ideas": 4, "events": -1}}`, apptype.DefaultIdealMix())
	require.NoError(t, err)
	assert.Equal(t, apptype.IdealMix{Events: 27, Claims: 4, Chunks: 3}, el.IdealMix)
}

func TestTitleCaseDedupes(t *testing.T) {
	assert.Equal(t, []string{"Climate Change", "Ocean"}, TitleCase([]string{"climate change", " ", "CLIMATE CHANGE", "ocean", "Climate change"}))
}

func TestClassifyDateRange(t *testing.T) {
	cases := map[string]apptype.DateRangeMode{
		"What is the current state of climate change?": apptype.DateRangeRecent,
		"Any RECENT news?":                            apptype.DateRangeRecent,
		"Tell me about ancient Rome":                  apptype.DateRangeHistoric,
		"What happened today?":                        apptype.DateRangeLatest,
		"old news from today":                         apptype.DateRangeHistoric,
		"recently":                                    apptype.DateRangeUnspecified,
		"What is justice?":                            apptype.DateRangeUnspecified,
	}
	for q, want := range cases {
		assert.Equal(t, want, ClassifyDateRange(q), q)
	}
}

func TestBraceTrackerIgnoresStringBraces(t *testing.T) {
	var bt braceTracker
	assert.False(t, bt.Feed(`{"a": "}`))
	assert.False(t, bt.Feed(`\"}"`))
	assert.True(t, bt.Feed(`}`))
	assert.Equal(t, `{"a": "}\"}"}`, bt.String())
}

func FuzzBraceTracker(f *testing.F) {
	f.Add(`{"a": {"b": "c}"}}`, 3)
	f.Add(`{"x": "\\"}`, 1)
	f.Add(`}}{{`, 2)
	f.Fuzz(func(t *testing.T, s string, split int) {
		var whole, parts braceTracker
		whole.Feed(s)
		if split < 0 {
			split = -split
		}
		if len(s) > 0 {
			split %= len(s) + 1
		} else {
			split = 0
		}
		parts.Feed(s[:split])
		parts.Feed(s[split:])
		if whole.depth != parts.depth || whole.inString != parts.inString || whole.escape != parts.escape {
			t.Fatalf("state diverged for %q split at %d", s, split)
		}
	})
}
