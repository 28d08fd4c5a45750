package cot

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/graph"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/llm"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/ranking"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Name() string    { return "fake" }
func (fakeEmbedder) Dimensions() int { return 4 }
func (fakeEmbedder) Embed(_ context.Context, in []string) ([][]float32, error) {
	out := make([][]float32, len(in))
	for i := range in {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

type fakeStore struct {
	queries atomic.Int32
}

func (s *fakeStore) TopCandidates(_ context.Context, q apptype.CandidateQuery) ([]apptype.CandidateItem, error) {
	s.queries.Add(1)
	return []apptype.CandidateItem{
		apptype.NewClaim("c1", []float32{1, 0, 0, 0}, apptype.ClaimFields{Content: "Oceans absorb heat", Source: "NOAA"}),
	}, nil
}

func (s *fakeStore) RelatedConcepts(context.Context, []string, int) ([]apptype.ConceptNode, []apptype.ConceptRelationship, error) {
	return nil, nil, nil
}

// scriptedLLM answers by question: a sleep for "slow", an error for "fail",
// a panic for "panic".
type scriptedLLM struct{}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) Stream(ctx context.Context, req llm.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		first := strings.SplitN(req.Prompt, "\n", 2)[0]
		switch {
		case strings.Contains(first, "panic"):
			panic("boom")
		case strings.Contains(first, "fail"):
			yield("", errors.New("model unavailable"))
			return
		case strings.Contains(first, "slow"):
			time.Sleep(80 * time.Millisecond)
		}
		if !strings.Contains(req.Prompt, "Oceans absorb heat\n  source: NOAA") {
			yield("", errors.New("sub-context missing retrieved claim"))
			return
		}
		yield("answer to "+strings.TrimPrefix(first, "## Question: "), nil)
	}
}

func newScheduler(p llm.Provider, store graph.Store, cfg Config) *Scheduler {
	ranker := ranking.New(ranking.DefaultConfig())
	return New(fakeEmbedder{}, graph.NewRetriever(store, ranker, 1), p, cfg)
}

func questions(texts ...string) []apptype.CoTQuestion {
	out := make([]apptype.CoTQuestion, len(texts))
	for i, t := range texts {
		out[i] = apptype.CoTQuestion{Question: t, ReasoningTypes: []apptype.ReasoningType{apptype.ReasoningDeductive}}
	}
	return out
}

func TestRunPreservesOrderUnderReversedLatency(t *testing.T) {
	store := &fakeStore{}
	s := newScheduler(&scriptedLLM{}, store, Config{})
	qs := questions("first slow", "second", "third")
	out := s.Run(context.Background(), qs, apptype.DateRangeUnspecified, apptype.DefaultIdealMix(), nil)
	require.Len(t, out, 3)
	assert.Equal(t, "\n## first slow\n\nanswer to first slow\n", out[0])
	assert.Equal(t, "\n## second\n\nanswer to second\n", out[1])
	assert.Equal(t, "\n## third\n\nanswer to third\n", out[2])
	assert.Equal(t, int32(3), store.queries.Load())
}

func TestRunIsolatesFailure(t *testing.T) {
	s := newScheduler(&scriptedLLM{}, &fakeStore{}, Config{})
	out := s.Run(context.Background(), questions("ok one", "please fail", "ok two"), apptype.DateRangeRecent, apptype.DefaultIdealMix(), nil)
	require.Len(t, out, 3)
	assert.Equal(t, Format("ok one", "answer to ok one"), out[0])
	assert.Equal(t, Format("please fail", llm.ErrorMessage), out[1])
	assert.Equal(t, Format("ok two", "answer to ok two"), out[2])
}

func TestRunRecoversPanic(t *testing.T) {
	s := newScheduler(&scriptedLLM{}, &fakeStore{}, Config{Concurrency: 1})
	out := s.Run(context.Background(), questions("will panic", "fine"), apptype.DateRangeUnspecified, apptype.DefaultIdealMix(), nil)
	assert.Equal(t, Format("will panic", llm.ErrorMessage), out[0])
	assert.Equal(t, Format("fine", "answer to fine"), out[1])
}

func TestRunEmpty(t *testing.T) {
	s := newScheduler(&scriptedLLM{}, &fakeStore{}, Config{})
	assert.Empty(t, s.Run(context.Background(), nil, apptype.DateRangeUnspecified, apptype.DefaultIdealMix(), nil))
}

func TestSystemPromptNamesReasoningTypes(t *testing.T) {
	q := apptype.CoTQuestion{Question: "q", ReasoningTypes: []apptype.ReasoningType{apptype.ReasoningInductive, apptype.ReasoningAbductive}}
	assert.Contains(t, systemPrompt(q), "specialized in inductive, abductive reasoning")
}

func TestSubContextIncludesConceptMap(t *testing.T) {
	rels := []apptype.ConceptRelationship{{Source: "Heat", Target: "Ice", Type: "MELTS"}}
	ctx := subContext(questions("q")[0], nil, nil, rels)
	assert.True(t, strings.HasPrefix(ctx, "## Question: q\nApply deductive reasoning"))
	assert.Contains(t, ctx, "### Memory\n### Ideas\n")
	assert.Contains(t, ctx, "Heat MELTS Ice.")
}
