package mindgraph

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/llm"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/ranking"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeEmbedder struct{}

func (fakeEmbedder) Name() string    { return "fake" }
func (fakeEmbedder) Dimensions() int { return 3 }
func (fakeEmbedder) Embed(_ context.Context, in []string) ([][]float32, error) {
	out := make([][]float32, len(in))
	for i := range in {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeLLM struct {
	mu     sync.Mutex
	prompt string
}

func (*fakeLLM) Name() string { return "fake" }
func (f *fakeLLM) Stream(_ context.Context, req llm.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if req.JSON {
			yield(`{"key_entities": [], "key_concepts": ["rivers"], "time_reference": null, "chain_of_thought_questions": []}`, nil)
			return
		}
		f.mu.Lock()
		f.prompt = req.Prompt
		f.mu.Unlock()
		if yield("Rivers ", nil) {
			yield("flow.", nil)
		}
	}
}

func newTestService(t *testing.T, brain *fakeLLM) *Service {
	t.Helper()
	cfg := &Config{
		URL:             fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		EmbeddingDims:   3,
		ExcerptsBackend: "libsql",
		HistoryBackend:  "none",
	}
	svc, err := NewService(context.Background(), cfg,
		WithEmbedder(fakeEmbedder{}),
		WithLLM(brain),
		WithRanker(ranking.New(ranking.DefaultConfig(), ranking.WithClock(func() time.Time { return now }))),
	)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, svc.Close()) })
	return svc
}

func TestServiceAskOverSeededLibSQL(t *testing.T) {
	brain := &fakeLLM{}
	svc := newTestService(t, brain)
	ctx := context.Background()

	flood := now.AddDate(0, 0, -20)
	require.NoError(t, svc.UpsertCandidates(ctx, "", []CandidateItem{
		NewEvent("e1", []float32{1, 0, 0}, EventFields{Name: "Spring flood", Description: "The river burst its banks", StartDate: &flood}),
		NewClaim("c1", []float32{1, 0, 0}, ClaimFields{Content: "Rivers erode valleys", Source: "Geology 101"}),
	}))
	require.NoError(t, svc.UpsertConcepts(ctx, "", []ConceptNode{{Name: "Rivers"}, {Name: "Erosion"}}))
	require.NoError(t, svc.UpsertConceptRelations(ctx, "", []ConceptRelationship{{Source: "Rivers", Target: "Erosion", Type: "CAUSES"}}))
	require.NoError(t, svc.UpsertExcerpts(ctx, "", []Excerpt{{Path: "geology/ch1", Label: "Geology", Content: "Water carves stone.", Embedding: []float32{1, 0, 0}}}))

	answer, err := svc.Ask(ctx, "", Query{Text: "How do rivers shape land?"})
	require.NoError(t, err)
	var sb strings.Builder
	for chunk := range answer {
		sb.WriteString(chunk)
	}
	assert.Equal(t, "Rivers flow.", sb.String())

	brain.mu.Lock()
	prompt := brain.prompt
	brain.mu.Unlock()
	assert.Contains(t, prompt, "Rivers CAUSES Erosion.")
	assert.Contains(t, prompt, "Spring flood: The river burst its banks")
	assert.Contains(t, prompt, "Rivers erode valleys")
	assert.Contains(t, prompt, "From Geology:")
	assert.Contains(t, prompt, "Water carves stone.")
	assert.True(t, strings.HasSuffix(prompt, "User: How do rivers shape land?\n\nAI: "))
}

func TestServiceEngineCacheAndProjects(t *testing.T) {
	svc := newTestService(t, &fakeLLM{})
	ctx := context.Background()

	a, err := svc.Engine(ctx, "")
	require.NoError(t, err)
	b, err := svc.Engine(ctx, DefaultProject)
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = svc.Engine(ctx, "../escape")
	assert.ErrorContains(t, err, "INVALID_PROJECT")

	err = svc.UpsertCandidates(ctx, "", []CandidateItem{{ID: "x", Kind: "fact"}})
	assert.ErrorContains(t, err, `unknown candidate kind "fact"`)
}

func TestServiceHealth(t *testing.T) {
	svc := newTestService(t, &fakeLLM{})
	h := svc.Health()
	assert.Equal(t, GraphLibSQL, h.GraphBackend)
	assert.Equal(t, "libsql", h.ExcerptBackend)
	assert.Equal(t, "none", h.HistoryBackend)
	assert.Equal(t, "fake", h.LLMProvider)
	assert.Equal(t, "fake", h.EmbeddingsProvider)
	assert.Equal(t, 3, h.EmbeddingDims)
	assert.False(t, h.MultiProject)

	inUse, idle := svc.PoolStats()
	assert.GreaterOrEqual(t, inUse+idle, 0)
}

func TestNewServiceRejectsUnknownGraphBackend(t *testing.T) {
	cfg := &Config{
		URL:            fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		EmbeddingDims:  3,
		GraphBackend:   "dgraph",
		HistoryBackend: "none",
	}
	_, err := NewService(context.Background(), cfg, WithEmbedder(fakeEmbedder{}), WithLLM(&fakeLLM{}))
	assert.ErrorContains(t, err, `unknown graph backend "dgraph"`)
}
