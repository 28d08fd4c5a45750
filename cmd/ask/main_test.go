package main

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/ask"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/assemble"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/cot"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/extract"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/graph"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/llm"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/ranking"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/stream"
)

type stubEmbedder struct{}

func (stubEmbedder) Name() string    { return "stub" }
func (stubEmbedder) Dimensions() int { return 2 }
func (stubEmbedder) Embed(_ context.Context, in []string) ([][]float32, error) {
	out := make([][]float32, len(in))
	for i := range in {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type emptyStore struct{}

func (emptyStore) TopCandidates(context.Context, apptype.CandidateQuery) ([]apptype.CandidateItem, error) {
	return []apptype.CandidateItem{}, nil
}

func (emptyStore) RelatedConcepts(context.Context, []string, int) ([]apptype.ConceptNode, []apptype.ConceptRelationship, error) {
	return []apptype.ConceptNode{}, []apptype.ConceptRelationship{}, nil
}

type stubLLM struct{}

func (stubLLM) Name() string { return "stub" }
func (stubLLM) Stream(_ context.Context, req llm.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if req.JSON {
			yield(`{"key_entities": [], "key_concepts": [], "time_reference": null, "chain_of_thought_questions": []}`, nil)
			return
		}
		if yield("Hello ", nil) {
			yield("<world> & co", nil)
		}
	}
}

type stubSource struct {
	err     error
	project string
}

func (s *stubSource) Engine(_ context.Context, project string) (*ask.Engine, error) {
	s.project = project
	if s.err != nil {
		return nil, s.err
	}
	emb := stubEmbedder{}
	r := graph.NewRetriever(emptyStore{}, ranking.New(ranking.DefaultConfig()), 4)
	return ask.New(ask.Deps{
		Embedder:  emb,
		Extractor: extract.New(stubLLM{}, extract.Config{Timeout: time.Second}),
		Retriever: r,
		CoT:       cot.New(emb, r, stubLLM{}, cot.Config{}),
		Assembler: assemble.New(assemble.Config{}),
		Streamer:  stream.New(stubLLM{}),
	}, ask.Config{}), nil
}

func TestRunStreamsChunks(t *testing.T) {
	var out bytes.Buffer
	src := &stubSource{}
	code := run(context.Background(), strings.NewReader(`{"question":"hi","conversationId":"c-1"}`+"\n"), &out, src, "", zerolog.Nop())
	assert.Equal(t, 0, code)
	assert.Equal(t, "{\"chunk\":\"Hello \"}\n{\"chunk\":\"<world> & co\"}\n", out.String())
	assert.Equal(t, "", src.project)
}

func TestRunProjectSelection(t *testing.T) {
	src := &stubSource{}
	var out bytes.Buffer
	run(context.Background(), strings.NewReader(`{"question":"hi"}`), &out, src, "fallback", zerolog.Nop())
	assert.Equal(t, "fallback", src.project)

	run(context.Background(), strings.NewReader(`{"question":"hi","projectName":"books"}`), &out, src, "fallback", zerolog.Nop())
	assert.Equal(t, "books", src.project)
}

func TestRunErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
		src   *stubSource
		want  string
	}{
		{"not json", "hello\n", &stubSource{}, `{"error":"Invalid input format"}`},
		{"no question", `{"conversationId":"c"}`, &stubSource{}, `{"error":"Missing required input: 'question'"}`},
		{"blank question", `{"question":"  "}`, &stubSource{}, `{"error":"Missing required input: 'question'"}`},
		{"bad conversation id", `{"question":"q","conversationId":"../x"}`, &stubSource{}, `{"error":"Invalid input format"}`},
		{"backend failure", `{"question":"q"}`, &stubSource{err: errors.New("db down")}, `{"error":"An unexpected error occurred"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			code := run(context.Background(), strings.NewReader(tc.input), &out, tc.src, "", zerolog.Nop())
			assert.Equal(t, 1, code)
			require.Equal(t, tc.want+"\n", out.String())
		})
	}
}
