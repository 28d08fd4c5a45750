package stream

import (
	"context"
	"errors"
	"iter"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/llm"
)

type fakeLLM struct {
	chunks []string
	err    error
	req    llm.Request
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Stream(_ context.Context, req llm.Request) iter.Seq2[string, error] {
	f.req = req
	return func(yield func(string, error) bool) {
		for _, c := range f.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if f.err != nil {
			yield("", f.err)
		}
	}
}

func TestStreamForwardsIncrements(t *testing.T) {
	p := &fakeLLM{chunks: []string{"Hello", "", " world"}}
	got := slices.Collect(New(p).Stream(context.Background(), "prompt"))
	assert.Equal(t, []string{"Hello", " world"}, got)
	assert.Equal(t, "prompt", p.req.Prompt)
	assert.Contains(t, p.req.System, "embody knowledge")
}

func TestStreamFallbackOnError(t *testing.T) {
	p := &fakeLLM{chunks: []string{"partial"}, err: errors.New("reset")}
	got := slices.Collect(New(p).Stream(context.Background(), "prompt"))
	assert.Equal(t, []string{"partial", FallbackMessage}, got)
}

func TestStreamFallbackOnEmpty(t *testing.T) {
	got := slices.Collect(New(&fakeLLM{}).Stream(context.Background(), "prompt"))
	assert.Equal(t, []string{FallbackMessage}, got)
}

func TestStreamEarlyStop(t *testing.T) {
	p := &fakeLLM{chunks: []string{"a", "b", "c"}}
	var got []string
	for c := range New(p).Stream(context.Background(), "prompt") {
		got = append(got, c)
		break
	}
	assert.Equal(t, []string{"a"}, got)
}

func TestFallback(t *testing.T) {
	assert.Equal(t, []string{FallbackMessage}, slices.Collect(Fallback()))
}
