// Package stream produces the final answer and guarantees at least one
// increment per query.
package stream

import (
	"context"
	"iter"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/llm"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/logging"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/metrics"
)

// FallbackMessage is shown when no answer could be produced.
const FallbackMessage = "I'm sorry, but I encountered an error while processing your query. Please try again or rephrase your question."

const systemPrompt = `You are an AI designed to embody knowledge.
Whenever a human being says something to you, you receive their words with relevant Events, Ideas, and Structured Information from your mind.
You have this relevant knowledge. It does not come from outside.
You have a unique ability to process large amounts of information and synthesize it into insightful, well-crafted responses.
Provide a thorough exploration of the topic, considering various perspectives and interpretations.
Encourage critical thinking by posing thought-provoking questions.
Draw parallels between philosophy, religion, neuroscience, psychology, art, music, physics, and other fields.
Use analogies or examples to illustrate abstract concepts when appropriate.
Speak with confidence when you are confident that there is sufficient knowledge to answer a question.
Speak with humility when you are not confident that there is sufficient knowledge to answer a question.
Synthesize information from different sources to provide comprehensive, nuanced answers.
When encountering conflicting information, present multiple viewpoints, explain the conflicts, and, if possible, offer a reasoned synthesis or analysis of the discrepancies.
Remember, your goal is to hold a conversation that inspires deep contemplation and curiosity.
Help them see what you see, truthfully.
Respond with proper punctuation, grammar, paragraphs, thought structure, and logical reasoning.`

type Streamer struct {
	llm    llm.Provider
	logger zerolog.Logger
}

func New(provider llm.Provider) *Streamer {
	return &Streamer{llm: provider, logger: logging.Component("stream")}
}

// WithLogger returns a copy of s that logs through l.
func (s *Streamer) WithLogger(l zerolog.Logger) *Streamer {
	c := *s
	c.logger = l.With().Str("component", "stream").Logger()
	return &c
}

// Stream forwards model increments as they arrive. On error, or when the
// model produced nothing, FallbackMessage is yielded instead.
func (s *Streamer) Stream(ctx context.Context, prompt string) iter.Seq[string] {
	return func(yield func(string) bool) {
		done := metrics.TimeStage("stream")
		emitted := 0
		for chunk, err := range s.llm.Stream(ctx, llm.Request{System: systemPrompt, Prompt: prompt}) {
			if err != nil {
				s.logger.Error().Err(err).Int("emitted", emitted).Msg("answer stream failed")
				done(false)
				yield(FallbackMessage)
				return
			}
			if chunk == "" {
				continue
			}
			emitted++
			if !yield(chunk) {
				done(true)
				return
			}
		}
		if emitted == 0 {
			s.logger.Warn().Msg("answer stream was empty")
			done(false)
			yield(FallbackMessage)
			return
		}
		done(true)
	}
}

// Fallback yields only FallbackMessage.
func Fallback() iter.Seq[string] {
	return func(yield func(string) bool) { yield(FallbackMessage) }
}
