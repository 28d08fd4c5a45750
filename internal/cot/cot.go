// Package cot answers chain-of-thought sub-questions concurrently, each with
// its own retrieval, and returns the answers in question order.
package cot

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/assemble"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/embeddings"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/graph"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/llm"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/logging"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/metrics"
)

// Config controls fan-out width. Concurrency 0 runs every question at once.
type Config struct {
	Concurrency int
}

// NewConfig reads COT_CONCURRENCY.
func NewConfig() Config {
	return Config{Concurrency: max(0, config.GetInt("COT_CONCURRENCY", 0))}
}

type Scheduler struct {
	embedder  embeddings.Provider
	retriever *graph.Retriever
	llm       llm.Provider
	cfg       Config
	logger    zerolog.Logger
}

func New(embedder embeddings.Provider, retriever *graph.Retriever, provider llm.Provider, cfg Config) *Scheduler {
	return &Scheduler{
		embedder:  embedder,
		retriever: retriever,
		llm:       provider,
		cfg:       cfg,
		logger:    logging.Component("cot"),
	}
}

// WithLogger returns a copy of s that logs through l.
func (s *Scheduler) WithLogger(l zerolog.Logger) *Scheduler {
	c := *s
	c.logger = l.With().Str("component", "cot").Logger()
	return &c
}

// Run answers every question and returns one formatted section per question,
// in input order. A failed question yields llm.ErrorMessage in its slot and
// never affects the others.
func (s *Scheduler) Run(ctx context.Context, questions []apptype.CoTQuestion, mode apptype.DateRangeMode, mix apptype.IdealMix, rels []apptype.ConceptRelationship) []string {
	results := make([]string, len(questions))
	if len(questions) == 0 {
		return results
	}
	done := metrics.TimeStage("cot")
	var g errgroup.Group
	if s.cfg.Concurrency > 0 {
		g.SetLimit(s.cfg.Concurrency)
	}
	for i, q := range questions {
		g.Go(func() error {
			results[i] = Format(q.Question, s.answerSafely(ctx, q, mode, mix, rels))
			return nil
		})
	}
	_ = g.Wait()
	done(true)
	return results
}

// Format renders one answered question for the main prompt.
func Format(question, answer string) string {
	return "\n## " + question + "\n\n" + answer + "\n"
}

func (s *Scheduler) answerSafely(ctx context.Context, q apptype.CoTQuestion, mode apptype.DateRangeMode, mix apptype.IdealMix, rels []apptype.ConceptRelationship) (answer string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("question", q.Question).Msg("chain-of-thought task panicked")
			metrics.Default().IncCoTTask(false)
			answer = llm.ErrorMessage
		}
	}()
	s.logger.Info().Str("question", q.Question).Msg("starting chain-of-thought question")
	ans, err := s.answer(ctx, q, mode, mix, rels)
	if err != nil {
		s.logger.Error().Err(err).Str("question", q.Question).Msg("chain-of-thought question failed")
		metrics.Default().IncCoTTask(false)
		return llm.ErrorMessage
	}
	metrics.Default().IncCoTTask(true)
	s.logger.Info().Str("question", q.Question).Msg("finished chain-of-thought question")
	return ans
}

func (s *Scheduler) answer(ctx context.Context, q apptype.CoTQuestion, mode apptype.DateRangeMode, mix apptype.IdealMix, rels []apptype.ConceptRelationship) (string, error) {
	vec, err := embeddings.EmbedOne(ctx, s.embedder, q.Question)
	if err != nil {
		return "", fmt.Errorf("failed to embed sub-question: %w", err)
	}
	events, claims, err := s.retriever.Ranked(ctx, vec, mode, mix.Events, mix.Claims)
	if err != nil {
		return "", err
	}
	req := llm.Request{System: systemPrompt(q), Prompt: subContext(q, events, claims, rels)}
	return llm.Collect(ctx, s.llm, req)
}

func systemPrompt(q apptype.CoTQuestion) string {
	label := q.ReasoningLabel()
	return fmt.Sprintf(`You are an AI assistant specialized in %s reasoning.
Analyze the following question using the provided knowledge and apply %s reasoning to formulate a response.
Your answer should demonstrate clear logical steps and connections between ideas.`, label, label)
}

func subContext(q apptype.CoTQuestion, events, claims []apptype.CandidateItem, rels []apptype.ConceptRelationship) string {
	var sb strings.Builder
	sb.WriteString("## Question: " + q.Question + "\n")
	sb.WriteString("Apply " + q.ReasoningLabel() + " reasoning based on the following knowledge:\n")
	sb.WriteString("### Memory\n")
	assemble.WriteEvents(&sb, events)
	sb.WriteString("### Ideas\n")
	assemble.WriteClaims(&sb, claims)
	assemble.WriteConceptMap(&sb, rels)
	sb.WriteString("\nBased on this information, please provide a detailed answer to the question using the specified reasoning type(s).")
	return sb.String()
}
