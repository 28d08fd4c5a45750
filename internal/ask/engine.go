// Package ask orchestrates one query end to end: extraction, retrieval,
// chain-of-thought fan-out, context assembly and the streamed answer.
package ask

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/assemble"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/cot"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/database"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/embeddings"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/excerpts"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/extract"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/graph"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/history"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/logging"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/metrics"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/stream"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/tracing"
)

// ErrMissingQuestion rejects queries with no text.
var ErrMissingQuestion = errors.New("missing required input: 'question'")

// Validate checks caller input before a query is accepted.
func Validate(q apptype.Query) error {
	if strings.TrimSpace(q.Text) == "" {
		return ErrMissingQuestion
	}
	if q.ConversationID != "" {
		if err := history.ValidateID(q.ConversationID); err != nil {
			return err
		}
	}
	return nil
}

// Config holds orchestration knobs.
type Config struct {
	MaxCoTQuestions  int
	MaxPerConcept    int
	ExcerptThreshold float64
	TrimLatest       bool
	AppendTurns      bool
}

// NewConfig reads COT_MAX_QUESTIONS, the excerpt threshold and history
// behaviour from env, and max_relationships_per_concept from the tuning file.
func NewConfig() (Config, error) {
	hc := history.NewConfig()
	cfg := Config{
		MaxCoTQuestions:  config.GetInt("COT_MAX_QUESTIONS", extract.DefaultMaxQuestions),
		MaxPerConcept:    config.GetInt("MAX_RELATIONSHIPS_PER_CONCEPT", database.DefaultMaxPerConcept),
		ExcerptThreshold: config.GetFloat("EXCERPTS_THRESHOLD", excerpts.DefaultThreshold),
		TrimLatest:       hc.TrimLatest,
		AppendTurns:      hc.AppendTurns,
	}
	t, err := config.TuningFromEnv()
	if err != nil {
		return cfg, err
	}
	if t.Context.MaxPerConcept != nil {
		cfg.MaxPerConcept = *t.Context.MaxPerConcept
	}
	if t.Context.ExcerptThreshold != nil {
		cfg.ExcerptThreshold = *t.Context.ExcerptThreshold
	}
	return cfg, nil
}

// Deps are the collaborators an Engine drives. History and Excerpts may be nil.
type Deps struct {
	Embedder  embeddings.Provider
	Extractor *extract.Extractor
	Retriever *graph.Retriever
	Excerpts  excerpts.Index
	CoT       *cot.Scheduler
	Assembler *assemble.Assembler
	Streamer  *stream.Streamer
	History   history.Store
}

type Engine struct {
	d      Deps
	cfg    Config
	logger zerolog.Logger
}

func New(d Deps, cfg Config) *Engine {
	if d.Excerpts == nil {
		d.Excerpts = excerpts.None{}
	}
	if d.History == nil {
		d.History = history.None{}
	}
	if cfg.MaxCoTQuestions <= 0 {
		cfg.MaxCoTQuestions = extract.DefaultMaxQuestions
	}
	if cfg.MaxPerConcept <= 0 {
		cfg.MaxPerConcept = database.DefaultMaxPerConcept
	}
	return &Engine{d: d, cfg: cfg, logger: logging.Component("ask")}
}

// Options override per-call settings. Zero values keep the engine config.
type Options struct {
	MaxCoTQuestions int
}

// Ask answers q as a stream of text increments. It always yields at least one
// increment; failures before generation yield stream.FallbackMessage.
func (e *Engine) Ask(ctx context.Context, q apptype.Query) iter.Seq[string] {
	return e.AskWith(ctx, q, Options{})
}

func (e *Engine) AskWith(ctx context.Context, q apptype.Query, opts Options) iter.Seq[string] {
	return func(yield func(string) bool) {
		reqID := uuid.NewString()
		logger := e.logger.With().Str("request_id", reqID).Logger()
		ctx, span := tracing.Start(ctx, "ask", attribute.String("request_id", reqID))
		var err error
		defer func() { tracing.End(span, err) }()

		if err = Validate(q); err != nil {
			logger.Warn().Err(err).Msg("rejected query")
			stream.Fallback()(yield)
			return
		}
		logger.Info().Str("question", q.Text).Msg("processing query")

		var prompt string
		prompt, err = e.prepare(ctx, logger, q, opts)
		if err != nil {
			logger.Error().Err(err).Msg("query failed before answer generation")
			stream.Fallback()(yield)
			return
		}

		var answer strings.Builder
		for chunk := range e.d.Streamer.WithLogger(logger).Stream(ctx, prompt) {
			answer.WriteString(chunk)
			if !yield(chunk) {
				return
			}
		}
		e.record(ctx, logger, q, answer.String())
	}
}

func (e *Engine) prepare(ctx context.Context, logger zerolog.Logger, q apptype.Query, opts Options) (string, error) {
	mode := extract.ClassifyDateRange(q.Text)
	maxQ := opts.MaxCoTQuestions
	if maxQ <= 0 {
		maxQ = e.cfg.MaxCoTQuestions
	}

	ectx, span := tracing.Start(ctx, "ask.extract")
	el := e.d.Extractor.Extract(ectx, q.Text, maxQ)
	span.SetAttributes(attribute.Bool("partial", el.Partial), attribute.Int("questions", len(el.ChainOfThoughtQuestions)))
	tracing.End(span, nil)
	logger.Info().Str("mode", string(mode)).Strs("concepts", el.KeyConcepts).Msg("query classified")

	vec, err := e.embed(ctx, q.Text)
	if err != nil {
		return "", err
	}

	rctx, span := tracing.Start(ctx, "ask.retrieve")
	done := metrics.TimeStage("retrieve")
	var (
		events, claims []apptype.CandidateItem
		rels           []apptype.ConceptRelationship
		chunks         []apptype.TextExcerpt
		answers        []string
	)
	g, gctx := errgroup.WithContext(rctx)
	g.Go(func() error {
		var err error
		events, claims, err = e.d.Retriever.Ranked(gctx, vec, mode, el.IdealMix.Events, el.IdealMix.Claims)
		return err
	})
	g.Go(func() error {
		chunks = e.excerpts(gctx, logger, vec, el.IdealMix.Chunks)
		return nil
	})
	g.Go(func() error {
		var err error
		_, rels, err = e.d.Retriever.Related(gctx, el.KeyConcepts, e.cfg.MaxPerConcept)
		if err != nil {
			return err
		}
		cctx, cspan := tracing.Start(gctx, "ask.cot", attribute.Int("questions", len(el.ChainOfThoughtQuestions)))
		answers = e.d.CoT.WithLogger(logger).Run(cctx, el.ChainOfThoughtQuestions, mode, el.IdealMix, rels)
		tracing.End(cspan, nil)
		return nil
	})
	err = g.Wait()
	done(err == nil)
	tracing.End(span, err)
	if err != nil {
		return "", err
	}
	logger.Info().
		Int("events", len(events)).
		Int("claims", len(claims)).
		Int("relationships", len(rels)).
		Int("excerpts", len(chunks)).
		Msg("retrieval complete")

	out := e.d.Assembler.Build(assemble.Input{
		Relationships: rels,
		Events:        events,
		Claims:        claims,
		Excerpts:      chunks,
		CoTAnswers:    answers,
		History:       e.history(ctx, logger, q),
		Query:         q.Text,
	})
	if out.Truncated {
		logger.Warn().Int("length", out.Length).Msg("context truncated")
	}
	logger.Debug().Str("prompt", out.Prompt).Msg("assembled context")
	return out.Prompt, nil
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracing.Start(ctx, "ask.embed")
	done := metrics.TimeStage("embed")
	vec, err := embeddings.EmbedOne(ctx, e.d.Embedder, text)
	if err != nil {
		err = fmt.Errorf("failed to embed query: %w", err)
	}
	done(err == nil)
	tracing.End(span, err)
	return vec, err
}

// excerpts is best-effort: a failing index leaves the section empty.
func (e *Engine) excerpts(ctx context.Context, logger zerolog.Logger, vec []float32, topN int) []apptype.TextExcerpt {
	if topN <= 0 {
		return nil
	}
	out, err := e.d.Excerpts.TopExcerpts(ctx, vec, e.cfg.ExcerptThreshold, topN)
	if err != nil {
		logger.Warn().Err(err).Msg("excerpt retrieval failed")
		return nil
	}
	return out
}

// history prefers inline turns; stored history is best-effort.
func (e *Engine) history(ctx context.Context, logger zerolog.Logger, q apptype.Query) []apptype.Turn {
	if len(q.History) > 0 {
		return q.History
	}
	if q.ConversationID == "" {
		return nil
	}
	turns, err := e.d.History.Load(ctx, q.ConversationID)
	if err != nil {
		logger.Warn().Err(err).Str("conversation", q.ConversationID).Msg("failed to load conversation history")
		return nil
	}
	// appended turns already exclude the current question
	if e.cfg.TrimLatest && !e.cfg.AppendTurns {
		turns = history.TrimLatest(turns)
	}
	return turns
}

func (e *Engine) record(ctx context.Context, logger zerolog.Logger, q apptype.Query, answer string) {
	if !e.cfg.AppendTurns || q.ConversationID == "" || answer == "" {
		return
	}
	if err := e.d.History.Append(ctx, q.ConversationID, apptype.Turn{User: q.Text, AI: answer}); err != nil {
		logger.Warn().Err(err).Str("conversation", q.ConversationID).Msg("failed to append conversation turn")
	}
}
