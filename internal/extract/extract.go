// Package extract decomposes a raw query into entities, concepts, a time
// reference and chain-of-thought sub-questions using the language model.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/llm"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/logging"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/metrics"
)

const (
	DefaultMaxQuestions = 2
	// maxConceptsWithoutEntities bounds concept lists the model pads out
	// when the query names nothing concrete.
	maxConceptsWithoutEntities = 10
)

// Config controls extraction.
type Config struct {
	Timeout         time.Duration
	MaxQuestions    int
	PartialRecovery bool
	DefaultMix      apptype.IdealMix
}

// NewConfig reads EXTRACT_TIMEOUT (default 30s), COT_MAX_QUESTIONS (default 2),
// EXTRACT_PARTIAL_RECOVERY and the ideal_mix block of the tuning file.
func NewConfig() (Config, error) {
	cfg := Config{
		Timeout:         config.GetDuration("EXTRACT_TIMEOUT", 30*time.Second),
		MaxQuestions:    config.GetInt("COT_MAX_QUESTIONS", DefaultMaxQuestions),
		PartialRecovery: config.GetBool("EXTRACT_PARTIAL_RECOVERY", false),
		DefaultMix:      apptype.DefaultIdealMix(),
	}
	t, err := config.TuningFromEnv()
	if err != nil {
		return cfg, err
	}
	if t.IdealMix != nil {
		cfg.DefaultMix = *t.IdealMix
	}
	return cfg, nil
}

// Extractor turns a query into QueryElements. It never fails: model or parse
// errors degrade to defaults.
type Extractor struct {
	llm    llm.Provider
	cfg    Config
	logger zerolog.Logger
}

// New builds an Extractor. A zero Timeout disables the deadline.
func New(provider llm.Provider, cfg Config) *Extractor {
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = DefaultMaxQuestions
	}
	if cfg.DefaultMix == (apptype.IdealMix{}) {
		cfg.DefaultMix = apptype.DefaultIdealMix()
	}
	return &Extractor{llm: provider, cfg: cfg, logger: logging.Component("extract")}
}

// Extract asks the model for the query's elements. maxQuestions <= 0 uses the
// configured cap.
func (e *Extractor) Extract(ctx context.Context, query string, maxQuestions int) apptype.QueryElements {
	done := metrics.TimeStage("extract")
	if maxQuestions <= 0 {
		maxQuestions = e.cfg.MaxQuestions
	}
	raw := e.collect(ctx, query)
	el, err := Parse(raw, e.cfg.DefaultMix)
	if err != nil {
		e.logger.Error().Err(err).Str("response", raw).Msg("failed to parse query elements")
		if e.cfg.PartialRecovery {
			if rec, ok := Recover(raw, e.cfg.DefaultMix); ok {
				e.logger.Warn().Msg("recovered partial query elements")
				done(true)
				return Normalize(rec, maxQuestions)
			}
		}
		done(false)
		return Normalize(defaults(e.cfg.DefaultMix), maxQuestions)
	}
	done(true)
	out := Normalize(el, maxQuestions)
	e.logger.Info().
		Strs("entities", out.KeyEntities).
		Strs("concepts", out.KeyConcepts).
		Int("questions", len(out.ChainOfThoughtQuestions)).
		Msg("extracted query elements")
	return out
}

// collect streams the model reply until one complete JSON object has arrived,
// the timeout fires, or the stream ends.
func (e *Extractor) collect(ctx context.Context, query string) string {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	var bt braceTracker
	req := llm.Request{System: systemPrompt, Prompt: fmt.Sprintf(userPromptTemplate, query), JSON: true}
	for chunk, err := range e.llm.Stream(ctx, req) {
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				e.logger.Warn().Dur("timeout", e.cfg.Timeout).Msg("timeout reached while waiting for complete response")
			} else {
				e.logger.Error().Err(err).Msg("query element extraction call failed")
			}
			break
		}
		if bt.Feed(chunk) {
			break
		}
	}
	e.logger.Debug().Str("response", bt.String()).Msg("extraction response")
	return bt.String()
}

type rawQuestion struct {
	Question       string   `json:"question"`
	ReasoningTypes []string `json:"reasoning_types"`
}

type rawMix struct {
	Events      *int `json:"events"`
	ClaimsIdeas *int `json:"claims_ideas"`
	Claims      *int `json:"claims"`
	Chunks      *int `json:"chunks"`
}

type rawElements struct {
	KeyEntities             []string      `json:"key_entities"`
	KeyConcepts             []string      `json:"key_concepts"`
	TimeReference           *string       `json:"time_reference"`
	ChainOfThoughtQuestions []rawQuestion `json:"chain_of_thought_questions"`
	IdealMix                *rawMix       `json:"ideal_mix"`
}

// Parse decodes a model reply, tolerating markdown fences and missing fields.
func Parse(raw string, defMix apptype.IdealMix) (apptype.QueryElements, error) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return apptype.QueryElements{}, errors.New("empty extraction response")
	}
	var r rawElements
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return apptype.QueryElements{}, fmt.Errorf("failed to decode query elements: %w", err)
	}
	el := defaults(defMix)
	if r.KeyEntities != nil {
		el.KeyEntities = r.KeyEntities
	}
	if r.KeyConcepts != nil {
		el.KeyConcepts = r.KeyConcepts
	}
	if r.TimeReference != nil && strings.TrimSpace(*r.TimeReference) != "" {
		tr := strings.TrimSpace(*r.TimeReference)
		el.TimeReference = &tr
	}
	for _, q := range r.ChainOfThoughtQuestions {
		el.ChainOfThoughtQuestions = append(el.ChainOfThoughtQuestions, toQuestion(q.Question, q.ReasoningTypes))
	}
	if m := r.IdealMix; m != nil {
		el.IdealMix.Events = pick(m.Events, defMix.Events)
		el.IdealMix.Claims = pick(m.ClaimsIdeas, pick(m.Claims, defMix.Claims))
		el.IdealMix.Chunks = pick(m.Chunks, defMix.Chunks)
	}
	return el, nil
}

func pick(v *int, def int) int {
	if v == nil || *v < 0 {
		return def
	}
	return *v
}

func defaults(mix apptype.IdealMix) apptype.QueryElements {
	el := apptype.DefaultQueryElements()
	el.IdealMix = mix
	return el
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func toQuestion(text string, types []string) apptype.CoTQuestion {
	q := apptype.CoTQuestion{Question: strings.TrimSpace(text), ReasoningTypes: []apptype.ReasoningType{}}
	for _, t := range types {
		rt := apptype.ReasoningType(strings.ToLower(strings.TrimSpace(t)))
		if rt.Valid() && !containsType(q.ReasoningTypes, rt) {
			q.ReasoningTypes = append(q.ReasoningTypes, rt)
		}
	}
	return q
}

func containsType(ts []apptype.ReasoningType, t apptype.ReasoningType) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

// Normalize applies the post-parse rules: concept capping when no entities
// were found, title-casing with order-preserving dedupe, question capping and
// a deductive default for questions without a known reasoning type.
func Normalize(el apptype.QueryElements, maxQuestions int) apptype.QueryElements {
	el.KeyEntities = nonEmpty(el.KeyEntities)
	concepts := nonEmpty(el.KeyConcepts)
	if len(el.KeyEntities) == 0 && len(concepts) > maxConceptsWithoutEntities {
		concepts = concepts[:maxConceptsWithoutEntities]
	}
	el.KeyConcepts = TitleCase(concepts)

	qs := make([]apptype.CoTQuestion, 0, len(el.ChainOfThoughtQuestions))
	for _, q := range el.ChainOfThoughtQuestions {
		if q.Question == "" {
			continue
		}
		if len(q.ReasoningTypes) == 0 {
			q.ReasoningTypes = []apptype.ReasoningType{apptype.ReasoningDeductive}
		}
		qs = append(qs, q)
	}
	if maxQuestions >= 0 && len(qs) > maxQuestions {
		qs = qs[:maxQuestions]
	}
	el.ChainOfThoughtQuestions = qs
	return el
}

// TitleCase title-cases names and drops duplicates, keeping first occurrence.
func TitleCase(names []string) []string {
	caser := cases.Title(language.English)
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		t := caser.String(strings.TrimSpace(n))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
