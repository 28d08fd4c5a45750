package ask

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/extract"
)

// RetrieveRequest drives the retrieval stage without generation. An empty
// Mode is derived from the question; a zero Mix uses the defaults.
type RetrieveRequest struct {
	Question string
	Mode     string
	Mix      apptype.IdealMix
	Concepts []string
}

// Retrieve runs ranked retrieval, concept resolution and excerpt search.
func (e *Engine) Retrieve(ctx context.Context, req RetrieveRequest) (apptype.RetrieveResult, error) {
	if strings.TrimSpace(req.Question) == "" {
		return apptype.RetrieveResult{}, ErrMissingQuestion
	}
	mode := extract.ClassifyDateRange(req.Question)
	if req.Mode != "" {
		mode = apptype.ParseDateRangeMode(req.Mode)
	}
	mix := req.Mix
	def := apptype.DefaultIdealMix()
	if mix.Events <= 0 {
		mix.Events = def.Events
	}
	if mix.Claims <= 0 {
		mix.Claims = def.Claims
	}
	if mix.Chunks <= 0 {
		mix.Chunks = def.Chunks
	}
	vec, err := e.embed(ctx, req.Question)
	if err != nil {
		return apptype.RetrieveResult{}, err
	}

	res := apptype.RetrievalResult{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		res.Events, res.Claims, err = e.d.Retriever.Ranked(gctx, vec, mode, mix.Events, mix.Claims)
		return err
	})
	g.Go(func() error {
		var err error
		res.Concepts, res.Relationships, err = e.d.Retriever.Related(gctx, req.Concepts, e.cfg.MaxPerConcept)
		return err
	})
	g.Go(func() error {
		res.Excerpts = e.excerpts(gctx, e.logger, vec, mix.Chunks)
		return nil
	})
	if err := g.Wait(); err != nil {
		return apptype.RetrieveResult{}, err
	}
	if res.Excerpts == nil {
		res.Excerpts = []apptype.TextExcerpt{}
	}
	return apptype.RetrieveResult{Mode: mode, Result: res}, nil
}

// Related resolves the neighbourhood of names. maxPerConcept <= 0 uses the
// configured cap.
func (e *Engine) Related(ctx context.Context, names []string, maxPerConcept int) (apptype.ConceptsResult, error) {
	if maxPerConcept <= 0 {
		maxPerConcept = e.cfg.MaxPerConcept
	}
	nodes, rels, err := e.d.Retriever.Related(ctx, names, maxPerConcept)
	if err != nil {
		return apptype.ConceptsResult{}, err
	}
	return apptype.ConceptsResult{Concepts: nodes, Relationships: rels}, nil
}

// Extract exposes query decomposition.
func (e *Engine) Extract(ctx context.Context, question string, maxQuestions int) (apptype.ExtractResult, error) {
	if strings.TrimSpace(question) == "" {
		return apptype.ExtractResult{}, ErrMissingQuestion
	}
	if maxQuestions <= 0 {
		maxQuestions = e.cfg.MaxCoTQuestions
	}
	return apptype.ExtractResult{
		Mode:     extract.ClassifyDateRange(question),
		Elements: e.d.Extractor.Extract(ctx, question, maxQuestions),
	}, nil
}
