// Package mindgraph wires the retrieval engine to its configured backends
// for use without an MCP transport.
package mindgraph

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/ask"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/assemble"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/buildinfo"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/cot"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/database"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/embeddings"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/excerpts"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/extract"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/graph"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/history"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/llm"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/logging"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/neo4jstore"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/ranking"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/stream"
)

// DefaultProject is used when a caller names no project.
const DefaultProject = "default"

var projectRe = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// Option customises a Service.
type Option func(*Service)

// WithEmbedder replaces the provider built from EMBEDDINGS_PROVIDER.
func WithEmbedder(p embeddings.Provider) Option {
	return func(s *Service) { s.embedder = p }
}

// WithLLM replaces the provider built from LLM_PROVIDER.
func WithLLM(p llm.Provider) Option {
	return func(s *Service) { s.llm = p }
}

// WithRanker replaces the ranker built from the environment.
func WithRanker(r *ranking.Ranker) Option {
	return func(s *Service) { s.ranker = r }
}

// Service owns the backend clients and one ask.Engine per project.
type Service struct {
	cfg      *Config
	dm       *database.DBManager
	neo      *neo4jstore.Store
	embedder embeddings.Provider
	llm      llm.Provider
	ranker   *ranking.Ranker
	history  history.Store
	shared   excerpts.Index

	xcfg   excerpts.Config
	ecfg   extract.Config
	ccfg   cot.Config
	acfg   assemble.Config
	askCfg ask.Config
	logger zerolog.Logger

	mu      sync.Mutex
	engines map[string]*ask.Engine
	closers []func() error
}

// NewService opens the configured backends. A missing embeddings provider is
// not an error: queries then degrade to the fallback answer.
func NewService(ctx context.Context, cfg *Config, opts ...Option) (svc *Service, err error) {
	s := &Service{cfg: cfg, engines: make(map[string]*ask.Engine), logger: logging.Component("mindgraph")}
	for _, opt := range opts {
		opt(s)
	}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if s.embedder == nil {
		s.embedder = embeddings.NewFromEnv()
	}
	if s.embedder == nil {
		s.logger.Warn().Msg("no embeddings provider configured; queries will return the fallback answer")
	}
	if s.llm == nil {
		if s.llm, err = llm.NewFromEnv(); err != nil {
			return nil, fmt.Errorf("failed to create language model provider: %w", err)
		}
	}
	if s.ranker == nil {
		rc, err := ranking.NewConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load ranking config: %w", err)
		}
		s.ranker = ranking.New(rc)
	}

	if cfg.usesLibSQL() {
		if s.dm, err = database.NewDBManager(cfg.databaseConfig(), s.embedder); err != nil {
			return nil, err
		}
		s.closers = append(s.closers, s.dm.Close)
	}
	switch cfg.GraphBackend {
	case "", GraphLibSQL:
	case GraphNeo4j:
		if s.neo, err = neo4jstore.New(cfg.neo4jConfig()); err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { return s.neo.Close(context.Background()) })
		if err = s.neo.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to reach neo4j at %s: %w", cfg.Neo4jURI, err)
		}
	default:
		return nil, fmt.Errorf("unknown graph backend %q", cfg.GraphBackend)
	}
	if s.embedder != nil {
		s.embedder = embeddings.WrapToDims(s.embedder, s.dims(), cfg.EmbeddingsAdaptMode)
	}

	hist, closeHist, err := history.Open(cfg.historyConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	s.history = hist
	s.closers = append(s.closers, closeHist)
	if p, ok := hist.(interface{ Ping(context.Context) error }); ok {
		if perr := p.Ping(ctx); perr != nil {
			s.logger.Warn().Err(perr).Msg("history store unreachable; conversations will load as empty until it recovers")
		}
	}

	if s.xcfg, err = cfg.excerptsConfig(); err != nil {
		return nil, err
	}
	if !isLibSQLExcerpts(s.xcfg.Backend) {
		idx, closeIdx, err := excerpts.Open(ctx, s.xcfg, nil, "")
		if err != nil {
			return nil, fmt.Errorf("failed to open excerpt index: %w", err)
		}
		s.shared = idx
		s.closers = append(s.closers, closeIdx)
	}

	if s.ecfg, err = extract.NewConfig(); err != nil {
		return nil, err
	}
	if s.acfg, err = assemble.NewConfig(); err != nil {
		return nil, err
	}
	if s.askCfg, err = ask.NewConfig(); err != nil {
		return nil, err
	}
	s.ccfg = cot.NewConfig()
	return s, nil
}

// Engine returns the engine bound to project, creating it on first use.
func (s *Service) Engine(ctx context.Context, project string) (*ask.Engine, error) {
	project, err := s.resolveProject(project)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.engines[project]; ok {
		return e, nil
	}

	store, err := s.graphStore(ctx, project)
	if err != nil {
		return nil, err
	}
	idx := s.shared
	if idx == nil {
		idx = excerpts.LibSQL(s.dm, project)
	}
	retriever := graph.NewRetriever(store, s.ranker, 0)
	e := ask.New(ask.Deps{
		Embedder:  s.embedder,
		Extractor: extract.New(s.llm, s.ecfg),
		Retriever: retriever,
		Excerpts:  idx,
		CoT:       cot.New(s.embedder, retriever, s.llm, s.ccfg),
		Assembler: assemble.New(s.acfg),
		Streamer:  stream.New(s.llm),
		History:   s.history,
	}, s.askCfg)
	s.engines[project] = e
	s.logger.Debug().Str("project", project).Msg("engine created")
	return e, nil
}

// Ask streams an answer for q within project.
func (s *Service) Ask(ctx context.Context, project string, q apptype.Query) (iter.Seq[string], error) {
	e, err := s.Engine(ctx, project)
	if err != nil {
		return nil, err
	}
	return e.Ask(ctx, q), nil
}

func (s *Service) graphStore(ctx context.Context, project string) (graph.Store, error) {
	if s.neo != nil {
		return s.neo, nil
	}
	if err := s.dm.Ping(ctx, project); err != nil {
		return nil, err
	}
	return graph.LibSQL(s.dm, project), nil
}

func (s *Service) resolveProject(project string) (string, error) {
	project = strings.TrimSpace(project)
	if project == "" {
		return DefaultProject, nil
	}
	if !projectRe.MatchString(project) {
		return "", fmt.Errorf("{\"error\":{\"code\":\"INVALID_PROJECT\",\"message\":\"project name may contain only letters, digits, '-' and '_'\",\"value\":%q}}", project)
	}
	return project, nil
}

func (s *Service) dims() int {
	if s.dm != nil {
		return s.dm.EmbeddingDims()
	}
	if s.cfg.EmbeddingDims > 0 {
		return s.cfg.EmbeddingDims
	}
	if s.embedder != nil {
		return s.embedder.Dimensions()
	}
	return 0
}

// Health describes the configured backends.
func (s *Service) Health() apptype.HealthResult {
	h := apptype.HealthResult{
		Version:        buildinfo.Version,
		Revision:       buildinfo.Revision,
		BuildDate:      buildinfo.BuildDate,
		MultiProject:   s.dm != nil && s.dm.MultiProject(),
		GraphBackend:   GraphLibSQL,
		ExcerptBackend: s.xcfg.Backend,
		HistoryBackend: s.cfg.historyConfig().Backend,
		LLMProvider:    s.llm.Name(),
	}
	if s.neo != nil {
		h.GraphBackend = GraphNeo4j
	}
	if h.ExcerptBackend == "" {
		h.ExcerptBackend = "libsql"
	}
	if s.embedder != nil {
		h.EmbeddingsProvider = s.embedder.Name()
		h.EmbeddingDims = s.embedder.Dimensions()
	} else {
		h.EmbeddingDims = s.dims()
	}
	return h
}

// PoolStats reports libSQL connection usage; zero without a libSQL database.
func (s *Service) PoolStats() (inUse, idle int) {
	if s.dm == nil {
		return 0, 0
	}
	return s.dm.PoolStats()
}

// Close releases every backend in reverse order of acquisition.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	s.engines = make(map[string]*ask.Engine)
	return errors.Join(errs...)
}

func isLibSQLExcerpts(backend string) bool {
	return backend == "" || backend == "libsql"
}
