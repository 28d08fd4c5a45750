package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/ask"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/buildinfo"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/logging"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/metrics"
)

const serverName = "mcp-mindgraph-go"

// Backend resolves the engine serving a project and reports configuration.
type Backend interface {
	Engine(ctx context.Context, project string) (*ask.Engine, error)
	Health() apptype.HealthResult
	PoolStats() (inUse, idle int)
}

// MCPServer handles MCP protocol communication
type MCPServer struct {
	server  *mcp.Server
	backend Backend
	logger  zerolog.Logger
}

// NewMCPServer creates a new MCP server
func NewMCPServer(backend Backend) *MCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: buildinfo.Version,
	}, nil)

	s := &MCPServer{
		server:  server,
		backend: backend,
		logger:  logging.Component("server"),
	}
	s.setupToolHandlers()
	return s
}

func schemaFor[T any]() *jsonschema.Schema {
	sc, err := jsonschema.For[T]()
	if err != nil {
		var zero T
		panic(fmt.Sprintf("failed to create schema for %T: %v", zero, err))
	}
	return sc
}

// setupToolHandlers registers all MCP tools
func (s *MCPServer) setupToolHandlers() {
	mcp.AddTool(s.server, &mcp.Tool{
		Annotations:  &mcp.ToolAnnotations{Title: "Ask"},
		Name:         "ask",
		Title:        "Ask",
		Description:  "Answer a question from the knowledge graph: extracts query elements, ranks events and claims, reasons over sub-questions and generates a grounded answer.",
		InputSchema:  schemaFor[apptype.AskArgs](),
		OutputSchema: schemaFor[apptype.AskResult](),
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Annotations:  &mcp.ToolAnnotations{Title: "Retrieve Context"},
		Name:         "retrieve_context",
		Title:        "Retrieve Context",
		Description:  "Rank events and claims by similarity and recency, resolve concept relationships and fetch text excerpts without generating an answer.",
		InputSchema:  schemaFor[apptype.RetrieveArgs](),
		OutputSchema: schemaFor[apptype.RetrieveResult](),
	}, s.handleRetrieve)

	mcp.AddTool(s.server, &mcp.Tool{
		Annotations:  &mcp.ToolAnnotations{Title: "Related Concepts"},
		Name:         "related_concepts",
		Title:        "Related Concepts",
		Description:  "Fetch one-hop concept relationships for the given concept names.",
		InputSchema:  schemaFor[apptype.RelatedConceptsArgs](),
		OutputSchema: schemaFor[apptype.ConceptsResult](),
	}, s.handleRelatedConcepts)

	mcp.AddTool(s.server, &mcp.Tool{
		Annotations:  &mcp.ToolAnnotations{Title: "Extract Query"},
		Name:         "extract_query",
		Title:        "Extract Query",
		Description:  "Decompose a query into entities, concepts, a time reference and chain-of-thought sub-questions.",
		InputSchema:  schemaFor[apptype.ExtractArgs](),
		OutputSchema: schemaFor[apptype.ExtractResult](),
	}, s.handleExtract)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "health_check",
		Title:        "Health Check",
		Description:  "Returns server and configuration information.",
		InputSchema:  schemaFor[apptype.HealthArgs](),
		OutputSchema: schemaFor[apptype.HealthResult](),
	}, s.handleHealth)
}

func (s *MCPServer) engine(ctx context.Context, project string) (*ask.Engine, error) {
	e, err := s.backend.Engine(ctx, strings.TrimSpace(project))
	if err != nil {
		return nil, fmt.Errorf("failed to open project %q: %w", project, err)
	}
	return e, nil
}

func inputError(err error) error {
	if errors.Is(err, ask.ErrMissingQuestion) {
		return fmt.Errorf("{\"error\":{\"code\":\"INVALID_INPUT\",\"message\":\"Missing required input: 'question'\"}}")
	}
	return fmt.Errorf("{\"error\":{\"code\":\"INVALID_INPUT\",\"message\":%q}}", err.Error())
}

// handleAsk runs the full pipeline and returns the concatenated answer
func (s *MCPServer) handleAsk(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.AskArgs],
) (*mcp.CallToolResultFor[apptype.AskResult], error) {
	done := metrics.TimeTool("ask")
	var success bool
	defer func() { done(success) }()
	args := params.Arguments
	q := apptype.Query{Text: args.Question, ConversationID: args.ConversationID, History: args.History}
	if err := ask.Validate(q); err != nil {
		return nil, inputError(err)
	}
	e, err := s.engine(ctx, args.ProjectArgs.ProjectName)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	res := apptype.AskResult{}
	for chunk := range e.AskWith(ctx, q, ask.Options{MaxCoTQuestions: args.MaxCoTQuestions}) {
		sb.WriteString(chunk)
		res.Chunks++
	}
	res.Answer = sb.String()
	success = true
	return &mcp.CallToolResultFor[apptype.AskResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: res.Answer}},
		StructuredContent: res,
	}, nil
}

func (s *MCPServer) handleRetrieve(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.RetrieveArgs],
) (*mcp.CallToolResultFor[apptype.RetrieveResult], error) {
	done := metrics.TimeTool("retrieve_context")
	var success bool
	defer func() { done(success) }()
	args := params.Arguments
	if strings.TrimSpace(args.Question) == "" {
		return nil, inputError(ask.ErrMissingQuestion)
	}
	e, err := s.engine(ctx, args.ProjectArgs.ProjectName)
	if err != nil {
		return nil, err
	}
	res, err := e.Retrieve(ctx, ask.RetrieveRequest{
		Question: args.Question,
		Mode:     args.Mode,
		Mix:      apptype.IdealMix{Events: args.Events, Claims: args.Claims, Chunks: args.Chunks},
		Concepts: args.Concepts,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve_context failed: %w", err)
	}
	success = true
	r := res.Result
	return &mcp.CallToolResultFor[apptype.RetrieveResult]{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Retrieved %d events, %d claims, %d relationships and %d excerpts (mode %s)",
			len(r.Events), len(r.Claims), len(r.Relationships), len(r.Excerpts), res.Mode)}},
		StructuredContent: res,
	}, nil
}

func (s *MCPServer) handleRelatedConcepts(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.RelatedConceptsArgs],
) (*mcp.CallToolResultFor[apptype.ConceptsResult], error) {
	done := metrics.TimeTool("related_concepts")
	var success bool
	defer func() { done(success) }()
	args := params.Arguments
	if len(args.Names) == 0 {
		return nil, inputError(errors.New("names must not be empty"))
	}
	e, err := s.engine(ctx, args.ProjectArgs.ProjectName)
	if err != nil {
		return nil, err
	}
	res, err := e.Related(ctx, args.Names, args.MaxPerConcept)
	if err != nil {
		return nil, fmt.Errorf("related_concepts failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.ConceptsResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Found %d relationships", len(res.Relationships))}},
		StructuredContent: res,
	}, nil
}

func (s *MCPServer) handleExtract(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.ExtractArgs],
) (*mcp.CallToolResultFor[apptype.ExtractResult], error) {
	done := metrics.TimeTool("extract_query")
	var success bool
	defer func() { done(success) }()
	if strings.TrimSpace(params.Arguments.Question) == "" {
		return nil, inputError(ask.ErrMissingQuestion)
	}
	e, err := s.engine(ctx, "")
	if err != nil {
		return nil, err
	}
	res, err := e.Extract(ctx, params.Arguments.Question, params.Arguments.MaxQuestions)
	if err != nil {
		return nil, inputError(err)
	}
	success = true
	text := "Extracted query elements"
	if res.Elements.Partial {
		text += " (partial)"
	}
	return &mcp.CallToolResultFor[apptype.ExtractResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: text}},
		StructuredContent: res,
	}, nil
}

// handleHealth returns basic server health information
func (s *MCPServer) handleHealth(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.HealthArgs],
) (*mcp.CallToolResultFor[apptype.HealthResult], error) {
	done := metrics.TimeTool("health_check")
	defer func() { done(true) }()
	inUse, idle := s.backend.PoolStats()
	metrics.Default().ObservePoolStats(inUse, idle)
	res := s.backend.Health()
	res.Name = serverName
	res.Version = buildinfo.Version
	res.Revision = buildinfo.Revision
	res.BuildDate = buildinfo.BuildDate
	return &mcp.CallToolResultFor[apptype.HealthResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: "ok"}},
		StructuredContent: res,
	}, nil
}

// reportPoolStats publishes connection pool gauges until ctx is done.
func (s *MCPServer) reportPoolStats(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				inUse, idle := s.backend.PoolStats()
				metrics.Default().ObservePoolStats(inUse, idle)
			}
		}
	}()
}

// Run starts the MCP server with stdio transport
func (s *MCPServer) Run(ctx context.Context) error {
	s.reportPoolStats(ctx)
	return s.server.Run(ctx, mcp.NewStdioTransport())
}

// Handler returns the SSE handler for mounting on an existing mux.
func (s *MCPServer) Handler() http.Handler {
	return mcp.NewSSEHandler(func(r *http.Request) *mcp.Server { return s.server })
}

// RunSSE starts the MCP server over SSE at the given address and endpoint
func (s *MCPServer) RunSSE(ctx context.Context, addr string, endpoint string) error {
	m := http.NewServeMux()
	m.Handle(endpoint, s.Handler())
	s.logger.Info().Str("addr", addr).Str("endpoint", endpoint).Msg("SSE MCP server listening")
	return s.serve(ctx, addr, m)
}

// RouteRegistrar mounts extra HTTP routes next to the SSE endpoint.
type RouteRegistrar interface {
	RegisterRoutes(r *mux.Router)
}

// RunHTTP serves the SSE endpoint and every route of api on one listener.
func (s *MCPServer) RunHTTP(ctx context.Context, addr, endpoint string, api RouteRegistrar) error {
	r := mux.NewRouter()
	api.RegisterRoutes(r)
	r.Handle(endpoint, s.Handler())
	s.logger.Info().Str("addr", addr).Str("endpoint", endpoint).Msg("HTTP server listening")
	return s.serve(ctx, addr, r)
}

func (s *MCPServer) serve(ctx context.Context, addr string, h http.Handler) error {
	s.reportPoolStats(ctx)
	srv := &http.Server{Addr: addr, Handler: h}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
