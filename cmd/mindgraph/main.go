package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/httpapi"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/logging"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/metrics"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/server"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/tracing"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/pkg/mindgraph"
)

var (
	libsqlURL    = flag.String("libsql-url", "", "libSQL database URL (default: file:./libsql.db)")
	authToken    = flag.String("auth-token", "", "Authentication token for remote databases")
	projectsDir  = flag.String("projects-dir", "", "Base directory for projects. Enables multi-project mode.")
	graphBackend = flag.String("graph-backend", "", "Graph backend: libsql or neo4j (default: $GRAPH_BACKEND or libsql)")
	transport    = flag.String("transport", "stdio", "Transport to use: stdio, sse or http (SSE plus the REST API)")
	addr         = flag.String("addr", ":8080", "Address to listen on when using SSE or HTTP transport")
	sseEndpoint  = flag.String("sse-endpoint", "/sse", "SSE endpoint path when using SSE or HTTP transport")
)

func main() {
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		log.Warn().Err(err).Msg("failed to load .env")
	}
	logger := logging.Setup(logging.NewConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("received shutdown signal, closing server")
		cancel()
	}()

	// Initialize metrics (noop if disabled)
	metrics.InitFromEnv()

	shutdownTracing, err := tracing.Setup(ctx, tracing.NewConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	cfg, err := mindgraph.ConfigFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Override with command line flags if provided
	if *libsqlURL != "" {
		cfg.URL = *libsqlURL
	}
	if *authToken != "" {
		cfg.AuthToken = *authToken
	}
	if *projectsDir != "" {
		cfg.ProjectsDir = *projectsDir
		cfg.MultiProjectMode = true
	}
	if *graphBackend != "" {
		cfg.GraphBackend = *graphBackend
	}

	svc, err := mindgraph.NewService(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start mindgraph service")
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing backends")
		}
	}()

	mcpServer := server.NewMCPServer(svc)

	logger.Info().Str("transport", *transport).Msg("starting mindgraph server")
	errCh := make(chan error, 1)
	switch *transport {
	case "stdio":
		go func() { errCh <- mcpServer.Run(ctx) }()
	case "sse":
		go func() { errCh <- mcpServer.RunSSE(ctx, *addr, *sseEndpoint) }()
	case "http":
		go func() { errCh <- mcpServer.RunHTTP(ctx, *addr, *sseEndpoint, httpapi.New(svc)) }()
	default:
		logger.Fatal().Msgf("unknown transport: %s (expected: stdio, sse or http)", *transport)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
		}
		cancel()
	}

	logger.Info().Msg("server stopped")
}
