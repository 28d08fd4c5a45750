// Command ask answers one question read as a JSON line on stdin and streams
// the answer to stdout as {"chunk": "..."} lines.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/ask"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/logging"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/tracing"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/pkg/mindgraph"
)

const (
	errInvalidInput    = "Invalid input format"
	errMissingQuestion = "Missing required input: 'question'"
	errUnexpected      = "An unexpected error occurred"
)

var (
	libsqlURL = flag.String("libsql-url", "", "libSQL database URL (default: file:./libsql.db)")
	project   = flag.String("project", "", "Project to answer from when the input names none")
)

type request struct {
	Question       *string        `json:"question"`
	ConversationID string         `json:"conversationId"`
	History        []apptype.Turn `json:"history"`
	Project        string         `json:"projectName"`
}

type engineSource interface {
	Engine(ctx context.Context, project string) (*ask.Engine, error)
}

func main() {
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		log.Warn().Err(err).Msg("failed to load .env")
	}
	logger := logging.Setup(logging.NewConfig())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, tracing.NewConfig())
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
		shutdownTracing = func(context.Context) error { return nil }
	}

	os.Exit(func() int {
		defer func() { _ = shutdownTracing(context.Background()) }()
		cfg, err := mindgraph.ConfigFromEnv()
		if err != nil {
			return fail(logger, os.Stdout, err)
		}
		if *libsqlURL != "" {
			cfg.URL = *libsqlURL
		}
		svc, err := mindgraph.NewService(ctx, cfg)
		if err != nil {
			return fail(logger, os.Stdout, err)
		}
		defer func() {
			if err := svc.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing backends")
			}
		}()
		return run(ctx, os.Stdin, os.Stdout, svc, *project, logger)
	}())
}

// run handles one request and returns the process exit code.
func run(ctx context.Context, in io.Reader, out io.Writer, src engineSource, defaultProject string, logger zerolog.Logger) int {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	line, err := bufio.NewReader(in).ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return writeError(enc, errInvalidInput)
	}
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		logger.Error().Err(err).Msg("invalid input")
		return writeError(enc, errInvalidInput)
	}
	if req.Question == nil {
		return writeError(enc, errMissingQuestion)
	}
	q := apptype.Query{Text: *req.Question, ConversationID: req.ConversationID, History: req.History}
	if err := ask.Validate(q); err != nil {
		if errors.Is(err, ask.ErrMissingQuestion) {
			return writeError(enc, errMissingQuestion)
		}
		logger.Error().Err(err).Msg("invalid input")
		return writeError(enc, errInvalidInput)
	}

	name := strings.TrimSpace(req.Project)
	if name == "" {
		name = defaultProject
	}
	e, err := src.Engine(ctx, name)
	if err != nil {
		return fail(logger, out, err)
	}
	for chunk := range e.Ask(ctx, q) {
		if err := enc.Encode(map[string]string{"chunk": chunk}); err != nil {
			logger.Error().Err(err).Msg("failed to write chunk")
			return 1
		}
	}
	return 0
}

func fail(logger zerolog.Logger, out io.Writer, err error) int {
	logger.Error().Err(err).Msg("ask failed")
	return writeError(json.NewEncoder(out), errUnexpected)
}

func writeError(enc *json.Encoder, msg string) int {
	_ = enc.Encode(map[string]string{"error": msg})
	return 1
}
