// Package httpapi exposes the engine over plain HTTP: a streaming NDJSON ask
// endpoint plus health.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/ask"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/buildinfo"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/logging"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/metrics"
)

const maxBodyBytes = 1 << 20

type Backend interface {
	Engine(ctx context.Context, project string) (*ask.Engine, error)
	Health() apptype.HealthResult
}

type API struct {
	backend Backend
	logger  zerolog.Logger
}

func New(b Backend) *API {
	return &API{backend: b, logger: logging.Component("httpapi")}
}

// askRequest mirrors the stdin protocol, plus optional project and history.
type askRequest struct {
	Question        string         `json:"question"`
	ConversationID  string         `json:"conversationId,omitempty"`
	History         []apptype.Turn `json:"history,omitempty"`
	Project         string         `json:"projectName,omitempty"`
	MaxCoTQuestions int            `json:"maxCoTQuestions,omitempty"`
}

// RegisterRoutes mounts the API on r.
func (a *API) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/ask", a.handleAsk).Methods(http.MethodPost)
	r.HandleFunc("/v1/projects/{project}/ask", a.handleAsk).Methods(http.MethodPost)
	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
}

// Router returns a fresh router with every route mounted.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	a.RegisterRoutes(r)
	return r
}

func (a *API) handleAsk(w http.ResponseWriter, r *http.Request) {
	done := metrics.TimeTool("http_ask")
	success := false
	defer func() { done(success) }()

	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, "Invalid input format", http.StatusBadRequest)
		return
	}
	if p := mux.Vars(r)["project"]; p != "" {
		req.Project = p
	}
	q := apptype.Query{Text: req.Question, ConversationID: req.ConversationID, History: req.History}
	if err := ask.Validate(q); err != nil {
		msg := "Invalid input format"
		if errors.Is(err, ask.ErrMissingQuestion) {
			msg = "Missing required input: 'question'"
		}
		writeError(w, msg, http.StatusBadRequest)
		return
	}
	e, err := a.backend.Engine(r.Context(), req.Project)
	if err != nil {
		a.logger.Error().Err(err).Str("project", req.Project).Msg("failed to open project")
		writeError(w, "An unexpected error occurred", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for chunk := range e.AskWith(r.Context(), q, ask.Options{MaxCoTQuestions: req.MaxCoTQuestions}) {
		if err := enc.Encode(map[string]string{"chunk": chunk}); err != nil {
			a.logger.Warn().Err(err).Msg("client went away mid-stream")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	success = true
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	res := a.backend.Health()
	res.Name = "mcp-mindgraph-go"
	res.Version = buildinfo.Version
	res.Revision = buildinfo.Revision
	res.BuildDate = buildinfo.BuildDate
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(res)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
