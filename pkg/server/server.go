// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/lexrag/pkg/audit"
	"github.com/kadirpekel/lexrag/pkg/config"
	"github.com/kadirpekel/lexrag/pkg/httpclient"
	"github.com/kadirpekel/lexrag/pkg/index"
	"github.com/kadirpekel/lexrag/pkg/observability"
	"github.com/kadirpekel/lexrag/pkg/pipeline"
	"github.com/kadirpekel/lexrag/pkg/ratelimit"
	"github.com/kadirpekel/lexrag/pkg/store"
	"github.com/kadirpekel/lexrag/pkg/version"
)

// QueryRunner is the slice of the pipeline the HTTP front needs.
type QueryRunner interface {
	Query(ctx context.Context, req *pipeline.Request) (*pipeline.QueryResult, error)
}

// Server is the HTTP front around the query pipeline.
type Server struct {
	cfg          *config.Config
	orchestrator QueryRunner
	sink         *audit.Sink
	limiter      ratelimit.Limiter
	metrics      *observability.Metrics
	chunks       store.ChunkStore
	vector       index.VectorIndex
	lexical      index.LexicalIndex
	httpClient   *httpclient.Client
	logger       *slog.Logger

	httpServer *http.Server
}

// Deps bundles the server's collaborators.
type Deps struct {
	Config       *config.Config
	Orchestrator QueryRunner
	Sink         *audit.Sink
	Limiter      ratelimit.Limiter
	Metrics      *observability.Metrics
	Chunks       store.ChunkStore
	Vector       index.VectorIndex
	Lexical      index.LexicalIndex
	HTTPClient   *httpclient.Client
	Logger       *slog.Logger
}

// New creates a server and wires its routes.
func New(deps Deps) *Server {
	s := &Server{
		cfg:          deps.Config,
		orchestrator: deps.Orchestrator,
		sink:         deps.Sink,
		limiter:      deps.Limiter,
		metrics:      deps.Metrics,
		chunks:       deps.Chunks,
		vector:       deps.Vector,
		lexical:      deps.Lexical,
		httpClient:   deps.HTTPClient,
		logger:       deps.Logger,
	}

	s.httpServer = &http.Server{
		Addr:              deps.Config.Server.Address(),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestIDHeader)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if len(s.cfg.Server.CORSOrigins) > 0 {
		r.Use(corsMiddleware(s.cfg.Server.CORSOrigins))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/version", s.handleVersion)
	if s.cfg.Server.MetricsEnabled {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Group(func(pr chi.Router) {
		pr.Use(s.bearerAuth)
		pr.Use(s.rateLimit)
		pr.Get("/sources", s.handleSources)
		pr.Get("/sources/{name}", s.handleSourceDocuments)

		pr.Group(func(qr chi.Router) {
			qr.Use(s.requireHealthySink)
			qr.Post("/query", s.handleQuery)
		})
	})

	// Chat callbacks authenticate by signature only, never bearer token.
	r.Group(func(sr chi.Router) {
		sr.Use(s.rateLimit)
		sr.Use(s.requireHealthySink)
		sr.Post("/slack/command", s.handleSlackCommand)
	})

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// requestContext creates the deadline-bound context for work detached from
// an incoming request, such as async chat responses.
func (s *Server) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.Server.RequestTimeout)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// readiness is the /ready payload.
type readiness struct {
	Ready         bool            `json:"ready"`
	LLMConfigured bool            `json:"llmConfigured"`
	Sources       map[string]bool `json:"sources"`
}

// handleReady reports whether at least one index serves each configured
// source and an LLM credential is present. No live LLM call is made.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	out := readiness{
		LLMConfigured: s.cfg.LLM.APIKey != "",
		Sources:       make(map[string]bool),
	}

	anySource := false
	for _, source := range s.chunks.Sources() {
		ok := s.vector.HasSource(r.Context(), source) || s.lexical.HasSource(r.Context(), source)
		out.Sources[source] = ok
		if ok {
			anySource = true
		}
	}
	out.Ready = out.LLMConfigured && anySource

	status := http.StatusOK
	if !out.Ready {
		status = http.StatusServiceUnavailable
	}
	writeData(w, r, status, out)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, version.Get())
}

// queryRequest is the /query body.
type queryRequest struct {
	Question string        `json:"question"`
	Sources  []string      `json:"sources,omitempty"`
	Options  *queryOptions `json:"options,omitempty"`
}

type queryOptions struct {
	SearchMode string `json:"searchMode,omitempty"`
	Debug      bool   `json:"debug,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body queryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidationError, "malformed JSON body")
		return
	}

	req := &pipeline.Request{
		Question: body.Question,
		Sources:  body.Sources,
	}
	if body.Options != nil {
		req.SearchMode = body.Options.SearchMode
		req.Debug = body.Options.Debug
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Server.RequestTimeout)
	defer cancel()

	result, err := s.orchestrator.Query(ctx, req)
	if err != nil {
		status, code, message := mapError(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("Query failed", "error", err,
				"request_id", requestIDFrom(r.Context()))
		}
		writeError(w, r, status, code, message)
		return
	}

	writeData(w, r, http.StatusOK, result)
}

// sourceInfo is one entry in the /sources listing.
type sourceInfo struct {
	Name          string `json:"name"`
	DocumentCount int    `json:"documentCount"`
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources := s.chunks.Sources()
	out := make([]sourceInfo, 0, len(sources))
	for _, name := range sources {
		out = append(out, sourceInfo{
			Name:          name,
			DocumentCount: s.chunks.DocumentCount(name),
		})
	}
	writeData(w, r, http.StatusOK, map[string]interface{}{"sources": out})
}

func (s *Server) handleSourceDocuments(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	documents, err := s.chunks.ListDocuments(r.Context(), name)
	if err != nil {
		writeError(w, r, http.StatusNotFound, CodeSourceNotFound, "unknown source "+name)
		return
	}

	writeData(w, r, http.StatusOK, map[string]interface{}{
		"source":    name,
		"documents": documents,
	})
}
