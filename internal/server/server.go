// Package server exposes the sampler over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"codeberg.org/mutker/infologger/internal/archive"
	"codeberg.org/mutker/infologger/internal/errors"
	"codeberg.org/mutker/infologger/internal/infologger"
	"codeberg.org/mutker/infologger/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	readHeaderTimeout   = 5 * time.Second
	maxRequestBodyBytes = 64 << 10
	defaultSessionLimit = 50
)

// Submitter delivers a request to the sampler. *infologger.Service
// implements it.
type Submitter interface {
	Submit(ctx context.Context, req infologger.Request) (infologger.Response, error)
}

// Options configures a Server.
type Options struct {
	Addr string
	// Gatherer enables /metrics when set.
	Gatherer prometheus.Gatherer
	// Archive enables /api/sessions when set.
	Archive archive.Archive
}

// Server wraps the HTTP control API.
type Server struct {
	sampler    Submitter
	archive    archive.Archive
	log        logger.Logger
	httpServer *http.Server
}

// New assembles a Server with its handlers.
func New(opts Options, sampler Submitter, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}

	s := &Server{
		sampler: sampler,
		archive: opts.Archive,
		log:     log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/log", s.handleLog)
	if s.archive != nil {
		mux.HandleFunc("/api/sessions", s.handleSessions)
	}
	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.withRequestLogging(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	errFactory := errors.New()

	s.log.Info().Str("addr", s.httpServer.Addr).Msg("Listening")
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}
	s.log.Info().Msg("Listener stopped")

	return nil
}

// Shutdown attempts a graceful shutdown within the supplied context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var body logRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := s.sampler.Submit(r.Context(), body.toRequest())
	if err != nil {
		s.log.Warn().Err(err).Msg("Request not processed")
		writeError(w, http.StatusServiceUnavailable, errors.MessageOf(err))
		return
	}

	s.writeJSON(w, http.StatusOK, newLogResponse(resp))
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	limit := defaultSessionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	withData := r.URL.Query().Get("data") == "1"

	sessions, err := s.archive.List(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list sessions")
		writeError(w, http.StatusInternalServerError, errors.MessageOf(err))
		return
	}

	out := make([]sessionMessage, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, newSessionMessage(session, withData))
	}

	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
