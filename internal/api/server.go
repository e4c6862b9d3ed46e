// Package api implements the debate HTTP API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/councild/councild/internal/buildinfo"
	"github.com/councild/councild/internal/council"
	"github.com/councild/councild/internal/engine"
	"github.com/councild/councild/internal/events"
	"github.com/councild/councild/internal/session"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	engine  *engine.Engine
	bus     *events.Bus
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, eng *engine.Engine, bus *events.Bus, logger *slog.Logger) *Server {
	return &Server{
		address: address,
		port:    port,
		engine:  eng,
		bus:     bus,
		logger:  logger,
	}
}

// Handler builds the route table. Exposed separately from Start so
// tests can drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Debate lifecycle
	mux.HandleFunc("POST /api/debate/start", s.handleStart)
	mux.HandleFunc("POST /api/debate/next-turn", s.handleNextTurn)
	mux.HandleFunc("POST /api/debate/next-phase", s.handleNextPhase)
	mux.HandleFunc("POST /api/debate/step-extension-judgment", s.handleExtensionJudgment)
	mux.HandleFunc("POST /api/debate/extend-discussion", s.handleExtendDiscussion)
	mux.HandleFunc("POST /api/debate/restore", s.handleRestore)

	// Debate reads
	mux.HandleFunc("GET /api/debate/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/debate/session/{id}", s.handleSession)
	mux.HandleFunc("GET /api/debate/plan/{id}", s.handlePlan)

	// Observability
	mux.HandleFunc("GET /api/events", s.handleEvents)

	// Health endpoints
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: turns block on generation and the events
		// socket stays open indefinitely.
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

// engineError maps engine failures to HTTP statuses.
func (s *Server) engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrUpstream):
		s.errorResponse(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, engine.ErrBusy),
		errors.Is(err, engine.ErrComplete),
		errors.Is(err, engine.ErrPhaseComplete),
		errors.Is(err, engine.ErrAwaitingInput):
		s.errorResponse(w, http.StatusConflict, err.Error())
	default:
		s.errorResponse(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req engine.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.engine.Start(req)
	if err != nil {
		s.engineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, sess, s.logger)
}

func (s *Server) handleNextTurn(w http.ResponseWriter, r *http.Request) {
	var req engine.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.engine.ExecuteTurn(r.Context(), req)
	if err != nil {
		s.engineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, res, s.logger)
}

// SessionRef names an existing session.
type SessionRef struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleNextPhase(w http.ResponseWriter, r *http.Request) {
	var req SessionRef
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.engine.AdvancePhase(req.SessionID)
	if err != nil {
		s.engineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, sess, s.logger)
}

// ExtensionJudgmentRequest is the operator's verdict on a pending step
// extension.
type ExtensionJudgmentRequest struct {
	SessionID string `json:"session_id"`
	Approved  bool   `json:"approved"`
}

func (s *Server) handleExtensionJudgment(w http.ResponseWriter, r *http.Request) {
	var req ExtensionJudgmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.engine.JudgeStepExtension(req.SessionID, req.Approved)
	if err != nil {
		s.engineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, sess, s.logger)
}

func (s *Server) handleExtendDiscussion(w http.ResponseWriter, r *http.Request) {
	var req SessionRef
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.engine.ExtendDiscussion(req.SessionID)
	if err != nil {
		s.engineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, sess, s.logger)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req engine.RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.engine.Restore(req)
	if err != nil {
		s.engineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, sess, s.logger)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.engine.List(), s.logger)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.Get(r.PathValue("id"))
	if err != nil {
		s.engineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, sess, s.logger)
}

// handlePlan serves the living plan document, as markdown by default or
// rendered to HTML with ?format=html.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.Get(r.PathValue("id"))
	if err != nil {
		s.engineError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(sess.Plan), &buf); err != nil {
			s.logger.Error("plan render failed", "session_id", sess.ID, "error", err)
			s.errorResponse(w, http.StatusInternalServerError, "plan render failed")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<!DOCTYPE html>\n<html><head><title>Plan: %s</title></head><body>\n", sess.Theme)
		w.Write(buf.Bytes())
		fmt.Fprint(w, "</body></html>\n")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"session_id": sess.ID,
		"theme":      sess.Theme,
		"phase":      sess.Phase,
		"artifact":   council.ArtifactName(sess.Phase),
		"plan":       sess.Plan,
		"memo":       sess.Memo,
	}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "councild",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status": "healthy",
		"uptime": buildinfo.Uptime().String(),
	}, s.logger)
}
