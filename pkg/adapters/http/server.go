// Package http exposes the router over a JSON API. Routes are declared
// with chi and described by the embedded OpenAPI document, which is
// validated at startup so the served contract can never drift silently.
package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"

	"github.com/atelierlabs/concierge/api"
	"github.com/atelierlabs/concierge/pkg/domain"
	"github.com/atelierlabs/concierge/pkg/ports"
	"github.com/atelierlabs/concierge/pkg/router"
)

// Conversation is the message-handling core the server fronts.
type Conversation interface {
	HandleMessage(ctx context.Context, sessionID, text string) domain.Reply
}

var sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// Server wires the conversation core and its stores behind HTTP routes.
type Server struct {
	conv    Conversation
	store   ports.StateStore
	memory  ports.MemoryStore
	loader  ports.DataLoader
	metrics http.Handler
	logger  *slog.Logger
}

// Option configures the server.
type Option func(*Server)

// WithMemory lets DELETE also drop the session's conversation memory.
func WithMemory(m ports.MemoryStore) Option {
	return func(s *Server) { s.memory = m }
}

// WithDataLoader enables the CSV upload route and data cleanup on delete.
func WithDataLoader(l ports.DataLoader) Option {
	return func(s *Server) { s.loader = l }
}

// WithMetrics mounts the given handler at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer validates the embedded API document and builds the server.
func NewServer(conv Conversation, store ports.StateStore, opts ...Option) (*Server, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(api.Spec)
	if err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}

	s := &Server{conv: conv, store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the routed HTTP handler with CORS enabled.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.getHealth)
	r.Get("/openapi.yaml", s.getSpec)
	r.Get("/sessions", s.listSessions)

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Use(s.requireSessionID)
		r.Get("/", s.getSession)
		r.Delete("/", s.deleteSession)
		r.Post("/messages", s.postMessage)
		r.Post("/data", s.uploadData)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireSessionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sessionIDRe.MatchString(chi.URLParam(r, "sessionID")) {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getSpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/yaml")
	w.Write(api.Spec)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("list sessions failed", "error", err)
		http.Error(w, "list sessions failed", http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	state, err := s.store.Load(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		s.logger.Error("load session failed", "session_id", sessionID, "error", err)
		http.Error(w, "load session failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.store.Delete(r.Context(), sessionID); err != nil {
		s.logger.Error("delete session failed", "session_id", sessionID, "error", err)
		http.Error(w, "delete session failed", http.StatusInternalServerError)
		return
	}
	if s.memory != nil {
		if err := s.memory.DeleteMemory(r.Context(), sessionID); err != nil {
			s.logger.Warn("delete memory failed", "session_id", sessionID, "error", err)
		}
	}
	if s.loader != nil {
		if err := s.loader.Delete(r.Context(), sessionID); err != nil {
			s.logger.Warn("delete session data failed", "session_id", sessionID, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := router.SanitizeInput(body.Text); err != nil {
		http.Error(w, fmt.Sprintf("invalid input: %v", err), http.StatusBadRequest)
		s.logger.Warn("message rejected", "session_id", sessionID, "error", err, "size", len(body.Text))
		return
	}

	reply := s.conv.HandleMessage(r.Context(), sessionID, body.Text)
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) uploadData(w http.ResponseWriter, r *http.Request) {
	if s.loader == nil {
		http.Error(w, "uploads are not enabled", http.StatusNotImplemented)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	reader := csv.NewReader(io.LimitReader(r.Body, 10<<20))
	records, err := reader.ReadAll()
	if err != nil {
		http.Error(w, fmt.Sprintf("malformed csv: %v", err), http.StatusBadRequest)
		return
	}
	if len(records) < 2 {
		http.Error(w, "csv needs a header row and at least one data row", http.StatusBadRequest)
		return
	}

	ds, err := s.loader.Put(r.Context(), sessionID, records[0], records[1:])
	if err != nil {
		s.logger.Error("store upload failed", "session_id", sessionID, "error", err)
		http.Error(w, "store upload failed", http.StatusInternalServerError)
		return
	}
	s.logger.Info("dataset uploaded", "session_id", sessionID, "columns", len(ds.Columns), "rows", len(records)-1)
	writeJSON(w, http.StatusOK, ds)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
