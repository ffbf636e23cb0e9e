// Package server implements the clawd dashboard HTTP server: the REST
// API over the coordination store, token auth, and SSE refresh events.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/clawd/config"
	"github.com/openclaw/clawd/store"
)

// heartbeatInterval is how often the SSE poller checks the store for
// task changes.
const heartbeatInterval = 2 * time.Second

// Server is the clawd dashboard HTTP server. It has no mutation
// authority of its own beyond forwarding lifecycle operations to the
// store; every request is a fresh read or a single store call.
type Server struct {
	cfg     *config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger
	store   *store.Store

	// SSE clients
	sseMu      sync.RWMutex
	sseClients map[chan []byte]struct{}

	// JWT secret caching
	secretOnce      sync.Once
	generatedSecret string

	stopCh    chan struct{}
	startTime time.Time
	version   string
}

// New creates a Server over the given store.
func New(cfg *config.Config, st *store.Store, ver string, logger *slog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		mux:        http.NewServeMux(),
		logger:     logger,
		store:      st,
		sseClients: make(map[chan []byte]struct{}),
		stopCh:     make(chan struct{}),
		startTime:  time.Now(),
		version:    ver,
	}
}

// Start registers routes, launches the heartbeat poller, and begins
// listening. It blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.registerRoutes()
	go s.watchUpdates()

	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":3737"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.requestLog(s.mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server and the heartbeat poller.
func (s *Server) Stop(ctx context.Context) error {
	close(s.stopCh)
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	// Public routes (no auth required)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)

	// SSE — auth handled inline because EventSource can't set headers
	s.mux.HandleFunc("GET /api/events", s.handleSSE)

	// Protected API — wrapped in auth middleware
	apiMux := http.NewServeMux()
	s.registerAPIRoutes(apiMux)
	s.mux.Handle("/api/", s.authMiddleware(apiMux))
}

// handleStatus reports server liveness and version.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// requestLog tags each request with an id and logs its outcome.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(contextWithRequestID(r.Context(), reqID)))
		s.logger.Debug("request",
			slog.String("id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("took", time.Since(start)),
		)
	})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleSSE implements Server-Sent Events for dashboard refreshes.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// Verify auth via query token param for SSE (EventSource can't set headers)
	token := r.URL.Query().Get("token")
	if _, err := s.verifyToken(token); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := make(chan []byte, 16)
	s.sseMu.Lock()
	s.sseClients[ch] = struct{}{}
	s.sseMu.Unlock()

	defer func() {
		s.sseMu.Lock()
		delete(s.sseClients, ch)
		s.sseMu.Unlock()
	}()

	fmt.Fprintf(w, "data: {\"type\":\"connected\"}\n\n") //nolint:errcheck
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.stopCh:
			return
		case data := <-ch:
			fmt.Fprintf(w, "data: %s\n\n", data) //nolint:errcheck
			flusher.Flush()
		}
	}
}

// watchUpdates polls the store for task changes and tells connected
// clients to refresh when anything moved.
func (s *Server) watchUpdates() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	var last time.Time
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			latest, err := s.store.LastUpdated()
			if err != nil {
				s.logger.Error("heartbeat poll", slog.Any("err", err))
				continue
			}
			if latest.Equal(last) {
				continue
			}
			last = latest
			s.broadcastEvent("refresh", map[string]any{"ts": latest.Unix()})
		}
	}
}

// broadcastEvent sends a JSON-encoded event to all connected SSE clients.
func (s *Server) broadcastEvent(eventType string, payload any) {
	data, err := json.Marshal(map[string]any{
		"type":    eventType,
		"payload": payload,
	})
	if err != nil {
		s.logger.Error("broadcast event marshal", slog.Any("err", err))
		return
	}

	s.sseMu.RLock()
	defer s.sseMu.RUnlock()
	for ch := range s.sseClients {
		select {
		case ch <- data:
		default:
			// Client channel full, skip
		}
	}
}
