// Package httpapi exposes the controller on a loopback HTTP listener so
// the desktop UI and local tooling can inject events and inspect results
// without linking against the process. There is no authentication layer;
// the listener must stay on localhost.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"motorcortex/internal/bindings"
	"motorcortex/internal/config"
	"motorcortex/internal/confirm"
	"motorcortex/internal/controller"
	"motorcortex/internal/engine"
	"motorcortex/internal/logging"
)

const maxBodyBytes = 1 << 20

// allowedOrigins are the local dev frontends permitted to call the API
// from a browser.
var allowedOrigins = map[string]bool{
	"http://localhost:5173": true,
	"http://127.0.0.1:5173": true,
	"http://localhost:1573": true,
	"http://127.0.0.1:1573": true,
}

// Commander is the controller surface the API exposes.
type Commander interface {
	HandleEvent(event controller.Event) bool
	LastResult() *engine.Result
	ListPending() []confirm.Pending
	Approve(ctx context.Context, id string) engine.Result
	Deny(id string) engine.Result
}

// BindingView lists the configured gesture bindings.
type BindingView interface {
	All() map[string]bindings.Binding
	Hotkeys() map[string]string
}

// Server hosts the localhost ingress.
type Server struct {
	commander Commander
	bindings  BindingView
	logger    *zap.Logger
	version   string

	httpServer *http.Server
}

// New builds a server bound to cfg.API.Addr. binds may be nil when no
// binding store is configured; logger may be nil.
func New(cfg *config.Config, commander Commander, binds BindingView, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		commander: commander,
		bindings:  binds,
		logger:    logger,
		version:   cfg.Version,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the route table. Exposed so tests can drive the handlers
// through httptest without binding a socket.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)
	r.Use(s.logMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
			next.ServeHTTP(w, req)
		})
	})

	r.Post("/events", s.handleEvents)
	r.Get("/result", s.handleResult)
	r.Get("/confirmations", s.handleConfirmations)
	r.Post("/confirmations/{id}/approve", s.handleApprove)
	r.Post("/confirmations/{id}/deny", s.handleDeny)
	r.Get("/bindings", s.handleBindings)
	r.Get("/healthz", s.handleHealthz)
	return r
}

// Start serves until Shutdown is called. A closed listener is a clean
// exit, not an error.
func (s *Server) Start() error {
	s.logger.Info("http api listening", zap.String("addr", s.httpServer.Addr))
	logging.API("listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var event controller.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	event.Source = strings.TrimSpace(event.Source)
	if event.Source == "" || strings.TrimSpace(event.Action) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "source and action are required"})
		return
	}

	if !s.commander.HandleEvent(event) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "queue full"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued"})
}

func (s *Server) handleResult(w http.ResponseWriter, _ *http.Request) {
	result := s.commander.LastResult()
	if result == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConfirmations(w http.ResponseWriter, _ *http.Request) {
	items := s.commander.ListPending()
	if items == nil {
		items = []confirm.Pending{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result := s.commander.Approve(r.Context(), id)
	writeJSON(w, statusCodeFor(result), result)
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result := s.commander.Deny(id)
	writeJSON(w, statusCodeFor(result), result)
}

func (s *Server) handleBindings(w http.ResponseWriter, _ *http.Request) {
	items := map[string]bindings.Binding{}
	hotkeys := map[string]string{}
	if s.bindings != nil {
		items = s.bindings.All()
		hotkeys = s.bindings.Hotkeys()
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "hotkeys": hotkeys})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": s.version})
}

// statusCodeFor maps an unknown confirmation ID to 404; every other
// outcome is reported in the body.
func statusCodeFor(result engine.Result) int {
	if result.Status == engine.StatusMissing {
		return http.StatusNotFound
	}
	return http.StatusOK
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", elapsed))
		logging.APIDebug("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), elapsed.Round(time.Millisecond))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
