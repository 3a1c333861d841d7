// Package admin serves the optional local HTTP surface: health, metrics, the
// tool catalogue, recent audit entries and a debug endpoint for invoking tools.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"

	"toolbox/internal/audit"
	"toolbox/internal/domain"
	"toolbox/internal/mcpserver"
	"toolbox/internal/metrics"
	"toolbox/internal/tool"
)

const maxAuditLimit = 500

// AuditReader is the read side of the audit store.
type AuditReader interface {
	Recent(ctx context.Context, q audit.Query) ([]domain.AuditEntry, error)
}

// Options configure the admin server. An empty Token disables auth on the
// read-only routes and leaves the tool call route unmounted.
type Options struct {
	Addr       string
	Token      string
	Dispatcher *tool.Dispatcher
	Audit      AuditReader // nil when auditing is disabled
	Metrics    *metrics.Collector
	Version    string
	Logger     *slog.Logger
}

// Server is the admin HTTP surface.
type Server struct {
	opts   Options
	router *chi.Mux
}

// New builds the router; nothing listens until ListenAndServe.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Default
	}
	s := &Server{opts: opts, router: chi.NewRouter()}

	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(2 * time.Minute))

	s.router.Get("/health", s.handleHealth)
	s.router.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/metrics", opts.Metrics.Handler())
		r.Get("/tools", s.handleListTools)
		r.Get("/audit", s.handleAudit)
		// Tool calls execute commands, so they are never served unauthenticated.
		if opts.Token != "" {
			r.With(requireJSON).Post("/tools/{name}/call", s.handleCall)
		}
	})
	return s
}

// Router exposes the root HTTP handler.
func (s *Server) Router() http.Handler { return s.router }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("admin server listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// requestLogger logs through slog; chi's middleware.Logger writes to stdout,
// which carries the MCP stream.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.opts.Logger.Debug("admin request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		want := []byte("Bearer " + s.opts.Token)
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), want) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireJSON rejects bodies that a cross-origin form or fetch could send
// without a preflight. An empty body is allowed and means no arguments.
func requireJSON(next http.Handler) http.Handler {
	return middleware.AllowContentType("application/json")(next)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.opts.Version,
		"uptime":  int64(s.opts.Metrics.Uptime().Seconds()),
	}
	if s.opts.Dispatcher != nil {
		resp["tools"] = s.opts.Dispatcher.Registry().Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListTools returns the same definitions the MCP server advertises.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools := []mcp.Tool{}
	if s.opts.Dispatcher != nil {
		for _, d := range s.opts.Dispatcher.Registry().Descriptors() {
			tools = append(tools, mcpserver.ToolDefinition(d))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if s.opts.Dispatcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no dispatcher"})
		return
	}
	var args map[string]any
	if r.ContentLength != 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
			return
		}
	}
	res := s.opts.Dispatcher.Invoke(r.Context(), chi.URLParam(r, "name"), args)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.opts.Audit == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "audit log disabled"})
		return
	}
	q := audit.Query{
		Action:       r.URL.Query().Get("action"),
		ToolName:     r.URL.Query().Get("tool"),
		InvocationID: r.URL.Query().Get("invocation"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		q.Limit = min(n, maxAuditLimit)
	}
	entries, err := s.opts.Audit.Recent(r.Context(), q)
	if err != nil {
		s.opts.Logger.Warn("audit query failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "audit query failed"})
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
