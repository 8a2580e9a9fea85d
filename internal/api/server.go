package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/bulkgen/internal/accounts"
	"github.com/JakeFAU/bulkgen/internal/config"
	"github.com/JakeFAU/bulkgen/internal/export"
	"github.com/JakeFAU/bulkgen/internal/job"
	"github.com/JakeFAU/bulkgen/internal/logbridge"
	"github.com/JakeFAU/bulkgen/internal/metrics"
	"github.com/JakeFAU/bulkgen/internal/stats"
	"github.com/JakeFAU/bulkgen/internal/store"
)

const requestTimeout = 60 * time.Second

// Controller starts and stops generation jobs.
type Controller interface {
	Start(cfg job.Config) (uuid.UUID, error)
	Stop()
}

// StatsSource produces dashboard snapshots.
type StatsSource interface {
	Snapshot() stats.Snapshot
}

// LogSource hands out buffered dashboard events.
type LogSource interface {
	Drain() []logbridge.Event
}

// Exporter renders and archives category exports.
type Exporter interface {
	Render(ctx context.Context, name string) (export.Document, error)
	Export(ctx context.Context, name string) (export.Result, error)
	Archived() bool
}

// Deps wires a Server. Runs and Ready may be nil.
type Deps struct {
	Jobs     Controller
	Stats    StatsSource
	Logs     LogSource
	Accounts accounts.Reader
	Exporter Exporter
	Runs     store.RunRepository
	Defaults job.Config
	Auth     config.AuthConfig
	Logger   *zap.Logger
	// Ready reports whether downstream dependencies are reachable.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the job supervisor and stores.
type Server struct {
	router chi.Router
	deps   Deps
	runs   *RunHandler
	log    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{
		deps: deps,
		runs: NewRunHandler(deps.Runs, deps.Logger),
		log:  deps.Logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.log))
	r.Use(recoverMiddleware(s.log))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))
	if deps.Auth.Enabled {
		r.Use(apiKeyMiddleware(deps.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/start", s.start)
		r.Post("/stop", s.stop)
		r.Get("/stats", s.stats)
		r.Get("/logs", s.logs)
		r.Get("/accounts/{category}", s.listAccounts)
		r.Get("/download/{category}", s.download)
		r.Post("/export/{category}", s.exportCategory)
		r.Get("/runs", s.runs.ListRuns)
		r.Get("/runs/{run_id}", s.runs.GetRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.log.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type startRequest struct {
	Region          *string `json:"region"`
	NamePrefix      *string `json:"name_prefix"`
	PasswordPrefix  *string `json:"password_prefix"`
	AccountCount    *int64  `json:"account_count"`
	ThreadCount     *int    `json:"thread_count"`
	AutoActivation  *bool   `json:"auto_activation"`
	RarityThreshold *int    `json:"rarity_threshold"`
}

// apply overlays the provided fields on defaults.
func (req startRequest) apply(defaults job.Config) job.Config {
	cfg := defaults
	cfg.Region = valueOrDefault(req.Region, cfg.Region)
	cfg.NamePrefix = valueOrDefault(req.NamePrefix, cfg.NamePrefix)
	cfg.PasswordPrefix = valueOrDefault(req.PasswordPrefix, cfg.PasswordPrefix)
	cfg.AccountCount = valueOrDefault(req.AccountCount, cfg.AccountCount)
	cfg.ThreadCount = valueOrDefault(req.ThreadCount, cfg.ThreadCount)
	cfg.AutoActivation = valueOrDefault(req.AutoActivation, cfg.AutoActivation)
	cfg.RarityThreshold = valueOrDefault(req.RarityThreshold, cfg.RarityThreshold)
	return cfg
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeStatus(w, http.StatusBadRequest, "error", "invalid JSON")
		return
	}
	runID, err := s.deps.Jobs.Start(req.apply(s.deps.Defaults))
	var cfgErr *job.ConfigError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "success",
			"message": "Generator started",
			"run_id":  runID.String(),
		})
	case errors.Is(err, job.ErrAlreadyRunning):
		writeStatus(w, http.StatusConflict, "error", "Already running")
	case errors.As(err, &cfgErr):
		writeStatus(w, http.StatusBadRequest, "error", cfgErr.Error())
	default:
		s.log.Error("start job failed", zap.Error(err))
		writeStatus(w, http.StatusInternalServerError, "error", "failed to start generator")
	}
}

func (s *Server) stop(w http.ResponseWriter, _ *http.Request) {
	s.deps.Jobs.Stop()
	writeStatus(w, http.StatusOK, "success", "Generator stopped")
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Stats.Snapshot())
}

func (s *Server) logs(w http.ResponseWriter, _ *http.Request) {
	events := s.deps.Logs.Drain()
	if events == nil {
		events = []logbridge.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	category, ok := accounts.ParseCategory(chi.URLParam(r, "category"))
	if !ok {
		writeJSON(w, http.StatusOK, []accounts.Account{})
		return
	}
	records, err := s.deps.Accounts.List(r.Context(), category, accounts.ListLimit)
	if err != nil {
		s.log.Error("list accounts failed", zap.String("category", string(category)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Exporter.Render(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		if errors.Is(err, export.ErrCategoryNotFound) {
			writeError(w, http.StatusNotFound, "Category not found")
			return
		}
		s.log.Error("render download failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render download")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.Header().Set("X-Content-SHA256", doc.Hash)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Body); err != nil {
		s.log.Warn("download write failed", zap.Error(err))
	}
}

func (s *Server) exportCategory(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Exporter.Archived() {
		writeError(w, http.StatusServiceUnavailable, "export storage unavailable")
		return
	}
	res, err := s.deps.Exporter.Export(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		if errors.Is(err, export.ErrCategoryNotFound) {
			writeError(w, http.StatusNotFound, "Category not found")
			return
		}
		s.log.Error("export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to export category")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned by the request id middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Debug("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("error", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeStatus(w http.ResponseWriter, code int, status, msg string) {
	writeJSON(w, code, map[string]string{"status": status, "message": msg})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
