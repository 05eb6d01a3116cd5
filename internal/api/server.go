package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/forumwatch/internal/config"
	"github.com/JakeFAU/forumwatch/internal/discovery"
	"github.com/JakeFAU/forumwatch/internal/lock"
	"github.com/JakeFAU/forumwatch/internal/metrics"
	"github.com/JakeFAU/forumwatch/internal/pipeline"
	"github.com/JakeFAU/forumwatch/internal/radar"
	"github.com/JakeFAU/forumwatch/internal/verify"
)

// Runner triggers pipeline invocations.
type Runner interface {
	Run(ctx context.Context) pipeline.Summary
	Scan(ctx context.Context) pipeline.Summary
	Discover(ctx context.Context) (discovery.Result, error)
	Verify(ctx context.Context) (verify.Result, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the pipeline and source store.
type Server struct {
	router  chi.Router
	runner  Runner
	sources radar.SourceStore
	ready   Pinger
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	runner Runner,
	sources radar.SourceStore,
	ready Pinger,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:  runner,
		sources: sources,
		ready:   ready,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		// Invocations have no global deadline; they outlive a dropped client connection.
		r.Post("/runs", s.run)
		r.Post("/scan", s.scan)
		r.Post("/discover", s.discover)
		r.Post("/verify", s.verify)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(30 * time.Second))
			r.Get("/sources", s.listSources)
			r.Post("/sources", s.addSource)
			r.Route("/sources/{host}", func(r chi.Router) {
				r.Post("/pause", s.setPaused(true, "paused"))
				r.Post("/resume", s.setPaused(false, "resumed"))
				r.Post("/enable", s.setEnabled(true, "enabled"))
				r.Post("/disable", s.setEnabled(false, "disabled"))
			})
		})
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
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	writeSummary(w, s.runner.Run(context.WithoutCancel(r.Context())))
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	writeSummary(w, s.runner.Scan(context.WithoutCancel(r.Context())))
}

func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	res, err := s.runner.Discover(context.WithoutCancel(r.Context()))
	if err != nil {
		writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "discovery": res})
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	res, err := s.runner.Verify(context.WithoutCancel(r.Context()))
	if err != nil {
		writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "verification": res})
}

type addSourceRequest struct {
	Host     string `json:"host"`
	URL      string `json:"url"`
	Platform string `json:"platform"`
	Note     string `json:"note"`
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sources.ListScanSources(r.Context(), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	if sources == nil {
		sources = []radar.Source{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) addSource(w http.ResponseWriter, r *http.Request) {
	var req addSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Host == "" && req.URL == "" {
		writeError(w, http.StatusBadRequest, "host or url required")
		return
	}
	src, err := pipeline.AddSource(r.Context(), s.sources, req.Host, req.URL, req.Platform, req.Note)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"source": src})
}

func (s *Server) setPaused(paused bool, state string) http.HandlerFunc {
	return s.toggle(func(ctx context.Context, host string) error {
		return s.sources.SetSourcePaused(ctx, host, paused)
	}, state)
}

func (s *Server) setEnabled(enabled bool, state string) http.HandlerFunc {
	return s.toggle(func(ctx context.Context, host string) error {
		return s.sources.SetSourceEnabled(ctx, host, enabled)
	}, state)
}

func (s *Server) toggle(apply func(context.Context, string) error, state string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host := radar.NormalizeHost(chi.URLParam(r, "host"))
		if err := apply(r.Context(), host); err != nil {
			if errors.Is(err, radar.ErrNotFound) {
				writeError(w, http.StatusNotFound, "source not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"host": host, "status": state})
	}
}

func writeSummary(w http.ResponseWriter, summary pipeline.Summary) {
	status := http.StatusOK
	switch {
	case summary.Error == "busy":
		status = http.StatusConflict
	case !summary.OK:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, summary)
}

func writeStageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lock.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "error": "busy"})
	case errors.Is(err, radar.ErrMissingAPIKey), errors.Is(err, radar.ErrMissingTopic):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"ok": false, "error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
	}
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

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.String("request_id", reqID),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
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

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
