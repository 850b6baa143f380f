// Package api exposes the read-only HTTP interface over harvested and
// translated works.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tanukirift/novelpress/internal/metrics"
	"github.com/tanukirift/novelpress/internal/progress"
	"github.com/tanukirift/novelpress/internal/store"
)

// Server wires HTTP handlers to the file store and progress ledgers.
type Server struct {
	router chi.Router
	store  *store.FileStore
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(st *store.FileStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:  st,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/works", func(r chi.Router) {
			r.Get("/", s.listWorks)
			r.Route("/{slug}", func(r chi.Router) {
				r.Get("/", s.getWork)
				r.Get("/volumes/{number}", s.getVolume)
				r.Get("/progress", s.getProgress)
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

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if _, err := s.store.ListWorks(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "output directory unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listWorks(w http.ResponseWriter, _ *http.Request) {
	slugs, err := s.store.ListWorks()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list works")
		return
	}
	if slugs == nil {
		slugs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"works": slugs})
}

func (s *Server) getWork(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	idx, err := s.store.ReadIndex(slug)
	if err != nil {
		writeError(w, http.StatusNotFound, "work not found")
		return
	}
	writeJSON(w, http.StatusOK, idx)
}

func (s *Server) getVolume(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	var number int
	if _, err := fmt.Sscanf(chi.URLParam(r, "number"), "%d", &number); err != nil || number < 1 {
		writeError(w, http.StatusBadRequest, "invalid volume number")
		return
	}
	vol, err := s.store.ReadVolume(slug, number)
	if err != nil {
		writeError(w, http.StatusNotFound, "volume not found")
		return
	}
	writeJSON(w, http.StatusOK, vol)
}

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	tracker := progress.NewTracker(s.store.ProgressPath(slug), s.logger)
	rec, err := tracker.Load(slug)
	if err != nil {
		if errors.Is(err, progress.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no translation progress for work")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	counts := map[progress.Status]int{}
	for _, item := range rec.Items {
		counts[item.Status]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobKey":    rec.JobKey,
		"updatedAt": rec.UpdatedAt,
		"counts":    counts,
		"items":     rec.Items,
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
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
			logger.Info("request completed",
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

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		fmt.Fprintln(os.Stderr, "write JSON failed:", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
