// Package server exposes the worker over HTTP for local testing and
// platform health checks.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/e-dream-ai/gpu-container-wan22/worker"
)

// maxRequestBody bounds the /generate payload. Data-URL image sources can
// be a few megabytes; anything bigger than this is not a sane request.
const maxRequestBody = 32 << 20

// JobRunner processes one generation job.
type JobRunner interface {
	Process(ctx context.Context, req worker.GenerationRequest) (worker.GenerationResult, error)
}

// Server serializes jobs onto the single GPU this worker owns.
type Server struct {
	runner JobRunner
	mu     sync.Mutex
}

func New(runner JobRunner) *Server {
	return &Server{runner: runner}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	// Logger outside Recoverer so panicked requests are still logged.
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/generate", s.handleGenerate)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, worker.FailedResult(err))
		return
	}

	req, err := worker.ParseRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, worker.FailedResult(err))
		return
	}

	// One job at a time: the GPU cannot serve concurrent generations.
	s.mu.Lock()
	result, err := s.runner.Process(r.Context(), req)
	s.mu.Unlock()
	if err != nil {
		status := http.StatusInternalServerError
		var verr *worker.ValidationError
		if errors.As(err, &verr) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, result)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", slog.String("error", err.Error()))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("Handled request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.String("took", time.Since(start).Round(time.Millisecond).String()))
	})
}
