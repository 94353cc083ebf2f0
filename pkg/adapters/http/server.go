// Package http exposes the bridge protocol over HTTP for orchestrators
// that do not speak the host's native IPC channel.
package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/datum"
	"github.com/aretw0/datum/pkg/bridge"
	"github.com/aretw0/datum/pkg/script"
)

// Server routes HTTP traffic into the engine.
type Server struct {
	dispatcher *bridge.Dispatcher
	registry   *script.Registry
	loader     *script.HotLoader
	logger     *slog.Logger
}

// NewHandler builds the HTTP handler. gatherer may be nil to disable
// the /metrics endpoint.
func NewHandler(d *bridge.Dispatcher, reg *script.Registry, loader *script.HotLoader, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	s := &Server{
		dispatcher: d,
		registry:   reg,
		loader:     loader,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Post("/bridge", s.handleBridge)
	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)
	r.Get("/scripts", s.handleScripts)
	r.Get("/scripts/candidates", s.handleCandidates)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleBridge feeds one protocol message through the dispatcher. The
// HTTP status is always 200 for decodable traffic; success or failure
// lives in the protocol envelope, like on the native channel.
func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Request body too large or unreadable", http.StatusBadRequest)
		s.logger.Warn("bridge request unreadable", "err", err)
		return
	}

	resp := s.dispatcher.HandleMessage(r.Context(), body)
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(resp); err != nil {
		s.logger.Error("bridge response write failed", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, map[string]string{
		"app":     "datum",
		"version": strings.TrimSpace(datum.Version),
	})
}

func (s *Server) handleScripts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, map[string]any{
		"registered": s.registry.List(),
		"hotloaded":  s.loader.Scripts(),
	})
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	minExecutions := 3
	if raw := r.URL.Query().Get("min_executions"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "min_executions must be a positive integer", http.StatusBadRequest)
			return
		}
		minExecutions = n
	}
	writeJSON(w, s.logger, map[string]any{
		"candidates": s.loader.GraduationCandidates(minExecutions),
	})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "err", err)
	}
}
