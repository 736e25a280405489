// Package http serves health probes and a JSON API over the conversation cycle.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	ServerURL string
}

type Server struct {
	log            *zap.Logger
	config         Config
	turns          TurnService
	server         *http.Server
	serveMux       *http.ServeMux
	isShuttingDown atomic.Bool
	isReady        atomic.Bool
}

func NewServer(log *zap.Logger, config Config, turns TurnService) *Server {
	h := &Server{
		log:      log,
		serveMux: http.NewServeMux(),
		config:   config,
		turns:    turns,
	}
	h.registerEndpoints()
	return h
}

// Run listens on the host of the configured server URL until Shutdown.
func (h *Server) Run(ctx context.Context) error {
	su, err := url.ParseRequestURI(h.config.ServerURL)
	if err != nil || su == nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	h.server = &http.Server{
		Addr:              su.Host,
		Handler:           h.serveMux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", su.Host)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", su.Host, err)
	}
	h.isReady.Store(true)

	h.log.Info("Starting http server", zap.String("addr", ln.Addr().String()))
	if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// BeginShutdown degrades the probes so traffic drains before Shutdown.
func (h *Server) BeginShutdown(ctx context.Context) error {
	h.isShuttingDown.Store(true)
	return nil
}

func (h *Server) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *Server) registerEndpoints() {
	h.serveMux.HandleFunc("/health", h.health)
	h.serveMux.HandleFunc("/healthz", h.healthz)
	h.serveMux.HandleFunc("/ready", h.ready)
	h.serveMux.HandleFunc("POST /api/turn", h.turn)
	h.serveMux.HandleFunc("GET /api/topics", h.topics)
}

func (h *Server) health(w http.ResponseWriter, r *http.Request) {
	if h.isShuttingDown.Load() { // allow draining by degrading readiness probe
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "shutting down",
			"time":   time.Now().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if h.isShuttingDown.Load() { // allow draining by degrading readiness probe
		h.log.Error("Health check failed", zap.String("remoteAddr", r.RemoteAddr))
		http.Error(w, "Service is shutting down.", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Server) ready(w http.ResponseWriter, r *http.Request) {
	if !h.isReady.Load() || h.isShuttingDown.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"time":   time.Now().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
