// HTTP server for the Prometheus metrics endpoint
//
// Serves /metrics for scraping, plus /health and /ready probes. Optional
// basic auth for deployments where the diagnostics port is reachable beyond
// the bench.
//
// Copyright (C) 2026  dw3000-go authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Server serves a registry over HTTP.
type Server struct {
	registry *Registry
	addr     string
	server   *http.Server
	mux      *http.ServeMux

	username string
	password string

	mu      sync.RWMutex
	running bool
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Address to listen on, e.g. ":9100" or "127.0.0.1:9100".
	Address string

	// Optional basic auth credentials.
	Username string
	Password string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns the default listen and timeout settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      ":9100",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// NewServer creates a metrics server over r with default settings.
func NewServer(r *Registry, addr string) *Server {
	config := DefaultServerConfig()
	config.Address = addr
	return NewServerWithConfig(r, config)
}

// NewServerWithConfig creates a metrics server with explicit settings.
func NewServerWithConfig(r *Registry, config ServerConfig) *Server {
	s := &Server{
		registry: r,
		addr:     config.Address,
		mux:      http.NewServeMux(),
		username: config.Username,
		password: config.Password,
	}

	s.mux.HandleFunc("/metrics", s.handleMetrics)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ready", s.handleReady)

	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      s.mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Handler exposes the route mux, for mounting under another server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens and serves, blocking until the server stops.
func (s *Server) Start() error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return s.server.Shutdown(ctx)
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.addr
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	output := s.registry.Gather()
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(output)))
		return
	}
	_, _ = w.Write([]byte(output))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK\n"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain")
	if running {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready\n"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("Not Ready\n"))
}

// checkAuth verifies basic auth when configured, with constant-time
// comparisons.
func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if s.username == "" && s.password == "" {
		return true
	}
	username, password, ok := r.BasicAuth()
	if !ok {
		s.unauthorized(w)
		return false
	}
	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
	if !userMatch || !passMatch {
		s.unauthorized(w)
		return false
	}
	return true
}

func (s *Server) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="dw3000 diagnostics"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
