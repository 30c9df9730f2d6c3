// HTTP exposition of the motion metrics
//
// Handler serves the Prometheus text format and is mounted by the command
// API. Server runs it on a dedicated listener, optionally behind basic
// auth, for scrapers that must not hold an API token.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"plcmotion/pkg/log"
)

// Gatherer renders metrics in Prometheus text format.
type Gatherer interface {
	Gather() string
}

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// Handler returns an http.Handler serving g for GET and HEAD.
func Handler(g Gatherer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		output := g.Gather()
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(output)))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte(output))
	})
}

// ServerConfig holds server configuration
type ServerConfig struct {
	// Address to listen on, e.g. ":9100"
	Address string

	// Basic auth credentials; both empty disables auth
	Username string
	Password string

	// Ready reports whether the kernel is ticking. Nil means ready
	// whenever the server is serving.
	Ready func() bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      ":9100",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server serves /metrics, /health and /ready.
type Server struct {
	cfg     ServerConfig
	router  chi.Router
	server  *http.Server
	log     *log.Logger
	serving atomic.Bool
}

// NewServer creates a metrics server for g.
func NewServer(g Gatherer, cfg ServerConfig) *Server {
	s := &Server{cfg: cfg, log: log.GetLogger("metrics")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.With(s.basicAuth).Method(http.MethodGet, "/metrics", Handler(g))
	r.With(s.basicAuth).Method(http.MethodHead, "/metrics", Handler(g))
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	s.router = r

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.serving.Store(true)
	defer s.serving.Store(false)

	s.log.Info("serving metrics on %s", l.Addr())
	if err := s.server.Serve(l); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server error: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and serves.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("metrics server error: %w", err)
	}
	return s.Serve(l)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.serving.Store(false)
	return s.server.Shutdown(ctx)
}

// IsRunning reports whether Serve is accepting connections.
func (s *Server) IsRunning() bool { return s.serving.Load() }

func (s *Server) Address() string { return s.cfg.Address }

func (s *Server) ready() bool {
	if !s.IsRunning() {
		return false
	}
	return s.cfg.Ready == nil || s.cfg.Ready()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("OK\n"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if s.ready() {
		_, _ = w.Write([]byte("Ready\n"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("Not Ready\n"))
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	if s.cfg.Username == "" && s.cfg.Password == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.Username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.Password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="motion metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
