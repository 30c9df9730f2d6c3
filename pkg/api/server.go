// Package api serves the motion command API over HTTP.
//
// Every axis operation runs on the reactor goroutine through
// reactor.Call; handlers never touch an axis directly.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"plcmotion/pkg/config"
	"plcmotion/pkg/log"
	"plcmotion/pkg/metrics"
	"plcmotion/pkg/monitor"
	"plcmotion/pkg/pool"
	"plcmotion/pkg/reactor"
	"plcmotion/pkg/safety"
	"plcmotion/pkg/store"
)

// Settings persists operator edits to the configuration.
type Settings interface {
	SetRangeLimit(id int32, rl config.RangeLimitConfig) error
	Save() error
}

// Config wires the server to the kernel. Only Reactor is required.
type Config struct {
	Reactor  *reactor.Reactor
	Safety   *safety.Manager
	Store    *store.Store
	Hub      *monitor.Hub
	Metrics  metrics.Gatherer
	Settings Settings
	Auth     *Auth

	// CommandTimeout bounds how long a request waits on the reactor.
	// Default 2s.
	CommandTimeout time.Duration
	// WaitTimeout bounds ?wait=true requests. Default 60s.
	WaitTimeout time.Duration
}

// Server is the command API.
type Server struct {
	cfg    Config
	router chi.Router
	log    *log.Logger

	mu     sync.Mutex
	server *http.Server
}

// New creates a server.
func New(cfg Config) *Server {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 2 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 60 * time.Second
	}
	s := &Server{cfg: cfg, log: log.GetLogger("api")}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	if s.cfg.Metrics != nil {
		r.Handle("/metrics", metrics.Handler(s.cfg.Metrics))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.cfg.Auth.Require(ScopeRead))
		r.Get("/axes", s.listAxes)
		r.Get("/axes/{axis}", s.getAxis)
		r.Get("/axes/{axis}/range_limit", s.getRangeLimit)
		r.Get("/safety", s.getSafety)
		r.Get("/faults", s.listFaults)
		if s.cfg.Hub != nil {
			r.Handle("/ws", s.cfg.Hub)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(s.cfg.Auth.Require(ScopeControl))
		r.Post("/axes/{axis}/power", s.power)
		r.Post("/axes/{axis}/reset", s.resetAxis)
		r.Post("/axes/{axis}/move", s.move)
		r.Post("/axes/{axis}/velocity", s.velocity)
		r.Post("/axes/{axis}/halt", s.halt)
		r.Post("/axes/{axis}/stop", s.stop)
		r.Delete("/axes/{axis}/stop", s.releaseStop)
		r.Post("/axes/{axis}/home", s.home)
		r.Put("/axes/{axis}/home_position", s.setHomePosition)
		r.Put("/axes/{axis}/range_limit", s.setRangeLimit)
		r.Post("/estop", s.emergencyStop)
		r.Post("/safety/reset", s.resetSafety)
		r.Delete("/faults", s.clearFaults)
	})
	return r
}

// ServeHTTP dispatches to the API routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.server = &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	srv := s.server
	s.mu.Unlock()

	s.log.Info("serving api on %s", l.Addr())
	if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server error: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and serves.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api server error: %w", err)
	}
	return s.Serve(l)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		if !s.log.Enabled(log.DEBUG) && ww.Status() < 400 {
			return
		}
		s.log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start).String(),
			"request":  middleware.GetReqID(r.Context()),
		}).Info("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"running": s.cfg.Reactor.Running(),
		"ticks":   s.cfg.Reactor.Ticks(),
	}
	if s.cfg.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := s.cfg.Store.Ping(ctx); err != nil {
			status["status"] = "degraded"
			status["store"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, status)
}

type errorBody struct {
	Error   string `json:"error"`
	Code    uint32 `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}
