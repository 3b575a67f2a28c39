package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/relayq/relayq/internal/engine"
	"github.com/relayq/relayq/internal/logger"
	"github.com/relayq/relayq/internal/metrics"
	"github.com/relayq/relayq/internal/model"
	"github.com/relayq/relayq/internal/wal"
)

// Server is the HTTP adapter over the engine: it owns no state beyond its
// collaborators and the two config knobs (max_body_size, next_job_delay)
// that only it interprets.
type Server struct {
	engine       *engine.Engine
	wal          *wal.Store
	metrics      *metrics.Collector
	log          logger.Logger
	maxBodySize  model.ByteSize
	nextJobDelay time.Duration

	httpServer *http.Server
}

// Config carries the HTTP adapter's own settings, sourced from [server] in
// the TOML config.
type Config struct {
	Host         string
	Port         int
	MaxBodySize  model.ByteSize
	NextJobDelay time.Duration
}

// New builds a Server wired to its collaborators, ready for ListenAndServe.
func New(eng *engine.Engine, store *wal.Store, log logger.Logger, cfg Config) *Server {
	s := &Server{
		engine:       eng,
		wal:          store,
		metrics:      metrics.Default(),
		log:          log.WithComponent(logger.ComponentAPI),
		maxBodySize:  cfg.MaxBodySize,
		nextJobDelay: cfg.NextJobDelay,
	}

	handler := chain(s.routes(), recoverer(s.log), maxBodySize(s.maxBodySize))
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: handler,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /queue", s.handleListQueues)
	mux.HandleFunc("PUT /queue/{q}", s.handlePutQueue)
	mux.HandleFunc("DELETE /queue/{q}", s.handleDeleteQueue)
	mux.HandleFunc("GET /queue/{q}", s.handleGetQueueSettings)
	mux.HandleFunc("GET /queue/{q}/size", s.handleQueueSize)
	mux.HandleFunc("GET /queue/{q}/job_ids", s.handleQueueJobIDs)
	mux.HandleFunc("POST /queue/{q}/job", s.handleCreateJob)
	mux.HandleFunc("GET /queue/{q}/job", s.handleReserveJob)
	mux.HandleFunc("POST /queue/{q}/job/{ts}", s.handleReattempt)

	mux.HandleFunc("PATCH /job/{id}", s.handlePatchJob)
	mux.HandleFunc("GET /job/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /job/{id}", s.handleDeleteJob)

	mux.HandleFunc("GET /tag/{t}", s.handleGetTagged)

	mux.HandleFunc("GET /info", s.handleInfo)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// Handler returns the fully wrapped request handler, for tests that want to
// drive the adapter with httptest rather than bind a real socket.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe binds the listen socket and serves until the server is
// Shutdown or ListenAndServe itself fails; failure to bind is one of the
// two fatal conditions in spec.md §7.
func (s *Server) ListenAndServe() error {
	s.log.Info("http adapter listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests up to the context's deadline, the
// Draining phase of the server state machine (4.D).
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
