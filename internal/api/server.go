// Package api exposes the adapter to a host over HTTP and WebSocket.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/nvxd/internal/adapter"
	"github.com/dokzlo13/nvxd/internal/derive"
	"github.com/dokzlo13/nvxd/internal/ledger"
)

// Engine is the adapter surface served by the API. *adapter.Adapter implements it.
type Engine interface {
	DeviceID() string
	Ready() bool
	Snapshot() (derive.View, error)
	Apply(ctx context.Context, name, value string) error
	ApplyBatch(ctx context.Context, reqs []adapter.ControlRequest) error
	Ping(ctx context.Context) (time.Duration, error)
	LastPoll() adapter.PollStats
	Filters() map[string]string
}

// Poller runs an on-demand poll. *poller.Poller implements it.
type Poller interface {
	PollNow(ctx context.Context) error
}

// History reads the control ledger. *ledger.Ledger implements it.
type History interface {
	GetByType(eventType ledger.EventType, limit int) ([]*ledger.Entry, error)
	GetByTimeRange(start, end time.Time, limit int) ([]*ledger.Entry, error)
	LastApplied(deviceID, property string) (*ledger.Entry, error)
}

// Server is the HTTP surface of one adapter.
type Server struct {
	addr       string
	engine     Engine
	poller     Poller
	hub        *Hub
	history    History
	httpServer *http.Server
}

// NewServer creates a new API server. hub may be nil to disable the stream.
func NewServer(host string, port int, engine Engine, poller Poller, hub *Hub) *Server {
	return &Server{
		addr:   fmt.Sprintf("%s:%d", host, port),
		engine: engine,
		poller: poller,
		hub:    hub,
	}
}

// WithHistory serves the control ledger under /api/v1/ledger.
func (s *Server) WithHistory(h History) *Server {
	s.history = h
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/view", s.handleView)
		r.Get("/status", s.handleStatus)
		r.Post("/poll", s.handlePoll)
		r.Post("/control", s.handleControl)
		r.Get("/ping", s.handlePing)
		if s.hub != nil {
			r.Get("/ws", s.hub.ServeHTTP)
		}
		if s.history != nil {
			r.Get("/ledger", s.handleLedger)
			r.Get("/ledger/last", s.handleLastApplied)
		}
	})
	return r
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
