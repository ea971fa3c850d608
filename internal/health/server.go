// Package health exposes the bot's HTTP endpoints for container health checks and
// Prometheus scrapes.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"timebot/internal/logging"
	"timebot/internal/store"
)

const (
	mongoPingTimeout   = 2 * time.Second
	statsTimeout       = 5 * time.Second
	readHeaderTimeout  = 2 * time.Second
	healthListenPrefix = ":"
)

// MongoChecker defines the subset of MongoDB client behavior required for health.
type MongoChecker interface {
	Ping(ctx context.Context) error
}

// StatsCollector reports member counts.
type StatsCollector interface {
	Collect(ctx context.Context) (store.Stats, error)
}

// Server hosts the HTTP endpoints and owns the underlying HTTP server.
type Server struct {
	server       *http.Server
	logger       *logrus.Entry
	mongoChecker MongoChecker
	stats        StatsCollector
}

type response struct {
	Status string `json:"status"`
	Mongo  string `json:"mongo,omitempty"`
}

// NewServer constructs a server exposing GET /healthz, GET /metrics and, when
// stats is non-nil, GET /stats on the provided port.
func NewServer(port int, mongoChecker MongoChecker, stats StatsCollector, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		logger:       logger,
		mongoChecker: mongoChecker,
		stats:        stats,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", healthListenPrefix, port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	if s.stats != nil {
		r.Get("/stats", s.handleStats)
	}

	return r
}

// ListenAndServe serves until Shutdown. A closed server is not an error.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "health_listen",
		"addr":  s.server.Addr,
	}).Info("starting health server")

	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server listen: %w", err)
	}

	s.logger.WithField("event", "health_stopped").Info("health server stopped")
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleHealth always answers 200 so the process is not restarted while
// MongoDB is away; a failed ping turns the status to degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.pingMongo(r.Context()); err != nil {
		s.logger.WithField("event", "health_mongo_error").WithError(err).Warn("mongo ping failed during health check")
		s.writeJSON(w, http.StatusOK, response{Status: "degraded", Mongo: "error"})
		return
	}
	s.writeJSON(w, http.StatusOK, response{Status: "ok"})
}

func (s *Server) pingMongo(ctx context.Context) error {
	if s.mongoChecker == nil {
		return errors.New("mongo checker is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, mongoPingTimeout)
	defer cancel()
	return s.mongoChecker.Ping(ctx)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
	defer cancel()

	stats, err := s.stats.Collect(ctx)
	if err != nil {
		s.logger.WithField("event", "health_stats_error").WithError(err).Warn("failed to collect stats")
		s.writeJSON(w, http.StatusServiceUnavailable, response{Status: "error"})
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithField("event", "health_write_error").WithError(err).Error("failed to encode health response")
	}
}
