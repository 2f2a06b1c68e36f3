package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/macro-ingest/internal/domain"
	"github.com/couchcryptid/macro-ingest/internal/store"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SeriesReader reads stored series for the query routes.
type SeriesReader interface {
	Series(ctx context.Context, seriesID string) (domain.Series, error)
	LatestObservations(ctx context.Context, seriesID string) (domain.TimeSeries, error)
}

// Server exposes health, readiness, metrics, and read-only series endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, and /metrics routes.
// When reader is non-nil it also serves /series/{id} and
// /series/{id}/observations.
func NewServer(addr string, ready sharedobs.ReadinessChecker, reader SeriesReader, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if reader != nil {
		mux.HandleFunc("GET /series/{id}", s.handleSeries(reader))
		mux.HandleFunc("GET /series/{id}/observations", s.handleObservations(reader))
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleSeries(reader SeriesReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		series, err := reader.Series(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, series)
	}
}

func (s *Server) handleObservations(reader SeriesReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ts, err := reader.LatestObservations(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, ts)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "series not found"})
		return
	}
	s.logger.Error("series query failed", "path", r.URL.Path, "error", err)
	sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
