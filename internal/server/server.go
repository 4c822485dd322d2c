// Package server exposes reports over HTTP.
//
// Routes:
//
//	POST   /api/report                        run a report from a report.Query body
//	POST   /api/refresh                       invalidate the cached data behind a query and rerun it
//	GET    /api/report/last                   last loaded report snapshot
//	GET    /api/pulls/{owner}/{repo}/{number} pull request detail
//	DELETE /api/pulls/{owner}/{repo}/{number} drop a cached pull request detail
//	GET    /healthz
//	GET    /metrics
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/colthorp/teampulse-go/internal/core"
	"github.com/colthorp/teampulse-go/internal/github"
	"github.com/colthorp/teampulse-go/internal/logging"
	"github.com/colthorp/teampulse-go/internal/report"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server serves the report API.
type Server struct {
	orch      *report.Orchestrator
	snapshots report.SnapshotStore
	log       zerolog.Logger

	origins    []string
	rateLimit  int
	rateWindow time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithCORS allows browser requests from origins.
func WithCORS(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithRateLimit limits /api requests to n per window per client IP. n <= 0 disables it.
func WithRateLimit(n int, window time.Duration) Option {
	return func(s *Server) {
		s.rateLimit = n
		s.rateWindow = window
	}
}

// New creates a server. snapshots may be nil.
func New(orch *report.Orchestrator, snapshots report.SnapshotStore, opts ...Option) *Server {
	s := &Server{orch: orch, snapshots: snapshots, log: logging.With("server")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.logRequests)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Each report can cost dozens of upstream calls
		if s.rateLimit > 0 {
			r.Use(httprate.Limit(s.rateLimit, s.rateWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}
		r.Post("/report", s.runReport)
		r.Post("/refresh", s.refresh)
		r.Get("/report/last", s.lastReport)
		r.Route("/pulls/{owner}/{repo}/{number}", func(r chi.Router) {
			r.Get("/", s.pullDetail)
			r.Delete("/", s.clearPull)
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("Listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info().Msg("Shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("Request")
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": core.Version,
		"state":   string(s.orch.State()),
	})
}

func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (report.Request, bool) {
	var q report.Query
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return report.Request{}, false
	}
	req, err := s.orch.BuildRequest(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return report.Request{}, false
	}
	return req, true
}

func (s *Server) writeRun(w http.ResponseWriter, rep *report.Report, err error) {
	if err != nil {
		if rep != nil {
			writeJSON(w, http.StatusBadGateway, rep)
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) runReport(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	rep, err := s.orch.Run(r.Context(), req)
	s.writeRun(w, rep, err)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	rep, err := s.orch.Refresh(r.Context(), req)
	s.writeRun(w, rep, err)
}

func (s *Server) lastReport(w http.ResponseWriter, _ *http.Request) {
	if s.snapshots == nil {
		writeError(w, http.StatusNotFound, report.ErrNoSnapshot)
		return
	}
	rep, err := s.snapshots.Load()
	switch {
	case errors.Is(err, report.ErrNoSnapshot):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, rep)
	}
}

func pullRef(r *http.Request) (github.PullRef, error) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		return github.PullRef{}, errors.New("pull request number must be an integer")
	}
	return github.PullRef{
		Owner:  chi.URLParam(r, "owner"),
		Repo:   chi.URLParam(r, "repo"),
		Number: number,
	}, nil
}

func (s *Server) pullDetail(w http.ResponseWriter, r *http.Request) {
	ref, err := pullRef(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	d, err := s.orch.Fetchers().PullDetail(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) clearPull(w http.ResponseWriter, r *http.Request) {
	ref, err := pullRef(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.orch.Fetchers().ClearPullCache(ref); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
