// Package server exposes entry syncs over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/git-pkgs/gemsync/internal/store"
	"github.com/git-pkgs/gemsync/internal/sync"
)

// Syncer runs one entry sync.
type Syncer interface {
	Run(ctx context.Context, name string) error
}

// Entries reads stored entries.
type Entries interface {
	Get(ctx context.Context, name string) (*store.Entry, error)
}

// BreakerStates reports the upstream breaker state per registry host.
type BreakerStates interface {
	State() map[string]string
}

type options struct {
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	breakers BreakerStates
}

// Option configures the router.
type Option func(*options)

// WithLogger logs each request at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *options) {
		o.gatherer = g
	}
}

// WithBreakers includes breaker states in the health response.
func WithBreakers(b BreakerStates) Option {
	return func(o *options) {
		o.breakers = b
	}
}

// NewRouter builds the HTTP routes around syncer and entries.
func NewRouter(syncer Syncer, entries Entries, opts ...Option) *chi.Mux {
	o := &options{
		logger:   zap.NewNop(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(o)
	}

	h := &handler{syncer: syncer, entries: entries, breakers: o.breakers, logger: o.logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(o.logger))

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1/entries/{name}", func(r chi.Router) {
		r.Get("/", h.getEntry)
		r.Post("/sync", h.syncEntry)
	})

	return r
}

type handler struct {
	syncer   Syncer
	entries  Entries
	breakers BreakerStates
	logger   *zap.Logger
}

func (h *handler) syncEntry(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.syncer.Run(r.Context(), name); err != nil {
		var fetchErr *sync.RemoteFetchFailure
		switch {
		case errors.Is(err, sync.ErrEmptyName):
			writeError(w, http.StatusBadRequest, err)
		case errors.As(err, &fetchErr):
			writeError(w, http.StatusBadGateway, err)
		default:
			h.logger.Error("entry sync failed", zap.String("name", name), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	h.writeEntry(w, r, name)
}

func (h *handler) getEntry(w http.ResponseWriter, r *http.Request) {
	h.writeEntry(w, r, chi.URLParam(r, "name"))
}

func (h *handler) writeEntry(w http.ResponseWriter, r *http.Request, name string) {
	e, err := h.entries.Get(r.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	breakers := map[string]string{}
	if h.breakers != nil {
		breakers = h.breakers.State()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"breakers": breakers,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func requestLogger(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			l.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
