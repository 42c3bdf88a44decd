// Package server exposes a Manager over HTTP. Media are served with Range
// support, so players can seek without downloading the whole object.
package server

import (
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KarpelesLab/smartmedia"
	"github.com/KarpelesLab/smartmedia/manifest"
)

// Server serves media from a Manager.
type Server struct {
	m        *smartmedia.Manager
	gatherer prometheus.Gatherer // nil disables /metrics
	logger   log.Interface
}

// New returns a Server for m. gatherer may be nil.
func New(m *smartmedia.Manager, gatherer prometheus.Gatherer, logger log.Interface) *Server {
	if logger == nil {
		logger = log.Log
	}
	return &Server{m: m, gatherer: gatherer, logger: logger}
}

// Router returns the HTTP routes:
//   - GET, HEAD /media/* - the media whose id is the rest of the path
//   - GET /healthz - liveness
//   - GET /metrics - Prometheus metrics, when enabled
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok\n"))
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/media/*", s.serveMedia)
	r.Head("/media/*", s.serveMedia)

	return r
}

func (s *Server) serveMedia(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "*")
	if id == "" {
		http.Error(w, "missing media id", http.StatusBadRequest)
		return
	}

	h, err := s.m.Open(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	defer h.Close()

	w.Header().Set("X-Smartmedia-Mode", h.Mode().String())
	http.ServeContent(w, r, "", h.ModTime(), h.Reader(r.Context()))
}

// statusFor maps engine errors to HTTP statuses.
func statusFor(err error) int {
	var merr *smartmedia.MergeError

	switch {
	case errors.Is(err, manifest.ErrUnknownMedia):
		return http.StatusNotFound
	case errors.Is(err, smartmedia.ErrManagerClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &merr):
		return http.StatusBadGateway
	default:
		var mderr *smartmedia.MetadataError
		if errors.As(err, &mderr) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}

// requestLogger logs each request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		entry := s.logger.WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
		})
		if r.URL.Path == "/healthz" {
			entry.Debug("request completed")
		} else {
			entry.Info("request completed")
		}
	})
}
