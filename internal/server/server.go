// Package server exposes the HTTP surface: a health endpoint, the
// transcription endpoint, and Prometheus metrics.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"whisperd/internal/config"
	"whisperd/internal/whisper"
)

// New constructs the HTTP handler. modelPath is the already-resolved
// weights file the engine will be pointed at.
func New(cfg config.Config, engine whisper.Engine, modelPath string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	preg := prometheus.NewRegistry()
	preg.MustRegister(collectors.NewGoCollector())
	preg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	h := &handlers{
		cfg:       cfg,
		engine:    engine,
		modelPath: modelPath,
		logger:    logger,
		metrics:   newMetrics(preg),
	}

	r.Get("/healthz", h.healthz)
	r.Post("/transcribe", h.transcribe)
	r.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{}))

	return r
}
