package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewLogger returns the json request logger of the api server.
func NewLogger(debug bool) *httplog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return httplog.NewLogger("saferoute", httplog.Options{
		LogLevel:         level,
		JSON:             true,
		Concise:          true,
		MessageFieldName: "message",
		LevelFieldName:   "severity",
		TimeFieldFormat:  time.RFC3339,
		Tags: map[string]string{
			"version": "v1.0",
			"env":     "dev",
		},
		QuietDownRoutes: []string{
			"/",
			"/ping",
			"/metrics",
		},
		QuietDownPeriod: 10 * time.Second,
	})
}

// NewRouter mounts the routing api together with /metrics and the pprof handlers
// under /debug. A nil logger falls back to the chi request logger.
func NewRouter(svc RoutingService, reg *prometheus.Registry, logger *httplog.Logger) *chi.Mux {
	r := chi.NewRouter()
	m := NewMetrics(reg)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if logger != nil {
		r.Use(httplog.RequestLogger(logger, []string{"/metrics"}))
	} else {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(PromeHttpMiddleware(m))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	RoutingRouter(r, svc)

	r.Mount("/debug", middleware.Profiler())
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "route does not exist", http.StatusNotFound)
	})
	return r
}
