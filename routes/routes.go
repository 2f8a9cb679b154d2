package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/llm-blackbox/app"
	"github.com/upb/llm-blackbox/handlers"
	"github.com/upb/llm-blackbox/middleware"
	"github.com/upb/llm-blackbox/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// requestTimeout bounds every request and must exceed MODEL_TIMEOUT.
const requestTimeout = 120 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Correlation)
	r.Use(middleware.RequestLogger(deps.ContextLogger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "https://*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader, "traceparent", "tracestate"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	health := handlers.NewHealthHandler(deps.Provider, deps.Telemetry != nil, handlers.StatusResponse{
		Service:     deps.Config.Telemetry.ServiceName,
		Version:     deps.Config.Telemetry.ServiceVersion,
		Environment: deps.Config.Environment,
		Provider:    deps.Provider.Name(),
		Model:       deps.ModelClient.ModelName(),
		Providers:   deps.ProviderRegistry.List(),
		Sinks:       deps.Recorder.Sinks(),
	}, deps.Logger)
	ask := handlers.NewAskHandler(deps.ModelClient, deps.Recorder, deps.Tracer, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// Prometheus scrape of the OTel meter
	if metrics := deps.Telemetry.MetricsHandler(); metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Post("/ask", ask.HandleAsk)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", health.HandleStatus)
		r.Get("/status/provider", health.HandleProviderCheck)
		r.Post("/ask", ask.HandleAsk)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteMethodNotAllowed(w)
	})

	return otelhttp.NewHandler(r, "http.server",
		otelhttp.WithTracerProvider(deps.Telemetry.TracerProvider),
		otelhttp.WithMeterProvider(deps.Telemetry.MeterProvider),
		otelhttp.WithPropagators(deps.Telemetry.Propagator),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
