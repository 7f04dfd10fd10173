package chi

import (
	"net/http"

	chirouter "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/metrics"
)

// RouterConfig holds the front-door access settings.
type RouterConfig struct {
	APIKeys     []string
	CORSOrigins []string // empty allows any origin
}

// NewRouter wires the middleware chain and routes.
func NewRouter(s *Server, cfg RouterConfig, logger *zap.Logger) http.Handler {
	r := chirouter.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chimw.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-ID", "Location"},
		MaxAge:         300,
	}))
	r.Use(BearerAuthMiddleware(cfg.APIKeys))
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})

	r.Post("/slack/events", s.SlackEvents)

	r.Route("/events", func(r chirouter.Router) {
		r.Post("/", s.CreateEvent)
		r.Post("/batch", s.CreateEventBatch)
		r.Get("/stream", s.StreamEvents)
	})

	r.Route("/issues", func(r chirouter.Router) {
		r.Get("/", s.ListIssues)
		r.Get("/{id}", s.GetIssue)
		r.Get("/{id}/messages", s.ListIssueMessages)
		r.Put("/{id}/resolve", s.ResolveIssue)
	})

	r.Get("/usage", s.GetUsage)
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
