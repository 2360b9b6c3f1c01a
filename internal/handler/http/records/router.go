package records_http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"go.uber.org/zap"

	"salesconsumer/internal/app/records"
)

// HealthFunc reports whether the consumer is running.
type HealthFunc func() bool

// CORS allows browser dashboards on allowedOrigins to read and delete records.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
}

// RegisterRoutes mounts the health probe, the optional metrics endpoint and
// the records API. A nil metrics handler leaves /metrics unmounted.
func RegisterRoutes(r chi.Router, s records.RecordService, healthy HealthFunc, metrics http.Handler, l *zap.Logger) {
	handler := NewRecordHandler(s, l.With(zap.String("component", "RecordHTTPHandler")))

	r.Route("/health", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			if healthy != nil && !healthy() {
				http.Error(w, "Consumer is not running", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Sales consumer is healthy!"))
		})
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/opportunities", func(r chi.Router) {
		r.Get("/", handler.ListOpportunitiesHandler)
		r.Get("/{eventID}", handler.GetOpportunityHandler)
		r.Delete("/{eventID}", handler.DeleteOpportunityHandler)
	})

	r.Route("/projects", func(r chi.Router) {
		r.Get("/", handler.ListProjectsHandler)
		r.Get("/{eventID}", handler.GetProjectHandler)
		r.Delete("/{eventID}", handler.DeleteProjectHandler)
	})
}
