package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stroymart/catalog-search/internal/service"
	"github.com/stroymart/catalog-search/pkg/health"
	"github.com/stroymart/catalog-search/pkg/middleware"
)

// NewRouter creates a chi router with all search service routes registered.
func NewRouter(
	queryService *service.QueryService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("catalog-search"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Search API endpoints
	searchHandler := NewSearchHandler(queryService, logger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", searchHandler.Search)
		r.Get("/autocomplete", searchHandler.Autocomplete)
		r.Get("/availability", searchHandler.Availability)
		r.Get("/test", searchHandler.Diag)
	})

	return r
}
