package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/tenant-rules-admin/app"
	"github.com/upb/tenant-rules-admin/handlers"
	appmiddleware "github.com/upb/tenant-rules-admin/middleware"
	"github.com/upb/tenant-rules-admin/models"
	"github.com/upb/tenant-rules-admin/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-Match", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if deps.Registry != nil {
		r.Use(appmiddleware.RouteMetrics(deps.Metrics))
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	// Health check endpoints
	health := handlers.NewHealthHandler(map[string]handlers.Pinger{"rule_store": deps.Store}, cfg.Environment, deps.Logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// Tenant rule API
	ruleHandler := handlers.NewRuleHandler(deps.RuleService, deps.Logger)
	r.Route("/api/v1/tenants/{tenantId}/rules", func(r chi.Router) {
		r.Use(appmiddleware.Delay(cfg.Mock.Delay))
		if deps.AuthMiddleware != nil {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(deps.AuthMiddleware.RequireTenantAccess("tenantId"))
		}
		ruleHandler.Routes(r)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, models.ErrorBody{Code: "method_not_allowed"})
	})

	return r
}
