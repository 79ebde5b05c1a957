package routes

import (
	"net/http"

	"aggregator/aggregator/config"
	"aggregator/aggregator/controllers"
	"aggregator/aggregator/middlewares"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Controllers struct {
	Chat      *controllers.ChatController
	Auth      *controllers.AuthController
	Admin     *controllers.AdminController
	APIKeys   *controllers.APIKeyController
	Knowledge *controllers.KnowledgeController
	Health    *controllers.HealthController
}

func NewRouter(cfg config.Config, ctrls Controllers, limiter middlewares.Limiter) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.Metrics)
	r.Use(middleware.Recoverer)
	r.Use(middlewares.SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middlewares.MaxBodySize(cfg.MaxBodyBytes))

	r.Mount("/health", HealthRoutes(ctrls.Health))
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/auth", AuthRoutes(ctrls.Auth))
	r.Mount("/chat", ChatRoutes(ctrls.Chat, limiter, cfg))
	r.Mount("/admins", AdminRoutes(ctrls.Admin, cfg))
	r.Mount("/api-keys", APIKeyRoutes(ctrls.APIKeys, cfg))
	r.Mount("/knowledge", KnowledgeRoutes(ctrls.Knowledge, cfg))
	return r
}
