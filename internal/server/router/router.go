// Package router wires the keg server's HTTP routes and middleware.
package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/iudanet/kegkeeper/internal/server/handlers"
	"github.com/iudanet/kegkeeper/internal/server/middleware"
)

// HealthPath is not logged and needs no token.
const HealthPath = "/api/v1/health"

// Storage is the persistence the router serves.
type Storage interface {
	handlers.Storage
	handlers.Pinger
}

// Config collects everything the routes depend on.
type Config struct {
	Logger  *slog.Logger
	Storage Storage
	JWT     handlers.JWTConfig
	Limits  handlers.Limits
	Version string
	// RateLimit - запросов в секунду на пользователя, 0 = без лимита
	RateLimit int
}

// Router is the server's root handler.
type Router struct {
	http.Handler
	limiter *middleware.RateLimiter
}

// New builds the router.
func New(cfg Config) *Router {
	logger := cfg.Logger
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.LoggingMiddleware(logger, HealthPath))
	r.Use(middleware.RecoveryMiddleware(logger))
	r.Use(chimw.Compress(5, "application/json"))

	health := handlers.NewHealthHandler(logger, cfg.Storage, cfg.Version)
	commands := handlers.NewCommandHandler(logger, cfg.Storage, cfg.Limits)
	files := handlers.NewFileHandler(logger, cfg.Storage)

	router := &Router{Handler: r}
	if cfg.RateLimit > 0 {
		router.limiter = middleware.NewRateLimiter(float64(cfg.RateLimit), cfg.RateLimit*2, 5*time.Minute, logger)
	}

	r.Get(HealthPath, health.Health)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(logger, cfg.JWT))
		if router.limiter != nil {
			r.Use(router.limiter.Middleware)
		}
		r.Post("/api/v1/cmd/*", commands.Handle)
		r.Get("/api/v1/files/{fileID}/blob", files.Blob)
	})

	return router
}

// Close stops background work of the middleware.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Stop()
	}
}
