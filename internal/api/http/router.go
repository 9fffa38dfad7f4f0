package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/verification-bot/internal/api/http/handlers"
	"github.com/spec-kit/verification-bot/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Webhook   *handlers.WebhookHandler
	Signature *auth.SignatureMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/ping", cfg.Health.Ping)
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	app.Post("/webhook", cfg.Signature.Handle, cfg.Webhook.Receive)
}
