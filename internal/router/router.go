package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/captcha-corpus/internal/config"
	"github.com/noah-isme/captcha-corpus/internal/handler"
	"github.com/noah-isme/captcha-corpus/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	LabelHandler      *handler.LabelHandler
	CaptchaHandler    *handler.CaptchaHandler
	EvaluationHandler *handler.EvaluationHandler
	Database          handler.Pinger
	JWTMiddleware     fiber.Handler
	EvaluationLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	// Registered before the guard so probes never need a token.
	api.Get("/health", handler.HealthCheck(cfg, deps.Database))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	protected := api.Group("", jwtMiddleware)

	if deps.LabelHandler != nil {
		deps.LabelHandler.Register(protected)
	}
	if deps.CaptchaHandler != nil {
		deps.CaptchaHandler.Register(protected)
	}
	if deps.EvaluationHandler != nil {
		deps.EvaluationHandler.Register(protected, deps.EvaluationLimiter)
	}
}
