package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	GradingHandler    *handler.GradingHandler
	ReviewHandler     *handler.ReviewHandler
	AssignmentHandler *handler.AssignmentHandler
	ReleaseHandler    *handler.ReleaseHandler
	SeedHandler       *handler.SeedHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	// Common v1 group for health, headers and tooling
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(api.Group("/tools/seed"))
	}

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Learner submissions
	if deps.GradingHandler != nil {
		grader := app.Group("/api/v2/grader", jwtMiddleware)
		deps.GradingHandler.Register(
			grader.Group("/submissions"),
			middleware.RateLimit("grader-submit", cfg.SubmissionRateLimit, time.Minute),
		)
	}

	// Instructor tools
	instructor := app.Group("/api/v2/instructor", jwtMiddleware, middleware.RequireRole(middleware.RoleInstructor, middleware.RoleAdmin))
	if deps.ReviewHandler != nil {
		deps.ReviewHandler.Register(instructor.Group("/submissions"))
	}
	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.Register(instructor.Group("/assignments"))
	}
	if deps.ReleaseHandler != nil {
		deps.ReleaseHandler.Register(instructor.Group("/release", middleware.RequireRole(middleware.RoleAdmin)))
	}
}
