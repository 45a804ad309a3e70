package discoveryd

import (
	"github.com/gofiber/fiber/v2"
)

// NewApp assembles the Fiber application with all discovery routes. Health
// probes are public; everything under /v1 requires a bearer token.
func NewApp(cfg *Config, h *Handlers, tm *TokenManager) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})

	RegisterMiddlewares(app, h.log)

	app.Get("/health/live", h.Live)
	app.Get("/health/ready", h.Ready)

	v1 := app.Group("/v1", NewAuthMiddleware(tm))
	beacons := v1.Group("/beacons")
	beacons.Post("/register", h.Register)
	beacons.Post("/lookup", h.Lookup)
	beacons.Get("/active", h.Active)
	beacons.Delete("/:token", h.Deregister)

	return app
}
