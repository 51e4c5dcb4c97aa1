package routes

import (
	"beacon-admission-service/internal/controller"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options selects the optional route groups.
type Options struct {
	// Gatherer backs /metrics; nil leaves the route out.
	Gatherer prometheus.Gatherer
	// AdminToken guards /admin; empty leaves the group out.
	AdminToken string
}

// Register attaches all HTTP routes to the Fiber app.
func Register(app *fiber.App, ingest controller.IngestController, admin controller.AdminController, opts Options) {
	// Every method reaches the pipeline so it can answer 405 itself.
	app.All("/ingest", ingest.Ingest)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	if admin == nil || opts.AdminToken == "" {
		return
	}
	group := app.Group("/admin", controller.RequireAdminToken(opts.AdminToken))
	group.Get("/circuit/:shop", admin.CircuitStatus)
	group.Post("/circuit/:shop/trip", admin.TripCircuit)
	group.Post("/circuit/:shop/reset", admin.ResetCircuit)
	group.Get("/blocks/:shop", admin.BlockStatus)
	group.Delete("/blocks/:shop", admin.Unblock)
}
