package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"beacon-admission-service/internal/config"
	"beacon-admission-service/internal/controller"
	"beacon-admission-service/internal/pipeline"
	"beacon-admission-service/internal/routes"
)

// bodyLimitFactor leaves room above MAX_BODY_BYTES so oversized beacons
// reach the pipeline and get its 413 body.
const bodyLimitFactor = 4

// Server wraps the Fiber application setup.
type Server struct {
	app *fiber.App
}

// NewServer configures routes and middleware.
func NewServer(appCfg *config.Config, ingest controller.IngestController, admin controller.AdminController, opts routes.Options) *Server {
	fiberCfg := fiber.Config{
		DisableStartupMessage: true,
		Prefork:               appCfg.FiberPrefork,
		BodyLimit:             appCfg.MaxBodyBytes * bodyLimitFactor,
		ReadTimeout:           appCfg.ReadTimeout,
		WriteTimeout:          appCfg.WriteTimeout,
		ErrorHandler:          errorHandler,
	}
	app := fiber.New(fiberCfg)
	app.Use(recover.New())

	routes.Register(app, ingest, admin, opts)

	return &Server{app: app}
}

// App exposes the Fiber app for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen runs the server on provided addr.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code == fiber.StatusRequestEntityTooLarge {
		resp := pipeline.PayloadTooLargeResponse()
		for k, v := range resp.Headers {
			c.Set(k, v)
		}
		return c.Status(resp.Status).JSON(resp.Body)
	}
	if code >= fiber.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": errorMessage(code, err)})
}

func errorMessage(code int, err error) string {
	if code >= fiber.StatusInternalServerError {
		return "Internal server error"
	}
	return err.Error()
}
