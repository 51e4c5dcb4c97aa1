package controller

import (
	"context"

	"beacon-admission-service/internal/pipeline"

	"github.com/gofiber/fiber/v2"
)

// Admitter decides what happens to one beacon.
type Admitter interface {
	Handle(ctx context.Context, req pipeline.Request) pipeline.Response
}

type IngestController interface {
	Ingest(c *fiber.Ctx) error
}

type ingestController struct {
	admitter Admitter
}

// NewIngestController builds an IngestController.
func NewIngestController(admitter Admitter) IngestController {
	return &ingestController{admitter: admitter}
}

// Ingest runs a beacon through the admission pipeline and writes its response.
func (h *ingestController) Ingest(c *fiber.Ctx) error {
	contentLength := c.Request().Header.ContentLength()
	if contentLength < 0 {
		contentLength = -1
	}

	// fasthttp reuses the body buffer once the handler returns.
	body := append([]byte(nil), c.Body()...)

	resp := h.admitter.Handle(c.UserContext(), pipeline.Request{
		Method:        c.Method(),
		Header:        func(name string) string { return c.Get(name) },
		Body:          body,
		ContentLength: contentLength,
	})

	for k, v := range resp.Headers {
		c.Set(k, v)
	}
	if resp.Body == nil {
		return c.SendStatus(resp.Status)
	}
	return c.Status(resp.Status).JSON(resp.Body)
}
