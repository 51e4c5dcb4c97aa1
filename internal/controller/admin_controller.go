package controller

import (
	"crypto/subtle"
	"errors"
	"strings"

	"beacon-admission-service/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type AdminController interface {
	CircuitStatus(c *fiber.Ctx) error
	TripCircuit(c *fiber.Ctx) error
	ResetCircuit(c *fiber.Ctx) error
	BlockStatus(c *fiber.Ctx) error
	Unblock(c *fiber.Ctx) error
}

type adminController struct {
	adminService service.AdminService
}

// NewAdminController builds an AdminController.
func NewAdminController(svc service.AdminService) AdminController {
	return &adminController{adminService: svc}
}

func (h *adminController) CircuitStatus(c *fiber.Ctx) error {
	status, err := h.adminService.CircuitStatus(c.UserContext(), c.Params("shop"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(status)
}

func (h *adminController) TripCircuit(c *fiber.Ctx) error {
	status, err := h.adminService.TripCircuit(c.UserContext(), c.Params("shop"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(status)
}

func (h *adminController) ResetCircuit(c *fiber.Ctx) error {
	status, err := h.adminService.ResetCircuit(c.UserContext(), c.Params("shop"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(status)
}

func (h *adminController) BlockStatus(c *fiber.Ctx) error {
	status, err := h.adminService.BlockStatus(c.UserContext(), c.Params("shop"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(status)
}

func (h *adminController) Unblock(c *fiber.Ctx) error {
	status, err := h.adminService.Unblock(c.UserContext(), c.Params("shop"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(status)
}

// RequireAdminToken rejects requests without the bearer token.
func RequireAdminToken(token string) fiber.Handler {
	want := []byte(token)
	return func(c *fiber.Ctx) error {
		got, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "code": "unauthorized"})
		}
		return c.Next()
	}
}

func serviceError(c *fiber.Ctx, err error) error {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": verr.Message, "code": verr.Code})
	}
	logrus.WithError(err).WithField("path", c.Path()).Error("admin request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error", "code": "internal_error"})
}
