package subscription

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/dropwise/dispatch/internal/identity"
)

// Handler exposes SME subscription endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a subscription handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Show returns the caller's subscription.
func (h *Handler) Show(c *fiber.Ctx) error {
	sub, err := h.service.GetOrCreate(c.UserContext(), identity.ActorFrom(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

// Purchase buys delivery units with the caller's wallet balance.
func (h *Handler) Purchase(c *fiber.Ctx) error {
	var req PurchaseInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	sub, purchase, err := h.service.PurchaseUnits(c.UserContext(), identity.ActorFrom(c), req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message":        "Units purchased successfully",
		"unitsRemaining": sub.UnitsRemaining,
		"subscription":   sub,
		"purchase":       purchase,
	})
}
