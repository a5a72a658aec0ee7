package payments

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/dropwise/dispatch/internal/identity"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Settle pays for the delivery named in the path.
func (h *Handler) Settle(c *fiber.Ctx) error {
	var req SettleInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	req.DeliveryID = c.Params("id")

	res, err := h.service.Settle(c.UserContext(), identity.ActorFrom(c), req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message":      "Payment processed successfully",
		"paymentId":    res.Payment.ID,
		"platformFee":  res.Payment.PlatformFee,
		"riderEarning": res.Payment.RiderEarning,
		"payment":      res.Payment,
		"delivery":     res.Delivery,
	})
}

// Show returns one payment record.
func (h *Handler) Show(c *fiber.Ctx) error {
	p, err := h.service.Get(c.UserContext(), identity.ActorFrom(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"payment": p})
}
