package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dropwise/dispatch/internal/payments"
)

// RegisterPaymentRoutes wires delivery settlement.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, idem fiber.Handler) {
	r.Post("/deliveries/:id/pay", idem, h.Settle)
	r.Get("/payments/:id", h.Show)
}
