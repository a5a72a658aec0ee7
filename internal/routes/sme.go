package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dropwise/dispatch/internal/delivery"
	"github.com/dropwise/dispatch/internal/identity"
	"github.com/dropwise/dispatch/internal/middleware"
	"github.com/dropwise/dispatch/internal/subscription"
)

// RegisterSMERoutes wires the subscription endpoints for SME accounts.
func RegisterSMERoutes(r fiber.Router, subs *subscription.Handler, deliveries *delivery.Handler, idem fiber.Handler) {
	group := r.Group("/sme", middleware.RequireUserType(identity.TypeSME))
	group.Get("/subscription", subs.Show)
	group.Post("/purchase-units", idem, subs.Purchase)
	group.Post("/deliveries", idem, deliveries.CreateForSME)
}
