package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dropwise/dispatch/internal/delivery"
	"github.com/dropwise/dispatch/internal/identity"
	"github.com/dropwise/dispatch/internal/middleware"
)

// RegisterDeliveryRoutes wires booking, rider workflow and query endpoints.
// Static paths are registered before /deliveries/:id.
func RegisterDeliveryRoutes(r fiber.Router, h *delivery.Handler) {
	riderOnly := middleware.RequireUserType(identity.TypeRider)

	r.Post("/deliveries", h.Create)
	r.Get("/deliveries/available", riderOnly, h.Available)
	r.Get("/deliveries/mine", h.Mine)
	r.Get("/deliveries/active", h.Active)
	r.Get("/deliveries/:id", h.Show)
	r.Post("/deliveries/:id/accept", riderOnly, h.Accept)
	r.Patch("/deliveries/:id/status", riderOnly, h.UpdateStatus)

	r.Get("/rider/deliveries", riderOnly, h.RiderDeliveries)
	r.Get("/rider/earnings", riderOnly, h.RiderEarnings)
}
