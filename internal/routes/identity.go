package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dropwise/dispatch/internal/dashboard"
	"github.com/dropwise/dispatch/internal/identity"
)

// RegisterProfileRoutes wires the caller's profile and dashboard.
func RegisterProfileRoutes(r fiber.Router, ids *identity.Handler, dash *dashboard.Handler) {
	r.Get("/me", ids.Profile)
	r.Get("/dashboard", dash.Show)
}
