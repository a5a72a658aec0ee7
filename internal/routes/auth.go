package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dropwise/dispatch/internal/auth"
	"github.com/dropwise/dispatch/internal/identity"
)

// RegisterAuthRoutes wires signup and login.
func RegisterAuthRoutes(r fiber.Router, ids *identity.Handler, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/signup", ids.Signup)
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
}
