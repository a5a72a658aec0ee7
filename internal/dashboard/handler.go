package dashboard

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dropwise/dispatch/internal/identity"
)

// Handler exposes the dashboard endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a dashboard handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Show returns the caller's dashboard.
func (h *Handler) Show(c *fiber.Ctx) error {
	d, err := h.service.Load(c.UserContext(), identity.ActorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(d)
}
