package identity

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Signup handles user onboarding.
func (h *Handler) Signup(c *fiber.Ctx) error {
	var req SignupInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"user": user.Profile()})
}

// Profile returns the authenticated caller's profile.
func (h *Handler) Profile(c *fiber.Ctx) error {
	uid, _ := c.Locals(LocalUserID).(string)
	user, err := h.service.Get(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"profile": user.Profile()})
}

// ActorFrom returns the actor resolved by the authentication middleware.
func ActorFrom(c *fiber.Ctx) Actor {
	actor, _ := c.Locals(LocalActor).(Actor)
	return actor
}
