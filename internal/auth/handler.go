package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the login endpoint.
type Handler struct {
	svc *Service
}

// NewHandler builds an auth handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login validates credentials and returns an access token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, pair, err := h.svc.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"token":   pair,
		"profile": user.Profile(),
	})
}
