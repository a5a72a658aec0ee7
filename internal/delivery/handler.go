package delivery

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/dropwise/dispatch/internal/identity"
)

// Handler exposes delivery endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a delivery handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create books a customer-paid delivery.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req CreateInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	d, err := h.service.Create(c.UserContext(), identity.ActorFrom(c), req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"message": "Delivery created", "delivery": d})
}

// CreateForSME books a delivery paid with a subscription unit.
func (h *Handler) CreateForSME(c *fiber.Ctx) error {
	var req CreateInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	d, sub, err := h.service.CreateForSME(c.UserContext(), identity.ActorFrom(c), req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message":        "Delivery created",
		"delivery":       d,
		"unitsRemaining": sub.UnitsRemaining,
	})
}

// Show returns one delivery.
func (h *Handler) Show(c *fiber.Ctx) error {
	d, err := h.service.View(c.UserContext(), identity.ActorFrom(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"delivery": d})
}

// Available lists deliveries open for acceptance.
func (h *Handler) Available(c *fiber.Ctx) error {
	ds, err := h.service.Available(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deliveries": ds})
}

// Mine lists the caller's bookings.
func (h *Handler) Mine(c *fiber.Ctx) error {
	ds, err := h.service.ForCustomer(c.UserContext(), identity.ActorFrom(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deliveries": ds})
}

// Active returns the caller's in-progress delivery, or null.
func (h *Handler) Active(c *fiber.Ctx) error {
	d, ok, err := h.service.Active(c.UserContext(), identity.ActorFrom(c))
	if err != nil {
		return err
	}
	if !ok {
		return c.JSON(fiber.Map{"delivery": nil})
	}
	return c.JSON(fiber.Map{"delivery": d})
}

// Accept assigns the delivery to the calling rider.
func (h *Handler) Accept(c *fiber.Ctx) error {
	d, err := h.service.Accept(c.UserContext(), identity.ActorFrom(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Delivery accepted", "delivery": d})
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus advances the delivery.
func (h *Handler) UpdateStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	status, err := ParseRiderStatus(req.Status)
	if err != nil {
		return err
	}
	d, err := h.service.UpdateStatus(c.UserContext(), identity.ActorFrom(c), c.Params("id"), status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Delivery status updated", "delivery": d})
}

// RiderDeliveries lists deliveries assigned to the calling rider.
func (h *Handler) RiderDeliveries(c *fiber.Ctx) error {
	ds, err := h.service.ForRider(c.UserContext(), identity.ActorFrom(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deliveries": ds})
}

// RiderEarnings summarizes the calling rider's completed work.
func (h *Handler) RiderEarnings(c *fiber.Ctx) error {
	e, err := h.service.RiderEarnings(c.UserContext(), identity.ActorFrom(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(e)
}
