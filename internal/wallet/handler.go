package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/dropwise/dispatch/internal/identity"
	"github.com/dropwise/dispatch/internal/payment"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type topUpRequest struct {
	Amount        int64         `json:"amount"`
	PaymentMethod string        `json:"paymentMethod"`
	CardDetails   *payment.Card `json:"cardDetails"`
}

// Show returns the caller's wallet, creating it on first access.
func (h *Handler) Show(c *fiber.Ctx) error {
	w, err := h.service.GetOrCreate(c.UserContext(), identity.ActorFrom(c))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"wallet": w})
}

// TopUp credits the caller's wallet after charging the payment method.
func (h *Handler) TopUp(c *fiber.Ctx) error {
	var req topUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, tx, err := h.service.TopUp(c.UserContext(), identity.ActorFrom(c), TopUpInput{
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		Card:          req.CardDetails,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message":     "Wallet topped up successfully",
		"newBalance":  w.Balance,
		"transaction": tx,
	})
}

// Transactions lists the caller's most recent wallet transactions.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	txs, err := h.service.History(c.UserContext(), identity.ActorFrom(c), limit)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": txs})
}
