package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dropwise/dispatch/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, idem fiber.Handler) {
	r.Get("/wallet", h.Show)
	r.Get("/wallet/transactions", h.Transactions)
	r.Post("/wallet/topup", idem, h.TopUp)
}
