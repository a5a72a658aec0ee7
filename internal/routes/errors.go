package routes

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/dropwise/dispatch/internal/apperr"
)

// ErrorHandler renders every handler error as {"error": code, "message": msg}.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"error":   fmt.Sprintf("HTTP_%d", fe.Code),
				"message": fe.Message,
			})
		}

		code := apperr.CodeOf(err)
		status := code.HTTPStatus()
		message := apperr.MessageOf(err)
		if code == apperr.CodeUnknown {
			message = "internal error"
		}
		if status >= fiber.StatusInternalServerError && logger != nil {
			logger.Error("request failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.String("code", string(code)),
				slog.Any("error", err),
			)
		}
		return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
	}
}
