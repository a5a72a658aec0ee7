package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dropwise/dispatch/internal/apperr"
	"github.com/dropwise/dispatch/internal/identity"
	"github.com/dropwise/dispatch/internal/logging"
)

// Audit emits one structured log record per request. Handler errors are
// logged with their domain code and the status the error handler will send.
func Audit(logger *slog.Logger) fiber.Handler {
	logger = logging.Component(logger, "http")
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Duration("duration", time.Since(start)),
		}
		if requestID, _ := c.Locals(requestIDHeader).(string); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if userID, _ := c.Locals(identity.LocalUserID).(string); userID != "" {
			attrs = append(attrs, slog.String("user_id", userID))
		}
		if err != nil {
			code := apperr.CodeOf(err)
			status := code.HTTPStatus()
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
			attrs = append(attrs, slog.Int("status", status), slog.String("code", string(code)), slog.Any("error", err))
			if status >= fiber.StatusInternalServerError {
				logger.Error("request failed", attrs...)
			} else {
				logger.Info("request rejected", attrs...)
			}
			return err
		}

		attrs = append(attrs, slog.Int("status", c.Response().StatusCode()))
		logger.Info("request completed", attrs...)
		return nil
	}
}
