package notification

import (
	"context"
	"log/slog"

	"github.com/dropwise/dispatch/internal/logging"
)

const (
	// KindDeliveryAccepted tells a customer a rider took their delivery.
	KindDeliveryAccepted = "delivery_accepted"
	// KindDeliveryStatus tells a customer their delivery moved forward.
	KindDeliveryStatus = "delivery_status"
	// KindRiderPaid tells a rider their earning was credited.
	KindRiderPaid = "rider_paid"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	DeliveryID  string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logging.Component(logger, "notification")}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("delivery_id", message.DeliveryID),
		slog.String("body", message.Body),
	)
	return nil
}

// Dispatch sends message through n when n is set. Failures are logged and
// never reach the caller.
func Dispatch(ctx context.Context, n Notifier, logger *slog.Logger, message Message) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, message); err != nil && logger != nil {
		logger.Warn("notification.send_failed", slog.String("kind", message.Kind), slog.Any("error", err))
	}
}
