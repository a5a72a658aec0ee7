package payments

import (
	"time"

	"github.com/dropwise/dispatch/internal/payment"
)

// Status tracks a settlement through its writes.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Payment journals one delivery settlement. It is written pending before the
// rider is credited and completed once the delivery records the payment.
type Payment struct {
	ID               string     `json:"id"`
	DeliveryID       string     `json:"deliveryId"`
	CustomerID       string     `json:"customerId"`
	RiderID          string     `json:"riderId"`
	Amount           int64      `json:"amount"`
	DeliveryFee      int64      `json:"deliveryFee"`
	PlatformFee      int64      `json:"platformFee"`
	RiderEarning     int64      `json:"riderEarning"`
	PaymentMethod    string     `json:"paymentMethod"`
	Status           Status     `json:"status"`
	AuthorizationRef string     `json:"authorizationRef,omitempty"`
	TransactionID    string     `json:"transactionId,omitempty"`
	FailureReason    string     `json:"failureReason,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// SettleInput is the request to pay for a delivery.
type SettleInput struct {
	DeliveryID    string        `json:"deliveryId" validate:"required"`
	Amount        int64         `json:"amount" validate:"gt=0,max=1000000000000"`
	RiderID       string        `json:"riderId" validate:"required"`
	DeliveryFee   int64         `json:"deliveryFee" validate:"gte=0,max=1000000000000"`
	PaymentMethod string        `json:"paymentMethod" validate:"required,oneof=card cash bank_transfer"`
	Card          *payment.Card `json:"cardDetails"`
}

// Split divides fee into the platform's commission and the rider's earning.
// The commission is fee*bps/10000 rounded half up, and the two parts always
// sum to fee.
func Split(fee int64, bps int64) (platformFee, riderEarning int64) {
	if fee <= 0 {
		return 0, 0
	}
	q, r := fee/10000, fee%10000
	platformFee = q*bps + (r*bps+5000)/10000
	return platformFee, fee - platformFee
}
