package subscription

import "time"

// DefaultPlan is recorded when a purchase names no plan.
const DefaultPlan = "basic"

// Subscription is an SME's prepaid unit balance.
type Subscription struct {
	UserID           string     `json:"userId"`
	Plan             string     `json:"plan"`
	UnitsRemaining   int        `json:"unitsRemaining"`
	TotalUnitsUsed   int        `json:"totalUnitsUsed"`
	SubscriptionDate time.Time  `json:"subscriptionDate"`
	IsActive         bool       `json:"isActive"`
	LastPurchase     *time.Time `json:"lastPurchase,omitempty"`
	// LastPurchaseID is the most recent purchase whose units were applied.
	LastPurchaseID string `json:"lastPurchaseId,omitempty"`
}

// PurchaseStatus tracks a unit purchase through its two writes.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
)

// Purchase journals a unit purchase. It is written before the wallet debit
// so an interrupted purchase stays visible until reconciled.
type Purchase struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	Plan          string         `json:"plan"`
	Units         int            `json:"units"`
	TotalCost     int64          `json:"totalCost"`
	Status        PurchaseStatus `json:"status"`
	TransactionID string         `json:"transactionId,omitempty"`
	FailureReason string         `json:"failureReason,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
}

// MaxUnitsPerPurchase caps the units bought in one purchase.
const MaxUnitsPerPurchase = 1_000_000

// PurchaseInput is the request to buy units.
type PurchaseInput struct {
	Units     int    `json:"units" validate:"gt=0,max=1000000"`
	TotalCost int64  `json:"totalCost" validate:"gt=0,max=1000000000000"`
	Plan      string `json:"plan" validate:"omitempty,max=40"`
}
