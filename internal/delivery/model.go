package delivery

import (
	"time"

	"github.com/dropwise/dispatch/internal/apperr"
)

// Status is the delivery state. It only moves forward through
// pending, accepted, picked_up, in_transit and completed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusPickedUp  Status = "picked_up"
	StatusInTransit Status = "in_transit"
	StatusCompleted Status = "completed"
)

var statusRank = map[Status]int{
	StatusPending:   0,
	StatusAccepted:  1,
	StatusPickedUp:  2,
	StatusInTransit: 3,
	StatusCompleted: 4,
}

// Active reports whether a rider is currently working the delivery.
func (s Status) Active() bool {
	switch s {
	case StatusAccepted, StatusPickedUp, StatusInTransit:
		return true
	default:
		return false
	}
}

// ParseRiderStatus accepts the statuses a rider may set through an update.
func ParseRiderStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusPickedUp, StatusInTransit, StatusCompleted:
		return s, nil
	default:
		return "", apperr.New(apperr.CodeInvalidTransition, "status must be one of picked_up, in_transit, completed")
	}
}

// PaymentStatus tracks whether the delivery fee has been settled.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPrepaid   PaymentStatus = "prepaid"
	PaymentCompleted PaymentStatus = "completed"
)

// CustomerType records who booked the delivery.
type CustomerType string

const (
	CustomerRegular CustomerType = "customer"
	CustomerSME     CustomerType = "sme"
)

// Delivery is a delivery order. RiderName and RiderPhone are copied at
// acceptance and are not kept in sync with the rider's profile.
type Delivery struct {
	ID                 string         `json:"id"`
	CustomerID         string         `json:"customerId"`
	CustomerType       CustomerType   `json:"customerType"`
	CustomerName       string         `json:"customerName,omitempty"`
	PickupAddress      string         `json:"pickupAddress"`
	DropoffAddress     string         `json:"dropoffAddress"`
	PackageDescription string         `json:"packageDescription,omitempty"`
	RecipientName      string         `json:"recipientName,omitempty"`
	RecipientPhone     string         `json:"recipientPhone,omitempty"`
	DeliveryFee        int64          `json:"deliveryFee"`
	Details            map[string]any `json:"details,omitempty"`
	Status             Status         `json:"status"`
	PaymentStatus      PaymentStatus  `json:"paymentStatus"`
	RiderID            string         `json:"riderId,omitempty"`
	RiderName          string         `json:"riderName,omitempty"`
	RiderPhone         string         `json:"riderPhone,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	AcceptedAt         *time.Time     `json:"acceptedAt,omitempty"`
	EstimatedArrival   *time.Time     `json:"estimatedArrival,omitempty"`
	PickedUpAt         *time.Time     `json:"pickedUpAt,omitempty"`
	CompletedAt        *time.Time     `json:"completedAt,omitempty"`
	PaidAt             *time.Time     `json:"paidAt,omitempty"`
	PaymentID          string         `json:"paymentId,omitempty"`
	PaymentMethod      string         `json:"paymentMethod,omitempty"`
	PlatformFee        *int64         `json:"platformFee,omitempty"`
	RiderEarning       *int64         `json:"riderEarning,omitempty"`
}

// Earning is the amount credited to the rider, falling back to the
// delivery fee for records settled without a split.
func (d Delivery) Earning() int64 {
	if d.RiderEarning != nil {
		return *d.RiderEarning
	}
	return d.DeliveryFee
}

// CreateInput is the request to book a delivery.
type CreateInput struct {
	PickupAddress      string         `json:"pickupAddress" validate:"required,max=300"`
	DropoffAddress     string         `json:"dropoffAddress" validate:"required,max=300"`
	PackageDescription string         `json:"packageDescription" validate:"max=500"`
	RecipientName      string         `json:"recipientName" validate:"max=120"`
	RecipientPhone     string         `json:"recipientPhone" validate:"omitempty,min=7,max=20"`
	DeliveryFee        int64          `json:"deliveryFee" validate:"gte=0"`
	Details            map[string]any `json:"details"`
}

// Earnings summarizes a rider's completed work.
type Earnings struct {
	TotalEarnings       int64      `json:"totalEarnings"`
	CompletedDeliveries int        `json:"completedDeliveries"`
	RecentDeliveries    []Delivery `json:"recentDeliveries"`
}
