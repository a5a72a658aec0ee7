package payment

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropwise/dispatch/internal/apperr"
	"github.com/dropwise/dispatch/internal/config"
)

// Payment methods accepted by settlement and top-up.
const (
	MethodCard         = "card"
	MethodCash         = "cash"
	MethodBankTransfer = "bank_transfer"
)

const (
	StatusApproved = "approved"
	minCardDigits  = 16
)

// Card carries the card fields a client submits with a card payment.
type Card struct {
	Number     string `json:"cardNumber"`
	Expiry     string `json:"expiryDate"`
	CVV        string `json:"cvv"`
	HolderName string `json:"cardholderName"`
}

// Charge is a request to move Amount from the payer through the gateway.
type Charge struct {
	Reference string
	Amount    int64
	Method    string
	Card      *Card
}

// Authorization is the gateway's approval.
type Authorization struct {
	Reference   string
	Status      string
	ProcessedAt time.Time
}

// Gateway authorizes card charges. Implementations return
// apperr.ErrPaymentDeclined when the charge is refused.
type Gateway interface {
	Charge(ctx context.Context, charge Charge) (Authorization, error)
}

// New picks the gateway named by cfg.PaymentGateway.
func New(cfg config.Config) Gateway {
	if cfg.PaymentGateway == config.GatewayStatic {
		return StaticGateway{}
	}
	return NewSimulated(cfg.PaymentDelay, cfg.PaymentDeclineRate, time.Now().UnixNano())
}

// Process validates the method-specific details and, for cards, runs the
// charge through gw. Other methods are settled off-platform and approved
// locally.
func Process(ctx context.Context, gw Gateway, charge Charge) (Authorization, error) {
	if charge.Amount <= 0 {
		return Authorization{}, apperr.New(apperr.CodeInvalidAmount, "amount must be positive")
	}
	switch charge.Method {
	case MethodCard:
		if err := ValidateCard(charge.Card); err != nil {
			return Authorization{}, err
		}
		return gw.Charge(ctx, charge)
	case MethodCash, MethodBankTransfer:
		return Authorization{Reference: charge.Reference, Status: StatusApproved, ProcessedAt: time.Now().UTC()}, nil
	default:
		return Authorization{}, apperr.New(apperr.CodeInvalidPaymentDetails, fmt.Sprintf("unsupported payment method %q", charge.Method))
	}
}

// ValidateCard checks that every card field is present and the number has at
// least 16 digits once spaces are removed.
func ValidateCard(card *Card) error {
	if card == nil {
		return apperr.New(apperr.CodeInvalidPaymentDetails, "card details are required")
	}
	if strings.TrimSpace(card.Number) == "" || strings.TrimSpace(card.Expiry) == "" ||
		strings.TrimSpace(card.CVV) == "" || strings.TrimSpace(card.HolderName) == "" {
		return apperr.New(apperr.CodeInvalidPaymentDetails, "card number, expiry, cvv and cardholder name are required")
	}
	digits := strings.ReplaceAll(card.Number, " ", "")
	if len(digits) < minCardDigits {
		return apperr.New(apperr.CodeInvalidPaymentDetails, "card number must have at least 16 digits")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return apperr.New(apperr.CodeInvalidPaymentDetails, "card number must be numeric")
		}
	}
	return nil
}

// StaticGateway answers immediately. It approves every charge unless Decline is set.
type StaticGateway struct {
	Decline bool
}

// Charge approves or declines without delay.
func (g StaticGateway) Charge(_ context.Context, charge Charge) (Authorization, error) {
	if g.Decline {
		return Authorization{}, apperr.New(apperr.CodePaymentDeclined, "card declined")
	}
	return Authorization{Reference: reference(charge), Status: StatusApproved, ProcessedAt: time.Now().UTC()}, nil
}

// SimulatedGateway stands in for a card processor: it waits delay and then
// declines a declineRate fraction of charges at random.
type SimulatedGateway struct {
	delay       time.Duration
	declineRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated builds a simulated gateway seeded with seed.
func NewSimulated(delay time.Duration, declineRate float64, seed int64) *SimulatedGateway {
	return &SimulatedGateway{delay: delay, declineRate: declineRate, rng: rand.New(rand.NewSource(seed))}
}

// Charge waits for the processing delay, then approves or declines.
func (g *SimulatedGateway) Charge(ctx context.Context, charge Charge) (Authorization, error) {
	if g.delay > 0 {
		timer := time.NewTimer(g.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Authorization{}, ctx.Err()
		case <-timer.C:
		}
	}

	g.mu.Lock()
	roll := g.rng.Float64()
	g.mu.Unlock()

	if roll < g.declineRate {
		return Authorization{}, apperr.New(apperr.CodePaymentDeclined, "payment declined by issuer")
	}
	return Authorization{Reference: reference(charge), Status: StatusApproved, ProcessedAt: time.Now().UTC()}, nil
}

func reference(charge Charge) string {
	if charge.Reference != "" {
		return charge.Reference
	}
	return uuid.NewString()
}
