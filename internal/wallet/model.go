package wallet

import "time"

// Currency is the only currency wallets hold.
const Currency = "NGN"

// MaxAmount caps a single externally requested movement such as a top-up
// or a settlement.
const MaxAmount int64 = 1_000_000_000_000

// TxType distinguishes credits from debits.
type TxType string

const (
	TxCredit TxType = "credit"
	TxDebit  TxType = "debit"
)

// StatusCompleted is the only transaction status; no pending state is modeled.
const StatusCompleted = "completed"

// Transaction is an immutable wallet history entry.
type Transaction struct {
	ID          string    `json:"id"`
	Type        TxType    `json:"type"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"`
	DeliveryID  string    `json:"deliveryId,omitempty"`
	Reference   string    `json:"reference,omitempty"`
}

// Wallet holds an actor's balance and its most-recent-first history.
type Wallet struct {
	UserID       string        `json:"userId"`
	Balance      int64         `json:"balance"`
	Currency     string        `json:"currency"`
	Transactions []Transaction `json:"transactions"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastUpdated  time.Time     `json:"lastUpdated"`
}

// Posting describes a single balance movement.
type Posting struct {
	Amount      int64
	Description string
	// DeliveryID correlates the movement with a delivery.
	DeliveryID string
	// Reference makes the posting idempotent: a second posting of the same
	// type and reference returns the first transaction unchanged.
	Reference string
}

func (w Wallet) findReference(kind TxType, ref string) (Transaction, bool) {
	if ref == "" {
		return Transaction{}, false
	}
	for _, tx := range w.Transactions {
		if tx.Type == kind && tx.Reference == ref {
			return tx, true
		}
	}
	return Transaction{}, false
}
