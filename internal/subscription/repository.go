package subscription

import (
	"context"
	"errors"

	"github.com/dropwise/dispatch/internal/apperr"
	"github.com/dropwise/dispatch/internal/ledger"
)

// Repository persists subscriptions and the purchase journal.
type Repository interface {
	Get(ctx context.Context, userID string) (Subscription, error)
	Save(ctx context.Context, sub Subscription) error
	SavePurchase(ctx context.Context, p Purchase) error
	GetPurchase(ctx context.Context, userID, id string) (Purchase, error)
	Purchases(ctx context.Context) ([]Purchase, error)
	PurchasesFor(ctx context.Context, userID string) ([]Purchase, error)
}

// StoreRepository keeps subscriptions under sme:<userId> and purchases under
// sme_purchase:<userId>:<purchaseId>.
type StoreRepository struct {
	store ledger.Store
}

// NewStoreRepository builds a ledger-backed subscription repository.
func NewStoreRepository(store ledger.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

// Key returns the ledger key (and lock key) of an SME's subscription.
func Key(userID string) string {
	return ledger.PrefixSME + userID
}

func purchaseKey(userID, id string) string {
	return ledger.PrefixSMEPurchase + userID + ":" + id
}

// Get fetches a subscription.
func (r *StoreRepository) Get(ctx context.Context, userID string) (Subscription, error) {
	sub, err := ledger.GetJSON[Subscription](ctx, r.store, Key(userID))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Subscription{}, apperr.New(apperr.CodeNotFound, "subscription not found")
		}
		return Subscription{}, err
	}
	return sub, nil
}

// Save overwrites a subscription.
func (r *StoreRepository) Save(ctx context.Context, sub Subscription) error {
	return ledger.PutJSON(ctx, r.store, Key(sub.UserID), sub)
}

// SavePurchase writes a purchase journal entry.
func (r *StoreRepository) SavePurchase(ctx context.Context, p Purchase) error {
	return ledger.PutJSON(ctx, r.store, purchaseKey(p.UserID, p.ID), p)
}

// GetPurchase loads a purchase journal entry.
func (r *StoreRepository) GetPurchase(ctx context.Context, userID, id string) (Purchase, error) {
	return ledger.GetJSON[Purchase](ctx, r.store, purchaseKey(userID, id))
}

// Purchases lists every purchase journal entry.
func (r *StoreRepository) Purchases(ctx context.Context) ([]Purchase, error) {
	out, _, err := ledger.ScanJSON[Purchase](ctx, r.store, ledger.PrefixSMEPurchase)
	return out, err
}

// PurchasesFor lists one SME's purchase journal.
func (r *StoreRepository) PurchasesFor(ctx context.Context, userID string) ([]Purchase, error) {
	out, _, err := ledger.ScanJSON[Purchase](ctx, r.store, ledger.PrefixSMEPurchase+userID+":")
	return out, err
}
