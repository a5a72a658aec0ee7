package payments

import (
	"context"
	"sort"

	"github.com/dropwise/dispatch/internal/ledger"
)

// Repository persists the settlement journal.
type Repository interface {
	Save(ctx context.Context, p Payment) error
	Get(ctx context.Context, id string) (Payment, error)
	List(ctx context.Context) ([]Payment, error)
	PendingFor(ctx context.Context, deliveryID string) ([]Payment, error)
}

// StoreRepository keeps payments under payment:<id>.
type StoreRepository struct {
	store ledger.Store
}

// NewStoreRepository builds a ledger-backed payment repository.
func NewStoreRepository(store ledger.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

// Key returns the ledger key of a payment.
func Key(id string) string {
	return ledger.PrefixPayment + id
}

// Save writes a payment record.
func (r *StoreRepository) Save(ctx context.Context, p Payment) error {
	return ledger.PutJSON(ctx, r.store, Key(p.ID), p)
}

// Get loads a payment record.
func (r *StoreRepository) Get(ctx context.Context, id string) (Payment, error) {
	return ledger.GetJSON[Payment](ctx, r.store, Key(id))
}

// List scans every payment record.
func (r *StoreRepository) List(ctx context.Context) ([]Payment, error) {
	out, _, err := ledger.ScanJSON[Payment](ctx, r.store, ledger.PrefixPayment)
	return out, err
}

// PendingFor returns the pending payments of one delivery, oldest first.
func (r *StoreRepository) PendingFor(ctx context.Context, deliveryID string) ([]Payment, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Payment
	for _, p := range all {
		if p.DeliveryID == deliveryID && p.Status == StatusPending {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
