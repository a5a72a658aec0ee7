package delivery

import (
	"context"
	"errors"

	"github.com/dropwise/dispatch/internal/apperr"
	"github.com/dropwise/dispatch/internal/ledger"
)

// Repository persists delivery orders.
type Repository interface {
	Get(ctx context.Context, id string) (Delivery, error)
	Save(ctx context.Context, d Delivery) error
	// List returns every delivery and the number of unreadable records skipped.
	List(ctx context.Context) ([]Delivery, int, error)
}

// StoreRepository keeps deliveries under delivery:<id>.
type StoreRepository struct {
	store ledger.Store
}

// NewStoreRepository builds a ledger-backed delivery repository.
func NewStoreRepository(store ledger.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

// Key returns the ledger key (and lock key) of a delivery.
func Key(id string) string {
	return ledger.PrefixDelivery + id
}

// Get fetches a delivery.
func (r *StoreRepository) Get(ctx context.Context, id string) (Delivery, error) {
	d, err := ledger.GetJSON[Delivery](ctx, r.store, Key(id))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Delivery{}, apperr.New(apperr.CodeNotFound, "delivery not found")
		}
		return Delivery{}, err
	}
	return d, nil
}

// Save overwrites a delivery.
func (r *StoreRepository) Save(ctx context.Context, d Delivery) error {
	return ledger.PutJSON(ctx, r.store, Key(d.ID), d)
}

// List scans every delivery.
func (r *StoreRepository) List(ctx context.Context) ([]Delivery, int, error) {
	return ledger.ScanJSON[Delivery](ctx, r.store, ledger.PrefixDelivery)
}
