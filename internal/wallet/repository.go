package wallet

import (
	"context"
	"errors"

	"github.com/dropwise/dispatch/internal/apperr"
	"github.com/dropwise/dispatch/internal/ledger"
)

// Repository persists wallets.
type Repository interface {
	Get(ctx context.Context, userID string) (Wallet, error)
	Save(ctx context.Context, wallet Wallet) error
}

// StoreRepository keeps wallets in the ledger store under wallet:<userId>.
type StoreRepository struct {
	store ledger.Store
}

// NewStoreRepository builds a ledger-backed wallet repository.
func NewStoreRepository(store ledger.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

// Key returns the ledger key (and lock key) of a user's wallet.
func Key(userID string) string {
	return ledger.PrefixWallet + userID
}

// Get fetches a wallet.
func (r *StoreRepository) Get(ctx context.Context, userID string) (Wallet, error) {
	w, err := ledger.GetJSON[Wallet](ctx, r.store, Key(userID))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Wallet{}, apperr.New(apperr.CodeNotFound, "wallet not found")
		}
		return Wallet{}, err
	}
	return w, nil
}

// Save overwrites a wallet.
func (r *StoreRepository) Save(ctx context.Context, wallet Wallet) error {
	return ledger.PutJSON(ctx, r.store, Key(wallet.UserID), wallet)
}
