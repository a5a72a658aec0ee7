package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropwise/dispatch/internal/apperr"
	"github.com/dropwise/dispatch/internal/ledger"
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
}

type emailIndex struct {
	UserID string `json:"userId"`
}

// StoreRepository keeps users in the ledger store under user:<id> with a
// user_email:<email> index for login lookups.
type StoreRepository struct {
	store  ledger.Store
	locker ledger.Locker
}

// NewStoreRepository builds a ledger-backed user repository.
func NewStoreRepository(store ledger.Store, locker ledger.Locker) *StoreRepository {
	return &StoreRepository{store: store, locker: locker}
}

// NewMemoryRepository builds an in-memory user store for testing.
func NewMemoryRepository() *StoreRepository {
	return NewStoreRepository(ledger.NewInMemory(), ledger.NewMemoryLocker())
}

// Create stores a new user, failing with CONFLICT when the email is taken.
func (r *StoreRepository) Create(ctx context.Context, user User) error {
	email := normalizeEmail(user.Email)
	indexKey := ledger.PrefixUserEmail + email

	unlock, err := r.locker.Lock(ctx, indexKey)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := r.store.Get(ctx, indexKey); err == nil {
		return apperr.New(apperr.CodeConflict, "email already registered")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}

	user.Email = email
	if err := ledger.PutJSON(ctx, r.store, ledger.PrefixUser+user.ID, user); err != nil {
		return err
	}
	// the index is written last so a half-created user is unreachable by login
	return ledger.PutJSON(ctx, r.store, indexKey, emailIndex{UserID: user.ID})
}

// FindByID loads a user by identifier.
func (r *StoreRepository) FindByID(ctx context.Context, id string) (User, error) {
	user, err := ledger.GetJSON[User](ctx, r.store, ledger.PrefixUser+id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return User{}, apperr.New(apperr.CodeNotFound, "user not found")
		}
		return User{}, err
	}
	return user, nil
}

// FindByEmail resolves the email index and loads the user.
func (r *StoreRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	idx, err := ledger.GetJSON[emailIndex](ctx, r.store, ledger.PrefixUserEmail+normalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return User{}, apperr.New(apperr.CodeNotFound, "user not found")
		}
		return User{}, fmt.Errorf("lookup email: %w", err)
	}
	return r.FindByID(ctx, idx.UserID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
