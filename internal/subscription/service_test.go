package subscription

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropwise/dispatch/internal/apperr"
	"github.com/dropwise/dispatch/internal/identity"
	"github.com/dropwise/dispatch/internal/ledger"
	"github.com/dropwise/dispatch/internal/logging"
	"github.com/dropwise/dispatch/internal/wallet"
)

type fixture struct {
	svc     *Service
	wallets *wallet.Service
	repo    *StoreRepository
	store   ledger.Store
}

func newFixture() fixture {
	store := ledger.NewInMemory()
	locker := ledger.NewMemoryLocker()
	wallets := wallet.NewService(wallet.NewStoreRepository(store), locker, nil, wallet.Policy{WelcomeBonus: 1000}, logging.Discard())
	repo := NewStoreRepository(store)
	return fixture{
		svc:     NewService(repo, locker, wallets, logging.Discard()),
		wallets: wallets,
		repo:    repo,
		store:   store,
	}
}

func smeWithBalance(t *testing.T, f fixture, balance int64) identity.Actor {
	t.Helper()
	actor := identity.Actor{ID: uuid.NewString(), Type: identity.TypeSME, Name: "Ngozi Foods"}
	if balance > 0 {
		_, err := f.wallets.Credit(context.Background(), actor, wallet.Posting{Amount: balance, Description: "seed"})
		require.NoError(t, err)
	}
	return actor
}

func TestPurchaseUnitsScenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sme := smeWithBalance(t, f, 5000)

	sub, p, err := f.svc.PurchaseUnits(ctx, sme, PurchaseInput{Units: 10, TotalCost: 5000})
	require.NoError(t, err)
	assert.Equal(t, 10, sub.UnitsRemaining)
	assert.True(t, sub.IsActive)
	assert.Equal(t, DefaultPlan, sub.Plan)
	assert.NotNil(t, sub.LastPurchase)
	assert.Equal(t, PurchaseCompleted, p.Status)
	assert.NotEmpty(t, p.TransactionID)

	w, err := f.wallets.Get(ctx, sme.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.Balance)
	require.NotEmpty(t, w.Transactions)
	assert.Equal(t, wallet.TxDebit, w.Transactions[0].Type)
	assert.Equal(t, int64(5000), w.Transactions[0].Amount)

	stored, err := f.repo.GetPurchase(ctx, sme.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, PurchaseCompleted, stored.Status)
}

func TestPurchaseUnitsRejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	customer := identity.Actor{ID: uuid.NewString(), Type: identity.TypeCustomer}
	_, _, err := f.svc.PurchaseUnits(ctx, customer, PurchaseInput{Units: 1, TotalCost: 500})
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied), "got %v", err)

	sme := smeWithBalance(t, f, 100)
	_, _, err = f.svc.PurchaseUnits(ctx, sme, PurchaseInput{Units: 0, TotalCost: 500})
	assert.True(t, errors.Is(err, apperr.ErrInvalidAmount), "got %v", err)
	_, _, err = f.svc.PurchaseUnits(ctx, sme, PurchaseInput{Units: 2, TotalCost: -1})
	assert.True(t, errors.Is(err, apperr.ErrInvalidAmount), "got %v", err)
}

func TestPurchaseUnitsInsufficientFunds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sme := smeWithBalance(t, f, 400)

	_, _, err := f.svc.PurchaseUnits(ctx, sme, PurchaseInput{Units: 2, TotalCost: 1000})
	require.True(t, errors.Is(err, apperr.ErrInsufficientFunds), "got %v", err)

	sub, err := f.svc.GetOrCreate(ctx, sme.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, sub.UnitsRemaining)
	assert.False(t, sub.IsActive)

	w, err := f.wallets.Get(ctx, sme.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), w.Balance)

	purchases, err := f.repo.PurchasesFor(ctx, sme.ID)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, PurchaseFailed, purchases[0].Status)
	assert.Contains(t, purchases[0].FailureReason, "insufficient funds")
}

func TestConsumeUnit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sme := smeWithBalance(t, f, 1000)

	_, err := f.svc.ConsumeUnit(ctx, sme.ID)
	assert.True(t, errors.Is(err, apperr.ErrNoUnitsRemaining), "got %v", err)

	_, _, err = f.svc.PurchaseUnits(ctx, sme, PurchaseInput{Units: 2, TotalCost: 1000, Plan: "starter"})
	require.NoError(t, err)

	used := 0
	for i := 0; i < 2; i++ {
		sub, err := f.svc.ConsumeUnit(ctx, sme.ID)
		require.NoError(t, err)
		assert.Greater(t, sub.TotalUnitsUsed, used)
		used = sub.TotalUnitsUsed
	}
	_, err = f.svc.ConsumeUnit(ctx, sme.ID)
	assert.True(t, errors.Is(err, apperr.ErrNoUnitsRemaining), "got %v", err)

	sub, err := f.svc.GetOrCreate(ctx, sme.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, sub.UnitsRemaining)
	assert.Equal(t, 2, sub.TotalUnitsUsed)
	assert.Equal(t, "starter", sub.Plan)
}

func TestWithUnitRestoresOnFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sme := smeWithBalance(t, f, 500)
	_, _, err := f.svc.PurchaseUnits(ctx, sme, PurchaseInput{Units: 1, TotalCost: 500})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = f.svc.WithUnit(ctx, sme.ID, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	sub, err := f.svc.GetOrCreate(ctx, sme.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sub.UnitsRemaining)
	assert.Equal(t, 0, sub.TotalUnitsUsed)

	ran := false
	sub, err = f.svc.WithUnit(ctx, sme.ID, func(context.Context) error { ran = true; return nil })
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 0, sub.UnitsRemaining)
}

func TestReconcilePendingPurchases(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sme := smeWithBalance(t, f, 3000)

	// debit landed but the process stopped before units were applied
	landed := Purchase{ID: uuid.NewString(), UserID: sme.ID, Plan: "basic", Units: 4, TotalCost: 2000, Status: PurchasePending}
	require.NoError(t, f.repo.SavePurchase(ctx, landed))
	_, err := f.wallets.Debit(ctx, sme, wallet.Posting{Amount: 2000, Reference: purchaseReference(landed.ID)})
	require.NoError(t, err)

	// journal written, debit never happened
	lost := Purchase{ID: uuid.NewString(), UserID: sme.ID, Plan: "basic", Units: 9, TotalCost: 900, Status: PurchasePending}
	require.NoError(t, f.repo.SavePurchase(ctx, lost))

	report, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Completed: 1, Failed: 1}, report)

	sub, err := f.svc.GetOrCreate(ctx, sme.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, sub.UnitsRemaining)
	assert.Equal(t, landed.ID, sub.LastPurchaseID)

	got, err := f.repo.GetPurchase(ctx, sme.ID, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, PurchaseFailed, got.Status)

	// a second pass is a no-op
	report, err = f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{}, report)
	w, err := f.wallets.Get(ctx, sme.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), w.Balance)
}

func TestPurchaseUnitsRejectsOverflow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sme := smeWithBalance(t, f, 1000)

	require.NoError(t, f.repo.Save(ctx, Subscription{UserID: sme.ID, Plan: DefaultPlan, UnitsRemaining: math.MaxInt - 5, IsActive: true}))

	_, _, err := f.svc.PurchaseUnits(ctx, sme, PurchaseInput{Units: 10, TotalCost: 500})
	require.True(t, errors.Is(err, apperr.ErrInvalidAmount), "got %v", err)

	_, _, err = f.svc.PurchaseUnits(ctx, sme, PurchaseInput{Units: MaxUnitsPerPurchase + 1, TotalCost: 500})
	require.True(t, errors.Is(err, apperr.ErrInvalidAmount), "got %v", err)

	sub, err := f.svc.GetOrCreate(ctx, sme.ID)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt-5, sub.UnitsRemaining)

	w, err := f.wallets.Get(ctx, sme.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), w.Balance)

	purchases, err := f.repo.PurchasesFor(ctx, sme.ID)
	require.NoError(t, err)
	assert.Empty(t, purchases)
}

func TestConcurrentConsumeNeverOverspends(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sme := smeWithBalance(t, f, 500)
	_, _, err := f.svc.PurchaseUnits(ctx, sme, PurchaseInput{Units: 5, TotalCost: 500})
	require.NoError(t, err)

	const workers = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		exhausted atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ConsumeUnit(ctx, sme.ID)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, apperr.ErrNoUnitsRemaining):
				exhausted.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), successes.Load())
	assert.Equal(t, int32(workers-5), exhausted.Load())

	sub, err := f.svc.GetOrCreate(ctx, sme.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, sub.UnitsRemaining)
	assert.Equal(t, 5, sub.TotalUnitsUsed)
}
