package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropwise/dispatch/internal/apperr"
	"github.com/dropwise/dispatch/internal/identity"
	"github.com/dropwise/dispatch/internal/ledger"
	"github.com/dropwise/dispatch/internal/logging"
	"github.com/dropwise/dispatch/internal/notification"
	"github.com/dropwise/dispatch/internal/subscription"
	"github.com/dropwise/dispatch/internal/wallet"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (n *recordingNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

type fixture struct {
	svc      *Service
	subs     *subscription.Service
	wallets  *wallet.Service
	repo     *StoreRepository
	notifier *recordingNotifier
}

func newFixture() fixture {
	store := ledger.NewInMemory()
	locker := ledger.NewMemoryLocker()
	wallets := wallet.NewService(wallet.NewStoreRepository(store), locker, nil, wallet.Policy{WelcomeBonus: 1000}, logging.Discard())
	subs := subscription.NewService(subscription.NewStoreRepository(store), locker, wallets, logging.Discard())
	repo := NewStoreRepository(store)
	notifier := &recordingNotifier{}
	return fixture{
		svc:      NewService(repo, locker, subs, notifier, Policy{ArrivalETA: 15 * time.Minute}, logging.Discard()),
		subs:     subs,
		wallets:  wallets,
		repo:     repo,
		notifier: notifier,
	}
}

func actorOf(t identity.UserType, name string) identity.Actor {
	return identity.Actor{ID: uuid.NewString(), Type: t, Name: name, Phone: "0803" + name}
}

func sampleInput(fee int64) CreateInput {
	return CreateInput{PickupAddress: "12 Marina, Lagos", DropoffAddress: "4 Allen Ave, Ikeja", PackageDescription: "shoes", DeliveryFee: fee}
}

func TestCreateCustomerDelivery(t *testing.T) {
	f := newFixture()
	customer := actorOf(identity.TypeCustomer, "Ada")

	d, err := f.svc.Create(context.Background(), customer, sampleInput(1000))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, d.Status)
	assert.Equal(t, PaymentPending, d.PaymentStatus)
	assert.Equal(t, CustomerRegular, d.CustomerType)
	assert.Empty(t, d.RiderID)

	_, err = f.svc.Create(context.Background(), customer, CreateInput{DropoffAddress: "x"})
	assert.True(t, errors.Is(err, apperr.ErrValidationFailed), "got %v", err)
	_, err = f.svc.Create(context.Background(), customer, sampleInput(-1))
	assert.True(t, errors.Is(err, apperr.ErrInvalidAmount), "got %v", err)
}

func TestCreateForSMEWithoutUnitsWritesNothing(t *testing.T) {
	f := newFixture()
	sme := actorOf(identity.TypeSME, "Ngozi Foods")

	_, _, err := f.svc.CreateForSME(context.Background(), sme, sampleInput(0))
	require.True(t, errors.Is(err, apperr.ErrNoUnitsRemaining), "got %v", err)

	all, _, err := f.repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	_, _, err = f.svc.CreateForSME(context.Background(), actorOf(identity.TypeCustomer, "Ada"), sampleInput(0))
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied), "got %v", err)
}

func TestCreateForSMEConsumesUnit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sme := actorOf(identity.TypeSME, "Ngozi Foods")
	_, err := f.wallets.Credit(ctx, sme, wallet.Posting{Amount: 1000})
	require.NoError(t, err)
	_, _, err = f.subs.PurchaseUnits(ctx, sme, subscription.PurchaseInput{Units: 2, TotalCost: 1000})
	require.NoError(t, err)

	d, sub, err := f.svc.CreateForSME(ctx, sme, sampleInput(0))
	require.NoError(t, err)
	assert.Equal(t, CustomerSME, d.CustomerType)
	assert.Equal(t, PaymentPrepaid, d.PaymentStatus)
	assert.Equal(t, 1, sub.UnitsRemaining)
	assert.Equal(t, 1, sub.TotalUnitsUsed)

	stored, err := f.svc.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, stored.ID)
}

func TestConcurrentSMECreationSpendsEachUnitOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sme := actorOf(identity.TypeSME, "Ngozi Foods")
	_, err := f.wallets.Credit(ctx, sme, wallet.Posting{Amount: 1500})
	require.NoError(t, err)
	_, _, err = f.subs.PurchaseUnits(ctx, sme, subscription.PurchaseInput{Units: 3, TotalCost: 1500})
	require.NoError(t, err)

	const workers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.CreateForSME(ctx, sme, sampleInput(0))
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, apperr.ErrNoUnitsRemaining) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, successes)
	sub, err := f.subs.GetOrCreate(ctx, sme.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, sub.UnitsRemaining)
	assert.Equal(t, 3, sub.TotalUnitsUsed)

	all, _, err := f.repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpdateStatusUnknownDelivery(t *testing.T) {
	f := newFixture()
	_, err := f.svc.UpdateStatus(context.Background(), actorOf(identity.TypeRider, "Tunde"), uuid.NewString(), StatusPickedUp)
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "got %v", err)
}

func TestAcceptSnapshotsRider(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	d, err := f.svc.Create(ctx, actorOf(identity.TypeCustomer, "Ada"), sampleInput(1000))
	require.NoError(t, err)

	rider := actorOf(identity.TypeRider, "Tunde")
	got, err := f.svc.Accept(ctx, rider, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, got.Status)
	assert.Equal(t, rider.ID, got.RiderID)
	assert.Equal(t, "Tunde", got.RiderName)
	assert.Equal(t, rider.Phone, got.RiderPhone)
	require.NotNil(t, got.EstimatedArrival)
	assert.Equal(t, now.Add(15*time.Minute), *got.EstimatedArrival)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, notification.KindDeliveryAccepted, f.notifier.sent[0].Kind)
	assert.Equal(t, d.CustomerID, f.notifier.sent[0].Destination)

	_, err = f.svc.Accept(ctx, rider, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "got %v", err)
	_, err = f.svc.Accept(ctx, actorOf(identity.TypeCustomer, "Ada"), d.ID)
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied), "got %v", err)
	_, err = f.svc.Accept(ctx, actorOf(identity.TypeRider, "Musa"), d.ID)
	assert.True(t, errors.Is(err, apperr.ErrDeliveryUnavailable), "got %v", err)
}

func TestAcceptRiderMismatchOnPendingRecord(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	d, err := f.svc.Create(ctx, actorOf(identity.TypeCustomer, "Ada"), sampleInput(500))
	require.NoError(t, err)
	d.RiderID = "someone-else"
	require.NoError(t, f.repo.Save(ctx, d))

	_, err = f.svc.Accept(ctx, actorOf(identity.TypeRider, "Tunde"), d.ID)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyAccepted), "got %v", err)
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	d, err := f.svc.Create(ctx, actorOf(identity.TypeCustomer, "Ada"), sampleInput(1000))
	require.NoError(t, err)

	const riders = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < riders; i++ {
		rider := actorOf(identity.TypeRider, "rider")
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Accept(ctx, rider, d.ID)
			if err == nil {
				mu.Lock()
				winners = append(winners, rider.ID)
				mu.Unlock()
				return
			}
			if !errors.Is(err, apperr.ErrDeliveryUnavailable) && !errors.Is(err, apperr.ErrAlreadyAccepted) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	stored, err := f.svc.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], stored.RiderID)
	assert.Equal(t, StatusAccepted, stored.Status)
}

func TestStatusOnlyMovesForward(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	d, err := f.svc.Create(ctx, actorOf(identity.TypeCustomer, "Ada"), sampleInput(1000))
	require.NoError(t, err)
	rider := actorOf(identity.TypeRider, "Tunde")

	_, err = f.svc.UpdateStatus(ctx, rider, d.ID, StatusPickedUp)
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied), "unassigned rider: %v", err)

	_, err = f.svc.Accept(ctx, rider, d.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, actorOf(identity.TypeRider, "Musa"), d.ID, StatusPickedUp)
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied), "other rider: %v", err)

	seen := []Status{StatusPending, StatusAccepted}
	for _, next := range []Status{StatusPickedUp, StatusInTransit} {
		got, err := f.svc.UpdateStatus(ctx, rider, d.ID, next)
		require.NoError(t, err)
		seen = append(seen, got.Status)
	}

	_, err = f.svc.UpdateStatus(ctx, rider, d.ID, StatusPickedUp)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition), "regression: %v", err)
	_, err = f.svc.UpdateStatus(ctx, rider, d.ID, StatusInTransit)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition), "repeat: %v", err)
	_, err = f.svc.UpdateStatus(ctx, rider, d.ID, StatusAccepted)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition), "accepted via update: %v", err)

	done, err := f.svc.UpdateStatus(ctx, rider, d.ID, StatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	seen = append(seen, done.Status)

	assert.Equal(t, []Status{StatusPending, StatusAccepted, StatusPickedUp, StatusInTransit, StatusCompleted}, seen)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, statusRank[seen[i]], statusRank[seen[i-1]])
	}
}

func TestStatusMaySkipAhead(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	d, err := f.svc.Create(ctx, actorOf(identity.TypeCustomer, "Ada"), sampleInput(1000))
	require.NoError(t, err)
	rider := actorOf(identity.TypeRider, "Tunde")
	_, err = f.svc.Accept(ctx, rider, d.ID)
	require.NoError(t, err)

	got, err := f.svc.UpdateStatus(ctx, rider, d.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Nil(t, got.PickedUpAt)
}

func TestQueries(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	f.svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	customer := actorOf(identity.TypeCustomer, "Ada")
	rider := actorOf(identity.TypeRider, "Tunde")

	first, err := f.svc.Create(ctx, customer, sampleInput(1000))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, customer, sampleInput(2000))
	require.NoError(t, err)
	third, err := f.svc.Create(ctx, actorOf(identity.TypeCustomer, "Bola"), sampleInput(3000))
	require.NoError(t, err)

	mine, err := f.svc.ForCustomer(ctx, customer.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)

	_, ok, err := f.svc.ActiveForCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.Accept(ctx, rider, first.ID)
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, rider, second.ID)
	require.NoError(t, err)

	available, err := f.svc.Available(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, third.ID, available[0].ID)

	active, ok, err := f.svc.ActiveForRider(ctx, rider.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.ID, active.ID, "most recently accepted wins")

	active, ok, err = f.svc.Active(ctx, customer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.ID, active.ID)

	_, err = f.svc.UpdateStatus(ctx, rider, first.ID, StatusCompleted)
	require.NoError(t, err)
	fee := int64(1800)
	settled, err := f.svc.Get(ctx, second.ID)
	require.NoError(t, err)
	settled.RiderEarning = &fee
	settled.Status = StatusCompleted
	require.NoError(t, f.repo.Save(ctx, settled))

	earnings, err := f.svc.RiderEarnings(ctx, rider.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, earnings.CompletedDeliveries)
	assert.Equal(t, int64(1000+1800), earnings.TotalEarnings)
	assert.Len(t, earnings.RecentDeliveries, 2)

	_, err = f.svc.View(ctx, actorOf(identity.TypeCustomer, "Eve"), first.ID)
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied), "got %v", err)
	_, err = f.svc.View(ctx, actorOf(identity.TypeRider, "Musa"), third.ID)
	assert.NoError(t, err)
}

func TestRiderEarningsCapsRecent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rider := actorOf(identity.TypeRider, "Tunde")
	customer := actorOf(identity.TypeCustomer, "Ada")
	for i := 0; i < 12; i++ {
		d, err := f.svc.Create(ctx, customer, sampleInput(100))
		require.NoError(t, err)
		_, err = f.svc.Accept(ctx, rider, d.ID)
		require.NoError(t, err)
		_, err = f.svc.UpdateStatus(ctx, rider, d.ID, StatusCompleted)
		require.NoError(t, err)
	}
	e, err := f.svc.RiderEarnings(ctx, rider.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, e.CompletedDeliveries)
	assert.Equal(t, int64(1200), e.TotalEarnings)
	assert.Len(t, e.RecentDeliveries, recentLimit)
}
