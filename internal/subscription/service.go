package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropwise/dispatch/internal/apperr"
	"github.com/dropwise/dispatch/internal/identity"
	"github.com/dropwise/dispatch/internal/ledger"
	"github.com/dropwise/dispatch/internal/logging"
	"github.com/dropwise/dispatch/internal/validation"
	"github.com/dropwise/dispatch/internal/wallet"
)

// Service manages SME prepaid units. Mutations hold the subscription lock;
// a purchase additionally takes the wallet lock inside wallet.Debit.
type Service struct {
	repo    Repository
	locker  ledger.Locker
	wallets *wallet.Service
	logger  *slog.Logger
}

// NewService builds a subscription service.
func NewService(repo Repository, locker ledger.Locker, wallets *wallet.Service, logger *slog.Logger) *Service {
	return &Service{repo: repo, locker: locker, wallets: wallets, logger: logging.Component(logger, "subscription")}
}

// ReconcileReport summarizes a Reconcile pass.
type ReconcileReport struct {
	Completed int
	Failed    int
}

// GetOrCreate returns the SME's subscription, creating an inactive one with
// zero units when missing.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (Subscription, error) {
	sub, err := s.repo.Get(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return Subscription{}, err
	}

	unlock, err := s.locker.Lock(ctx, Key(userID))
	if err != nil {
		return Subscription{}, err
	}
	defer unlock()
	return s.loadOrCreateLocked(ctx, userID)
}

// PurchaseUnits debits totalCost from the SME's wallet and adds units to the
// subscription. Wallet failures such as INSUFFICIENT_FUNDS are returned
// unchanged and no units are added.
func (s *Service) PurchaseUnits(ctx context.Context, actor identity.Actor, in PurchaseInput) (Subscription, Purchase, error) {
	if actor.Type != identity.TypeSME {
		return Subscription{}, Purchase{}, apperr.New(apperr.CodeAccessDenied, "only SME accounts can purchase units")
	}
	if in.Units <= 0 {
		return Subscription{}, Purchase{}, apperr.New(apperr.CodeInvalidAmount, "units must be positive")
	}
	if in.TotalCost <= 0 {
		return Subscription{}, Purchase{}, apperr.New(apperr.CodeInvalidAmount, "total cost must be positive")
	}
	if in.Units > MaxUnitsPerPurchase || in.TotalCost > wallet.MaxAmount {
		return Subscription{}, Purchase{}, apperr.New(apperr.CodeInvalidAmount,
			fmt.Sprintf("a purchase is limited to %d units and a total cost of %d", MaxUnitsPerPurchase, wallet.MaxAmount))
	}
	in.Plan = strings.TrimSpace(in.Plan)
	if err := validation.Struct(in); err != nil {
		return Subscription{}, Purchase{}, err
	}

	unlock, err := s.locker.Lock(ctx, Key(actor.ID))
	if err != nil {
		return Subscription{}, Purchase{}, err
	}
	defer unlock()

	// An earlier interrupted purchase must be settled before lastPurchaseId moves on.
	if _, err := s.resolvePendingLocked(ctx, actor.ID); err != nil {
		return Subscription{}, Purchase{}, err
	}

	sub, err := s.loadOrCreateLocked(ctx, actor.ID)
	if err != nil {
		return Subscription{}, Purchase{}, err
	}
	if sub.UnitsRemaining > math.MaxInt-in.Units {
		return Subscription{}, Purchase{}, errUnitsOverflow
	}

	plan := in.Plan
	if plan == "" {
		plan = DefaultPlan
	}
	p := Purchase{
		ID:        uuid.NewString(),
		UserID:    actor.ID,
		Plan:      plan,
		Units:     in.Units,
		TotalCost: in.TotalCost,
		Status:    PurchasePending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.SavePurchase(ctx, p); err != nil {
		return Subscription{}, Purchase{}, err
	}

	tx, err := s.wallets.Debit(ctx, actor, wallet.Posting{
		Amount:      in.TotalCost,
		Description: fmt.Sprintf("Purchase of %d delivery units", in.Units),
		Reference:   purchaseReference(p.ID),
	})
	if err != nil {
		if isBusinessError(err) {
			p.Status = PurchaseFailed
			p.FailureReason = apperr.MessageOf(err)
			if saveErr := s.repo.SavePurchase(ctx, p); saveErr != nil {
				s.logger.Warn("subscription.purchase_fail_not_recorded", slog.String("purchase_id", p.ID), slog.Any("error", saveErr))
			}
		}
		// otherwise the debit may or may not have landed; the purchase stays
		// pending and the next purchase or Reconcile settles it
		return Subscription{}, Purchase{}, err
	}
	p.TransactionID = tx.ID

	sub, err = s.applyLocked(ctx, sub, p)
	if err != nil {
		s.logger.Error("subscription.units_not_applied",
			slog.String("user_id", actor.ID),
			slog.String("purchase_id", p.ID),
			slog.String("transaction_id", tx.ID),
			slog.Any("error", err),
		)
		return Subscription{}, Purchase{}, err
	}

	p = s.completeLocked(ctx, p)
	s.logger.Info("subscription.units_purchased",
		slog.String("user_id", actor.ID),
		slog.String("purchase_id", p.ID),
		slog.Int("units", p.Units),
		slog.Int64("total_cost", p.TotalCost),
		slog.Int("units_remaining", sub.UnitsRemaining),
	)
	return sub, p, nil
}

// ConsumeUnit takes one unit from the SME's balance.
func (s *Service) ConsumeUnit(ctx context.Context, userID string) (Subscription, error) {
	return s.WithUnit(ctx, userID, nil)
}

// WithUnit takes one unit and runs fn while still holding the subscription
// lock. The decrement is durable before fn runs; if fn fails the previous
// subscription record is written back and fn's error is returned.
func (s *Service) WithUnit(ctx context.Context, userID string, fn func(ctx context.Context) error) (Subscription, error) {
	unlock, err := s.locker.Lock(ctx, Key(userID))
	if err != nil {
		return Subscription{}, err
	}
	defer unlock()

	prev, err := s.repo.Get(ctx, userID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return Subscription{}, err
	}
	if prev.UnitsRemaining <= 0 {
		return Subscription{}, apperr.New(apperr.CodeNoUnitsRemaining, "no delivery units remaining; purchase more units")
	}

	next := prev
	next.UnitsRemaining--
	next.TotalUnitsUsed++
	if err := s.repo.Save(ctx, next); err != nil {
		return Subscription{}, err
	}

	if fn != nil {
		if err := fn(ctx); err != nil {
			if restoreErr := s.repo.Save(ctx, prev); restoreErr != nil {
				s.logger.Error("subscription.unit_restore_failed",
					slog.String("user_id", userID),
					slog.Int("units_remaining", next.UnitsRemaining),
					slog.Any("error", restoreErr),
				)
			}
			return Subscription{}, err
		}
	}
	return next, nil
}

// Reconcile settles purchases left pending by an interrupted PurchaseUnits:
// those whose wallet debit landed get their units, the rest are failed.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	all, err := s.repo.Purchases(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}
	users := make(map[string]struct{})
	for _, p := range all {
		if p.Status == PurchasePending {
			users[p.UserID] = struct{}{}
		}
	}

	var report ReconcileReport
	for userID := range users {
		r, err := s.reconcileUser(ctx, userID)
		if err != nil {
			return report, err
		}
		report.Completed += r.Completed
		report.Failed += r.Failed
	}
	return report, nil
}

func (s *Service) reconcileUser(ctx context.Context, userID string) (ReconcileReport, error) {
	unlock, err := s.locker.Lock(ctx, Key(userID))
	if err != nil {
		return ReconcileReport{}, err
	}
	defer unlock()
	return s.resolvePendingLocked(ctx, userID)
}

func (s *Service) resolvePendingLocked(ctx context.Context, userID string) (ReconcileReport, error) {
	var report ReconcileReport
	purchases, err := s.repo.PurchasesFor(ctx, userID)
	if err != nil {
		return report, err
	}
	for _, p := range purchases {
		if p.Status != PurchasePending {
			continue
		}
		sub, err := s.loadOrCreateLocked(ctx, userID)
		if err != nil {
			return report, err
		}
		if sub.LastPurchaseID == p.ID {
			s.completeLocked(ctx, p)
			report.Completed++
			continue
		}

		tx, debited, err := s.wallets.FindReference(ctx, userID, wallet.TxDebit, purchaseReference(p.ID))
		if err != nil {
			return report, err
		}
		if !debited {
			p.Status = PurchaseFailed
			p.FailureReason = "wallet debit not recorded"
			if err := s.repo.SavePurchase(ctx, p); err != nil {
				return report, err
			}
			report.Failed++
			s.logger.Warn("subscription.purchase_failed_on_reconcile", slog.String("purchase_id", p.ID), slog.String("user_id", userID))
			continue
		}

		p.TransactionID = tx.ID
		if _, err := s.applyLocked(ctx, sub, p); err != nil {
			return report, err
		}
		s.completeLocked(ctx, p)
		report.Completed++
		s.logger.Info("subscription.purchase_recovered",
			slog.String("purchase_id", p.ID),
			slog.String("user_id", userID),
			slog.Int("units", p.Units),
		)
	}
	return report, nil
}

func (s *Service) applyLocked(ctx context.Context, sub Subscription, p Purchase) (Subscription, error) {
	if sub.UnitsRemaining > math.MaxInt-p.Units {
		return Subscription{}, errUnitsOverflow
	}
	now := time.Now().UTC()
	sub.UnitsRemaining += p.Units
	sub.IsActive = true
	sub.Plan = p.Plan
	sub.LastPurchase = &now
	sub.LastPurchaseID = p.ID
	if err := s.repo.Save(ctx, sub); err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

// completeLocked marks p completed. A failed write is only logged: the
// subscription already names p as applied, so the next pass completes it.
func (s *Service) completeLocked(ctx context.Context, p Purchase) Purchase {
	now := time.Now().UTC()
	p.Status = PurchaseCompleted
	p.CompletedAt = &now
	if err := s.repo.SavePurchase(ctx, p); err != nil {
		s.logger.Warn("subscription.purchase_complete_not_recorded", slog.String("purchase_id", p.ID), slog.Any("error", err))
	}
	return p
}

func (s *Service) loadOrCreateLocked(ctx context.Context, userID string) (Subscription, error) {
	sub, err := s.repo.Get(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return Subscription{}, err
	}
	sub = Subscription{
		UserID:           userID,
		Plan:             DefaultPlan,
		SubscriptionDate: time.Now().UTC(),
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

var errUnitsOverflow = apperr.New(apperr.CodeInvalidAmount, "purchase would overflow the unit balance")

func purchaseReference(id string) string {
	return "sme_purchase:" + id
}

func isBusinessError(err error) bool {
	switch apperr.CodeOf(err) {
	case apperr.CodeUnknown, apperr.CodeStoreUnavailable:
		return false
	default:
		return true
	}
}
