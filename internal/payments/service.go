package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dropwise/dispatch/internal/apperr"
	"github.com/dropwise/dispatch/internal/delivery"
	"github.com/dropwise/dispatch/internal/identity"
	"github.com/dropwise/dispatch/internal/ledger"
	"github.com/dropwise/dispatch/internal/logging"
	"github.com/dropwise/dispatch/internal/notification"
	"github.com/dropwise/dispatch/internal/payment"
	"github.com/dropwise/dispatch/internal/validation"
	"github.com/dropwise/dispatch/internal/wallet"
)

// DefaultPlatformFeeBPS is the 10% platform commission.
const DefaultPlatformFeeBPS = 1000

// Policy holds the settlement commission.
type Policy struct {
	// PlatformFeeBPS is the platform's share of a delivery fee in basis points.
	PlatformFeeBPS int64
}

// Service settles delivery payments. A settlement holds the delivery lock for
// its whole run and takes the rider's wallet lock inside wallet.Credit.
type Service struct {
	repo       Repository
	deliveries delivery.Repository
	locker     ledger.Locker
	wallets    *wallet.Service
	gateway    payment.Gateway
	notifier   notification.Notifier
	policy     Policy
	logger     *slog.Logger
}

// NewService constructs a settlement service.
func NewService(repo Repository, deliveries delivery.Repository, locker ledger.Locker, wallets *wallet.Service, gateway payment.Gateway, notifier notification.Notifier, policy Policy, logger *slog.Logger) *Service {
	if gateway == nil {
		gateway = payment.StaticGateway{}
	}
	return &Service{
		repo:       repo,
		deliveries: deliveries,
		locker:     locker,
		wallets:    wallets,
		gateway:    gateway,
		notifier:   notifier,
		policy:     policy,
		logger:     logging.Component(logger, "payments"),
	}
}

// Result is the outcome of a settlement.
type Result struct {
	Payment  Payment
	Delivery delivery.Delivery
}

// ReconcileReport summarizes a Reconcile pass.
type ReconcileReport struct {
	Completed int
	Failed    int
}

// Settle charges the customer for a delivery, credits the rider's share to
// their wallet and marks the delivery paid. It runs at most once per
// delivery; later calls fail with ALREADY_PAID.
func (s *Service) Settle(ctx context.Context, actor identity.Actor, in SettleInput) (Result, error) {
	if in.Amount <= 0 {
		return Result{}, apperr.New(apperr.CodeInvalidAmount, "amount must be positive")
	}
	if in.DeliveryFee < 0 {
		return Result{}, apperr.New(apperr.CodeInvalidAmount, "delivery fee must not be negative")
	}
	if in.Amount > wallet.MaxAmount || in.DeliveryFee > wallet.MaxAmount {
		return Result{}, apperr.New(apperr.CodeInvalidAmount, fmt.Sprintf("amounts must not exceed %d", wallet.MaxAmount))
	}
	switch in.PaymentMethod {
	case payment.MethodCard:
		if err := payment.ValidateCard(in.Card); err != nil {
			return Result{}, err
		}
	case payment.MethodCash, payment.MethodBankTransfer:
	default:
		return Result{}, apperr.New(apperr.CodeInvalidPaymentDetails, fmt.Sprintf("unsupported payment method %q", in.PaymentMethod))
	}
	if err := validation.Struct(in); err != nil {
		return Result{}, err
	}

	unlock, err := s.locker.Lock(ctx, delivery.Key(in.DeliveryID))
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	d, err := s.deliveries.Get(ctx, in.DeliveryID)
	if err != nil {
		return Result{}, err
	}
	// An earlier interrupted settlement is resolved before a new charge.
	if d.CustomerID == actor.ID && d.PaymentStatus == delivery.PaymentPending {
		if d, err = s.resolvePendingLocked(ctx, d); err != nil {
			return Result{}, err
		}
	}
	if err := checkSettleable(d, actor, in); err != nil {
		return Result{}, err
	}

	platformFee, earning := Split(in.DeliveryFee, s.policy.PlatformFeeBPS)
	p := Payment{
		ID:            uuid.NewString(),
		DeliveryID:    d.ID,
		CustomerID:    d.CustomerID,
		RiderID:       d.RiderID,
		Amount:        in.Amount,
		DeliveryFee:   in.DeliveryFee,
		PlatformFee:   platformFee,
		RiderEarning:  earning,
		PaymentMethod: in.PaymentMethod,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return Result{}, err
	}

	auth, err := payment.Process(ctx, s.gateway, payment.Charge{
		Reference: p.ID,
		Amount:    in.Amount,
		Method:    in.PaymentMethod,
		Card:      in.Card,
	})
	if err != nil {
		s.fail(ctx, p, apperr.MessageOf(err))
		return Result{}, err
	}
	p.AuthorizationRef = auth.Reference

	if earning > 0 {
		tx, err := s.wallets.Credit(ctx, riderOf(d), wallet.Posting{
			Amount:      earning,
			Description: "Delivery earning",
			DeliveryID:  d.ID,
			Reference:   earningReference(d.ID),
		})
		if err != nil {
			s.logger.Error("payments.rider_credit_failed",
				slog.String("payment_id", p.ID),
				slog.String("delivery_id", d.ID),
				slog.String("rider_id", d.RiderID),
				slog.Int64("rider_earning", earning),
				slog.Any("error", err),
			)
			return Result{}, err
		}
		if tx.Amount != earning {
			s.logger.Error("payments.rider_credit_mismatch",
				slog.String("payment_id", p.ID),
				slog.String("delivery_id", d.ID),
				slog.Int64("credited", tx.Amount),
				slog.Int64("rider_earning", earning),
			)
			s.fail(ctx, p, "rider already credited a different amount")
			return Result{}, apperr.New(apperr.CodeConflict, "rider was already credited a different amount for this delivery")
		}
		p.TransactionID = tx.ID
	}

	d, err = s.markDeliveryPaid(ctx, d, p)
	if err != nil {
		s.logger.Error("payments.delivery_not_marked_paid",
			slog.String("payment_id", p.ID),
			slog.String("delivery_id", d.ID),
			slog.Any("error", err),
		)
		return Result{}, err
	}
	p = s.complete(ctx, p)

	s.logger.Info("payment.settled",
		slog.String("payment_id", p.ID),
		slog.String("delivery_id", d.ID),
		slog.String("rider_id", p.RiderID),
		slog.Int64("delivery_fee", p.DeliveryFee),
		slog.Int64("platform_fee", p.PlatformFee),
		slog.Int64("rider_earning", p.RiderEarning),
	)
	notification.Dispatch(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindRiderPaid,
		Destination: p.RiderID,
		DeliveryID:  d.ID,
		Body:        fmt.Sprintf("You earned %d %s for delivery %s", p.RiderEarning, wallet.Currency, d.ID),
	})
	return Result{Payment: p, Delivery: d}, nil
}

func checkSettleable(d delivery.Delivery, actor identity.Actor, in SettleInput) error {
	switch {
	case d.CustomerID != actor.ID:
		return apperr.New(apperr.CodeAccessDenied, "only the delivery's customer can pay for it")
	case d.PaymentStatus == delivery.PaymentCompleted:
		return apperr.New(apperr.CodeAlreadyPaid, "delivery already paid")
	case d.PaymentStatus == delivery.PaymentPrepaid:
		return apperr.New(apperr.CodeAlreadyPaid, "delivery was prepaid with a subscription unit")
	case d.RiderID == "":
		return apperr.New(apperr.CodeInvalidTransition, "delivery has no assigned rider")
	case d.RiderID != in.RiderID:
		return apperr.New(apperr.CodeInvalidPaymentDetails, "riderId does not match the assigned rider")
	}
	return nil
}

// Get returns a payment visible to its customer or rider.
func (s *Service) Get(ctx context.Context, actor identity.Actor, id string) (Payment, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Payment{}, apperr.New(apperr.CodeNotFound, "payment not found")
		}
		return Payment{}, err
	}
	if p.CustomerID != actor.ID && p.RiderID != actor.ID {
		return Payment{}, apperr.New(apperr.CodeAccessDenied, "payment belongs to another account")
	}
	return p, nil
}

// Reconcile settles payments left pending by an interrupted Settle. A
// payment whose rider credit landed is finished, anything else is failed.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}
	var report ReconcileReport
	for _, p := range all {
		if p.Status != StatusPending {
			continue
		}
		done, err := s.reconcileOne(ctx, p)
		if err != nil {
			return report, err
		}
		if done {
			report.Completed++
		} else {
			report.Failed++
		}
	}
	return report, nil
}

// resolvePendingLocked settles every pending payment of d and returns the
// delivery as it stands afterwards.
func (s *Service) resolvePendingLocked(ctx context.Context, d delivery.Delivery) (delivery.Delivery, error) {
	pending, err := s.repo.PendingFor(ctx, d.ID)
	if err != nil {
		return d, err
	}
	if len(pending) == 0 {
		return d, nil
	}
	for _, p := range pending {
		if _, err := s.reconcileLocked(ctx, p); err != nil {
			return d, err
		}
	}
	return s.deliveries.Get(ctx, d.ID)
}

func (s *Service) reconcileOne(ctx context.Context, p Payment) (bool, error) {
	unlock, err := s.locker.Lock(ctx, delivery.Key(p.DeliveryID))
	if err != nil {
		return false, err
	}
	defer unlock()
	return s.reconcileLocked(ctx, p)
}

func (s *Service) reconcileLocked(ctx context.Context, p Payment) (bool, error) {
	d, err := s.deliveries.Get(ctx, p.DeliveryID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.fail(ctx, p, "delivery not found")
			return false, nil
		}
		return false, err
	}
	if d.PaymentID == p.ID {
		s.complete(ctx, p)
		return true, nil
	}
	if d.PaymentStatus == delivery.PaymentCompleted {
		s.fail(ctx, p, "superseded by payment "+d.PaymentID)
		return false, nil
	}
	if p.RiderEarning <= 0 {
		s.fail(ctx, p, "settlement interrupted before completion")
		return false, nil
	}

	tx, credited, err := s.wallets.FindReference(ctx, p.RiderID, wallet.TxCredit, earningReference(p.DeliveryID))
	if err != nil {
		return false, err
	}
	if !credited {
		s.fail(ctx, p, "rider credit not recorded")
		return false, nil
	}
	p.TransactionID = tx.ID
	if _, err := s.markDeliveryPaid(ctx, d, p); err != nil {
		return false, err
	}
	s.complete(ctx, p)
	s.logger.Info("payments.settlement_recovered", slog.String("payment_id", p.ID), slog.String("delivery_id", p.DeliveryID))
	return true, nil
}

func (s *Service) markDeliveryPaid(ctx context.Context, d delivery.Delivery, p Payment) (delivery.Delivery, error) {
	now := time.Now().UTC()
	platformFee, earning := p.PlatformFee, p.RiderEarning
	d.PaymentStatus = delivery.PaymentCompleted
	d.PaidAt = &now
	d.PaymentID = p.ID
	d.PaymentMethod = p.PaymentMethod
	d.PlatformFee = &platformFee
	d.RiderEarning = &earning
	d.UpdatedAt = now
	if err := s.deliveries.Save(ctx, d); err != nil {
		return d, err
	}
	return d, nil
}

// complete marks p completed. A failed write is only logged: the delivery
// already names p, so Reconcile finishes it.
func (s *Service) complete(ctx context.Context, p Payment) Payment {
	now := time.Now().UTC()
	p.Status = StatusCompleted
	p.CompletedAt = &now
	if err := s.repo.Save(ctx, p); err != nil {
		s.logger.Warn("payments.complete_not_recorded", slog.String("payment_id", p.ID), slog.Any("error", err))
	}
	return p
}

func (s *Service) fail(ctx context.Context, p Payment, reason string) {
	p.Status = StatusFailed
	p.FailureReason = reason
	if err := s.repo.Save(ctx, p); err != nil {
		s.logger.Warn("payments.fail_not_recorded", slog.String("payment_id", p.ID), slog.Any("error", err))
		return
	}
	s.logger.Warn("payments.failed", slog.String("payment_id", p.ID), slog.String("delivery_id", p.DeliveryID), slog.String("reason", reason))
}

func riderOf(d delivery.Delivery) identity.Actor {
	return identity.Actor{ID: d.RiderID, Type: identity.TypeRider, Name: d.RiderName, Phone: d.RiderPhone}
}

func earningReference(deliveryID string) string {
	return "earning:" + deliveryID
}
