package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropwise/dispatch/internal/apperr"
	"github.com/dropwise/dispatch/internal/identity"
	"github.com/dropwise/dispatch/internal/ledger"
	"github.com/dropwise/dispatch/internal/logging"
	"github.com/dropwise/dispatch/internal/notification"
	"github.com/dropwise/dispatch/internal/subscription"
	"github.com/dropwise/dispatch/internal/validation"
)

// recentLimit caps the recent deliveries returned with rider earnings.
const recentLimit = 10

// Units is the slice of the subscription service used to fund SME deliveries.
type Units interface {
	WithUnit(ctx context.Context, userID string, fn func(ctx context.Context) error) (subscription.Subscription, error)
}

// Policy holds delivery timing defaults.
type Policy struct {
	// ArrivalETA is added to the acceptance time to estimate arrival.
	ArrivalETA time.Duration
}

// Service runs the delivery state machine. Every mutation of a delivery
// holds that delivery's lock.
type Service struct {
	repo     Repository
	locker   ledger.Locker
	units    Units
	notifier notification.Notifier
	policy   Policy
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds a delivery service.
func NewService(repo Repository, locker ledger.Locker, units Units, notifier notification.Notifier, policy Policy, logger *slog.Logger) *Service {
	if policy.ArrivalETA <= 0 {
		policy.ArrivalETA = 15 * time.Minute
	}
	return &Service{
		repo:     repo,
		locker:   locker,
		units:    units,
		notifier: notifier,
		policy:   policy,
		logger:   logging.Component(logger, "delivery"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create books a customer-paid delivery. No funds move until settlement.
func (s *Service) Create(ctx context.Context, actor identity.Actor, in CreateInput) (Delivery, error) {
	d, err := s.build(actor, in, CustomerRegular, PaymentPending)
	if err != nil {
		return Delivery{}, err
	}
	if err := s.repo.Save(ctx, d); err != nil {
		return Delivery{}, err
	}
	s.logger.Info("delivery.created",
		slog.String("delivery_id", d.ID),
		slog.String("customer_id", d.CustomerID),
		slog.Int64("delivery_fee", d.DeliveryFee),
	)
	return d, nil
}

// CreateForSME books a delivery prepaid with one subscription unit. The
// delivery is written while the unit is held, so a failed write gives the
// unit back and a NO_UNITS_REMAINING failure writes nothing.
func (s *Service) CreateForSME(ctx context.Context, actor identity.Actor, in CreateInput) (Delivery, subscription.Subscription, error) {
	if actor.Type != identity.TypeSME {
		return Delivery{}, subscription.Subscription{}, apperr.New(apperr.CodeAccessDenied, "only SME accounts can book prepaid deliveries")
	}
	d, err := s.build(actor, in, CustomerSME, PaymentPrepaid)
	if err != nil {
		return Delivery{}, subscription.Subscription{}, err
	}
	sub, err := s.units.WithUnit(ctx, actor.ID, func(ctx context.Context) error {
		return s.repo.Save(ctx, d)
	})
	if err != nil {
		return Delivery{}, subscription.Subscription{}, err
	}
	s.logger.Info("delivery.created",
		slog.String("delivery_id", d.ID),
		slog.String("customer_id", d.CustomerID),
		slog.String("customer_type", string(d.CustomerType)),
		slog.Int("units_remaining", sub.UnitsRemaining),
	)
	return d, sub, nil
}

func (s *Service) build(actor identity.Actor, in CreateInput, ct CustomerType, ps PaymentStatus) (Delivery, error) {
	in.PickupAddress = strings.TrimSpace(in.PickupAddress)
	in.DropoffAddress = strings.TrimSpace(in.DropoffAddress)
	if in.DeliveryFee < 0 {
		return Delivery{}, apperr.New(apperr.CodeInvalidAmount, "delivery fee must not be negative")
	}
	if err := validation.Struct(in); err != nil {
		return Delivery{}, err
	}
	now := s.now()
	return Delivery{
		ID:                 uuid.NewString(),
		CustomerID:         actor.ID,
		CustomerType:       ct,
		CustomerName:       actor.Name,
		PickupAddress:      in.PickupAddress,
		DropoffAddress:     in.DropoffAddress,
		PackageDescription: in.PackageDescription,
		RecipientName:      in.RecipientName,
		RecipientPhone:     in.RecipientPhone,
		DeliveryFee:        in.DeliveryFee,
		Details:            in.Details,
		Status:             StatusPending,
		PaymentStatus:      ps,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// Get returns a delivery by id.
func (s *Service) Get(ctx context.Context, id string) (Delivery, error) {
	return s.repo.Get(ctx, id)
}

// Accept assigns a pending delivery to the calling rider. Concurrent accepts
// of one delivery serialize on its lock: the first wins and the rest see
// DELIVERY_UNAVAILABLE.
func (s *Service) Accept(ctx context.Context, rider identity.Actor, id string) (Delivery, error) {
	if rider.Type != identity.TypeRider {
		return Delivery{}, apperr.New(apperr.CodeAccessDenied, "only riders can accept deliveries")
	}
	unlock, err := s.locker.Lock(ctx, Key(id))
	if err != nil {
		return Delivery{}, err
	}
	defer unlock()

	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Delivery{}, err
	}
	if d.Status != StatusPending {
		return Delivery{}, apperr.New(apperr.CodeDeliveryUnavailable, "delivery is no longer available")
	}
	if d.RiderID != "" && d.RiderID != rider.ID {
		return Delivery{}, apperr.New(apperr.CodeAlreadyAccepted, "delivery already accepted by another rider")
	}

	now := s.now()
	eta := now.Add(s.policy.ArrivalETA)
	d.RiderID = rider.ID
	d.RiderName = rider.Name
	d.RiderPhone = rider.Phone
	d.Status = StatusAccepted
	d.AcceptedAt = &now
	d.EstimatedArrival = &eta
	d.UpdatedAt = now
	if err := s.repo.Save(ctx, d); err != nil {
		return Delivery{}, err
	}

	s.logger.Info("delivery.accepted", slog.String("delivery_id", d.ID), slog.String("rider_id", rider.ID))
	notification.Dispatch(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindDeliveryAccepted,
		Destination: d.CustomerID,
		DeliveryID:  d.ID,
		Body:        fmt.Sprintf("%s accepted your delivery", rider.Name),
	})
	return d, nil
}

// UpdateStatus moves a delivery forward. Only the assigned rider may update
// it, and the new status must come strictly after the current one.
func (s *Service) UpdateStatus(ctx context.Context, rider identity.Actor, id string, status Status) (Delivery, error) {
	if _, err := ParseRiderStatus(string(status)); err != nil {
		return Delivery{}, err
	}
	unlock, err := s.locker.Lock(ctx, Key(id))
	if err != nil {
		return Delivery{}, err
	}
	defer unlock()

	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Delivery{}, err
	}
	if d.RiderID == "" || d.RiderID != rider.ID {
		return Delivery{}, apperr.New(apperr.CodeAccessDenied, "only the assigned rider can update this delivery")
	}
	if statusRank[status] <= statusRank[d.Status] {
		return Delivery{}, apperr.New(apperr.CodeInvalidTransition,
			fmt.Sprintf("cannot move delivery from %s to %s", d.Status, status))
	}

	now := s.now()
	prev := d.Status
	d.Status = status
	d.UpdatedAt = now
	switch status {
	case StatusPickedUp:
		d.PickedUpAt = &now
	case StatusCompleted:
		d.CompletedAt = &now
	}
	if err := s.repo.Save(ctx, d); err != nil {
		return Delivery{}, err
	}

	s.logger.Info("delivery.status_changed",
		slog.String("delivery_id", d.ID),
		slog.String("from", string(prev)),
		slog.String("to", string(status)),
	)
	notification.Dispatch(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindDeliveryStatus,
		Destination: d.CustomerID,
		DeliveryID:  d.ID,
		Body:        "Your delivery is now " + strings.ReplaceAll(string(status), "_", " "),
	})
	return d, nil
}

// Available lists pending deliveries no rider has taken, oldest first.
func (s *Service) Available(ctx context.Context) ([]Delivery, error) {
	out, err := s.filter(ctx, func(d Delivery) bool {
		return d.Status == StatusPending && d.RiderID == ""
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ForCustomer lists the customer's deliveries, newest first.
func (s *Service) ForCustomer(ctx context.Context, customerID string) ([]Delivery, error) {
	out, err := s.filter(ctx, func(d Delivery) bool { return d.CustomerID == customerID })
	if err != nil {
		return nil, err
	}
	sortNewest(out)
	return out, nil
}

// ForRider lists the rider's deliveries, newest first.
func (s *Service) ForRider(ctx context.Context, riderID string) ([]Delivery, error) {
	out, err := s.filter(ctx, func(d Delivery) bool { return d.RiderID == riderID })
	if err != nil {
		return nil, err
	}
	sortNewest(out)
	return out, nil
}

// ActiveForCustomer returns the customer's in-progress delivery. More than
// one may exist; the most recently accepted wins.
func (s *Service) ActiveForCustomer(ctx context.Context, customerID string) (Delivery, bool, error) {
	return s.active(ctx, func(d Delivery) bool { return d.CustomerID == customerID })
}

// ActiveForRider returns the rider's in-progress delivery.
func (s *Service) ActiveForRider(ctx context.Context, riderID string) (Delivery, bool, error) {
	return s.active(ctx, func(d Delivery) bool { return d.RiderID == riderID })
}

func (s *Service) active(ctx context.Context, match func(Delivery) bool) (Delivery, bool, error) {
	out, err := s.filter(ctx, func(d Delivery) bool { return match(d) && d.Status.Active() })
	if err != nil || len(out) == 0 {
		return Delivery{}, false, err
	}
	best := out[0]
	for _, d := range out[1:] {
		if acceptedAt(d).After(acceptedAt(best)) {
			best = d
		}
	}
	return best, true, nil
}

// RiderEarnings totals the rider's completed deliveries.
func (s *Service) RiderEarnings(ctx context.Context, riderID string) (Earnings, error) {
	all, err := s.ForRider(ctx, riderID)
	if err != nil {
		return Earnings{}, err
	}
	e := Earnings{RecentDeliveries: all}
	for _, d := range all {
		if d.Status != StatusCompleted {
			continue
		}
		e.CompletedDeliveries++
		e.TotalEarnings += d.Earning()
	}
	if len(e.RecentDeliveries) > recentLimit {
		e.RecentDeliveries = e.RecentDeliveries[:recentLimit]
	}
	return e, nil
}

func (s *Service) filter(ctx context.Context, keep func(Delivery) bool) ([]Delivery, error) {
	all, skipped, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.logger.Warn("delivery.unreadable_records", slog.Int("skipped", skipped))
	}
	out := make([]Delivery, 0, len(all))
	for _, d := range all {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func sortNewest(ds []Delivery) {
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].CreatedAt.After(ds[j].CreatedAt) })
}

func acceptedAt(d Delivery) time.Time {
	if d.AcceptedAt == nil {
		return time.Time{}
	}
	return *d.AcceptedAt
}

// View returns a delivery the actor may see: their own booking, one assigned
// to them, or any pending delivery when the actor is a rider.
func (s *Service) View(ctx context.Context, actor identity.Actor, id string) (Delivery, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Delivery{}, err
	}
	switch {
	case d.CustomerID == actor.ID, d.RiderID == actor.ID:
		return d, nil
	case actor.Type == identity.TypeRider && d.Status == StatusPending:
		return d, nil
	default:
		return Delivery{}, apperr.New(apperr.CodeAccessDenied, "delivery belongs to another account")
	}
}

// Active returns the actor's in-progress delivery as customer or rider.
func (s *Service) Active(ctx context.Context, actor identity.Actor) (Delivery, bool, error) {
	if actor.Type == identity.TypeRider {
		return s.ActiveForRider(ctx, actor.ID)
	}
	return s.ActiveForCustomer(ctx, actor.ID)
}
