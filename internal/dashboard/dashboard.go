// Package dashboard assembles the per-role home screen from the wallet,
// subscription and delivery services.
package dashboard

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dropwise/dispatch/internal/delivery"
	"github.com/dropwise/dispatch/internal/identity"
	"github.com/dropwise/dispatch/internal/logging"
	"github.com/dropwise/dispatch/internal/subscription"
	"github.com/dropwise/dispatch/internal/wallet"
)

const recentDeliveries = 5

// Dashboard is the response body. Panels that fail to load are left empty.
type Dashboard struct {
	Profile          identity.Profile           `json:"profile"`
	Wallet           *wallet.Wallet             `json:"wallet"`
	Subscription     *subscription.Subscription `json:"subscription,omitempty"`
	ActiveDelivery   *delivery.Delivery         `json:"activeDelivery"`
	RecentDeliveries []delivery.Delivery        `json:"recentDeliveries,omitempty"`
	Earnings         *delivery.Earnings         `json:"earnings,omitempty"`
	AvailableCount   *int                       `json:"availableDeliveries,omitempty"`
}

// Service loads dashboards.
type Service struct {
	users         *identity.Service
	wallets       *wallet.Service
	subscriptions *subscription.Service
	deliveries    *delivery.Service
	logger        *slog.Logger
}

// NewService builds a dashboard service.
func NewService(users *identity.Service, wallets *wallet.Service, subscriptions *subscription.Service, deliveries *delivery.Service, logger *slog.Logger) *Service {
	return &Service{
		users:         users,
		wallets:       wallets,
		subscriptions: subscriptions,
		deliveries:    deliveries,
		logger:        logging.Component(logger, "dashboard"),
	}
}

// Load returns the actor's dashboard. Only the profile lookup can fail the
// call; every other panel degrades to empty and is logged.
func (s *Service) Load(ctx context.Context, actor identity.Actor) (Dashboard, error) {
	user, err := s.users.Get(ctx, actor.ID)
	if err != nil {
		return Dashboard{}, err
	}
	out := Dashboard{Profile: user.Profile()}

	var g errgroup.Group
	s.panel(&g, actor, "wallet", func() error {
		w, err := s.wallets.GetOrCreate(ctx, actor)
		if err == nil {
			out.Wallet = &w
		}
		return err
	})
	s.panel(&g, actor, "active_delivery", func() error {
		d, ok, err := s.deliveries.Active(ctx, actor)
		if ok {
			out.ActiveDelivery = &d
		}
		return err
	})

	switch actor.Type {
	case identity.TypeRider:
		s.panel(&g, actor, "earnings", func() error {
			e, err := s.deliveries.RiderEarnings(ctx, actor.ID)
			if err == nil {
				out.Earnings = &e
			}
			return err
		})
		s.panel(&g, actor, "available", func() error {
			ds, err := s.deliveries.Available(ctx)
			if err == nil {
				n := len(ds)
				out.AvailableCount = &n
			}
			return err
		})
	case identity.TypeSME:
		s.panel(&g, actor, "subscription", func() error {
			sub, err := s.subscriptions.GetOrCreate(ctx, actor.ID)
			if err == nil {
				out.Subscription = &sub
			}
			return err
		})
		fallthrough
	default:
		s.panel(&g, actor, "recent_deliveries", func() error {
			ds, err := s.deliveries.ForCustomer(ctx, actor.ID)
			if len(ds) > recentDeliveries {
				ds = ds[:recentDeliveries]
			}
			out.RecentDeliveries = ds
			return err
		})
	}

	_ = g.Wait()
	return out, nil
}

// panel runs load in g. Each panel writes a distinct field of the result,
// and its error is logged rather than returned.
func (s *Service) panel(g *errgroup.Group, actor identity.Actor, name string, load func() error) {
	g.Go(func() error {
		if err := load(); err != nil {
			s.logger.Warn("dashboard.panel_failed",
				slog.String("panel", name),
				slog.String("user_id", actor.ID),
				slog.Any("error", err),
			)
		}
		return nil
	})
}
