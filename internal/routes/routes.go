package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dropwise/dispatch/internal/auth"
	"github.com/dropwise/dispatch/internal/config"
	"github.com/dropwise/dispatch/internal/dashboard"
	"github.com/dropwise/dispatch/internal/delivery"
	"github.com/dropwise/dispatch/internal/identity"
	"github.com/dropwise/dispatch/internal/ledger"
	"github.com/dropwise/dispatch/internal/middleware"
	"github.com/dropwise/dispatch/internal/notification"
	"github.com/dropwise/dispatch/internal/payment"
	"github.com/dropwise/dispatch/internal/payments"
	"github.com/dropwise/dispatch/internal/subscription"
	"github.com/dropwise/dispatch/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	Store  ledger.Store
	Locker ledger.Locker
	DB     *pgxpool.Pool
	Cache  *redis.Client
	// Gateway overrides the gateway chosen by Cfg.PaymentGateway.
	Gateway payment.Gateway
	Logger  *slog.Logger
}

// Services are the domain services behind the routes.
type Services struct {
	Identity      *identity.Service
	Auth          *auth.Service
	Wallets       *wallet.Service
	Subscriptions *subscription.Service
	Deliveries    *delivery.Service
	Payments      *payments.Service
	Dashboard     *dashboard.Service
}

// NewServices builds the domain services over the shared store and locker.
func NewServices(d Deps) Services {
	gateway := d.Gateway
	if gateway == nil {
		gateway = payment.New(d.Cfg)
	}
	notifier := notification.NewLoggerNotifier(d.Logger)

	identitySvc := identity.NewService(identity.NewStoreRepository(d.Store, d.Locker))
	walletSvc := wallet.NewService(wallet.NewStoreRepository(d.Store), d.Locker, gateway,
		wallet.Policy{WelcomeBonus: d.Cfg.WelcomeBonus}, d.Logger)
	subscriptionSvc := subscription.NewService(subscription.NewStoreRepository(d.Store), d.Locker, walletSvc, d.Logger)
	deliveryRepo := delivery.NewStoreRepository(d.Store)
	deliverySvc := delivery.NewService(deliveryRepo, d.Locker, subscriptionSvc, notifier,
		delivery.Policy{ArrivalETA: d.Cfg.ArrivalETA}, d.Logger)
	paymentSvc := payments.NewService(payments.NewStoreRepository(d.Store), deliveryRepo, d.Locker, walletSvc, gateway, notifier,
		payments.Policy{PlatformFeeBPS: d.Cfg.PlatformFeeBPS}, d.Logger)

	return Services{
		Identity:      identitySvc,
		Auth:          auth.NewService(d.Cfg, identitySvc),
		Wallets:       walletSvc,
		Subscriptions: subscriptionSvc,
		Deliveries:    deliverySvc,
		Payments:      paymentSvc,
		Dashboard:     dashboard.NewService(identitySvc, walletSvc, subscriptionSvc, deliverySvc, d.Logger),
	}
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (Services, error) {
	if d.Store == nil || d.Locker == nil {
		return Services{}, fmt.Errorf("ledger store and locker are required")
	}
	if !d.Cfg.IsDev() && d.Cache == nil {
		return Services{}, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	svc := NewServices(d)

	// Mutations that move money or spend prepaid units require an
	// Idempotency-Key and replay stored responses when Redis is available.
	idem := func(c *fiber.Ctx) error { return c.Next() }
	if d.Cache != nil {
		idem = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterAuthRoutes(api, identity.NewHandler(svc.Identity), auth.NewHandler(svc.Auth),
		middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit))

	// Protected routes
	protected := api.Group("", middleware.Authenticate(svc.Auth, svc.Identity))
	RegisterProfileRoutes(protected, identity.NewHandler(svc.Identity), dashboard.NewHandler(svc.Dashboard))
	RegisterWalletRoutes(protected, wallet.NewHandler(svc.Wallets), idem)
	RegisterSMERoutes(protected, subscription.NewHandler(svc.Subscriptions), delivery.NewHandler(svc.Deliveries), idem)
	RegisterDeliveryRoutes(protected, delivery.NewHandler(svc.Deliveries))
	RegisterPaymentRoutes(protected, payments.NewHandler(svc.Payments), idem)

	return svc, nil
}
