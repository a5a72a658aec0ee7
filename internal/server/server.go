package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dropwise/dispatch/internal/config"
	"github.com/dropwise/dispatch/internal/infra"
	"github.com/dropwise/dispatch/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app      *fiber.App
	cfg      config.Config
	services routes.Services
	logger   *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, b *infra.Backends, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: routes.ErrorHandler(logger),
	})

	services, err := routes.Setup(app, routes.Deps{
		Cfg:    cfg,
		Store:  b.Store,
		Locker: b.Locker,
		DB:     b.DB,
		Cache:  b.Cache,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, services: services, logger: logger}, nil
}

// Reconcile finishes unit purchases and delivery settlements interrupted by
// an earlier crash. It runs before the server accepts traffic.
func (s *Server) Reconcile(ctx context.Context) error {
	purchases, err := s.services.Subscriptions.Reconcile(ctx)
	if err != nil {
		return err
	}
	settlements, err := s.services.Payments.Reconcile(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("reconcile completed",
		slog.Int("purchases_completed", purchases.Completed),
		slog.Int("purchases_failed", purchases.Failed),
		slog.Int("settlements_completed", settlements.Completed),
		slog.Int("settlements_failed", settlements.Failed),
	)
	return nil
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
