package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-campaign-launcher/internal/adapters/db/postgres"
	"whatsapp-campaign-launcher/internal/app"
	cfg "whatsapp-campaign-launcher/internal/config"
	"whatsapp-campaign-launcher/internal/middleware"
	"whatsapp-campaign-launcher/internal/transport"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	conf := cfg.FromEnv()
	log := conf.Logger()
	if err := run(conf, log); err != nil {
		log.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(conf cfg.Config, log *slog.Logger) error {
	repo, err := postgres.New(conf.DatabaseURL)
	if err != nil {
		return errors.New("failed to connect to postgres: " + err.Error())
	}
	defer repo.Close()

	if conf.WebhookVerifyToken == "" {
		log.Warn("WEBHOOK_VERIFY_TOKEN is empty, subscription handshakes will be refused")
	}

	svc := app.NewStatusService(repo, repo, log)

	fiberApp := fiber.New(fiber.Config{
		AppName:               "status-webhook",
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
		IdleTimeout:           60 * time.Second,
		ServerHeader:          "",
		BodyLimit:             512 * 1024, // 512KB - webhooks are small
	})

	fiberApp.Use(recover.New())
	fiberApp.Use(logger.New())
	fiberApp.Use(middleware.RequestIDMiddleware())
	fiberApp.Use(middleware.SecurityHeaders())
	fiberApp.Use(middleware.WebhookLimiter(600))

	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	transport.NewWebhookHandler(svc, conf.WebhookVerifyToken, log).Register(fiberApp)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		log.Info("status-webhook started", "addr", conf.WebhookAddr)
		if err := fiberApp.Listen(conf.WebhookAddr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		return errors.New("failed to shutdown gracefully: " + err.Error())
	}

	log.Info("status-webhook stopped gracefully")
	return nil
}
