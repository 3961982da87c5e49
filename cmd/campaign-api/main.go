package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-campaign-launcher/internal/adapters/cache/redis"
	"whatsapp-campaign-launcher/internal/adapters/db/postgres"
	"whatsapp-campaign-launcher/internal/adapters/provider/whatsapp"
	"whatsapp-campaign-launcher/internal/adapters/queue/rabbitmq"
	"whatsapp-campaign-launcher/internal/app"
	cfg "whatsapp-campaign-launcher/internal/config"
	"whatsapp-campaign-launcher/internal/middleware"
	"whatsapp-campaign-launcher/internal/ports"
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
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := postgres.New(conf.DatabaseURL)
	if err != nil {
		return errors.New("failed to connect to postgres: " + err.Error())
	}
	defer repo.Close()

	staging, err := redis.New(ctx, conf.RedisURL)
	if err != nil {
		return errors.New("failed to connect to redis: " + err.Error())
	}
	defer staging.Close()

	// Without a broker the API still serves; launch events are just not published.
	var publisher ports.EventPublisher
	if p, err := rabbitmq.NewPublisher(conf.AMQPURL); err != nil {
		log.Warn("rabbitmq unavailable, launch events will not be published", "err", err)
	} else {
		defer p.Close()
		publisher = p
	}

	provider := whatsapp.New(conf.ProviderURL, conf.ProviderAPIVersion)
	dispatcher := app.NewDispatcher(repo, repo, app.NewTemplateProcessor(), provider, log)
	svc := app.NewCampaignService(staging, repo, dispatcher, publisher, app.Options{
		StagingTTL:   conf.StagingTTL,
		DefaultDelay: conf.DefaultDelay,
		MaxDelay:     conf.MaxDelay,
	}, log)

	fiberApp := fiber.New(fiber.Config{
		AppName:               "campaign-api",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		// Launch streams stay open for the whole dispatch.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
		ServerHeader: "",
		BodyLimit:    conf.UploadLimitBytes,
	})

	fiberApp.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	fiberApp.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} ${latency}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	fiberApp.Use(middleware.RequestIDMiddleware())
	fiberApp.Use(middleware.SecurityHeaders())
	fiberApp.Use(middleware.CORSConfig(conf.AllowedOrigins))

	rateLimiter := middleware.NewRateLimiter(100, 1*time.Minute)
	fiberApp.Use(rateLimiter.Middleware())

	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	handler := transport.NewHandler(svc, log)
	api := fiberApp.Group("/api")
	handler.Register(api)

	errChan := make(chan error, 1)
	go func() {
		log.Info("campaign-api started", "addr", conf.HTTPAddr)
		if err := fiberApp.Listen(conf.HTTPAddr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		return errors.New("failed to shutdown gracefully: " + err.Error())
	}

	log.Info("campaign-api stopped gracefully")
	return nil
}
