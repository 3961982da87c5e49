package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"whatsapp-campaign-launcher/internal/adapters/db/postgres"
	"whatsapp-campaign-launcher/internal/adapters/queue/rabbitmq"
	"whatsapp-campaign-launcher/internal/app"
	cfg "whatsapp-campaign-launcher/internal/config"
)

func main() {
	conf := cfg.FromEnv()
	log := conf.Logger()

	repo, err := postgres.New(conf.DatabaseURL)
	if err != nil {
		log.Error("connect postgres", "err", err)
		os.Exit(1)
	}
	defer repo.Close()

	consumer, err := rabbitmq.NewConsumer(conf.AMQPURL, log)
	if err != nil {
		log.Error("connect rabbitmq consumer", "err", err)
		os.Exit(1)
	}
	defer consumer.Close()

	svc := app.NewAuditService(repo, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("campaign-audit started")

	if err := consumer.Consume(ctx, svc.HandleLaunchEvent); err != nil && ctx.Err() == nil {
		log.Error("consumer error", "err", err)
		os.Exit(1)
	}

	log.Info("shutting down campaign-audit")
}
