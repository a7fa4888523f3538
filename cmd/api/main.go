package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/payflow-engine/payflow/cmd/handlers"
	"github.com/payflow-engine/payflow/internal/connector"
	"github.com/payflow-engine/payflow/internal/connector/alphapay"
	"github.com/payflow-engine/payflow/internal/connector/betabank"
	"github.com/payflow-engine/payflow/internal/env"
	"github.com/payflow-engine/payflow/internal/httpx"
	"github.com/payflow-engine/payflow/internal/logging"
	"github.com/payflow-engine/payflow/internal/merchant"
	"github.com/payflow-engine/payflow/internal/pipeline"
	"github.com/payflow-engine/payflow/internal/reconcile"
	"github.com/payflow-engine/payflow/internal/routing"
	"github.com/payflow-engine/payflow/internal/storage"
	"github.com/payflow-engine/payflow/internal/webhook"
)

func main() {
	env.Load()
	logger := logging.New(env.Env.InstanceName)

	ctx := context.Background()

	redisClient := storage.NewRedisClient(env.Env.RedisAddr)
	defer redisClient.Close()

	db, err := storage.NewPgxPool(ctx, env.Env.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	durable := storage.NewPostgresStore(db)
	stream := storage.NewRedisStream(redisClient)
	hot := storage.NewRedisStore(redisClient, stream, env.Env.DrainerPartitions, 24*time.Hour)
	selector := storage.NewSelector(hot, durable, env.Env.StorageScheme == "kv", env.Env.KVMerchants)

	drainer := storage.NewDrainer(stream, durable, env.Env.DrainerPartitions, logger)
	drainer.Start()
	defer drainer.Stop()

	merchants, err := merchant.LoadFile(env.Env.MerchantProfiles)
	if err != nil {
		log.Fatal("Failed to load merchant profiles:", err)
	}

	registry := connector.NewRegistry(alphapay.New(), betabank.New())
	decider := routing.NewHealthDecider(logger, registry.Names()...)
	decider.Start()
	defer decider.Stop()

	client := httpx.NewClient(time.Duration(env.Env.ConnectorTimeout) * time.Millisecond)
	scheduler := reconcile.NewRedisScheduler(redisClient)

	service := pipeline.NewService(selector, registry, merchants, decider, client, scheduler, logger)

	requeuer := reconcile.NewRequeuer(redisClient, logger)
	requeuer.Start()
	defer requeuer.Stop()

	worker := reconcile.NewWorker(env.Env.ReconcileWorkers, redisClient, service.ReconcileTask, logger)
	worker.Start()
	defer worker.Stop()

	handlers.Pipeline = service
	handlers.Webhooks = webhook.NewProcessor(selector, registry, merchants, logger)

	app := fiber.New(fiber.Config{
		AppName:               "payflow",
		DisableStartupMessage: env.IsProduction(),
	})
	app.Post("/payments", handlers.HandleCreatePayment)
	app.Get("/payments/:payment_id", handlers.HandleGetPayment)
	app.Post("/payments/:payment_id/confirm", handlers.HandleConfirmPayment)
	app.Post("/payments/:payment_id/capture", handlers.HandleCapturePayment)
	app.Post("/payments/:payment_id/cancel", handlers.HandleCancelPayment)
	app.Post("/payments/:payment_id/session", handlers.HandleCreateSession)
	app.Post("/mandates/setup", handlers.HandleSetupMandate)
	app.Post("/refunds", handlers.HandleCreateRefund)
	app.Get("/refunds/:refund_id", handlers.HandleGetRefund)
	app.Post("/webhooks/:merchant_id/:connector", handlers.HandleWebhook)
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	go func() {
		if err := app.Listen(":" + env.Env.BackendPort); err != nil {
			log.Fatal("Server stopped:", err)
		}
	}()
	logger.Info().Str("port", env.Env.BackendPort).Msg("payflow api listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
}
