// The drainer runs as its own process so API instances stay on the hot
// path: it folds the per-partition change stream into the durable store.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/payflow-engine/payflow/internal/env"
	"github.com/payflow-engine/payflow/internal/logging"
	"github.com/payflow-engine/payflow/internal/storage"
)

func main() {
	env.Load()
	logger := logging.New(env.Env.InstanceName)

	redisClient := storage.NewRedisClient(env.Env.RedisAddr)
	defer redisClient.Close()

	db, err := storage.NewPgxPool(context.Background(), env.Env.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	stream := storage.NewRedisStream(redisClient)
	durable := storage.NewPostgresStore(db)

	drainer := storage.NewDrainer(stream, durable, env.Env.DrainerPartitions, logger)
	drainer.Start()
	logger.Info().Int("partitions", env.Env.DrainerPartitions).Msg("drainer running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down drainer")
	drainer.Stop()
}
