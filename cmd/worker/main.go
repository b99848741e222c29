// cmd/worker/main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/roshaldsouza/Email-Scheduler/internal/config"
	"github.com/roshaldsouza/Email-Scheduler/internal/db"
	"github.com/roshaldsouza/Email-Scheduler/internal/logging"
	"github.com/roshaldsouza/Email-Scheduler/internal/mailer"
	"github.com/roshaldsouza/Email-Scheduler/internal/queue"
	"github.com/roshaldsouza/Email-Scheduler/internal/ratelimit"
	"github.com/roshaldsouza/Email-Scheduler/internal/repository"
	"github.com/roshaldsouza/Email-Scheduler/internal/service"
)

func main() {
	// Load .env if present; OS environment wins in real deployments.
	_ = godotenv.Load()

	logger := logging.New("worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	conn, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to DB")
	}
	defer conn.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	delayQueue := queue.NewRedisQueue(redisClient, logger, cfg.QueuePollInterval, cfg.ClaimTimeout)
	defer delayQueue.Close()

	transport, err := mailer.New(cfg.Transport, cfg.ResendAPIKey, cfg.AMQPURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build transport")
	}

	dispatcher := service.NewDispatcher(service.DispatcherConfig{
		JobRepo:          &repository.RecipientJobRepository{DB: conn},
		CampaignRepo:     &repository.CampaignRepository{DB: conn},
		Queue:            delayQueue,
		Limiter:          ratelimit.NewRedisLimiter(redisClient),
		Transport:        transport,
		Logger:           logger,
		Concurrency:      cfg.WorkerConcurrency,
		MinSendSpacing:   cfg.MinSendSpacing,
		RescheduleMargin: cfg.RescheduleMargin,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Int("concurrency", cfg.WorkerConcurrency).
		Dur("min_send_spacing", cfg.MinSendSpacing).
		Str("transport", cfg.Transport).
		Msg("Worker running, waiting for due jobs...")

	if err := dispatcher.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("dispatcher stopped")
	}
	logger.Info().Msg("worker shut down cleanly")
}
