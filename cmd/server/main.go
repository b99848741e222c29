// cmd/server/main.go
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/roshaldsouza/Email-Scheduler/internal/config"
	"github.com/roshaldsouza/Email-Scheduler/internal/controller"
	"github.com/roshaldsouza/Email-Scheduler/internal/db"
	"github.com/roshaldsouza/Email-Scheduler/internal/logging"
	"github.com/roshaldsouza/Email-Scheduler/internal/queue"
	"github.com/roshaldsouza/Email-Scheduler/internal/repository"
	"github.com/roshaldsouza/Email-Scheduler/internal/service"
)

func main() {
	// Load .env if present; OS environment wins in real deployments.
	_ = godotenv.Load()

	logger := logging.New("server")

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

	campaignRepo := &repository.CampaignRepository{DB: conn}
	jobRepo := &repository.RecipientJobRepository{DB: conn}

	planner := &service.Planner{
		CampaignRepo:     campaignRepo,
		JobRepo:          jobRepo,
		Queue:            delayQueue,
		DefaultHourlyCap: cfg.DefaultHourlyCap,
		Logger:           logger,
	}

	emailController := &controller.EmailController{
		Planner: planner,
		Logger:  logger,
	}

	r := chi.NewRouter()

	r.Get("/health", emailController.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Email scheduling routes
	r.Post("/emails/schedule", emailController.ScheduleEmails)
	r.Get("/emails/scheduled", emailController.ListScheduled)
	r.Get("/emails/sent", emailController.ListSent)
	r.Get("/campaigns/{id}", emailController.GetCampaign)

	logger.Info().Str("addr", cfg.HTTPAddr).Msg("🚀 Server running")
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
