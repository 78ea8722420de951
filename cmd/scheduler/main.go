package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"x-intel/internal/adapters/repo"
	"x-intel/internal/domain"
	"x-intel/internal/infra/config"
	"x-intel/internal/infra/db"
	"x-intel/internal/infra/metrics"
	"x-intel/internal/infra/queue"
	"x-intel/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	if err := repoAdapter.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("scheduler: не удалось подготовить схему")
	}

	var intelQueue domain.IntelQueue
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitIntelQueue(cfg.RabbitURL, cfg.Queues.Intel)
		if err != nil {
			log.Fatal().Err(err).Msg("scheduler: нет подключения к rabbitmq")
		}
		defer rabbit.Close()
		intelQueue = rabbit
	} else {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		intelQueue = queue.NewRedisIntelQueue(redisClient, cfg.Queues.Intel)
	}

	scheduleService := schedule.NewService(repoAdapter, repoAdapter, intelQueue,
		log.With().Str("component", "schedule").Logger())

	metrics.StartServer(ctx, log.With().Str("component", "metrics").Logger(), ":9090")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	log.Info().Msg("scheduler: старт")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler: остановка")
			return
		case now := <-ticker.C:
			if err := scheduleService.RunDue(ctx, now.UTC()); err != nil {
				log.Error().Err(err).Msg("scheduler: ошибка планирования")
			}
		}
	}
}
