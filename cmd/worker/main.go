package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"x-intel/internal/adapters/repo"
	"x-intel/internal/adapters/xapi"
	"x-intel/internal/domain"
	"x-intel/internal/infra/cache"
	"x-intel/internal/infra/config"
	"x-intel/internal/infra/db"
	"x-intel/internal/infra/metrics"
	"x-intel/internal/infra/queue"
	"x-intel/internal/usecase/collect"
	"x-intel/internal/usecase/intel"
)

const jobDedupTTL = 10 * time.Minute

func main() {
	cfg := config.Load()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("worker: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	if err := repoAdapter.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("worker: не удалось подготовить схему")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	reportCache := cache.NewRedis(redisClient)

	var intelQueue domain.IntelQueue
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitIntelQueue(cfg.RabbitURL, cfg.Queues.Intel)
		if err != nil {
			log.Fatal().Err(err).Msg("worker: нет подключения к rabbitmq")
		}
		defer rabbit.Close()
		intelQueue = rabbit
	} else {
		intelQueue = queue.NewRedisIntelQueue(redisClient, cfg.Queues.Intel)
	}

	apiClient := xapi.NewClient(xapi.Config{
		BaseURL:     cfg.XAPI.BaseURL,
		BearerToken: cfg.XAPI.BearerToken,
		Timeout:     cfg.XAPI.RequestTimeout,
		RPS:         cfg.XAPI.RPS,
	})
	collector := collect.NewService(apiClient, collect.Config{
		MaxPages:          cfg.XAPI.MaxPages,
		MaxRequestsPerRun: cfg.XAPI.MaxRequests,
		GuardEnabled:      cfg.XAPI.CostGuard,
	}, log.With().Str("component", "collector").Logger())
	intelService := intel.NewService(collector, repoAdapter, reportCache, intel.Config{
		MaxPages:          cfg.XAPI.MaxPages,
		MaxRequestsPerRun: cfg.XAPI.MaxRequests,
		GuardEnabled:      cfg.XAPI.CostGuard,
		WindowDays:        cfg.Intel.WindowDays,
		MaxPosts:          cfg.Intel.MaxPosts,
	}, log.With().Str("component", "intel").Logger())

	metrics.StartServer(ctx, log.With().Str("component", "metrics").Logger(), ":9090")

	log.Info().Msg("worker: старт")
	for {
		job, ack, err := intelQueue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error().Err(err).Msg("worker: ошибка получения задачи")
			time.Sleep(time.Second)
			continue
		}
		processJob(ctx, intelService, reportCache, job, ack)
	}
	log.Info().Msg("worker: остановка")
}

// processJob выполняет один анализ. Безнадёжные ошибки (цель не
// найдена, бюджет, нет токена) подтверждаются, чтобы задача не
// крутилась в очереди; временные возвращаются на повторную доставку.
func processJob(ctx context.Context, service *intel.Service, dedup domain.Cache, job domain.IntelJob, ack domain.IntelAckFunc) {
	run := func() error {
		_, err := service.Run(ctx, domain.CollectOptions{
			TargetHandle: job.Target,
			WindowDays:   job.WindowDays,
			MaxPosts:     job.MaxPosts,
			Query:        job.Query,
		})
		return err
	}

	var err error
	if job.ID != "" {
		err = dedup.Once(ctx, "intel:job:"+job.ID, jobDedupTTL, run)
	} else {
		err = run()
	}

	switch {
	case err == nil:
		metrics.IncQueueJob("success")
		if ackErr := ack(true); ackErr != nil {
			log.Error().Err(ackErr).Str("job_id", job.ID).Msg("worker: не удалось подтвердить задачу")
		}
	case errors.Is(err, domain.ErrTargetNotFound),
		errors.Is(err, domain.ErrNoBearerToken),
		domain.IsBudgetExceeded(err):
		metrics.IncQueueJob("rejected")
		log.Warn().Err(err).Str("target", job.Target).Msg("worker: задача отклонена")
		if ackErr := ack(true); ackErr != nil {
			log.Error().Err(ackErr).Str("job_id", job.ID).Msg("worker: не удалось подтвердить задачу")
		}
	default:
		metrics.IncQueueJob("retry")
		log.Error().Err(err).Str("target", job.Target).Msg("worker: задача будет повторена")
		if ackErr := ack(false); ackErr != nil {
			log.Error().Err(ackErr).Str("job_id", job.ID).Msg("worker: не удалось вернуть задачу")
		}
	}
}
