package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"x-intel/internal/adapters/repo"
	"x-intel/internal/adapters/xapi"
	"x-intel/internal/domain"
	"x-intel/internal/infra/cache"
	"x-intel/internal/infra/config"
	"x-intel/internal/infra/db"
	httpinfra "x-intel/internal/infra/http"
	"x-intel/internal/infra/metrics"
	"x-intel/internal/infra/queue"
	"x-intel/internal/usecase/collect"
	"x-intel/internal/usecase/intel"
	"x-intel/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	if err := repoAdapter.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("api: не удалось подготовить схему")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	reportCache := cache.NewRedis(redisClient)

	var intelQueue domain.IntelQueue
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitIntelQueue(cfg.RabbitURL, cfg.Queues.Intel)
		if err != nil {
			log.Fatal().Err(err).Msg("api: нет подключения к rabbitmq")
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
	scheduleService := schedule.NewService(repoAdapter, repoAdapter, intelQueue,
		log.With().Str("component", "schedule").Logger())

	server := httpinfra.NewServer(log.With().Str("component", "http").Logger())
	r := server.Router

	r.Post("/api/v1/intel/collect", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req collectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "некорректное тело запроса")
			return
		}
		if req.Target == "" {
			writeError(w, http.StatusBadRequest, "target обязателен")
			return
		}
		report, err := intelService.Run(r.Context(), domain.CollectOptions{
			TargetHandle: req.Target,
			WindowDays:   req.WindowDays,
			MaxPosts:     req.MaxPosts,
			Query:        req.Query,
			UserContext:  req.UserContext,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, report)
	})

	r.Post("/api/v1/intel/estimate", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req estimateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "некорректное тело запроса")
			return
		}
		writeJSON(w, intelService.Estimate(req.WindowDays, req.MaxPosts, req.MaxPages))
	})

	r.Post("/api/v1/intel/jobs", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req collectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "некорректное тело запроса")
			return
		}
		if req.Target == "" {
			writeError(w, http.StatusBadRequest, "target обязателен")
			return
		}
		job := domain.IntelJob{
			ID:          uuid.NewString(),
			Target:      collect.NormalizeHandle(req.Target),
			Query:       req.Query,
			WindowDays:  req.WindowDays,
			MaxPosts:    req.MaxPosts,
			RequestedAt: time.Now().UTC(),
			Cause:       domain.IntelCauseManual,
		}
		if err := intelQueue.Enqueue(r.Context(), job); err != nil {
			log.Error().Err(err).Str("target", job.Target).Msg("api: не удалось поставить задачу")
			writeError(w, http.StatusInternalServerError, "не удалось поставить задачу")
			return
		}
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]string{"job_id": job.ID})
	})

	r.Get("/api/v1/intel/reports/{target}", func(w http.ResponseWriter, r *http.Request) {
		target := chi.URLParam(r, "target")
		if payload, err := reportCache.Get(r.Context(), intel.ReportCacheKey(target)); err == nil && len(payload) > 0 {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(payload)
			return
		}
		report, err := repoAdapter.LatestReport(r.Context(), target)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, report)
	})

	r.Get("/api/v1/intel/reports/{target}/history", func(w http.ResponseWriter, r *http.Request) {
		target := chi.URLParam(r, "target")
		days := 30
		if raw := r.URL.Query().Get("days"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				days = parsed
			}
		}
		from := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
		reports, err := repoAdapter.ListReportHistory(r.Context(), target, from)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, map[string]any{"target": target, "reports": reports})
	})

	r.Get("/api/v1/watches", func(w http.ResponseWriter, r *http.Request) {
		watches, err := scheduleService.ListWatches(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if watches == nil {
			watches = []domain.Watch{}
		}
		writeJSON(w, watches)
	})

	r.Post("/api/v1/watches", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var watch domain.Watch
		if err := json.NewDecoder(r.Body).Decode(&watch); err != nil {
			writeError(w, http.StatusBadRequest, "некорректное тело запроса")
			return
		}
		saved, err := scheduleService.UpsertWatch(r.Context(), watch)
		if err != nil {
			if errors.Is(err, schedule.ErrEmptyTarget) {
				writeError(w, http.StatusBadRequest, "target обязателен")
				return
			}
			writeServiceError(w, err)
			return
		}
		writeJSON(w, saved)
	})

	r.Delete("/api/v1/watches/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "некорректный id")
			return
		}
		if err := scheduleService.DeleteWatch(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	metrics.StartServer(ctx, log.With().Str("component", "metrics").Logger(), ":9090")

	srv := &http.Server{Addr: ":" + strconv.Itoa(cfg.Port), Handler: r}
	go func() {
		log.Info().Int("port", cfg.Port).Msg("api: старт")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()
	<-ctx.Done()
	log.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

type collectRequest struct {
	Target      string              `json:"target"`
	WindowDays  int                 `json:"window_days"`
	MaxPosts    int                 `json:"max_posts"`
	Query       string              `json:"query"`
	UserContext *domain.UserContext `json:"user_context"`
}

type estimateRequest struct {
	WindowDays int `json:"window_days"`
	MaxPosts   int `json:"max_posts"`
	MaxPages   int `json:"max_pages"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}

// writeServiceError сводит доменные ошибки к HTTP-статусам.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTargetNotFound), errors.Is(err, domain.ErrReportNotFound),
		errors.Is(err, domain.ErrWatchNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case domain.IsBudgetExceeded(err), errors.Is(err, domain.ErrNoBearerToken):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		var upstream *domain.UpstreamError
		if errors.As(err, &upstream) {
			switch {
			case upstream.IsAuth():
				writeError(w, http.StatusUnauthorized, err.Error())
			case upstream.IsRateLimited():
				writeError(w, http.StatusTooManyRequests, err.Error())
			default:
				writeError(w, http.StatusBadGateway, err.Error())
			}
			return
		}
		log.Error().Err(err).Msg("api: внутренняя ошибка")
		writeError(w, http.StatusInternalServerError, "внутренняя ошибка")
	}
}
