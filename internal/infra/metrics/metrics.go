package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	CollectorErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collector_errors_total",
		Help: "Ошибки при сборе потоков X API",
	})
	IntelRunSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "intel_run_seconds",
		Help:    "Время полного цикла сбора и анализа",
		Buckets: prometheus.DefBuckets,
	})
	IntelRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intel_runs_total",
		Help: "Количество запусков анализа",
	}, []string{"status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	QueueJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intel_queue_jobs_total",
		Help: "Обработанные задания очереди по результату",
	}, []string{"result"})

	WatchesEnqueuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watches_enqueued_total",
		Help: "Количество задач, поставленных планировщиком",
	})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		CollectorErrors,
		IntelRunSeconds,
		IntelRunsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
		QueueJobsTotal,
		WatchesEnqueuedTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveIntelRun записывает длительность и статус цикла анализа.
func ObserveIntelRun(start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	IntelRunSeconds.Observe(time.Since(start).Seconds())
	IntelRunsTotal.WithLabelValues(status).Inc()
}

// IncCollectorError увеличивает счётчик ошибок сбора.
func IncCollectorError() {
	CollectorErrors.Inc()
}

// IncQueueJob увеличивает счётчик обработанных заданий очереди.
func IncQueueJob(result string) {
	QueueJobsTotal.WithLabelValues(result).Inc()
}

// IncWatchEnqueued увеличивает счётчик поставленных планировщиком задач.
func IncWatchEnqueued() {
	WatchesEnqueuedTotal.Inc()
}
