package domain

import (
	"context"
	"time"
)

// CollectOptions задаёт параметры одного запуска сбора.
type CollectOptions struct {
	TargetHandle string
	WindowDays   int
	MaxPosts     int
	Query        string
	UserContext  *UserContext
}

// IntelService отвечает за полный цикл: сбор, анализ, отчёт.
type IntelService interface {
	Run(ctx context.Context, opts CollectOptions) (IntelReport, error)
	Estimate(windowDays, maxPosts, maxPages int) RequestPlan
}

// ReportRepo сохраняет и возвращает отчёты.
type ReportRepo interface {
	SaveReport(ctx context.Context, report IntelReport, requestsUsed int) (int64, error)
	LatestReport(ctx context.Context, target string) (IntelReport, error)
	ListReportHistory(ctx context.Context, target string, from time.Time) ([]IntelReport, error)
}

// WatchRepo управляет наблюдениями за целями.
type WatchRepo interface {
	UpsertWatch(ctx context.Context, watch Watch) (Watch, error)
	ListWatches(ctx context.Context) ([]Watch, error)
	ListDueWatches(ctx context.Context, now time.Time) ([]Watch, error)
	AdvanceWatch(ctx context.Context, watchID int64, ranAt time.Time) error
	DeleteWatch(ctx context.Context, watchID int64) error
}

// ScheduleTaskRepo отвечает за идемпотентное планирование задач.
type ScheduleTaskRepo interface {
	// Acquire помечает выполнение задачи на указанный слот и возвращает true,
	// если запись была создана. При конфликте возвращает false без ошибки.
	Acquire(ctx context.Context, watchID int64, scheduledFor time.Time) (bool, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}
