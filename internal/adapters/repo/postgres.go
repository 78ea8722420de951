package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"x-intel/internal/domain"
	"x-intel/internal/infra/metrics"
	"x-intel/internal/usecase/collect"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ReportRepo       = (*Postgres)(nil)
	_ domain.WatchRepo        = (*Postgres)(nil)
	_ domain.ScheduleTaskRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// EnsureSchema создаёт таблицы, если их ещё нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS intel_reports (
	id            BIGSERIAL PRIMARY KEY,
	target        TEXT        NOT NULL,
	report        JSONB       NOT NULL,
	requests_used INT         NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS intel_reports_target_created_idx
	ON intel_reports (target, created_at DESC);

CREATE TABLE IF NOT EXISTS watches (
	id           BIGSERIAL PRIMARY KEY,
	target       TEXT        NOT NULL UNIQUE,
	query        TEXT        NOT NULL DEFAULT '',
	window_days  INT         NOT NULL DEFAULT 14,
	max_posts    INT         NOT NULL DEFAULT 250,
	interval_min INT         NOT NULL DEFAULT 1440,
	next_run_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS schedule_tasks (
	watch_id      BIGINT      NOT NULL,
	scheduled_for TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (watch_id, scheduled_for)
);
`)
	return err
}

// SaveReport сохраняет отчёт и возвращает его идентификатор.
func (p *Postgres) SaveReport(ctx context.Context, report domain.IntelReport, requestsUsed int) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	payload, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("marshal report: %w", err)
	}

	start := time.Now()
	var id int64
	err = p.pool.QueryRow(ctx, `
INSERT INTO intel_reports (target, report, requests_used)
VALUES ($1, $2, $3)
RETURNING id
`, normalizeTarget(report.Target), payload, requestsUsed).Scan(&id)
	metrics.ObserveNetworkRequest("postgres", "intel_reports_insert", "intel_reports", start, err)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// LatestReport возвращает последний отчёт по цели.
func (p *Postgres) LatestReport(ctx context.Context, target string) (domain.IntelReport, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var payload []byte
	err := p.pool.QueryRow(ctx, `
SELECT report FROM intel_reports
WHERE target = $1
ORDER BY created_at DESC
LIMIT 1
`, normalizeTarget(target)).Scan(&payload)
	metrics.ObserveNetworkRequest("postgres", "intel_reports_latest", "intel_reports", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.IntelReport{}, domain.ErrReportNotFound
	}
	if err != nil {
		return domain.IntelReport{}, err
	}

	var report domain.IntelReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return domain.IntelReport{}, fmt.Errorf("decode report: %w", err)
	}
	return report, nil
}

// ListReportHistory возвращает отчёты по цели начиная с указанного времени.
func (p *Postgres) ListReportHistory(ctx context.Context, target string, from time.Time) ([]domain.IntelReport, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT report FROM intel_reports
WHERE target = $1 AND created_at >= $2
ORDER BY created_at DESC
`, normalizeTarget(target), from)
	metrics.ObserveNetworkRequest("postgres", "intel_reports_history", "intel_reports", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.IntelReport
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var report domain.IntelReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// UpsertWatch создаёт или обновляет наблюдение за целью.
func (p *Postgres) UpsertWatch(ctx context.Context, watch domain.Watch) (domain.Watch, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if watch.WindowDays < 1 {
		watch.WindowDays = 14
	}
	if watch.MaxPosts < 1 {
		watch.MaxPosts = 250
	}
	if watch.IntervalMin < 1 {
		watch.IntervalMin = 1440
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO watches (target, query, window_days, max_posts, interval_min, next_run_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (target) DO UPDATE SET
	query        = EXCLUDED.query,
	window_days  = EXCLUDED.window_days,
	max_posts    = EXCLUDED.max_posts,
	interval_min = EXCLUDED.interval_min
RETURNING id, target, query, window_days, max_posts, interval_min, next_run_at
`, normalizeTarget(watch.Target), watch.Query, watch.WindowDays, watch.MaxPosts, watch.IntervalMin)
	saved, err := scanWatch(row)
	metrics.ObserveNetworkRequest("postgres", "watches_upsert", "watches", start, err)
	return saved, err
}

// ListWatches возвращает все наблюдения.
func (p *Postgres) ListWatches(ctx context.Context) ([]domain.Watch, error) {
	return p.listWatches(ctx, `
SELECT id, target, query, window_days, max_posts, interval_min, next_run_at
FROM watches
ORDER BY id
`, "watches_list")
}

// ListDueWatches возвращает наблюдения, чьё время запуска наступило.
func (p *Postgres) ListDueWatches(ctx context.Context, now time.Time) ([]domain.Watch, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, target, query, window_days, max_posts, interval_min, next_run_at
FROM watches
WHERE next_run_at <= $1
ORDER BY next_run_at
`, now)
	metrics.ObserveNetworkRequest("postgres", "watches_due", "watches", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWatches(rows)
}

// AdvanceWatch сдвигает следующий запуск наблюдения на его интервал.
func (p *Postgres) AdvanceWatch(ctx context.Context, watchID int64, ranAt time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE watches
SET next_run_at = $2 + (interval_min * interval '1 minute')
WHERE id = $1
`, watchID, ranAt)
	metrics.ObserveNetworkRequest("postgres", "watches_advance", "watches", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWatchNotFound
	}
	return nil
}

// DeleteWatch удаляет наблюдение.
func (p *Postgres) DeleteWatch(ctx context.Context, watchID int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM watches WHERE id = $1`, watchID)
	metrics.ObserveNetworkRequest("postgres", "watches_delete", "watches", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWatchNotFound
	}
	return nil
}

// Acquire помечает слот запуска наблюдения. Возвращает false, если
// запись уже существует: другой планировщик успел раньше.
func (p *Postgres) Acquire(ctx context.Context, watchID int64, scheduledFor time.Time) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO schedule_tasks (watch_id, scheduled_for)
VALUES ($1, $2)
`, watchID, scheduledFor)
	metrics.ObserveNetworkRequest("postgres", "schedule_tasks_acquire", "schedule_tasks", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *Postgres) listWatches(ctx context.Context, query, operation string) ([]domain.Watch, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, query)
	metrics.ObserveNetworkRequest("postgres", operation, "watches", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWatches(rows)
}

func collectWatches(rows pgx.Rows) ([]domain.Watch, error) {
	var watches []domain.Watch
	for rows.Next() {
		watch, err := scanWatch(rows)
		if err != nil {
			return nil, err
		}
		watches = append(watches, watch)
	}
	return watches, rows.Err()
}

func scanWatch(row pgx.Row) (domain.Watch, error) {
	var watch domain.Watch
	var nextRunAt time.Time
	err := row.Scan(&watch.ID, &watch.Target, &watch.Query,
		&watch.WindowDays, &watch.MaxPosts, &watch.IntervalMin, &nextRunAt)
	if err != nil {
		return domain.Watch{}, err
	}
	watch.NextRunAt = domain.FormatPostTime(nextRunAt.UTC())
	return watch, nil
}

func normalizeTarget(target string) string {
	return collect.NormalizeHandle(target)
}
