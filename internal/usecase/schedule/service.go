package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"x-intel/internal/domain"
	"x-intel/internal/infra/metrics"
	"x-intel/internal/usecase/collect"
)

// ErrEmptyTarget возвращается при попытке завести наблюдение без цели.
var ErrEmptyTarget = errors.New("цель наблюдения не указана")

// Service отвечает за наблюдения и постановку плановых задач.
type Service struct {
	watches domain.WatchRepo
	tasks   domain.ScheduleTaskRepo
	queue   domain.IntelQueue
	log     zerolog.Logger
}

// NewService создаёт сервис расписания.
func NewService(watches domain.WatchRepo, tasks domain.ScheduleTaskRepo, queue domain.IntelQueue, log zerolog.Logger) *Service {
	return &Service{watches: watches, tasks: tasks, queue: queue, log: log}
}

// UpsertWatch создаёт или обновляет наблюдение за целью.
func (s *Service) UpsertWatch(ctx context.Context, watch domain.Watch) (domain.Watch, error) {
	if strings.TrimSpace(watch.Target) == "" {
		return domain.Watch{}, ErrEmptyTarget
	}
	saved, err := s.watches.UpsertWatch(ctx, watch)
	if err != nil {
		return domain.Watch{}, fmt.Errorf("сохранение наблюдения: %w", err)
	}
	return saved, nil
}

// ListWatches возвращает все наблюдения.
func (s *Service) ListWatches(ctx context.Context) ([]domain.Watch, error) {
	return s.watches.ListWatches(ctx)
}

// DeleteWatch удаляет наблюдение.
func (s *Service) DeleteWatch(ctx context.Context, watchID int64) error {
	return s.watches.DeleteWatch(ctx, watchID)
}

// RunDue ставит в очередь задачи по наблюдениям, чьё время пришло.
// Слот фиксируется через ScheduleTaskRepo, поэтому несколько
// планировщиков не продублируют задачу.
func (s *Service) RunDue(ctx context.Context, now time.Time) error {
	due, err := s.watches.ListDueWatches(ctx, now)
	if err != nil {
		return fmt.Errorf("получение наблюдений: %w", err)
	}

	slot := now.UTC().Truncate(time.Minute)
	for _, watch := range due {
		acquired, err := s.tasks.Acquire(ctx, watch.ID, slot)
		if err != nil {
			s.log.Error().Err(err).Int64("watch_id", watch.ID).Msg("не удалось занять слот")
			continue
		}
		if !acquired {
			continue
		}

		job := domain.IntelJob{
			ID:          uuid.NewString(),
			Target:      collect.NormalizeHandle(watch.Target),
			Query:       watch.Query,
			WindowDays:  watch.WindowDays,
			MaxPosts:    watch.MaxPosts,
			WatchID:     watch.ID,
			RequestedAt: now.UTC(),
			Cause:       domain.IntelCauseScheduled,
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.log.Error().Err(err).Str("target", job.Target).Msg("не удалось поставить задачу")
			continue
		}
		metrics.IncWatchEnqueued()

		if err := s.watches.AdvanceWatch(ctx, watch.ID, now.UTC()); err != nil {
			s.log.Error().Err(err).Int64("watch_id", watch.ID).Msg("не удалось сдвинуть расписание")
		}
		s.log.Info().Str("target", job.Target).Int64("watch_id", watch.ID).Msg("задача поставлена")
	}
	return nil
}
