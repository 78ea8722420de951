package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"x-intel/internal/domain"
)

type stubWatchRepo struct {
	watches  []domain.Watch
	advanced []int64
}

func (s *stubWatchRepo) UpsertWatch(ctx context.Context, watch domain.Watch) (domain.Watch, error) {
	watch.ID = int64(len(s.watches) + 1)
	s.watches = append(s.watches, watch)
	return watch, nil
}

func (s *stubWatchRepo) ListWatches(ctx context.Context) ([]domain.Watch, error) {
	return s.watches, nil
}

func (s *stubWatchRepo) ListDueWatches(ctx context.Context, now time.Time) ([]domain.Watch, error) {
	return s.watches, nil
}

func (s *stubWatchRepo) AdvanceWatch(ctx context.Context, watchID int64, ranAt time.Time) error {
	s.advanced = append(s.advanced, watchID)
	return nil
}

func (s *stubWatchRepo) DeleteWatch(ctx context.Context, watchID int64) error {
	return nil
}

type stubTaskRepo struct {
	taken map[string]bool
}

func (s *stubTaskRepo) Acquire(ctx context.Context, watchID int64, scheduledFor time.Time) (bool, error) {
	if s.taken == nil {
		s.taken = make(map[string]bool)
	}
	key := scheduledFor.Format(time.RFC3339) + "/" + string(rune('0'+watchID))
	if s.taken[key] {
		return false, nil
	}
	s.taken[key] = true
	return true, nil
}

type stubQueue struct {
	jobs       []domain.IntelJob
	enqueueErr error
}

func (s *stubQueue) Enqueue(ctx context.Context, job domain.IntelJob) error {
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *stubQueue) Receive(ctx context.Context) (domain.IntelJob, domain.IntelAckFunc, error) {
	return domain.IntelJob{}, nil, errors.New("не используется")
}

func TestUpsertWatchRequiresTarget(t *testing.T) {
	service := NewService(&stubWatchRepo{}, &stubTaskRepo{}, &stubQueue{}, zerolog.Nop())
	_, err := service.UpsertWatch(context.Background(), domain.Watch{Target: "  "})
	if !errors.Is(err, ErrEmptyTarget) {
		t.Fatalf("ожидали ErrEmptyTarget, получили %v", err)
	}
}

func TestRunDueEnqueuesAndAdvances(t *testing.T) {
	watches := &stubWatchRepo{watches: []domain.Watch{
		{ID: 1, Target: "@Target", WindowDays: 7, MaxPosts: 100},
	}}
	queue := &stubQueue{}
	service := NewService(watches, &stubTaskRepo{}, queue, zerolog.Nop())

	now := time.Date(2026, 2, 1, 10, 0, 30, 0, time.UTC)
	if err := service.RunDue(context.Background(), now); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("ожидали одну задачу, получили %d", len(queue.jobs))
	}
	job := queue.jobs[0]
	if job.Target != "target" {
		t.Fatalf("цель должна нормализоваться, получили %q", job.Target)
	}
	if job.Cause != domain.IntelCauseScheduled {
		t.Fatalf("плановая задача должна иметь причину scheduled: %q", job.Cause)
	}
	if job.ID == "" {
		t.Fatalf("задача должна получать идентификатор")
	}
	if job.WindowDays != 7 || job.MaxPosts != 100 {
		t.Fatalf("параметры наблюдения не переданы: %+v", job)
	}
	if len(watches.advanced) != 1 || watches.advanced[0] != 1 {
		t.Fatalf("расписание должно сдвигаться: %v", watches.advanced)
	}
}

func TestRunDueIdempotentWithinSlot(t *testing.T) {
	watches := &stubWatchRepo{watches: []domain.Watch{
		{ID: 1, Target: "target"},
	}}
	queue := &stubQueue{}
	tasks := &stubTaskRepo{}
	service := NewService(watches, tasks, queue, zerolog.Nop())

	now := time.Date(2026, 2, 1, 10, 0, 5, 0, time.UTC)
	if err := service.RunDue(context.Background(), now); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	// Второй планировщик в этой же минуте: слот уже занят.
	if err := service.RunDue(context.Background(), now.Add(10*time.Second)); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("одна задача на слот, получили %d", len(queue.jobs))
	}
}

func TestRunDueSkipsAdvanceOnEnqueueFailure(t *testing.T) {
	watches := &stubWatchRepo{watches: []domain.Watch{
		{ID: 1, Target: "target"},
	}}
	queue := &stubQueue{enqueueErr: errors.New("брокер недоступен")}
	service := NewService(watches, &stubTaskRepo{}, queue, zerolog.Nop())

	if err := service.RunDue(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(watches.advanced) != 0 {
		t.Fatalf("при сбое постановки расписание не сдвигается: %v", watches.advanced)
	}
}
