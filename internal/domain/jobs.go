package domain

import (
	"context"
	"time"
)

// IntelJobCause описывает источник запроса на анализ.
type IntelJobCause string

const (
	// IntelCauseManual — анализ запрошен через API вручную.
	IntelCauseManual IntelJobCause = "manual"
	// IntelCauseScheduled — анализ запланирован по наблюдению.
	IntelCauseScheduled IntelJobCause = "scheduled"
)

// IntelJob содержит информацию о задаче сбора и анализа.
type IntelJob struct {
	ID          string        `json:"job_id,omitempty"`
	Target      string        `json:"target"`
	Query       string        `json:"query,omitempty"`
	WindowDays  int           `json:"window_days"`
	MaxPosts    int           `json:"max_posts"`
	WatchID     int64         `json:"watch_id,omitempty"`
	RequestedAt time.Time     `json:"requested_at"`
	Cause       IntelJobCause `json:"cause"`
}

// IntelQueue описывает очередь задач анализа.
type IntelQueue interface {
	Enqueue(ctx context.Context, job IntelJob) error
	Receive(ctx context.Context) (IntelJob, IntelAckFunc, error)
}

// IntelAckFunc подтверждает обработку или запрашивает повторную доставку.
type IntelAckFunc func(success bool) error
