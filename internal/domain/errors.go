package domain

import (
	"errors"
	"fmt"
)

// ErrNoBearerToken возвращается, если токен X API не настроен.
// Сбор в этом случае не делает ни одного сетевого запроса.
var ErrNoBearerToken = errors.New("токен X_BEARER_TOKEN не настроен")

// ErrTargetNotFound возвращается, если целевой хэндл не найден в X.
var ErrTargetNotFound = errors.New("целевой аккаунт не найден")

// ErrWatchNotFound возвращается, если наблюдение отсутствует.
var ErrWatchNotFound = errors.New("наблюдение не найдено")

// ErrReportNotFound возвращается, если для цели нет сохранённых отчётов.
var ErrReportNotFound = errors.New("отчёт не найден")

// BudgetError сообщает о превышении бюджета запросов — до старта
// сбора (по оценке) или посреди выполнения.
type BudgetError struct {
	Attempted int
	Max       int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("бюджет запросов X API исчерпан: %d > %d", e.Attempted, e.Max)
}

// IsBudgetExceeded сообщает, является ли ошибка превышением бюджета.
func IsBudgetExceeded(err error) bool {
	var be *BudgetError
	return errors.As(err, &be)
}

// UpstreamError описывает ошибку X API с HTTP-статусом.
type UpstreamError struct {
	StatusCode int
	Detail     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("ошибка X API (%d): %s", e.StatusCode, e.Detail)
}

// IsAuth сообщает, является ли ошибка отказом авторизации.
func (e *UpstreamError) IsAuth() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsRateLimited сообщает, упёрся ли запрос в лимиты X API.
func (e *UpstreamError) IsRateLimited() bool {
	return e.StatusCode == 429
}
