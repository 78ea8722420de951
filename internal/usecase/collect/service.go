package collect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"x-intel/internal/adapters/xapi"
	"x-intel/internal/domain"
	"x-intel/internal/infra/metrics"
)

// API описывает используемую часть клиента X API.
type API interface {
	UserByHandle(ctx context.Context, handle string) (xapi.User, error)
	FetchPage(ctx context.Context, kind domain.StreamKind, req xapi.PageRequest) (xapi.Page, error)
}

// Config задаёт ограничения одного запуска сбора.
type Config struct {
	MaxPages          int
	MaxRequestsPerRun int
	GuardEnabled      bool
}

// Service реализует сбор трёх потоков постов с учётом бюджета запросов.
type Service struct {
	api API
	cfg Config
	log zerolog.Logger
}

// NewService создаёт сборщик.
func NewService(api API, cfg Config, log zerolog.Logger) *Service {
	if cfg.MaxRequestsPerRun < 1 {
		cfg.MaxRequestsPerRun = 1
	}
	cfg.MaxPages = clampPageCap(cfg.MaxPages)
	return &Service{api: api, cfg: cfg, log: log}
}

// Result содержит сырые данные одного запуска сбора.
type Result struct {
	TargetUser   xapi.User
	Tweets       []xapi.Tweet
	UsersByID    map[string]xapi.User
	MediaByKey   map[string]xapi.Media
	Notes        []string
	RequestsUsed int
	WindowStart  time.Time
	WindowEnd    time.Time
}

// requestBudget сериализует учёт бюджета между конкурентными потоками.
// Резерв происходит до сетевого вызова, поэтому перерасход исключён.
type requestBudget struct {
	mu    sync.Mutex
	used  int
	max   int
	guard bool
}

func (b *requestBudget) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.guard && b.used >= b.max {
		return &domain.BudgetError{Attempted: b.used + 1, Max: b.max}
	}
	b.used++
	return nil
}

func (b *requestBudget) usedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

type streamResult struct {
	tweets []xapi.Tweet
	users  map[string]xapi.User
	media  map[string]xapi.Media
}

// Collect разрешает цель и конкурентно выгружает три потока постов.
// Ошибка отдельного потока понижается до заметки; фатальны только
// неразрешимая цель и превышение бюджета.
func (s *Service) Collect(ctx context.Context, opts domain.CollectOptions) (Result, error) {
	handle := NormalizeHandle(opts.TargetHandle)
	windowDays := opts.WindowDays
	if windowDays < 1 {
		windowDays = 14
	}
	maxPosts := opts.MaxPosts
	if maxPosts < 1 {
		maxPosts = 250
	}

	plan := PlanRequests(maxPosts, s.cfg.MaxPages, s.cfg.MaxRequestsPerRun, s.cfg.GuardEnabled)
	if s.cfg.GuardEnabled && plan.EstimatedRequests > s.cfg.MaxRequestsPerRun {
		return Result{}, &domain.BudgetError{Attempted: plan.EstimatedRequests, Max: s.cfg.MaxRequestsPerRun}
	}

	budget := &requestBudget{max: s.cfg.MaxRequestsPerRun, guard: s.cfg.GuardEnabled}
	endTime := time.Now().UTC()
	startTime := endTime.Add(-time.Duration(windowDays) * 24 * time.Hour)

	if err := budget.acquire(); err != nil {
		return Result{}, err
	}
	targetUser, err := s.api.UserByHandle(ctx, handle)
	if err != nil {
		metrics.IncCollectorError()
		return Result{}, fmt.Errorf("разрешение цели @%s: %w", handle, err)
	}

	// Поиск по недавним твитам ограничен у X последними 7 днями,
	// конец окна отступает на 20 секунд от текущего момента.
	searchEnd := endTime.Add(-20 * time.Second)
	searchStart := startTime
	if limit := searchEnd.Add(-7 * 24 * time.Hour); searchStart.Before(limit) {
		searchStart = limit
	}
	if !searchStart.Before(searchEnd) {
		searchStart = searchEnd.Add(-5 * time.Minute)
	}
	searchQuery := strings.TrimSpace(opts.Query)
	if searchQuery == "" {
		searchQuery = "@" + handle
	}

	streams := []struct {
		kind  domain.StreamKind
		req   xapi.PageRequest
		limit int
	}{
		{
			kind:  domain.StreamTargetPosts,
			req:   xapi.PageRequest{Path: "/users/" + targetUser.ID + "/tweets"},
			limit: plan.TargetLimit,
		},
		{
			kind:  domain.StreamMentions,
			req:   xapi.PageRequest{Path: "/users/" + targetUser.ID + "/mentions"},
			limit: plan.MentionLimit,
		},
		{
			kind: domain.StreamSearch,
			req: xapi.PageRequest{
				Path:      "/tweets/search/recent",
				Query:     searchQuery,
				StartTime: domain.FormatPostTime(searchStart),
				EndTime:   domain.FormatPostTime(searchEnd),
			},
			limit: plan.InteractionLimit,
		},
	}

	results := make([]streamResult, len(streams))
	notes := make([]string, len(streams))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, stream := range streams {
		i, stream := i, stream
		group.Go(func() error {
			res, err := s.fetchPaginated(groupCtx, budget, stream.kind, stream.req, stream.limit)
			if err != nil {
				if domain.IsBudgetExceeded(err) {
					return err
				}
				s.log.Warn().Err(err).Str("stream", string(stream.kind)).Msg("collect: поток недоступен")
				metrics.IncCollectorError()
				notes[i] = fmt.Sprintf("%s unavailable: %v", stream.kind, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Result{}, err
	}

	result := mergeStreamResults(targetUser, results, maxPosts)
	result.Tweets = filterByWindow(result.Tweets, startTime, endTime)
	result.WindowStart = startTime
	result.WindowEnd = endTime
	result.RequestsUsed = budget.usedCount()
	for _, note := range notes {
		if note != "" {
			result.Notes = append(result.Notes, note)
		}
	}
	return result, nil
}

// fetchPaginated последовательно листает один поток: токен продолжения
// каждой страницы зависит от предыдущего ответа.
func (s *Service) fetchPaginated(ctx context.Context, budget *requestBudget, kind domain.StreamKind, base xapi.PageRequest, limit int) (streamResult, error) {
	out := streamResult{
		users: make(map[string]xapi.User),
		media: make(map[string]xapi.Media),
	}

	nextToken := ""
	for pages := 0; len(out.tweets) < limit && pages < s.cfg.MaxPages; pages++ {
		req := base
		req.MaxResults = minInt(pageSize, maxInt(10, limit-len(out.tweets)))
		req.PaginationToken = nextToken

		if err := budget.acquire(); err != nil {
			return streamResult{}, err
		}
		page, err := s.api.FetchPage(ctx, kind, req)
		if err != nil {
			return streamResult{}, err
		}

		out.tweets = append(out.tweets, page.Tweets...)
		for _, user := range page.Users {
			if user.ID != "" {
				out.users[user.ID] = user
			}
		}
		for _, media := range page.Media {
			if media.MediaKey != "" {
				out.media[media.MediaKey] = media
			}
		}

		nextToken = page.NextToken
		if nextToken == "" {
			break
		}
	}

	if len(out.tweets) > limit {
		out.tweets = out.tweets[:limit]
	}
	return out, nil
}

// mergeStreamResults склеивает потоки: дедупликация по id твита
// (выигрывает первый встреченный), сортировка по свежести, усечение.
func mergeStreamResults(targetUser xapi.User, results []streamResult, maxPosts int) Result {
	merged := Result{
		TargetUser: targetUser,
		UsersByID:  map[string]xapi.User{targetUser.ID: targetUser},
		MediaByKey: make(map[string]xapi.Media),
	}

	seen := make(map[string]bool)
	for _, res := range results {
		for _, tweet := range res.tweets {
			if tweet.ID == "" || seen[tweet.ID] {
				continue
			}
			seen[tweet.ID] = true
			merged.Tweets = append(merged.Tweets, tweet)
		}
		for id, user := range res.users {
			merged.UsersByID[id] = user
		}
		for key, media := range res.media {
			merged.MediaByKey[key] = media
		}
	}

	sort.SliceStable(merged.Tweets, func(i, j int) bool {
		return merged.Tweets[i].CreatedAt > merged.Tweets[j].CreatedAt
	})
	if len(merged.Tweets) > maxPosts {
		merged.Tweets = merged.Tweets[:maxPosts]
	}
	return merged
}

// filterByWindow повторно проверяет окно: фильтры времени на стороне X
// носят рекомендательный характер.
func filterByWindow(tweets []xapi.Tweet, start, end time.Time) []xapi.Tweet {
	filtered := make([]xapi.Tweet, 0, len(tweets))
	for _, tweet := range tweets {
		createdAt, err := domain.ParsePostTime(tweet.CreatedAt)
		if err != nil {
			continue
		}
		if !createdAt.Before(start) && !createdAt.After(end) {
			filtered = append(filtered, tweet)
		}
	}
	return filtered
}

// NormalizeHandle убирает префикс @ и приводит хэндл к нижнему регистру.
func NormalizeHandle(handle string) string {
	cleaned := strings.TrimSpace(handle)
	cleaned = strings.TrimPrefix(cleaned, "@")
	return strings.ToLower(cleaned)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
