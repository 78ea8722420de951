package collect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"x-intel/internal/adapters/xapi"
	"x-intel/internal/domain"
)

type stubAPI struct {
	mu        sync.Mutex
	user      xapi.User
	userErr   error
	pages     map[domain.StreamKind][]xapi.Page
	streamErr map[domain.StreamKind]error
	calls     int
	fetched   map[domain.StreamKind]int
}

func (s *stubAPI) UserByHandle(ctx context.Context, handle string) (xapi.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.userErr != nil {
		return xapi.User{}, s.userErr
	}
	return s.user, nil
}

func (s *stubAPI) FetchPage(ctx context.Context, kind domain.StreamKind, req xapi.PageRequest) (xapi.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fetched == nil {
		s.fetched = make(map[domain.StreamKind]int)
	}
	if err := s.streamErr[kind]; err != nil {
		return xapi.Page{}, err
	}
	index := s.fetched[kind]
	s.fetched[kind]++
	queue := s.pages[kind]
	if index >= len(queue) {
		return xapi.Page{}, nil
	}
	return queue[index], nil
}

func recentTweet(id, authorID string, age time.Duration) xapi.Tweet {
	return xapi.Tweet{
		ID:        id,
		AuthorID:  authorID,
		CreatedAt: domain.FormatPostTime(time.Now().UTC().Add(-age)),
		Text:      "text " + id,
	}
}

func newTestService(api *stubAPI, cfg Config) *Service {
	return NewService(api, cfg, zerolog.Nop())
}

func TestPlanRequestsDefaults(t *testing.T) {
	plan := PlanRequests(250, 3, 25, true)
	if plan.TargetLimit != 125 || plan.MentionLimit != 75 || plan.InteractionLimit != 50 {
		t.Fatalf("неверное разбиение квоты: %+v", plan)
	}
	if plan.EstimatedRequests != 5 {
		t.Fatalf("ожидали оценку 5 запросов, получили %d", plan.EstimatedRequests)
	}
	if plan.WorstCaseRequests != 10 {
		t.Fatalf("ожидали худший случай 10, получили %d", plan.WorstCaseRequests)
	}
	if !plan.WithinBudget {
		t.Fatalf("план должен укладываться в бюджет: %+v", plan)
	}
	if plan.RecommendedMaxPosts != 250 {
		t.Fatalf("квота в бюджете не должна снижаться, получили %d", plan.RecommendedMaxPosts)
	}
}

func TestPlanRequestsEstimateNotAboveWorstCase(t *testing.T) {
	for _, maxPosts := range []int{1, 20, 100, 250, 500, 1000} {
		for _, pageCap := range []int{1, 3, 10} {
			plan := PlanRequests(maxPosts, pageCap, 25, true)
			if plan.EstimatedRequests > plan.WorstCaseRequests {
				t.Fatalf("оценка %d превышает худший случай %d (посты %d, страницы %d)",
					plan.EstimatedRequests, plan.WorstCaseRequests, maxPosts, pageCap)
			}
		}
	}
}

func TestPlanRequestsMonotonic(t *testing.T) {
	previous := 0
	for maxPosts := 20; maxPosts <= 1000; maxPosts += 20 {
		plan := PlanRequests(maxPosts, 10, 100, true)
		if plan.EstimatedRequests < previous {
			t.Fatalf("оценка должна расти с квотой: %d < %d при %d постах",
				plan.EstimatedRequests, previous, maxPosts)
		}
		previous = plan.EstimatedRequests
	}
}

func TestPlanRequestsRecommendsSmallerQuota(t *testing.T) {
	plan := PlanRequests(1000, 10, 5, true)
	if plan.WithinBudget {
		t.Fatalf("план 1000 постов не должен укладываться в 5 запросов")
	}
	if plan.RecommendedMaxPosts != 330 {
		t.Fatalf("ожидали рекомендацию 330, получили %d", plan.RecommendedMaxPosts)
	}
	check := PlanRequests(plan.RecommendedMaxPosts, 10, 5, true)
	if !check.WithinBudget {
		t.Fatalf("рекомендованная квота обязана укладываться в бюджет: %+v", check)
	}
}

func TestClampPageCap(t *testing.T) {
	if got := clampPageCap(0); got != 3 {
		t.Fatalf("нулевой лимит страниц должен стать 3, получили %d", got)
	}
	if got := clampPageCap(50); got != 10 {
		t.Fatalf("лимит страниц ограничен 10, получили %d", got)
	}
	if got := clampPageCap(7); got != 7 {
		t.Fatalf("корректный лимит не меняется, получили %d", got)
	}
}

func TestCollectGuardBlocksBeforeNetwork(t *testing.T) {
	api := &stubAPI{user: xapi.User{ID: "1", Username: "target"}}
	service := newTestService(api, Config{MaxPages: 3, MaxRequestsPerRun: 2, GuardEnabled: true})

	_, err := service.Collect(context.Background(), domain.CollectOptions{
		TargetHandle: "target",
		MaxPosts:     250,
	})
	if !domain.IsBudgetExceeded(err) {
		t.Fatalf("ожидали ошибку бюджета, получили %v", err)
	}
	if api.calls != 0 {
		t.Fatalf("при срабатывании предохранителя сеть не трогаем, сделано %d вызовов", api.calls)
	}
}

func TestCollectMergesAndDeduplicates(t *testing.T) {
	shared := recentTweet("t1", "7", time.Hour)
	api := &stubAPI{
		user: xapi.User{ID: "7", Username: "target"},
		pages: map[domain.StreamKind][]xapi.Page{
			domain.StreamTargetPosts: {{Tweets: []xapi.Tweet{shared, recentTweet("t2", "7", 2*time.Hour)}}},
			domain.StreamMentions:    {{Tweets: []xapi.Tweet{recentTweet("t3", "8", 3*time.Hour)}, Users: []xapi.User{{ID: "8", Username: "other"}}}},
			domain.StreamSearch:      {{Tweets: []xapi.Tweet{shared}}},
		},
	}
	service := newTestService(api, Config{MaxPages: 3, MaxRequestsPerRun: 25, GuardEnabled: true})

	result, err := service.Collect(context.Background(), domain.CollectOptions{
		TargetHandle: "@Target",
		WindowDays:   14,
		MaxPosts:     250,
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(result.Tweets) != 3 {
		t.Fatalf("после дедупликации ожидали 3 твита, получили %d", len(result.Tweets))
	}
	if result.RequestsUsed != 4 {
		t.Fatalf("ожидали 4 запроса (цель + 3 потока), получили %d", result.RequestsUsed)
	}
	if len(result.Notes) != 0 {
		t.Fatalf("заметок быть не должно: %v", result.Notes)
	}
	if _, ok := result.UsersByID["8"]; !ok {
		t.Fatalf("пользователи из expansions должны попасть в результат")
	}
	if _, ok := result.UsersByID["7"]; !ok {
		t.Fatalf("целевой пользователь должен попасть в результат")
	}
}

func TestCollectStreamFailureBecomesNote(t *testing.T) {
	api := &stubAPI{
		user: xapi.User{ID: "7", Username: "target"},
		pages: map[domain.StreamKind][]xapi.Page{
			domain.StreamTargetPosts: {{Tweets: []xapi.Tweet{recentTweet("t1", "7", time.Hour)}}},
			domain.StreamSearch:      {{Tweets: []xapi.Tweet{recentTweet("t2", "9", time.Hour)}}},
		},
		streamErr: map[domain.StreamKind]error{
			domain.StreamMentions: errors.New("таймаут"),
		},
	}
	service := newTestService(api, Config{MaxPages: 3, MaxRequestsPerRun: 25, GuardEnabled: true})

	result, err := service.Collect(context.Background(), domain.CollectOptions{
		TargetHandle: "target",
		MaxPosts:     250,
	})
	if err != nil {
		t.Fatalf("ошибка одного потока не фатальна: %v", err)
	}
	if len(result.Notes) != 1 {
		t.Fatalf("ожидали одну заметку, получили %v", result.Notes)
	}
	if result.Notes[0] != "mentions unavailable: таймаут" {
		t.Fatalf("неверный формат заметки: %q", result.Notes[0])
	}
	if len(result.Tweets) != 2 {
		t.Fatalf("живые потоки должны отдать 2 твита, получили %d", len(result.Tweets))
	}
}

func TestCollectTargetNotFound(t *testing.T) {
	api := &stubAPI{userErr: domain.ErrTargetNotFound}
	service := newTestService(api, Config{MaxPages: 3, MaxRequestsPerRun: 25, GuardEnabled: true})

	_, err := service.Collect(context.Background(), domain.CollectOptions{
		TargetHandle: "ghost",
		MaxPosts:     100,
	})
	if !errors.Is(err, domain.ErrTargetNotFound) {
		t.Fatalf("ожидали ErrTargetNotFound, получили %v", err)
	}
}

func TestNormalizeHandle(t *testing.T) {
	cases := map[string]string{
		"@Target":  "target",
		" target ": "target",
		"TARGET":   "target",
	}
	for input, expected := range cases {
		if got := NormalizeHandle(input); got != expected {
			t.Fatalf("NormalizeHandle(%q) = %q, ожидали %q", input, got, expected)
		}
	}
}

func TestNormalizeSortsAndExtracts(t *testing.T) {
	now := time.Now().UTC()
	result := Result{
		TargetUser: xapi.User{ID: "7", Username: "target"},
		UsersByID: map[string]xapi.User{
			"7": {ID: "7", Username: "Target", Name: "Target Inc", PublicMetrics: xapi.UserMetrics{FollowersCount: 10, FollowingCount: 5}},
		},
		MediaByKey: map[string]xapi.Media{
			"m1": {MediaKey: "m1", URL: "https://img.example/full.jpg"},
		},
		Tweets: []xapi.Tweet{
			{
				ID:        "b",
				AuthorID:  "7",
				CreatedAt: domain.FormatPostTime(now),
				Text:      "second",
				Entities: &xapi.Entities{
					URLs:     []xapi.URLEntity{{URL: "https://t.co/x", ExpandedURL: "https://example.com/page"}},
					Hashtags: []xapi.TagEntity{{Tag: "Topic"}},
					Mentions: []xapi.MentionEntity{{Username: "Someone"}},
				},
				Attachments: &xapi.Attachments{MediaKeys: []string{"m1"}},
			},
			{
				ID:        "a",
				AuthorID:  "7",
				CreatedAt: domain.FormatPostTime(now.Add(-time.Hour)),
				Text:      "first",
				ReferencedTweets: []xapi.ReferencedTweet{
					{Type: "replied_to", ID: "parent"},
				},
			},
		},
	}

	posts := Normalize(result)
	if len(posts) != 2 {
		t.Fatalf("ожидали 2 поста, получили %d", len(posts))
	}
	if posts[0].TweetID != "a" || posts[1].TweetID != "b" {
		t.Fatalf("посты должны идти по возрастанию времени: %s, %s", posts[0].TweetID, posts[1].TweetID)
	}
	if posts[0].ReplyTo != "parent" {
		t.Fatalf("ожидали reply_to=parent, получили %q", posts[0].ReplyTo)
	}
	second := posts[1]
	if len(second.URLs) != 1 || second.URLs[0] != "https://example.com/page" {
		t.Fatalf("развёрнутая ссылка предпочтительнее: %v", second.URLs)
	}
	if len(second.Hashtags) != 1 || second.Hashtags[0] != "topic" {
		t.Fatalf("хэштеги приводятся к нижнему регистру: %v", second.Hashtags)
	}
	if len(second.Mentions) != 1 || second.Mentions[0] != "someone" {
		t.Fatalf("упоминания приводятся к нижнему регистру: %v", second.Mentions)
	}
	if len(second.MediaURLs) != 1 || second.MediaURLs[0] != "https://img.example/full.jpg" {
		t.Fatalf("медиа должно разрешаться по ключу: %v", second.MediaURLs)
	}
	if second.Lang != "und" {
		t.Fatalf("пустой язык должен стать und, получили %q", second.Lang)
	}
	if second.Author.Handle != "Target" {
		t.Fatalf("автор должен браться из expansions, получили %q", second.Author.Handle)
	}
	if second.Author.ProfileFields["name"] != "Target Inc" {
		t.Fatalf("профиль автора должен сохраняться: %v", second.Author.ProfileFields)
	}
}
