package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"x-intel/internal/domain"
	"x-intel/internal/infra/metrics"
	"x-intel/internal/usecase/analysis"
	"x-intel/internal/usecase/collect"
)

const reportCacheTTL = 10 * time.Minute

// Collector выгружает сырые посты цели.
type Collector interface {
	Collect(ctx context.Context, opts domain.CollectOptions) (collect.Result, error)
}

// Config задаёт параметры по умолчанию для запусков анализа.
type Config struct {
	MaxPages          int
	MaxRequestsPerRun int
	GuardEnabled      bool
	WindowDays        int
	MaxPosts          int
}

// Service реализует полный цикл: сбор, анализ, сохранение отчёта.
type Service struct {
	collector Collector
	reports   domain.ReportRepo
	cache     domain.Cache
	cfg       Config
	log       zerolog.Logger
}

var _ domain.IntelService = (*Service)(nil)

// NewService создаёт сервис анализа.
func NewService(collector Collector, reports domain.ReportRepo, cache domain.Cache, cfg Config, log zerolog.Logger) *Service {
	if cfg.WindowDays < 1 {
		cfg.WindowDays = 14
	}
	if cfg.MaxPosts < 1 {
		cfg.MaxPosts = 250
	}
	return &Service{collector: collector, reports: reports, cache: cache, cfg: cfg, log: log}
}

// Run собирает посты цели, строит сигналы координации и сохраняет отчёт.
func (s *Service) Run(ctx context.Context, opts domain.CollectOptions) (domain.IntelReport, error) {
	start := time.Now()
	if opts.WindowDays < 1 {
		opts.WindowDays = s.cfg.WindowDays
	}
	if opts.MaxPosts < 1 {
		opts.MaxPosts = s.cfg.MaxPosts
	}

	result, err := s.collector.Collect(ctx, opts)
	if err != nil {
		metrics.ObserveIntelRun(start, err)
		return domain.IntelReport{}, fmt.Errorf("сбор постов: %w", err)
	}

	report := s.buildReport(opts, result)
	metrics.ObserveIntelRun(start, nil)

	s.log.Info().
		Str("target", report.Target).
		Int("posts", len(report.Posts)).
		Int("clusters", len(report.NetworkSignals.CoordinatedClusters)).
		Int("requests_used", result.RequestsUsed).
		Dur("took", time.Since(start)).
		Msg("анализ завершён")

	if s.reports != nil {
		if _, err := s.reports.SaveReport(ctx, report, result.RequestsUsed); err != nil {
			return domain.IntelReport{}, fmt.Errorf("сохранение отчёта: %w", err)
		}
	}
	s.cacheReport(ctx, report)
	return report, nil
}

// Estimate возвращает план запросов без обращений к X API.
func (s *Service) Estimate(windowDays, maxPosts, maxPages int) domain.RequestPlan {
	if maxPosts < 1 {
		maxPosts = s.cfg.MaxPosts
	}
	if maxPages < 1 {
		maxPages = s.cfg.MaxPages
	}
	return collect.PlanRequests(maxPosts, maxPages, s.cfg.MaxRequestsPerRun, s.cfg.GuardEnabled)
}

func (s *Service) buildReport(opts domain.CollectOptions, result collect.Result) domain.IntelReport {
	posts := collect.Normalize(result)

	clusters, membership := analysis.FindClusters(posts)
	graphMetrics := analysis.BuildGraphMetrics(posts, membership)
	botScores := analysis.BuildBotScores(posts, membership, time.Now().UTC())
	aiScores := analysis.BuildAIContentScores(posts, result.Notes)
	claimClusters := analysis.BuildClaimClusters(posts)

	if len(botScores) == 0 {
		botScores = []domain.BotScore{analysis.FallbackBotScore(domain.Author{
			UserID: result.TargetUser.ID,
			Handle: result.TargetUser.Username,
		})}
	}
	if len(aiScores) == 0 {
		aiScores = []domain.AIContentScore{analysis.FallbackAIScore(result.Notes)}
	}
	if len(claimClusters) == 0 && len(posts) > 0 {
		claimClusters = []domain.ClaimCluster{analysis.FallbackClaimCluster(posts)}
	}

	userContext := domain.DefaultUserContext()
	if opts.UserContext != nil {
		userContext = *opts.UserContext
	}

	return domain.IntelReport{
		Target: "@" + collect.NormalizeHandle(opts.TargetHandle),
		Window: fmt.Sprintf("%s/%s",
			result.WindowStart.Format("2006-01-02"),
			result.WindowEnd.Format("2006-01-02")),
		Posts: posts,
		NetworkSignals: domain.NetworkSignals{
			CoordinatedClusters: clusters,
			GraphMetrics:        graphMetrics,
		},
		BotScores:       botScores,
		AIContentScores: aiScores,
		ClaimClusters:   claimClusters,
		UserContext:     userContext,
	}
}

// cacheReport кладёт свежий отчёт в кэш; промах не критичен.
func (s *Service) cacheReport(ctx context.Context, report domain.IntelReport) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, ReportCacheKey(report.Target), payload, reportCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("target", report.Target).Msg("не удалось закэшировать отчёт")
	}
}

// ReportCacheKey — ключ кэша последнего отчёта по цели.
func ReportCacheKey(target string) string {
	return "intel:report:" + collect.NormalizeHandle(target)
}
