package collect

import (
	"x-intel/internal/domain"
)

const (
	minStreamQuota  = 20
	pageSize        = 100
	defaultPageCap  = 3
	pageCapCeiling  = 10
	minRecommended  = 20
	recommendedStep = 10
)

// PlanRequests оценивает стоимость одного запуска сбора в запросах X API.
// Чистая функция, никаких сетевых вызовов.
func PlanRequests(maxPosts, pageCap, maxRequestsPerRun int, guardEnabled bool) domain.RequestPlan {
	bounded := maxPosts
	if bounded < 1 {
		bounded = 1
	}
	capped := clampPageCap(pageCap)

	targetLimit, mentionLimit, interactionLimit := splitQuota(bounded)
	estimated := 1 +
		pagesFor(targetLimit, capped) +
		pagesFor(mentionLimit, capped) +
		pagesFor(interactionLimit, capped)

	plan := domain.RequestPlan{
		EstimatedRequests: estimated,
		WorstCaseRequests: 1 + 3*capped,
		PageCap:           capped,
		TargetLimit:       targetLimit,
		MentionLimit:      mentionLimit,
		InteractionLimit:  interactionLimit,
		GuardEnabled:      guardEnabled,
		MaxRequestsPerRun: maxRequestsPerRun,
	}
	plan.WithinBudget = !guardEnabled || estimated <= maxRequestsPerRun
	plan.RecommendedMaxPosts = recommendMaxPosts(bounded, capped, maxRequestsPerRun)
	return plan
}

// splitQuota делит общую квоту постов на три потока: 50% своих постов цели,
// 30% упоминаний, остаток на поиск. Каждый поток не меньше minStreamQuota.
func splitQuota(maxPosts int) (target, mention, interaction int) {
	target = maxInt(minStreamQuota, maxPosts/2)
	mention = maxInt(minStreamQuota, maxPosts*3/10)
	interaction = maxInt(minStreamQuota, maxPosts-target-mention)
	return target, mention, interaction
}

func pagesFor(limit, pageCap int) int {
	pages := (limit + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}
	if pages > pageCap {
		pages = pageCap
	}
	return pages
}

// recommendMaxPosts подбирает наибольшую квоту, оценка которой укладывается
// в бюджет. Сканирует вниз шагом recommendedStep, но не ниже minRecommended.
func recommendMaxPosts(maxPosts, pageCap, maxRequestsPerRun int) int {
	for quota := maxPosts; quota >= minRecommended; quota -= recommendedStep {
		target, mention, interaction := splitQuota(quota)
		estimated := 1 + pagesFor(target, pageCap) + pagesFor(mention, pageCap) + pagesFor(interaction, pageCap)
		if estimated <= maxRequestsPerRun {
			return quota
		}
	}
	return minRecommended
}

func clampPageCap(pageCap int) int {
	if pageCap < 1 {
		return defaultPageCap
	}
	if pageCap > pageCapCeiling {
		return pageCapCeiling
	}
	return pageCap
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
