package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"x-intel/internal/domain"
)

const maxBotScores = 200

// BuildBotScores оценивает вероятность бот-активности каждого автора
// по эвристикам: возраст аккаунта, скорость постинга, доля повторов,
// плотность хэштегов, соотношение подписчиков и участие в кластерах.
func BuildBotScores(posts []domain.Post, membership domain.AccountMembership, now time.Time) []domain.BotScore {
	var handleOrder []string
	byAccount := make(map[string][]domain.Post)
	for _, post := range posts {
		handle := strings.ToLower(post.Author.Handle)
		if _, ok := byAccount[handle]; !ok {
			handleOrder = append(handleOrder, handle)
		}
		byAccount[handle] = append(byAccount[handle], post)
	}
	if len(handleOrder) == 0 {
		return nil
	}

	scores := make([]domain.BotScore, 0, len(handleOrder))
	for _, handle := range handleOrder {
		accountPosts := byAccount[handle]
		exemplar := accountPosts[0]
		postCount := len(accountPosts)

		uniqueTexts := make(map[string]bool, postCount)
		hashtagTotal := 0
		for _, post := range accountPosts {
			uniqueTexts[NormalizeText(post.Text)] = true
			hashtagTotal += len(post.Hashtags)
		}
		duplicateRatio := 1 - float64(len(uniqueTexts))/float64(postCount)
		avgHashtags := float64(hashtagTotal) / float64(postCount)

		ageDays, ageKnown := accountAgeDays(exemplar.Author.CreatedAt, now)
		activityRate := float64(postCount) / windowDays(accountPosts)

		following := exemplar.Author.Following
		if following < 1 {
			following = 1
		}
		followerRatio := float64(exemplar.Author.Followers) / float64(following)
		clusterCount := membership.Count(handle)

		score := 0.05
		if ageKnown {
			switch {
			case ageDays < 30:
				score += 0.25
			case ageDays < 90:
				score += 0.15
			}
		}
		switch {
		case activityRate >= 15:
			score += 0.2
		case activityRate >= 8:
			score += 0.1
		}
		switch {
		case duplicateRatio >= 0.6:
			score += 0.25
		case duplicateRatio >= 0.35:
			score += 0.15
		}
		if avgHashtags >= 4 {
			score += 0.1
		}
		if followerRatio < 0.1 || followerRatio > 20 {
			score += 0.1
		}
		if clusterCount > 0 {
			bonus := 0.05 * float64(clusterCount)
			if bonus > 0.15 {
				bonus = 0.15
			}
			score += bonus
		}

		confidence := domain.ConfidenceLow
		switch {
		case postCount >= 8 && ageKnown:
			confidence = domain.ConfidenceHigh
		case postCount >= 3:
			confidence = domain.ConfidenceMedium
		}

		ageValue := "unknown"
		if ageKnown {
			ageValue = fmt.Sprintf("%d", int(ageDays))
		}

		scores = append(scores, domain.BotScore{
			UserID:         exemplar.Author.UserID,
			Handle:         exemplar.Author.Handle,
			BotProbability: round3(clampProbability(score)),
			TopFeatures: []domain.BotFeature{
				{
					Feature:      "account_age_days",
					Value:        ageValue,
					WhyItMatters: "Newly created accounts can indicate disposable amplification actors.",
				},
				{
					Feature:      "duplicate_text_ratio",
					Value:        fmt.Sprintf("%.2f", duplicateRatio),
					WhyItMatters: "High text reuse is a common indicator of scripted posting.",
				},
				{
					Feature:      "posts_per_day",
					Value:        fmt.Sprintf("%.2f", activityRate),
					WhyItMatters: "Very high posting velocity can indicate automated behavior.",
				},
			},
			Confidence: confidence,
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].BotProbability > scores[j].BotProbability
	})
	if len(scores) > maxBotScores {
		scores = scores[:maxBotScores]
	}
	return scores
}

// FallbackBotScore возвращается, когда постов в окне не нашлось.
func FallbackBotScore(user domain.Author) domain.BotScore {
	userID := user.UserID
	if userID == "" {
		userID = "unknown"
	}
	handle := user.Handle
	if handle == "" {
		handle = "unknown"
	}
	return domain.BotScore{
		UserID:         userID,
		Handle:         handle,
		BotProbability: 0.0,
		TopFeatures: []domain.BotFeature{
			{
				Feature:      "data_availability",
				Value:        "insufficient",
				WhyItMatters: "Bot probability could not be computed because no posts were collected.",
			},
		},
		Confidence: domain.ConfidenceLow,
	}
}

// windowDays — размах времени постов аккаунта в днях, минимум один день.
func windowDays(posts []domain.Post) float64 {
	if len(posts) == 0 {
		return 1
	}
	var earliest, latest time.Time
	found := false
	for _, post := range posts {
		created, err := domain.ParsePostTime(post.CreatedAt)
		if err != nil {
			continue
		}
		if !found || created.Before(earliest) {
			earliest = created
		}
		if !found || created.After(latest) {
			latest = created
		}
		found = true
	}
	if !found {
		return 1
	}
	span := latest.Sub(earliest).Hours() / 24
	if span < 1 {
		return 1
	}
	return span
}

func accountAgeDays(createdAt string, now time.Time) (float64, bool) {
	if createdAt == "" {
		return 0, false
	}
	created, err := domain.ParsePostTime(createdAt)
	if err != nil {
		return 0, false
	}
	age := now.Sub(created).Hours() / 24
	if age < 0 {
		age = 0
	}
	return age, true
}
