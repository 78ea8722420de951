package analysis

import (
	"fmt"
	"sort"
	"strings"

	"x-intel/internal/domain"
)

const (
	maxClaimClusters = 10
	maxClaims        = 3
	maxKeyAccounts   = 5
)

const fallbackTopic = "general_discussion"

// BuildClaimClusters группирует посты по грубому тематическому ключу и
// формирует нарративные кластеры с репрезентативными утверждениями.
func BuildClaimClusters(posts []domain.Post) []domain.ClaimCluster {
	if len(posts) == 0 {
		return nil
	}

	var topicOrder []string
	grouped := make(map[string][]domain.Post)
	for _, post := range posts {
		topic := topicKey(post)
		if _, ok := grouped[topic]; !ok {
			topicOrder = append(topicOrder, topic)
		}
		grouped[topic] = append(grouped[topic], post)
	}

	type topicGroup struct {
		topic string
		posts []domain.Post
	}
	var significant []topicGroup
	for _, topic := range topicOrder {
		if len(grouped[topic]) >= 2 {
			significant = append(significant, topicGroup{topic: topic, posts: grouped[topic]})
		}
	}
	if len(significant) == 0 {
		significant = []topicGroup{{topic: fallbackTopic, posts: posts}}
	}
	sort.SliceStable(significant, func(i, j int) bool {
		return len(significant[i].posts) > len(significant[j].posts)
	})
	if len(significant) > maxClaimClusters {
		significant = significant[:maxClaimClusters]
	}

	clusters := make([]domain.ClaimCluster, 0, len(significant))
	for index, group := range significant {
		var claims []string
		seen := make(map[string]bool)
		for _, post := range group.posts {
			cleaned := strings.TrimSpace(collapseWhitespace(post.Text))
			if cleaned == "" || seen[cleaned] {
				continue
			}
			seen[cleaned] = true
			claims = append(claims, truncateRunes(cleaned, 280))
			if len(claims) >= maxClaims {
				break
			}
		}

		clusters = append(clusters, domain.ClaimCluster{
			ClusterID:            fmt.Sprintf("claim-%d", index+1),
			TopicLabel:           group.topic,
			RepresentativeClaims: claims,
			SpreadOverTime:       SpreadOverTime(group.posts),
			KeyAccounts:          TopAccountHandles(group.posts, maxKeyAccounts),
			Sentiment:            EstimateSentiment(group.posts),
		})
	}
	return clusters
}

// FallbackClaimCluster возвращается, когда посты есть, но ни одна тема
// не набрала группу.
func FallbackClaimCluster(posts []domain.Post) domain.ClaimCluster {
	var claims []string
	for i, post := range posts {
		if i >= 2 {
			break
		}
		claims = append(claims, truncateRunes(post.Text, 280))
	}
	return domain.ClaimCluster{
		ClusterID:            "claim-1",
		TopicLabel:           fallbackTopic,
		RepresentativeClaims: claims,
		SpreadOverTime:       SpreadOverTime(posts),
		KeyAccounts:          TopAccountHandles(posts, 3),
		Sentiment:            EstimateSentiment(posts),
	}
}

// topicKey: первый хэштег, иначе первый значимый токен (длиннее трёх
// символов), иначе общая тема.
func topicKey(post domain.Post) string {
	if len(post.Hashtags) > 0 {
		return strings.ToLower(post.Hashtags[0])
	}
	normalized := NormalizeText(post.Text)
	for _, token := range strings.Fields(normalized) {
		if stopwords[token] || len([]rune(token)) <= 3 {
			continue
		}
		return truncateRunes(token, 40)
	}
	return fallbackTopic
}

// SpreadOverTime сводит посты к строке «дата: количество» по дням.
func SpreadOverTime(posts []domain.Post) string {
	counts := make(map[string]int)
	for _, post := range posts {
		created, err := domain.ParsePostTime(post.CreatedAt)
		if err != nil {
			continue
		}
		counts[created.Format("2006-01-02")]++
	}
	dates := make([]string, 0, len(counts))
	for date := range counts {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	parts := make([]string, 0, len(dates))
	for _, date := range dates {
		parts = append(parts, fmt.Sprintf("%s: %d", date, counts[date]))
	}
	return strings.Join(parts, ", ")
}

// TopAccountHandles возвращает самых активных авторов группы.
func TopAccountHandles(posts []domain.Post, limit int) []string {
	counter := newOrderedCounter()
	for _, post := range posts {
		counter.add(post.Author.Handle)
	}
	handles := counter.mostCommon()
	if len(handles) > limit {
		handles = handles[:limit]
	}
	return handles
}

// EstimateSentiment — грубая оценка тональности по словарям маркеров.
func EstimateSentiment(posts []domain.Post) domain.Sentiment {
	positive := 0
	negative := 0
	for _, post := range posts {
		text := strings.ToLower(post.Text)
		for _, token := range positiveWords {
			if strings.Contains(text, token) {
				positive++
			}
		}
		for _, token := range negativeWords {
			if strings.Contains(text, token) {
				negative++
			}
		}
	}
	switch {
	case negative > 0 && float64(negative) >= float64(positive)*1.4:
		return domain.SentimentNegative
	case positive > 0 && float64(positive) >= float64(negative)*1.4:
		return domain.SentimentPositive
	case positive > 0 && negative > 0:
		return domain.SentimentMixed
	default:
		return domain.SentimentNeutral
	}
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
