package analysis

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"x-intel/internal/domain"
)

func makePost(id, handle, text string, createdAt time.Time, hashtags, mentions []string) domain.Post {
	return domain.Post{
		TweetID:   id,
		CreatedAt: domain.FormatPostTime(createdAt),
		Text:      text,
		Lang:      "en",
		Hashtags:  hashtags,
		Mentions:  mentions,
		Author: domain.Author{
			UserID:    "u-" + handle,
			Handle:    handle,
			CreatedAt: "2020-05-01T00:00:00Z",
			Followers: 100,
			Following: 100,
		},
	}
}

func coordinatedPosts(count int) []domain.Post {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	posts := make([]domain.Post, 0, count)
	for i := 0; i < count; i++ {
		posts = append(posts, makePost(
			fmt.Sprintf("t%d", i+1),
			fmt.Sprintf("acct%d", i+1),
			"breaking developments around #launchday everyone repost now",
			base.Add(time.Duration(i)*time.Minute),
			[]string{"launchday"},
			nil,
		))
	}
	return posts
}

func TestJaccard(t *testing.T) {
	a := TokenSet(NormalizeText("quantum rocket launch window"))
	b := TokenSet(NormalizeText("quantum rocket launch window"))
	if got := Jaccard(a, b); got != 1.0 {
		t.Fatalf("для идентичных множеств ожидали 1.0, получили %v", got)
	}
	c := TokenSet(NormalizeText("совершенно другие слова здесь"))
	if got := Jaccard(a, c); got != 0.0 {
		t.Fatalf("для непересекающихся множеств ожидали 0.0, получили %v", got)
	}
	if got := Jaccard(nil, nil); got != 0.0 {
		t.Fatalf("для пустых множеств ожидали 0.0, получили %v", got)
	}
}

func TestMergeCandidateSetsIdempotent(t *testing.T) {
	candidates := [][]string{
		{"a", "b", "c", "d"},
		{"c", "d", "e"},
		{"x", "y", "z"},
	}
	merged := mergeCandidateSets(candidates)
	if len(merged) != 2 {
		t.Fatalf("ожидали 2 набора после слияния, получили %d", len(merged))
	}
	if len(merged[0]) != 5 {
		t.Fatalf("ожидали объединённый набор из 5 элементов, получили %d", len(merged[0]))
	}
	again := mergeCandidateSets(merged)
	if len(again) != len(merged) {
		t.Fatalf("повторное слияние изменило результат: %d != %d", len(again), len(merged))
	}
}

func TestFindClustersBurst(t *testing.T) {
	posts := coordinatedPosts(5)
	clusters, membership := FindClusters(posts)
	if len(clusters) != 1 {
		t.Fatalf("ожидали один кластер, получили %d", len(clusters))
	}
	cluster := clusters[0]
	if cluster.Size != 5 {
		t.Fatalf("ожидали размер 5, получили %d", cluster.Size)
	}
	if cluster.TimeBurstScore < 0.9 {
		t.Fatalf("плотный всплеск должен дать burst > 0.9, получили %v", cluster.TimeBurstScore)
	}
	if cluster.TextSimilarityScore < 0.8 {
		t.Fatalf("идентичные тексты должны дать схожесть > 0.8, получили %v", cluster.TextSimilarityScore)
	}
	if len(cluster.SharedHashtags) == 0 || cluster.SharedHashtags[0] != "launchday" {
		t.Fatalf("ожидали общий хэштег launchday, получили %v", cluster.SharedHashtags)
	}
	if len(cluster.TopAccounts) == 0 || cluster.TopAccounts[0].RoleHint != domain.RoleSeed {
		t.Fatalf("первый аккаунт должен иметь роль seed: %+v", cluster.TopAccounts)
	}
	if cluster.TopAccounts[0].Handle != "acct1" {
		t.Fatalf("seed — автор самого раннего поста, получили %s", cluster.TopAccounts[0].Handle)
	}
	if len(cluster.TopPosts) != 3 {
		t.Fatalf("ожидали 3 репрезентативных поста, получили %d", len(cluster.TopPosts))
	}
	if membership.Count("acct1") != 1 {
		t.Fatalf("acct1 должен состоять ровно в одном кластере, получили %d", membership.Count("acct1"))
	}
}

func TestFindClustersTooFewPosts(t *testing.T) {
	posts := coordinatedPosts(2)
	clusters, _ := FindClusters(posts)
	if len(clusters) != 0 {
		t.Fatalf("из двух постов кластер не собирается, получили %d", len(clusters))
	}
}

func TestFindClustersRejectsSingleAuthor(t *testing.T) {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	var posts []domain.Post
	for i := 0; i < 5; i++ {
		posts = append(posts, makePost(
			fmt.Sprintf("t%d", i+1), "solo",
			"same #tag text again", base.Add(time.Duration(i)*time.Minute),
			[]string{"tag"}, nil,
		))
	}
	clusters, _ := FindClusters(posts)
	if len(clusters) != 0 {
		t.Fatalf("один автор не образует координацию, получили %d кластеров", len(clusters))
	}
}

func TestBuildGraphMetricsEmpty(t *testing.T) {
	metrics := BuildGraphMetrics(nil, make(domain.AccountMembership))
	if metrics.Density != 0 || metrics.Modularity != 0 || len(metrics.CentralAccounts) != 0 {
		t.Fatalf("пустой граф должен дать нулевые метрики: %+v", metrics)
	}
}

func TestBuildGraphMetricsMentions(t *testing.T) {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	posts := []domain.Post{
		makePost("t1", "alpha", "cc @beta", base, nil, []string{"beta"}),
		makePost("t2", "beta", "cc @alpha", base.Add(time.Minute), nil, []string{"alpha"}),
	}
	metrics := BuildGraphMetrics(posts, make(domain.AccountMembership))
	// 2 вершины, 2 направленных ребра: плотность 2/(2·1) = 1.
	if metrics.Density != 1.0 {
		t.Fatalf("ожидали плотность 1.0, получили %v", metrics.Density)
	}
	if len(metrics.CentralAccounts) != 2 {
		t.Fatalf("ожидали два центральных аккаунта, получили %d", len(metrics.CentralAccounts))
	}
	for _, account := range metrics.CentralAccounts {
		if account.Score != 1.0 {
			t.Fatalf("степень (1+1)/2 должна дать 1.0, получили %v", account.Score)
		}
	}
}

func TestBuildGraphMetricsModularity(t *testing.T) {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	posts := []domain.Post{
		makePost("t1", "alpha", "cc @beta", base, nil, []string{"beta"}),
		makePost("t2", "gamma", "cc @delta", base, nil, []string{"delta"}),
	}
	membership := make(domain.AccountMembership)
	membership.Add("alpha", "cluster-1")
	membership.Add("beta", "cluster-1")
	membership.Add("gamma", "cluster-1")
	membership.Add("delta", "cluster-2")
	metrics := BuildGraphMetrics(posts, membership)
	if metrics.Modularity != 0.5 {
		t.Fatalf("одно внутрикластерное ребро из двух должно дать 0.5, получили %v", metrics.Modularity)
	}
}

func TestBuildBotScores(t *testing.T) {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	now := base.Add(24 * time.Hour)

	var posts []domain.Post
	// Подозрительный аккаунт: свежий, дублирует текст, сыплет хэштегами.
	for i := 0; i < 10; i++ {
		post := makePost(fmt.Sprintf("s%d", i+1), "suspect",
			"amazing #one #two #three #four offer", base.Add(time.Duration(i)*time.Minute),
			[]string{"one", "two", "three", "four"}, nil)
		post.Author.CreatedAt = domain.FormatPostTime(base.Add(-10 * 24 * time.Hour))
		post.Author.Followers = 1
		post.Author.Following = 500
		posts = append(posts, post)
	}
	benign := makePost("b1", "normal", "just sharing my weekend photos", base, nil, nil)
	posts = append(posts, benign)

	membership := make(domain.AccountMembership)
	membership.Add("suspect", "cluster-1")
	membership.Add("suspect", "cluster-2")

	scores := BuildBotScores(posts, membership, now)
	if len(scores) != 2 {
		t.Fatalf("ожидали две оценки, получили %d", len(scores))
	}
	if scores[0].Handle != "suspect" {
		t.Fatalf("подозрительный аккаунт должен быть первым, получили %s", scores[0].Handle)
	}
	if scores[0].BotProbability <= scores[1].BotProbability {
		t.Fatalf("оценка suspect (%v) должна превышать normal (%v)",
			scores[0].BotProbability, scores[1].BotProbability)
	}
	for _, score := range scores {
		if score.BotProbability < 0 || score.BotProbability > 0.99 {
			t.Fatalf("вероятность вне диапазона [0, 0.99]: %v", score.BotProbability)
		}
		if len(score.TopFeatures) != 3 {
			t.Fatalf("ожидали три признака, получили %d", len(score.TopFeatures))
		}
	}
	if scores[0].Confidence != domain.ConfidenceHigh {
		t.Fatalf("8+ постов с известным возрастом дают high, получили %s", scores[0].Confidence)
	}
	if scores[1].Confidence != domain.ConfidenceLow {
		t.Fatalf("один пост даёт low, получили %s", scores[1].Confidence)
	}
}

func TestFallbackBotScore(t *testing.T) {
	score := FallbackBotScore(domain.Author{UserID: "42", Handle: "target"})
	if score.BotProbability != 0.0 {
		t.Fatalf("фолбэк должен дать нулевую вероятность, получили %v", score.BotProbability)
	}
	if len(score.TopFeatures) != 1 || score.TopFeatures[0].Feature != "data_availability" {
		t.Fatalf("фолбэк объясняется недостатком данных: %+v", score.TopFeatures)
	}
}

func TestBuildAIContentScores(t *testing.T) {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	formal := makePost("a1", "writer",
		"Furthermore, the results are consistent. In conclusion, the data speaks for itself.",
		base, nil, nil)
	casual := makePost("a2", "person", "lol что это вообще было", base, nil, nil)
	withMedia := makePost("a3", "person", "look at this", base, nil, nil)
	withMedia.MediaURLs = []string{"https://pbs.example/img.jpg"}

	scores := BuildAIContentScores([]domain.Post{formal, casual, withMedia}, []string{"mentions unavailable: timeout"})
	if len(scores) != 3 {
		t.Fatalf("ожидали три оценки, получили %d", len(scores))
	}
	if scores[0].AITextProbability <= scores[1].AITextProbability {
		t.Fatalf("формальные маркеры должны поднять оценку: %v <= %v",
			scores[0].AITextProbability, scores[1].AITextProbability)
	}
	if scores[2].AIImageProbability != 0.2 {
		t.Fatalf("пост с медиа должен получить 0.2, получили %v", scores[2].AIImageProbability)
	}
	if scores[1].AIImageProbability != 0.0 {
		t.Fatalf("пост без медиа должен получить 0.0, получили %v", scores[1].AIImageProbability)
	}
	for _, score := range scores {
		if score.AITextProbability < 0 || score.AITextProbability > 0.99 {
			t.Fatalf("вероятность вне диапазона [0, 0.99]: %v", score.AITextProbability)
		}
		if len(score.ProvenanceNotes) == 0 {
			t.Fatalf("заметки о происхождении обязательны: %+v", score)
		}
		found := false
		for _, note := range score.ProvenanceNotes {
			if strings.Contains(note, "mentions unavailable") {
				found = true
			}
		}
		if !found {
			t.Fatalf("заметки сбора должны попасть в provenance: %v", score.ProvenanceNotes)
		}
	}
}

func TestBuildClaimClustersByHashtag(t *testing.T) {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	posts := []domain.Post{
		makePost("c1", "one", "big #election news", base, []string{"election"}, nil),
		makePost("c2", "two", "more #election updates", base.Add(time.Hour), []string{"election"}, nil),
		makePost("c3", "three", "unrelated gardening thoughts", base, nil, nil),
	}
	clusters := BuildClaimClusters(posts)
	if len(clusters) != 1 {
		t.Fatalf("ожидали один значимый кластер, получили %d", len(clusters))
	}
	cluster := clusters[0]
	if cluster.TopicLabel != "election" {
		t.Fatalf("тема берётся из первого хэштега, получили %s", cluster.TopicLabel)
	}
	if len(cluster.RepresentativeClaims) != 2 {
		t.Fatalf("ожидали два утверждения, получили %d", len(cluster.RepresentativeClaims))
	}
	if !strings.Contains(cluster.SpreadOverTime, "2026-01-10: 2") {
		t.Fatalf("распределение по дням неверно: %s", cluster.SpreadOverTime)
	}
}

func TestBuildClaimClustersFallbackTopic(t *testing.T) {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	posts := []domain.Post{
		makePost("c1", "one", "???", base, nil, nil),
	}
	clusters := BuildClaimClusters(posts)
	if len(clusters) != 1 {
		t.Fatalf("одиночный пост уходит в общий кластер, получили %d", len(clusters))
	}
	if clusters[0].TopicLabel != "general_discussion" {
		t.Fatalf("ожидали тему general_discussion, получили %s", clusters[0].TopicLabel)
	}
}

func TestEstimateSentiment(t *testing.T) {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	negative := []domain.Post{
		makePost("n1", "a", "this is a scam and a fraud", base, nil, nil),
	}
	if got := EstimateSentiment(negative); got != domain.SentimentNegative {
		t.Fatalf("ожидали negative, получили %s", got)
	}
	positive := []domain.Post{
		makePost("p1", "a", "great work, good support", base, nil, nil),
	}
	if got := EstimateSentiment(positive); got != domain.SentimentPositive {
		t.Fatalf("ожидали positive, получили %s", got)
	}
	neutral := []domain.Post{
		makePost("z1", "a", "the meeting starts at noon", base, nil, nil),
	}
	if got := EstimateSentiment(neutral); got != domain.SentimentNeutral {
		t.Fatalf("ожидали neutral, получили %s", got)
	}
}

func TestTopicKeyFromToken(t *testing.T) {
	post := makePost("t1", "a", "quantum computing is moving fast", time.Now().UTC(), nil, nil)
	if got := topicKey(post); got != "quantum" {
		t.Fatalf("ожидали первый значимый токен quantum, получили %s", got)
	}
}
