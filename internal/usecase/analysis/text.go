package analysis

import (
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"

	"x-intel/internal/domain"
)

var (
	urlRe     = regexp.MustCompile(`(?i)https?://\S+`)
	mentionRe = regexp.MustCompile(`@\w+`)
	nonWordRe = regexp.MustCompile(`[^\p{L}\p{N}_#\s]`)
	wsRe      = regexp.MustCompile(`\s+`)
)

// Стоп-слова под смешанный англо-турецкий корпус целевых аккаунтов.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "from": true, "your": true, "you": true, "are": true,
	"about": true, "have": true, "will": true, "into": true, "more": true,
	"just": true, "https": true, "http": true,
	"bir": true, "ve": true, "için": true, "ile": true, "çok": true,
	"daha": true, "gibi": true, "ama": true, "şu": true, "bu": true,
	"de": true, "da": true,
}

var positiveWords = []string{
	"good", "great", "support", "safe",
	"başarılı", "iyi", "tebrikler", "destek", "güvenli",
}

var negativeWords = []string{
	"scam", "fraud", "fake", "lie", "liar", "spam", "bot",
	"sahte", "dolandırıcılık", "yalan", "kötü", "rezalet",
}

var formalMarkers = []string{
	"furthermore", "moreover", "therefore", "overall", "in conclusion",
	"sonuç olarak", "ayrıca", "bununla birlikte",
}

// workingPost — внутреннее представление поста для кластеризации.
type workingPost struct {
	post       domain.Post
	createdAt  time.Time
	normalized string
	tokens     map[string]bool
}

func toWorkingPosts(posts []domain.Post) []workingPost {
	working := make([]workingPost, 0, len(posts))
	for _, post := range posts {
		createdAt, err := domain.ParsePostTime(post.CreatedAt)
		if err != nil {
			createdAt = time.Time{}
		}
		normalized := NormalizeText(post.Text)
		working = append(working, workingPost{
			post:       post,
			createdAt:  createdAt,
			normalized: normalized,
			tokens:     TokenSet(normalized),
		})
	}
	return working
}

// NormalizeText убирает ссылки и упоминания, отбрасывает всё кроме
// слов и хэштегов и схлопывает пробелы.
func NormalizeText(text string) string {
	stripped := urlRe.ReplaceAllString(strings.ToLower(text), " ")
	stripped = mentionRe.ReplaceAllString(stripped, " ")
	stripped = nonWordRe.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(wsRe.ReplaceAllString(stripped, " "))
}

// TokenSet строит множество значимых токенов: длиннее 2 символов,
// без стоп-слов.
func TokenSet(normalized string) map[string]bool {
	tokens := make(map[string]bool)
	for _, token := range strings.Fields(normalized) {
		if len([]rune(token)) > 2 && !stopwords[token] {
			tokens[token] = true
		}
	}
	return tokens
}

// Jaccard возвращает |A∩B| / |A∪B| для двух множеств токенов.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// CanonicalURL сводит ссылку к нижнему регистру host+path без
// завершающего слэша; используется для группировки.
func CanonicalURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	host := strings.ToLower(parsed.Host)
	path := strings.TrimRight(parsed.Path, "/")
	return host + path
}

func repeatedBigramRatio(words []string) float64 {
	if len(words) < 4 {
		return 0
	}
	counts := make(map[string]int)
	total := len(words) - 1
	for i := 0; i < total; i++ {
		counts[words[i]+" "+words[i+1]]++
	}
	repeated := 0
	for _, count := range counts {
		if count > 1 {
			repeated += count - 1
		}
	}
	return float64(repeated) / float64(total)
}

func stdDev(values []int) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0
	for _, value := range values {
		sum += value
	}
	mean := float64(sum) / float64(len(values))
	variance := 0.0
	for _, value := range values {
		diff := float64(value) - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func round3(value float64) float64 {
	return math.Round(value*1000) / 1000
}

func clampProbability(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 0.99 {
		return 0.99
	}
	return value
}
