package domain

// PostMetrics содержит метрики вовлечённости поста.
type PostMetrics struct {
	Likes   int `json:"likes"`
	Reposts int `json:"reposts"`
	Replies int `json:"replies"`
	Views   int `json:"views"`
}

// Author описывает нормализованного автора поста.
type Author struct {
	UserID        string            `json:"user_id"`
	Handle        string            `json:"handle"`
	CreatedAt     string            `json:"created_at"`
	Followers     int               `json:"followers"`
	Following     int               `json:"following"`
	Verified      bool              `json:"verified"`
	ProfileFields map[string]string `json:"profile_fields,omitempty"`
}

// Post представляет нормализованный пост из X.
// Создаётся один раз при нормализации и дальше не изменяется.
type Post struct {
	TweetID       string      `json:"tweet_id"`
	CreatedAt     string      `json:"created_at"`
	Text          string      `json:"text"`
	Lang          string      `json:"lang"`
	MediaURLs     []string    `json:"media_urls,omitempty"`
	Metrics       PostMetrics `json:"metrics"`
	Author        Author      `json:"author"`
	ReplyTo       string      `json:"reply_to,omitempty"`
	QuotedTweetID string      `json:"quoted_tweet_id,omitempty"`
	URLs          []string    `json:"urls,omitempty"`
	Hashtags      []string    `json:"hashtags,omitempty"`
	Mentions      []string    `json:"mentions,omitempty"`
}

// ClusterAccount описывает заметный аккаунт внутри кластера.
type ClusterAccount struct {
	UserID   string      `json:"user_id"`
	Handle   string      `json:"handle"`
	RoleHint AccountRole `json:"role_hint"`
}

// ClusterPost описывает репрезентативный пост кластера.
type ClusterPost struct {
	TweetID   string   `json:"tweet_id"`
	Text      string   `json:"text"`
	CreatedAt string   `json:"created_at"`
	URLs      []string `json:"urls,omitempty"`
	Hashtags  []string `json:"hashtags,omitempty"`
	Mentions  []string `json:"mentions,omitempty"`
}

// CoordinatedCluster описывает обнаруженный кластер скоординированной активности.
type CoordinatedCluster struct {
	ClusterID           string           `json:"cluster_id"`
	Size                int              `json:"size"`
	SharedHashtags      []string         `json:"shared_hashtags,omitempty"`
	SharedURLs          []string         `json:"shared_urls,omitempty"`
	TimeBurstScore      float64          `json:"time_burst_score"`
	TextSimilarityScore float64          `json:"text_similarity_score"`
	TopAccounts         []ClusterAccount `json:"top_accounts,omitempty"`
	TopPosts            []ClusterPost    `json:"top_posts,omitempty"`
}

// AccountMembership сопоставляет хэндл аккаунта множеству кластеров,
// в которых он участвует. Обратная ссылка, а не владение.
type AccountMembership map[string]map[string]bool

// Add отмечает участие аккаунта в кластере.
func (m AccountMembership) Add(handle, clusterID string) {
	if m[handle] == nil {
		m[handle] = make(map[string]bool)
	}
	m[handle][clusterID] = true
}

// Count возвращает число кластеров аккаунта.
func (m AccountMembership) Count(handle string) int {
	return len(m[handle])
}

// Shares сообщает, есть ли у двух аккаунтов общий кластер.
func (m AccountMembership) Shares(a, b string) bool {
	for id := range m[a] {
		if m[b][id] {
			return true
		}
	}
	return false
}

// CentralAccount описывает центральный узел графа амплификации.
type CentralAccount struct {
	Handle string  `json:"handle"`
	Score  float64 `json:"score"`
}

// GraphMetrics содержит метрики графа амплификации.
type GraphMetrics struct {
	Density         float64          `json:"density"`
	Modularity      float64          `json:"modularity"`
	CentralAccounts []CentralAccount `json:"central_accounts"`
}

// NetworkSignals объединяет сетевые сигналы координации.
type NetworkSignals struct {
	CoordinatedClusters []CoordinatedCluster `json:"coordinated_clusters"`
	GraphMetrics        GraphMetrics         `json:"amplification_graph_metrics"`
}

// BotFeature объясняет один признак бот-оценки.
type BotFeature struct {
	Feature      string `json:"feature"`
	Value        string `json:"value"`
	WhyItMatters string `json:"why_it_matters"`
}

// BotScore содержит вероятность бот-активности аккаунта.
type BotScore struct {
	UserID         string       `json:"user_id"`
	Handle         string       `json:"handle"`
	BotProbability float64      `json:"bot_probability"`
	TopFeatures    []BotFeature `json:"top_features"`
	Confidence     Confidence   `json:"confidence"`
}

// AIContentScore содержит вероятность ИИ-авторства поста.
type AIContentScore struct {
	TweetID            string     `json:"tweet_id"`
	AITextProbability  float64    `json:"ai_text_probability"`
	AIImageProbability float64    `json:"ai_image_probability"`
	ProvenanceNotes    []string   `json:"provenance_notes"`
	Confidence         Confidence `json:"confidence"`
}

// ClaimCluster описывает нарративный кластер постов.
type ClaimCluster struct {
	ClusterID            string    `json:"cluster_id"`
	TopicLabel           string    `json:"topic_label"`
	RepresentativeClaims []string  `json:"representative_claims"`
	SpreadOverTime       string    `json:"spread_over_time"`
	KeyAccounts          []string  `json:"key_accounts"`
	Sentiment            Sentiment `json:"sentiment"`
}

// UserContext передаётся без изменений в генератор отчётов.
type UserContext struct {
	Sector            string `json:"sector"`
	RiskTolerance     string `json:"risk_tolerance"`
	PreferredLanguage string `json:"preferred_language"`
	UserProfile       string `json:"user_profile"`
	LegalPRCapacity   string `json:"legal_pr_capacity"`
	Goal              string `json:"goal"`
}

// DefaultUserContext возвращает контекст по умолчанию.
func DefaultUserContext() UserContext {
	return UserContext{
		Sector:            "unknown",
		RiskTolerance:     "medium",
		PreferredLanguage: "tr",
		UserProfile:       "brand",
		LegalPRCapacity:   "basic",
		Goal:              "reputation_protection",
	}
}

// IntelReport — итоговый контракт данных для генерации trust-отчёта.
type IntelReport struct {
	Target          string           `json:"target"`
	Window          string           `json:"window"`
	Posts           []Post           `json:"posts"`
	NetworkSignals  NetworkSignals   `json:"network_signals"`
	BotScores       []BotScore       `json:"bot_scores"`
	AIContentScores []AIContentScore `json:"ai_content_scores"`
	ClaimClusters   []ClaimCluster   `json:"claim_clusters"`
	UserContext     UserContext      `json:"user_context"`
}

// RequestPlan описывает предварительную оценку стоимости сбора.
type RequestPlan struct {
	EstimatedRequests   int  `json:"estimated_requests"`
	WorstCaseRequests   int  `json:"worst_case_requests"`
	PageCap             int  `json:"page_cap"`
	TargetLimit         int  `json:"target_limit"`
	MentionLimit        int  `json:"mention_limit"`
	InteractionLimit    int  `json:"interaction_limit"`
	GuardEnabled        bool `json:"guard_enabled"`
	MaxRequestsPerRun   int  `json:"max_requests_per_run"`
	WithinBudget        bool `json:"within_budget"`
	RecommendedMaxPosts int  `json:"recommended_max_posts"`
}

// Watch описывает периодическое наблюдение за целью.
type Watch struct {
	ID          int64  `json:"id"`
	Target      string `json:"target"`
	Query       string `json:"query,omitempty"`
	WindowDays  int    `json:"window_days"`
	MaxPosts    int    `json:"max_posts"`
	IntervalMin int    `json:"interval_minutes"`
	NextRunAt   string `json:"next_run_at,omitempty"`
}
