package xapi

// UserMetrics содержит публичные счётчики аккаунта.
type UserMetrics struct {
	FollowersCount int `json:"followers_count"`
	FollowingCount int `json:"following_count"`
}

// User описывает сырой профиль из X API.
type User struct {
	ID              string      `json:"id"`
	Username        string      `json:"username"`
	Name            string      `json:"name,omitempty"`
	CreatedAt       string      `json:"created_at,omitempty"`
	Verified        bool        `json:"verified,omitempty"`
	Description     string      `json:"description,omitempty"`
	Location        string      `json:"location,omitempty"`
	URL             string      `json:"url,omitempty"`
	ProfileImageURL string      `json:"profile_image_url,omitempty"`
	PublicMetrics   UserMetrics `json:"public_metrics"`
}

// TweetMetrics содержит публичные счётчики твита.
type TweetMetrics struct {
	LikeCount       int `json:"like_count"`
	RetweetCount    int `json:"retweet_count"`
	ReplyCount      int `json:"reply_count"`
	ImpressionCount int `json:"impression_count"`
}

// URLEntity описывает ссылку твита: укороченную и развёрнутую формы.
type URLEntity struct {
	URL         string `json:"url,omitempty"`
	ExpandedURL string `json:"expanded_url,omitempty"`
	UnwoundURL  string `json:"unwound_url,omitempty"`
}

// TagEntity описывает хэштег.
type TagEntity struct {
	Tag string `json:"tag"`
}

// MentionEntity описывает упоминание аккаунта.
type MentionEntity struct {
	Username string `json:"username"`
}

// Entities группирует извлечённые X сущности твита.
type Entities struct {
	URLs     []URLEntity     `json:"urls,omitempty"`
	Hashtags []TagEntity     `json:"hashtags,omitempty"`
	Mentions []MentionEntity `json:"mentions,omitempty"`
}

// ReferencedTweet описывает ссылку на другой твит (reply/quote).
type ReferencedTweet struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Attachments перечисляет ключи медиавложений.
type Attachments struct {
	MediaKeys []string `json:"media_keys,omitempty"`
}

// Tweet описывает сырой твит из X API.
type Tweet struct {
	ID               string            `json:"id"`
	AuthorID         string            `json:"author_id"`
	CreatedAt        string            `json:"created_at,omitempty"`
	Text             string            `json:"text"`
	Lang             string            `json:"lang,omitempty"`
	PublicMetrics    TweetMetrics      `json:"public_metrics"`
	Entities         *Entities         `json:"entities,omitempty"`
	ReferencedTweets []ReferencedTweet `json:"referenced_tweets,omitempty"`
	Attachments      *Attachments      `json:"attachments,omitempty"`
}

// Media описывает медиавложение из expansions.
type Media struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type,omitempty"`
	URL             string `json:"url,omitempty"`
	PreviewImageURL string `json:"preview_image_url,omitempty"`
}

// Page — одна страница потока твитов вместе с expansions.
type Page struct {
	Tweets    []Tweet
	Users     []User
	Media     []Media
	NextToken string
}

// PageRequest задаёт параметры запроса одной страницы.
type PageRequest struct {
	Path            string
	Query           string
	StartTime       string
	EndTime         string
	MaxResults      int
	PaginationToken string
}
