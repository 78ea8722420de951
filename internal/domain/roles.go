package domain

// AccountRole описывает роль аккаунта внутри координационного кластера.
type AccountRole string

const (
	// RoleSeed — автор самого раннего поста кластера.
	RoleSeed AccountRole = "seed"
	// RoleBridge — активный участник, состоящий и в других кластерах.
	RoleBridge AccountRole = "bridge"
	// RoleAmplifier — остальные заметные участники кластера.
	RoleAmplifier AccountRole = "amplifier"
)

// Confidence описывает грубую уверенность эвристической оценки.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Sentiment описывает грубую тональность группы постов.
type Sentiment string

const (
	SentimentNeutral  Sentiment = "neutral"
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentMixed    Sentiment = "mixed"
)

// StreamKind описывает один из трёх потоков сбора.
type StreamKind string

const (
	StreamTargetPosts StreamKind = "target_tweets"
	StreamMentions    StreamKind = "mentions"
	StreamSearch      StreamKind = "search_recent"
)
