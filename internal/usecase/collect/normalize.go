package collect

import (
	"sort"
	"strings"
	"time"

	"x-intel/internal/adapters/xapi"
	"x-intel/internal/domain"
)

// Normalize превращает сырые твиты в канонические Post/Author.
// Записи без разрешимого id отбрасываются; выход отсортирован по
// возрастанию времени создания.
func Normalize(result Result) []domain.Post {
	posts := make([]domain.Post, 0, len(result.Tweets))

	for _, raw := range result.Tweets {
		if raw.ID == "" {
			continue
		}

		authorRaw, ok := result.UsersByID[raw.AuthorID]
		if !ok && raw.AuthorID == result.TargetUser.ID {
			authorRaw = result.TargetUser
		}

		createdAt := raw.CreatedAt
		if createdAt == "" {
			createdAt = domain.FormatPostTime(time.Now())
		}

		reply, quoted := extractReferences(raw)
		posts = append(posts, domain.Post{
			TweetID:   raw.ID,
			CreatedAt: createdAt,
			Text:      raw.Text,
			Lang:      langOrUnknown(raw.Lang),
			MediaURLs: extractMediaURLs(raw, result.MediaByKey),
			Metrics: domain.PostMetrics{
				Likes:   raw.PublicMetrics.LikeCount,
				Reposts: raw.PublicMetrics.RetweetCount,
				Replies: raw.PublicMetrics.ReplyCount,
				Views:   raw.PublicMetrics.ImpressionCount,
			},
			Author:        normalizeAuthor(raw.AuthorID, authorRaw),
			ReplyTo:       reply,
			QuotedTweetID: quoted,
			URLs:          extractURLs(raw.Entities),
			Hashtags:      extractHashtags(raw.Entities),
			Mentions:      extractMentions(raw.Entities),
		})
	}

	sort.SliceStable(posts, func(i, j int) bool {
		left, errL := domain.ParsePostTime(posts[i].CreatedAt)
		right, errR := domain.ParsePostTime(posts[j].CreatedAt)
		if errL != nil || errR != nil {
			return posts[i].CreatedAt < posts[j].CreatedAt
		}
		return left.Before(right)
	})
	return posts
}

func normalizeAuthor(authorID string, raw xapi.User) domain.Author {
	id := authorID
	if id == "" {
		id = "unknown"
	}
	handle := raw.Username
	if handle == "" {
		handle = "user_" + id
	}

	profileFields := make(map[string]string)
	for key, value := range map[string]string{
		"name":              raw.Name,
		"description":       raw.Description,
		"location":          raw.Location,
		"url":               raw.URL,
		"profile_image_url": raw.ProfileImageURL,
	} {
		if value != "" {
			profileFields[key] = value
		}
	}

	return domain.Author{
		UserID:        id,
		Handle:        handle,
		CreatedAt:     raw.CreatedAt,
		Followers:     raw.PublicMetrics.FollowersCount,
		Following:     raw.PublicMetrics.FollowingCount,
		Verified:      raw.Verified,
		ProfileFields: profileFields,
	}
}

// extractURLs предпочитает развёрнутые формы ссылок укороченным.
func extractURLs(entities *xapi.Entities) []string {
	if entities == nil {
		return nil
	}
	urls := make([]string, 0, len(entities.URLs))
	for _, item := range entities.URLs {
		switch {
		case item.ExpandedURL != "":
			urls = append(urls, item.ExpandedURL)
		case item.UnwoundURL != "":
			urls = append(urls, item.UnwoundURL)
		case item.URL != "":
			urls = append(urls, item.URL)
		}
	}
	return urls
}

func extractHashtags(entities *xapi.Entities) []string {
	if entities == nil {
		return nil
	}
	tags := make([]string, 0, len(entities.Hashtags))
	for _, item := range entities.Hashtags {
		if item.Tag != "" {
			tags = append(tags, strings.ToLower(item.Tag))
		}
	}
	return tags
}

func extractMentions(entities *xapi.Entities) []string {
	if entities == nil {
		return nil
	}
	mentions := make([]string, 0, len(entities.Mentions))
	for _, item := range entities.Mentions {
		if item.Username != "" {
			mentions = append(mentions, strings.ToLower(item.Username))
		}
	}
	return mentions
}

func extractMediaURLs(raw xapi.Tweet, mediaByKey map[string]xapi.Media) []string {
	if raw.Attachments == nil {
		return nil
	}
	urls := make([]string, 0, len(raw.Attachments.MediaKeys))
	for _, key := range raw.Attachments.MediaKeys {
		media, ok := mediaByKey[key]
		if !ok {
			continue
		}
		switch {
		case media.URL != "":
			urls = append(urls, media.URL)
		case media.PreviewImageURL != "":
			urls = append(urls, media.PreviewImageURL)
		}
	}
	return urls
}

func extractReferences(raw xapi.Tweet) (replyTo, quoted string) {
	for _, ref := range raw.ReferencedTweets {
		switch ref.Type {
		case "replied_to":
			replyTo = ref.ID
		case "quoted":
			quoted = ref.ID
		}
	}
	return replyTo, quoted
}

func langOrUnknown(lang string) string {
	if lang == "" {
		return "und"
	}
	return lang
}
