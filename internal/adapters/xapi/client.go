package xapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"x-intel/internal/domain"
	"x-intel/internal/infra/metrics"
)

const defaultBaseURL = "https://api.x.com/2"

const (
	tweetFields = "id,author_id,created_at,lang,public_metrics,entities,referenced_tweets,conversation_id,attachments"
	userFields  = "id,username,created_at,verified,description,location,url,public_metrics,name,profile_image_url"
	mediaFields = "media_key,type,url,preview_image_url"
	expansions  = "author_id,attachments.media_keys"
)

// Config задаёт параметры клиента X API.
type Config struct {
	BaseURL     string
	BearerToken string
	Timeout     time.Duration
	RPS         int
}

// Client выполняет запросы к X API v2 с bearer-авторизацией.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	limiter *rate.Limiter
}

// NewClient создаёт клиента X API.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		token:   cfg.BearerToken,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

type userPayload struct {
	Data *User `json:"data"`
}

type pagePayload struct {
	Data     []Tweet `json:"data"`
	Includes struct {
		Users []User  `json:"users"`
		Media []Media `json:"media"`
	} `json:"includes"`
	Meta struct {
		NextToken string `json:"next_token"`
	} `json:"meta"`
}

// UserByHandle разрешает хэндл в профиль аккаунта.
func (c *Client) UserByHandle(ctx context.Context, handle string) (User, error) {
	params := url.Values{}
	params.Set("user.fields", userFields)
	var payload userPayload
	err := c.getJSON(ctx, "user_lookup", "/users/by/username/"+url.PathEscape(handle), params, &payload)
	if err != nil {
		var upstream *domain.UpstreamError
		if errors.As(err, &upstream) && upstream.StatusCode == http.StatusNotFound {
			return User{}, domain.ErrTargetNotFound
		}
		return User{}, err
	}
	if payload.Data == nil || payload.Data.ID == "" {
		return User{}, domain.ErrTargetNotFound
	}
	return *payload.Data, nil
}

// FetchPage загружает одну страницу твитов с expansions.
func (c *Client) FetchPage(ctx context.Context, kind domain.StreamKind, req PageRequest) (Page, error) {
	params := url.Values{}
	params.Set("tweet.fields", tweetFields)
	params.Set("user.fields", userFields)
	params.Set("media.fields", mediaFields)
	params.Set("expansions", expansions)
	if req.MaxResults > 0 {
		params.Set("max_results", strconv.Itoa(req.MaxResults))
	}
	if req.Query != "" {
		params.Set("query", req.Query)
	}
	if req.StartTime != "" {
		params.Set("start_time", req.StartTime)
	}
	if req.EndTime != "" {
		params.Set("end_time", req.EndTime)
	}
	if req.PaginationToken != "" {
		params.Set("pagination_token", req.PaginationToken)
	}

	var payload pagePayload
	if err := c.getJSON(ctx, string(kind), req.Path, params, &payload); err != nil {
		return Page{}, err
	}
	return Page{
		Tweets:    payload.Data,
		Users:     payload.Includes.Users,
		Media:     payload.Includes.Media,
		NextToken: payload.Meta.NextToken,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, operation, path string, params url.Values, out any) error {
	if c.token == "" {
		return domain.ErrNoBearerToken
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", "x-intel-collector/0.1")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveNetworkRequest("x_api", operation, path, start, err)
	if err != nil {
		return fmt.Errorf("запрос к X API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("чтение ответа X API: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &domain.UpstreamError{StatusCode: resp.StatusCode, Detail: extractErrorDetail(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("разбор ответа X API: %w", err)
	}
	return nil
}

// extractErrorDetail достаёт человекочитаемое описание из тела ошибки.
func extractErrorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
		Errors []struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Title != "" {
			return payload.Title
		}
		if len(payload.Errors) > 0 {
			if payload.Errors[0].Message != "" {
				return payload.Errors[0].Message
			}
			if payload.Errors[0].Detail != "" {
				return payload.Errors[0].Detail
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 300 {
		text = text[:300]
	}
	return text
}
