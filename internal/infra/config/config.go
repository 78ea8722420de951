package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"UTC"`
	Port   int    `envconfig:"PORT" default:"8080"`

	XAPI struct {
		BaseURL        string        `envconfig:"X_API_BASE_URL" default:"https://api.x.com/2"`
		BearerToken    string        `envconfig:"X_BEARER_TOKEN"`
		MaxPages       int           `envconfig:"X_MAX_PAGES" default:"3"`
		MaxRequests    int           `envconfig:"X_MAX_REQUESTS_PER_RUN" default:"25"`
		CostGuard      bool          `envconfig:"X_COST_GUARD_ENABLED" default:"true"`
		RequestTimeout time.Duration `envconfig:"X_REQUEST_TIMEOUT" default:"15s"`
		RPS            int           `envconfig:"X_API_RPS" default:"5"`
	} `envconfig:""`

	Intel struct {
		WindowDays int `envconfig:"INTEL_WINDOW_DAYS" default:"14"`
		MaxPosts   int `envconfig:"INTEL_MAX_POSTS" default:"250"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Queues struct {
		Intel string `envconfig:"INTEL_QUEUE_KEY" default:"intel_jobs"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
