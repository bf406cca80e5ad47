package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Discord struct {
		Token   string `envconfig:"DISCORD_TOKEN"`
		AppID   string `envconfig:"DISCORD_APP_ID"`
		GuildID string `envconfig:"DISCORD_GUILD_ID"`
	} `envconfig:""`

	Lastfm struct {
		APIKey      string `envconfig:"LASTFM_API_KEY"`
		Secret      string `envconfig:"LASTFM_SECRET"`
		PageDelayMS int    `envconfig:"LASTFM_PAGE_DELAY_MS" default:"1200"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Queues struct {
		Announce string `envconfig:"ANNOUNCE_QUEUE_KEY" default:"announce_jobs"`
	} `envconfig:""`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
