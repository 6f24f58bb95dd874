package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"America/Managua"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
	AssetsBaseURL string `envconfig:"ASSETS_BASE_URL" default:"https://javanicaragua.org/wp-content/uploads/2019/10/"`

	Store struct {
		Driver     string `envconfig:"STORE_DRIVER" default:"postgres"`
		PGDSN      string `envconfig:"PG_DSN"`
		SQLitePath string `envconfig:"SQLITE_PATH" default:"fx-digest.db"`
	} `envconfig:""`

	RedisAddr string `envconfig:"REDIS_ADDR"`
	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Queues struct {
		Driver   string `envconfig:"QUEUE_DRIVER" default:"redis"`
		Dispatch string `envconfig:"DISPATCH_QUEUE_KEY" default:"dispatch_jobs"`
	} `envconfig:""`

	SMTP struct {
		Host     string `envconfig:"SMTP_HOST" default:"localhost"`
		Port     int    `envconfig:"SMTP_PORT" default:"25"`
		Username string `envconfig:"SMTP_USERNAME"`
		Password string `envconfig:"SMTP_PASSWORD"`
	} `envconfig:""`

	Mail struct {
		Driver     string  `envconfig:"MAIL_DRIVER" default:"smtp"`
		From       string  `envconfig:"MAIL_FROM" default:"no-reply@localhost"`
		FromName   string  `envconfig:"MAIL_FROM_NAME" default:"Tipo de Cambio"`
		RatePerSec float64 `envconfig:"MAIL_RATE_PER_SEC" default:"5"`
	} `envconfig:""`

	Dispatch struct {
		Cron       string        `envconfig:"DISPATCH_CRON" default:"*/30 7-18 * * *"`
		LockTTL    time.Duration `envconfig:"DISPATCH_LOCK_TTL" default:"30m"`
		AdminToken string        `envconfig:"ADMIN_TOKEN"`
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

// Location возвращает часовой пояс, в котором считаются календарные дни.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return time.UTC
	}
	return loc
}
