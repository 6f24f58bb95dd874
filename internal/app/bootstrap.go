// Package app собирает адаптеры по конфигурации; общая часть всех бинарников.
package app

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fx-digest/internal/adapters/mailer"
	"fx-digest/internal/adapters/repo"
	"fx-digest/internal/domain"
	"fx-digest/internal/infra/cache"
	"fx-digest/internal/infra/config"
	"fx-digest/internal/infra/db"
	"fx-digest/internal/infra/queue"
)

// Store объединяет репозитории, которые реализует каждый драйвер хранилища.
type Store interface {
	domain.SubscriberRepo
	domain.ReadingRepo
	domain.DeliveryRepo
}

// OpenStore подключает хранилище по STORE_DRIVER.
func OpenStore(cfg config.AppConfig) (Store, func(), error) {
	switch cfg.Store.Driver {
	case "postgres", "":
		if cfg.Store.PGDSN == "" {
			return nil, nil, fmt.Errorf("PG_DSN is required for postgres store")
		}
		pool, err := db.Connect(cfg.Store.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return repo.NewPostgres(pool), pool.Close, nil
	case "sqlite":
		conn, err := db.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store, err := repo.NewSQLite(conn)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		return store, func() { _ = conn.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// OpenRedis подключает Redis, если задан REDIS_ADDR; иначе возвращает nil.
func OpenRedis(cfg config.AppConfig) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client, err := cache.NewClient(cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// OpenQueue создаёт очередь задач рассылки по QUEUE_DRIVER.
func OpenQueue(cfg config.AppConfig, redisClient *redis.Client) (domain.DispatchQueue, func(), error) {
	switch cfg.Queues.Driver {
	case "redis", "":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("REDIS_ADDR is required for redis queue")
		}
		return queue.NewRedisDispatchQueue(redisClient, cfg.Queues.Dispatch), func() {}, nil
	case "rabbitmq":
		q, err := queue.NewRabbitDispatchQueue(cfg.RabbitURL, cfg.Queues.Dispatch)
		if err != nil {
			return nil, nil, err
		}
		return q, func() { _ = q.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue driver %q", cfg.Queues.Driver)
	}
}

// NewTransport выбирает транспорт писем по MAIL_DRIVER.
func NewTransport(cfg config.AppConfig, logger zerolog.Logger) (domain.Transport, error) {
	switch cfg.Mail.Driver {
	case "smtp", "":
		return mailer.NewSMTP(mailer.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.Mail.From,
			FromName: cfg.Mail.FromName,
		}, logger), nil
	case "log":
		return mailer.NewLog(logger), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Mail.Driver)
	}
}

// Locker возвращает распределённую блокировку при наличии Redis.
func Locker(redisClient *redis.Client) domain.Locker {
	if redisClient == nil {
		return nil
	}
	return cache.NewRedisLocker(redisClient)
}
