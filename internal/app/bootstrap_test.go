package app

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"fx-digest/internal/adapters/mailer"
	"fx-digest/internal/infra/config"
)

func TestOpenStoreSQLite(t *testing.T) {
	var cfg config.AppConfig
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "fx.db")

	store, closeStore, err := OpenStore(cfg)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	defer closeStore()
	if store == nil {
		t.Fatal("ожидали хранилище")
	}
}

func TestOpenStoreErrors(t *testing.T) {
	var cfg config.AppConfig
	cfg.Store.Driver = "postgres"
	if _, _, err := OpenStore(cfg); err == nil {
		t.Fatal("без PG_DSN ожидали ошибку")
	}
	cfg.Store.Driver = "mongo"
	if _, _, err := OpenStore(cfg); err == nil {
		t.Fatal("для неизвестного драйвера ожидали ошибку")
	}
}

func TestOpenQueueRequiresRedis(t *testing.T) {
	var cfg config.AppConfig
	cfg.Queues.Driver = "redis"
	if _, _, err := OpenQueue(cfg, nil); err == nil {
		t.Fatal("без Redis ожидали ошибку")
	}
	cfg.Queues.Driver = "kafka"
	if _, _, err := OpenQueue(cfg, nil); err == nil {
		t.Fatal("для неизвестного драйвера ожидали ошибку")
	}
}

func TestNewTransport(t *testing.T) {
	var cfg config.AppConfig
	cfg.Mail.Driver = "log"
	transport, err := NewTransport(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if _, ok := transport.(*mailer.Log); !ok {
		t.Fatalf("ожидали mailer.Log, получили %T", transport)
	}
	cfg.Mail.Driver = "pigeon"
	if _, err := NewTransport(cfg, zerolog.Nop()); err == nil {
		t.Fatal("для неизвестного драйвера ожидали ошибку")
	}
	if Locker(nil) != nil {
		t.Fatal("без Redis блокировка не нужна")
	}
}
