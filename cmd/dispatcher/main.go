package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"fx-digest/internal/adapters/links"
	"fx-digest/internal/adapters/render"
	"fx-digest/internal/app"
	"fx-digest/internal/domain"
	"fx-digest/internal/infra/config"
	applog "fx-digest/internal/infra/log"
	"fx-digest/internal/infra/metrics"
	"fx-digest/internal/usecase/dispatch"
	"fx-digest/internal/usecase/ledger"
	"fx-digest/internal/usecase/rates"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	store, closeStore, err := app.OpenStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("dispatcher: нет подключения к хранилищу")
	}
	defer closeStore()

	redisClient, err := app.OpenRedis(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("dispatcher: нет подключения к Redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	dispatchQueue, closeQueue, err := app.OpenQueue(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("dispatcher: не удалось инициализировать очередь")
	}
	defer closeQueue()

	transport, err := app.NewTransport(cfg, applog.Component(logger, "mailer"))
	if err != nil {
		logger.Fatal().Err(err).Msg("dispatcher: не удалось настроить отправку писем")
	}

	loc := cfg.Location()
	service := dispatch.NewService(
		ledger.New(store, loc, applog.Component(logger, "ledger")),
		rates.NewAggregator(store, applog.Component(logger, "rates")),
		render.New(cfg.AssetsBaseURL),
		transport,
		applog.Component(logger, "dispatch"),
		dispatch.WithRateLimit(cfg.Mail.RatePerSec),
	)

	linkFactory := func(baseURL string) (domain.LinkFunc, error) {
		if baseURL == "" {
			baseURL = cfg.PublicBaseURL
		}
		return links.DeactivationFor(baseURL)
	}

	locker := app.Locker(redisClient)
	if locker == nil {
		logger.Warn().Msg("dispatcher: REDIS_ADDR не задан, запускайте не более одного экземпляра")
	}
	worker := dispatch.NewWorker(dispatchQueue, locker, service, linkFactory, loc, cfg.Dispatch.LockTTL, applog.Component(logger, "worker"))

	logger.Info().Msg("dispatcher: запуск обработки очереди")
	worker.Run(ctx)
	logger.Info().Msg("dispatcher: остановлен")
}
