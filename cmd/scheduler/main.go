package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"fx-digest/internal/app"
	"fx-digest/internal/infra/config"
	applog "fx-digest/internal/infra/log"
	"fx-digest/internal/infra/metrics"
	"fx-digest/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	redisClient, err := app.OpenRedis(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к Redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	dispatchQueue, closeQueue, err := app.OpenQueue(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось инициализировать очередь")
	}
	defer closeQueue()

	scheduler := schedule.NewService(dispatchQueue, cfg.Location(), cfg.PublicBaseURL, applog.Component(logger, "scheduler"))
	if err := scheduler.Start(ctx, cfg.Dispatch.Cron); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось запустить расписание")
	}
	logger.Info().Msg("scheduler: остановлен")
}
