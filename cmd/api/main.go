package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fx-digest/internal/adapters/links"
	"fx-digest/internal/adapters/render"
	"fx-digest/internal/adapters/web"
	"fx-digest/internal/app"
	"fx-digest/internal/infra/config"
	httpinfra "fx-digest/internal/infra/http"
	applog "fx-digest/internal/infra/log"
	"fx-digest/internal/infra/metrics"
	"fx-digest/internal/usecase/schedule"
	"fx-digest/internal/usecase/subscription"
	"fx-digest/internal/usecase/token"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := app.OpenStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к хранилищу")
	}
	defer closeStore()

	transport, err := app.NewTransport(cfg, applog.Component(logger, "mailer"))
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось настроить отправку писем")
	}

	linkBuilder, err := links.New(cfg.PublicBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: некорректный PUBLIC_BASE_URL")
	}

	subscriptions := subscription.NewService(store, token.NewIssuer(), render.New(cfg.AssetsBaseURL), transport, applog.Component(logger, "subscription"))

	var trigger web.DispatchTrigger
	redisClient, err := app.OpenRedis(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к Redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	dispatchQueue, closeQueue, err := app.OpenQueue(cfg, redisClient)
	if err != nil {
		logger.Warn().Err(err).Msg("api: очередь рассылки недоступна, ручной запуск отключён")
	} else {
		defer closeQueue()
		trigger = schedule.NewService(dispatchQueue, cfg.Location(), cfg.PublicBaseURL, applog.Component(logger, "schedule"))
	}

	server := httpinfra.NewServer(logger)
	web.NewHandler(subscriptions, trigger, linkBuilder.Activation(), httpinfra.AdminTokenMiddleware(cfg.Dispatch.AdminToken), applog.Component(logger, "web")).
		Mount(server.Router)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api: ошибка остановки сервера")
		}
	}()

	if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
		logger.Fatal().Err(err).Msg("api: сервер остановлен с ошибкой")
	}
	logger.Info().Msg("api: остановлен")
}
