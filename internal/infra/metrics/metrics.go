package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	SubscriptionRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_requests_total",
		Help: "Запросы жизненного цикла подписки",
	}, []string{"action", "status"})

	DispatchRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_runs_total",
		Help: "Запуски ежедневной рассылки по исходу",
	}, []string{"outcome"})

	DispatchDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_deliveries_total",
		Help: "Попытки доставки писем рассылки",
	}, []string{"status"})

	DispatchRunSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_run_seconds",
		Help:    "Длительность одного запуска рассылки",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		SubscriptionRequests,
		DispatchRuns,
		DispatchDeliveries,
		DispatchRunSeconds,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveSubscription учитывает операцию жизненного цикла подписки.
func ObserveSubscription(action string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SubscriptionRequests.WithLabelValues(action, status).Inc()
}

// IncDelivery учитывает результат доставки одному получателю.
func IncDelivery(status string) {
	DispatchDeliveries.WithLabelValues(status).Inc()
}

// ObserveDispatchRun учитывает завершённый запуск рассылки.
func ObserveDispatchRun(outcome string, start time.Time) {
	DispatchRuns.WithLabelValues(outcome).Inc()
	DispatchRunSeconds.Observe(time.Since(start).Seconds())
}
