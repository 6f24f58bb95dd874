package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"fx-digest/internal/domain"
)

// LockKey — ключ блокировки, гарантирующий единственный запуск рассылки.
const LockKey = "dispatch:run"

type dailyDispatcher interface {
	RunDailyDispatch(ctx context.Context, window domain.DayWindow, deactivationLink domain.LinkFunc) (domain.DispatchReport, error)
}

// LinkFactory строит функцию ссылок отписки для базового URL задачи.
type LinkFactory func(baseURL string) (domain.LinkFunc, error)

// Worker читает задачи из очереди и выполняет рассылку.
type Worker struct {
	queue      domain.DispatchQueue
	locker     domain.Locker
	service    dailyDispatcher
	links      LinkFactory
	loc        *time.Location
	lockTTL    time.Duration
	retryDelay time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

// NewWorker создаёт обработчик очереди. locker может быть nil, тогда
// единственность запуска обеспечивает планировщик.
func NewWorker(queue domain.DispatchQueue, locker domain.Locker, service dailyDispatcher, links LinkFactory, loc *time.Location, lockTTL time.Duration, logger zerolog.Logger) *Worker {
	if loc == nil {
		loc = time.UTC
	}
	return &Worker{queue: queue, locker: locker, service: service, links: links, loc: loc, lockTTL: lockTTL, retryDelay: time.Second, now: time.Now, log: logger}
}

// Run обрабатывает задачи до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("dispatcher: ошибка чтения очереди")
			if !w.pause(ctx) {
				return
			}
			continue
		}

		jobLog := w.log.With().Str("job_id", job.ID).Str("day", job.Day).Str("cause", string(job.Cause)).Logger()
		success := w.handle(ctx, job, jobLog)
		if err := ack(success); err != nil {
			jobLog.Error().Err(err).Bool("success", success).Msg("dispatcher: не удалось подтвердить задачу")
		}
		// Возвращённая задача сразу снова придёт из очереди.
		if !success && !w.pause(ctx) {
			return
		}
	}
}

// pause ждёт retryDelay; false означает, что ctx отменён.
func (w *Worker) pause(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(w.retryDelay):
		return true
	}
}

// handle возвращает false, если задачу нужно вернуть в очередь.
func (w *Worker) handle(ctx context.Context, job domain.DispatchJob, jobLog zerolog.Logger) bool {
	window := domain.WindowFor(w.now().In(w.loc))
	if job.Day != "" && job.Day != domain.DateKey(window.Today()) {
		jobLog.Warn().Msg("dispatcher: задача относится к другому дню, пропускаем")
		return true
	}

	if w.locker != nil {
		release, ok, err := w.locker.Acquire(ctx, LockKey, w.lockTTL)
		if err != nil {
			jobLog.Error().Err(err).Msg("dispatcher: не удалось взять блокировку")
			return false
		}
		if !ok {
			jobLog.Info().Msg("dispatcher: рассылка уже выполняется, пропускаем задачу")
			return true
		}
		defer release()
	}

	links, err := w.links(job.BaseURL)
	if err != nil {
		jobLog.Error().Err(err).Str("base_url", job.BaseURL).Msg("dispatcher: некорректный базовый URL")
		return true
	}

	report, err := w.service.RunDailyDispatch(ctx, window, links)
	if err != nil {
		jobLog.Error().Err(err).Int("sent", report.Sent).Msg("dispatcher: рассылка завершилась ошибкой")
		return false
	}
	jobLog.Info().
		Int("eligible", report.Eligible).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Bool("no_data", report.NoData).
		Msg("dispatcher: задача выполнена")
	return true
}
