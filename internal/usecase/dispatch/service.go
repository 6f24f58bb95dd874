package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"fx-digest/internal/domain"
	"fx-digest/internal/infra/metrics"
)

// DailySubject — тема ежедневного письма.
const DailySubject = "Datos de la compra/venta de dolares en los Bancos Comerciales"

const dateLabelLayout = "02-01-2006"

type deliveryLedger interface {
	FindEligible(ctx context.Context, window domain.DayWindow) ([]domain.Subscriber, error)
	Record(ctx context.Context, sub domain.Subscriber, at time.Time) error
}

type comparisonBuilder interface {
	BuildComparison(ctx context.Context, today, yesterday time.Time) (domain.Comparison, bool, error)
}

// Service выполняет ежедневную рассылку.
type Service struct {
	ledger     deliveryLedger
	aggregator comparisonBuilder
	renderer   domain.Renderer
	transport  domain.Transport
	limiter    *rate.Limiter
	now        func() time.Time
	log        zerolog.Logger
}

// Option настраивает Service.
type Option func(*Service)

// WithRateLimit ограничивает число отправок в секунду. perSecond <= 0 снимает ограничение.
func WithRateLimit(perSecond float64) Option {
	return func(s *Service) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithClock подменяет источник времени для записей о доставке.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService создаёт сервис рассылки.
func NewService(ledger deliveryLedger, aggregator comparisonBuilder, renderer domain.Renderer, transport domain.Transport, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		ledger:     ledger,
		aggregator: aggregator,
		renderer:   renderer,
		transport:  transport,
		now:        time.Now,
		log:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunDailyDispatch отправляет данные дня всем подписчикам, ещё не получившим письмо в окне.
// Ошибка отдельного получателя не прерывает запуск; ошибка возвращается только при сбое
// хранилища или отмене ctx.
func (s *Service) RunDailyDispatch(ctx context.Context, window domain.DayWindow, deactivationLink domain.LinkFunc) (domain.DispatchReport, error) {
	start := time.Now()
	var report domain.DispatchReport

	eligible, err := s.ledger.FindEligible(ctx, window)
	if err != nil {
		metrics.ObserveDispatchRun("error", start)
		return report, fmt.Errorf("выборка получателей: %w", err)
	}
	report.Eligible = len(eligible)
	if len(eligible) == 0 {
		s.log.Info().Str("day", domain.DateKey(window.Today())).Msg("нет активных подписчиков, ожидающих письмо")
		metrics.ObserveDispatchRun("no_recipients", start)
		return report, nil
	}

	comparison, ok, err := s.aggregator.BuildComparison(ctx, window.Today(), window.Yesterday())
	if err != nil {
		metrics.ObserveDispatchRun("error", start)
		return report, fmt.Errorf("сравнение котировок: %w", err)
	}
	if !ok {
		report.NoData = true
		metrics.ObserveDispatchRun("no_data", start)
		return report, nil
	}

	dateLabel := window.Start.Format(dateLabelLayout)
	for i, sub := range eligible {
		if err := s.wait(ctx); err != nil {
			report.Skipped = len(eligible) - i
			s.log.Warn().Err(err).Int("skipped", report.Skipped).Msg("рассылка прервана")
			metrics.ObserveDispatchRun("cancelled", start)
			return report, err
		}
		if s.deliverOne(ctx, sub, window, dateLabel, comparison, deactivationLink) {
			report.Sent++
		} else {
			report.Failed++
		}
	}

	s.log.Info().
		Str("day", domain.DateKey(window.Today())).
		Int("eligible", report.Eligible).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Msg("рассылка завершена")
	metrics.ObserveDispatchRun("completed", start)
	return report, nil
}

func (s *Service) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func (s *Service) deliverOne(ctx context.Context, sub domain.Subscriber, window domain.DayWindow, dateLabel string, comparison domain.Comparison, deactivationLink domain.LinkFunc) bool {
	recipientLog := s.log.With().Int64("subscriber_id", sub.ID).Str("email", sub.Email).Logger()
	recipientLog.Info().Msg("отправка письма")

	link, err := deactivationLink(sub.Email, sub.Token)
	if err != nil {
		recipientLog.Error().Err(err).Msg("не удалось построить ссылку отписки")
		metrics.IncDelivery("failed")
		return false
	}
	doc, err := s.renderer.RenderDailyMessage(dateLabel, comparison, link)
	if err != nil {
		recipientLog.Error().Err(err).Msg("не удалось сформировать письмо")
		metrics.IncDelivery("failed")
		return false
	}
	recipientLog.Debug().Str("body", doc.HTML).Msg("письмо")

	if err := s.transport.Deliver(ctx, sub.Email, DailySubject, doc); err != nil {
		recipientLog.Error().Err(err).Msg("ошибка при отправке письма")
		metrics.IncDelivery("failed")
		return false
	}

	if err := s.ledger.Record(ctx, sub, clampToWindow(s.now(), window)); err != nil {
		// Письмо ушло, но без записи подписчик получит его повторно при следующем запуске.
		recipientLog.Error().Err(err).Msg("письмо отправлено, но запись о доставке не сохранена")
		metrics.IncDelivery("unrecorded")
		return true
	}
	metrics.IncDelivery("sent")
	return true
}

// clampToWindow держит момент записи внутри окна запуска: письмо, отправленное
// после полуночи, засчитывается дню, за который шла рассылка. Запас в миллисекунду
// переживает округление времени в хранилище.
func clampToWindow(at time.Time, window domain.DayWindow) time.Time {
	if at.Before(window.Start) {
		return window.Start
	}
	if !at.Before(window.End) {
		return window.End.Add(-time.Millisecond)
	}
	return at
}
