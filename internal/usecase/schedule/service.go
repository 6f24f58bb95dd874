package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"fx-digest/internal/domain"
)

// ErrEmptySchedule возвращается, если cron-выражение не задано.
var ErrEmptySchedule = errors.New("empty schedule")

// Service ставит задачи рассылки в очередь по расписанию и по запросу.
type Service struct {
	queue   domain.DispatchQueue
	loc     *time.Location
	baseURL string
	now     func() time.Time
	log     zerolog.Logger
}

// NewService создаёт планировщик.
func NewService(queue domain.DispatchQueue, loc *time.Location, baseURL string, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{queue: queue, loc: loc, baseURL: baseURL, now: time.Now, log: logger}
}

// Trigger ставит задачу на сегодняшнюю рассылку.
func (s *Service) Trigger(ctx context.Context, cause domain.DispatchJobCause) (domain.DispatchJob, error) {
	return s.TriggerWithBase(ctx, cause, "")
}

// TriggerWithBase ставит задачу с явным базовым URL для ссылок отписки.
// Пустой baseURL означает адрес из конфигурации.
func (s *Service) TriggerWithBase(ctx context.Context, cause domain.DispatchJobCause, baseURL string) (domain.DispatchJob, error) {
	if baseURL == "" {
		baseURL = s.baseURL
	}
	now := s.now().In(s.loc)
	job := domain.DispatchJob{
		ID:          uuid.NewString(),
		Day:         domain.DateKey(now),
		BaseURL:     baseURL,
		RequestedAt: now.UTC(),
		Cause:       cause,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return domain.DispatchJob{}, fmt.Errorf("постановка задачи рассылки: %w", err)
	}
	s.log.Info().Str("job_id", job.ID).Str("day", job.Day).Str("cause", string(cause)).Msg("scheduler: задача поставлена в очередь")
	return job, nil
}

// Start запускает cron и блокируется до отмены ctx.
func (s *Service) Start(ctx context.Context, spec string) error {
	if spec == "" {
		return ErrEmptySchedule
	}
	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.Trigger(ctx, domain.DispatchCauseScheduled); err != nil {
			s.log.Error().Err(err).Msg("scheduler: не удалось поставить задачу")
		}
	}); err != nil {
		return fmt.Errorf("разбор расписания %q: %w", spec, err)
	}

	c.Start()
	s.log.Info().Str("cron", spec).Str("tz", s.loc.String()).Msg("scheduler: запущен")
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return nil
}
