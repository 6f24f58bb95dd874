package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"fx-digest/internal/domain"
)

// Ledger отвечает за записи об отправке и выборку ещё не получивших письмо подписчиков.
type Ledger struct {
	repo domain.DeliveryRepo
	loc  *time.Location
	log  zerolog.Logger
}

// New создаёт журнал доставок. Календарный день записи считается в loc.
func New(repo domain.DeliveryRepo, loc *time.Location, logger zerolog.Logger) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{repo: repo, loc: loc, log: logger}
}

// FindEligible возвращает активных подписчиков без записи об отправке в окне.
func (l *Ledger) FindEligible(ctx context.Context, window domain.DayWindow) ([]domain.Subscriber, error) {
	subs, err := l.repo.ListEligibleSubscribers(ctx, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("выборка подписчиков: %w", err)
	}
	return subs, nil
}

// Record фиксирует отправку письма подписчику в момент at.
func (l *Ledger) Record(ctx context.Context, sub domain.Subscriber, at time.Time) error {
	local := at.In(l.loc)
	rec := domain.DeliveryRecord{
		SubscriberID: sub.ID,
		DeliveredAt:  local,
		DeliveredOn:  domain.StartOfDay(local),
	}
	inserted, err := l.repo.InsertDeliveryRecord(ctx, rec)
	if err != nil {
		return fmt.Errorf("запись доставки: %w", err)
	}
	if !inserted {
		l.log.Warn().Int64("subscriber_id", sub.ID).Str("day", domain.DateKey(rec.DeliveredOn)).Msg("запись о доставке за этот день уже существует")
	}
	return nil
}
