package domain

import (
	"context"
	"time"
)

// TokenIssuer выдаёт токены для ссылок активации и отписки.
type TokenIssuer interface {
	Issue() string
}

// SubscriberRepo управляет подписчиками.
type SubscriberRepo interface {
	// UpsertSubscriber создаёт подписчика или обновляет имя и токен существующего,
	// сбрасывая активность. Выполняется атомарно для одного email.
	UpsertSubscriber(ctx context.Context, email, fullName, token string) (Subscriber, error)
	GetSubscriberByEmail(ctx context.Context, email string) (Subscriber, error)
	// SetSubscriberActive меняет активность, только если токен всё ещё актуален.
	SetSubscriberActive(ctx context.Context, email, token string, active bool) (bool, error)
}

// ReadingRepo отдаёт котировки, загруженные внешним процессом.
type ReadingRepo interface {
	// ListComparativeReadings возвращает котировки за даты from..to включительно.
	ListComparativeReadings(ctx context.Context, from, to time.Time) ([]ComparativeReading, error)
	GetReferenceReading(ctx context.Context, date time.Time) (ReferenceReading, bool, error)
}

// DeliveryRepo хранит факты отправки.
type DeliveryRepo interface {
	// ListEligibleSubscribers возвращает активных подписчиков без записи об отправке в [start, end).
	ListEligibleSubscribers(ctx context.Context, start, end time.Time) ([]Subscriber, error)
	// InsertDeliveryRecord добавляет запись; false означает, что запись за этот день уже была.
	InsertDeliveryRecord(ctx context.Context, rec DeliveryRecord) (bool, error)
}

// Transport отправляет одно письмо.
type Transport interface {
	Deliver(ctx context.Context, recipient, subject string, body Document) error
}

// Renderer превращает данные в тело письма. Реализации не имеют побочных эффектов.
type Renderer interface {
	RenderActivationMessage(fullName, activationLink string) (Document, error)
	RenderDailyMessage(dateLabel string, comparison Comparison, deactivationLink string) (Document, error)
}

// LinkFunc строит абсолютную ссылку для пары (email, token).
type LinkFunc func(email, token string) (string, error)

// Locker обеспечивает единственность запуска рассылки.
type Locker interface {
	// Acquire пытается взять блокировку; release нужно вызвать только при ok == true.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}
