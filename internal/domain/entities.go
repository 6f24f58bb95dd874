package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subscriber описывает подписчика рассылки. Email является единственным идентификатором.
type Subscriber struct {
	ID        int64
	Email     string
	FullName  string
	Token     string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Source описывает поставщика котировок (коммерческий банк).
type Source struct {
	Code string
	Name string
}

// ComparativeReading хранит котировку источника за календарный день.
type ComparativeReading struct {
	Source   Source
	Date     time.Time
	Sell     decimal.Decimal
	Buy      decimal.Decimal
	BestSell bool
	BestBuy  bool
}

// ReferenceReading хранит официальный курс за календарный день.
type ReferenceReading struct {
	Date   time.Time
	Amount decimal.Decimal
}

// DeliveryRecord фиксирует успешную отправку письма подписчику.
type DeliveryRecord struct {
	ID           int64
	SubscriberID int64
	DeliveredAt  time.Time
	DeliveredOn  time.Time
}

// Trend показывает направление изменения цены продажи относительно вчерашнего дня.
type Trend string

const (
	TrendUnknown Trend = ""
	TrendUp      Trend = "up"
	TrendEqual   Trend = "equal"
	TrendDown    Trend = "down"
)

// TrendOf сравнивает сегодняшнее значение со вчерашним.
func TrendOf(today, yesterday decimal.Decimal) Trend {
	switch today.Cmp(yesterday) {
	case 1:
		return TrendUp
	case -1:
		return TrendDown
	default:
		return TrendEqual
	}
}

// ComparisonRow описывает одну строку сравнительной таблицы.
type ComparisonRow struct {
	Source   Source
	Sell     decimal.Decimal
	Buy      decimal.Decimal
	BestSell bool
	BestBuy  bool
	Trend    Trend
}

// Comparison содержит данные дня, общие для всех получателей.
type Comparison struct {
	Today     time.Time
	Yesterday time.Time
	Rows      []ComparisonRow
	Reference decimal.Decimal
}

// Document — готовое к отправке тело письма.
type Document struct {
	HTML string
	Text string
}

// DispatchReport подводит итоги одного запуска рассылки.
type DispatchReport struct {
	Eligible int
	Sent     int
	Failed   int
	// Skipped — получатели, до которых запуск не дошёл из-за отмены.
	Skipped int
	// NoData выставляется, когда за сегодня нет ни одной котировки.
	NoData bool
}
