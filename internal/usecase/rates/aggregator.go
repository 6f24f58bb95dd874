package rates

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fx-digest/internal/domain"
)

// Aggregator строит сравнение котировок «сегодня против вчера».
type Aggregator struct {
	readings domain.ReadingRepo
	log      zerolog.Logger
}

// NewAggregator создаёт агрегатор.
func NewAggregator(readings domain.ReadingRepo, logger zerolog.Logger) *Aggregator {
	return &Aggregator{readings: readings, log: logger}
}

// BuildComparison возвращает сравнение за today. ok == false означает, что ни у одного
// источника нет котировки за сегодня и рассылать нечего.
func (a *Aggregator) BuildComparison(ctx context.Context, today, yesterday time.Time) (domain.Comparison, bool, error) {
	readings, err := a.readings.ListComparativeReadings(ctx, yesterday, today)
	if err != nil {
		return domain.Comparison{}, false, fmt.Errorf("получение котировок: %w", err)
	}

	todayKey, yesterdayKey := domain.DateKey(today), domain.DateKey(yesterday)
	bySource := make(map[string]map[string]domain.ComparativeReading)
	sources := make(map[string]domain.Source)
	todayPresent := false
	for _, r := range readings {
		key := domain.DateKey(r.Date)
		if key != todayKey && key != yesterdayKey {
			continue
		}
		byDate, ok := bySource[r.Source.Code]
		if !ok {
			byDate = make(map[string]domain.ComparativeReading, 2)
			bySource[r.Source.Code] = byDate
			sources[r.Source.Code] = r.Source
		}
		byDate[key] = r
		if key == todayKey {
			todayPresent = true
		}
	}

	if !todayPresent {
		a.log.Info().Str("date", todayKey).Msg("нет котировок за текущую дату")
		return domain.Comparison{}, false, nil
	}

	codes := make([]string, 0, len(bySource))
	for code := range bySource {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	rows := make([]domain.ComparisonRow, 0, len(codes))
	for _, code := range codes {
		current, ok := bySource[code][todayKey]
		if !ok {
			a.log.Info().Str("source", code).Str("date", todayKey).Msg("нет котировки источника за сегодня, пропускаем")
			continue
		}
		row := domain.ComparisonRow{
			Source:   sources[code],
			Sell:     current.Sell,
			Buy:      current.Buy,
			BestSell: current.BestSell,
			BestBuy:  current.BestBuy,
			Trend:    domain.TrendUnknown,
		}
		if previous, ok := bySource[code][yesterdayKey]; ok {
			row.Trend = domain.TrendOf(current.Sell, previous.Sell)
		}
		rows = append(rows, row)
	}

	reference := decimal.Zero
	ref, found, err := a.readings.GetReferenceReading(ctx, today)
	if err != nil {
		return domain.Comparison{}, false, fmt.Errorf("получение официального курса: %w", err)
	}
	if found {
		reference = ref.Amount
	}

	return domain.Comparison{Today: today, Yesterday: yesterday, Rows: rows, Reference: reference}, true, nil
}
