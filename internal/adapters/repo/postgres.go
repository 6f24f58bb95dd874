package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fx-digest/internal/domain"
	"fx-digest/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.SubscriberRepo = (*Postgres)(nil)
	_ domain.ReadingRepo    = (*Postgres)(nil)
	_ domain.DeliveryRepo   = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const subscriberColumns = `id, email, full_name, token, active, created_at, updated_at`

func scanSubscriber(row pgx.Row) (domain.Subscriber, error) {
	var sub domain.Subscriber
	err := row.Scan(&sub.ID, &sub.Email, &sub.FullName, &sub.Token, &sub.Active, &sub.CreatedAt, &sub.UpdatedAt)
	return sub, err
}

// UpsertSubscriber реализует domain.SubscriberRepo.
func (p *Postgres) UpsertSubscriber(ctx context.Context, email, fullName, token string) (domain.Subscriber, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	sub, err := scanSubscriber(p.pool.QueryRow(ctx, `
INSERT INTO subscribers (email, full_name, token, active)
VALUES ($1, $2, $3, false)
ON CONFLICT (email) DO UPDATE SET full_name = EXCLUDED.full_name, token = EXCLUDED.token, active = false, updated_at = now()
RETURNING `+subscriberColumns, email, fullName, token))
	metrics.ObserveNetworkRequest("postgres", "subscribers_upsert", "subscribers", start, err)
	if err != nil {
		return domain.Subscriber{}, err
	}
	return sub, nil
}

// GetSubscriberByEmail реализует domain.SubscriberRepo.
func (p *Postgres) GetSubscriberByEmail(ctx context.Context, email string) (domain.Subscriber, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	sub, err := scanSubscriber(p.pool.QueryRow(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "subscribers_get", "subscribers", start, nil)
		return domain.Subscriber{}, domain.ErrSubscriberNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "subscribers_get", "subscribers", start, err)
	if err != nil {
		return domain.Subscriber{}, err
	}
	return sub, nil
}

// SetSubscriberActive реализует domain.SubscriberRepo.
func (p *Postgres) SetSubscriberActive(ctx context.Context, email, token string, active bool) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE subscribers SET active = $3, updated_at = now()
WHERE email = $1 AND token = $2
`, email, token, active)
	metrics.ObserveNetworkRequest("postgres", "subscribers_set_active", "subscribers", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListComparativeReadings реализует domain.ReadingRepo.
func (p *Postgres) ListComparativeReadings(ctx context.Context, from, to time.Time) ([]domain.ComparativeReading, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT s.code, s.name, to_char(r.reading_date, 'YYYY-MM-DD'), r.sell::text, r.buy::text, r.best_sell, r.best_buy
FROM comparative_readings r
JOIN sources s ON s.id = r.source_id
WHERE r.reading_date BETWEEN $1::date AND $2::date
ORDER BY s.code, r.reading_date
`, domain.DateKey(from), domain.DateKey(to))
	metrics.ObserveNetworkRequest("postgres", "readings_list", "comparative_readings", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ComparativeReading
	for rows.Next() {
		var (
			reading        domain.ComparativeReading
			day, sell, buy string
		)
		if err := rows.Scan(&reading.Source.Code, &reading.Source.Name, &day, &sell, &buy, &reading.BestSell, &reading.BestBuy); err != nil {
			return nil, err
		}
		if reading.Date, err = domain.ParseDateKey(day, from.Location()); err != nil {
			return nil, fmt.Errorf("parse reading date %q: %w", day, err)
		}
		if reading.Sell, err = decimal.NewFromString(sell); err != nil {
			return nil, fmt.Errorf("parse sell %q: %w", sell, err)
		}
		if reading.Buy, err = decimal.NewFromString(buy); err != nil {
			return nil, fmt.Errorf("parse buy %q: %w", buy, err)
		}
		result = append(result, reading)
	}
	return result, rows.Err()
}

// GetReferenceReading реализует domain.ReadingRepo.
func (p *Postgres) GetReferenceReading(ctx context.Context, date time.Time) (domain.ReferenceReading, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var amount string
	err := p.pool.QueryRow(ctx, `SELECT amount::text FROM reference_readings WHERE reading_date = $1::date`, domain.DateKey(date)).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "reference_get", "reference_readings", start, nil)
		return domain.ReferenceReading{}, false, nil
	}
	metrics.ObserveNetworkRequest("postgres", "reference_get", "reference_readings", start, err)
	if err != nil {
		return domain.ReferenceReading{}, false, err
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.ReferenceReading{}, false, fmt.Errorf("parse reference amount %q: %w", amount, err)
	}
	return domain.ReferenceReading{Date: domain.StartOfDay(date), Amount: value}, true, nil
}

// ListEligibleSubscribers реализует domain.DeliveryRepo.
func (p *Postgres) ListEligibleSubscribers(ctx context.Context, from, to time.Time) ([]domain.Subscriber, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+subscriberColumns+`
FROM subscribers s
WHERE s.active
  AND NOT EXISTS (
    SELECT 1 FROM delivery_records d
    WHERE d.subscriber_id = s.id AND d.delivered_at >= $1 AND d.delivered_at < $2
  )
ORDER BY s.id
`, from, to)
	metrics.ObserveNetworkRequest("postgres", "subscribers_eligible", "subscribers", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

// InsertDeliveryRecord реализует domain.DeliveryRepo.
func (p *Postgres) InsertDeliveryRecord(ctx context.Context, rec domain.DeliveryRecord) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO delivery_records (subscriber_id, delivered_at, delivered_on)
VALUES ($1, $2, $3::date)
ON CONFLICT (subscriber_id, delivered_on) DO NOTHING
`, rec.SubscriberID, rec.DeliveredAt, domain.DateKey(rec.DeliveredOn))
	metrics.ObserveNetworkRequest("postgres", "delivery_insert", "delivery_records", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return false, fmt.Errorf("subscriber %d: %w", rec.SubscriberID, domain.ErrSubscriberNotFound)
		}
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
