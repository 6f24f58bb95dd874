package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"fx-digest/internal/domain"
	"fx-digest/internal/infra/metrics"
)

// sqliteSchema повторяет migrations/0001_init.sql в типах SQLite.
// Даты хранятся как TEXT YYYY-MM-DD, моменты времени как INTEGER (unix ms).
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sources (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    code TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS comparative_readings (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id    INTEGER NOT NULL REFERENCES sources(id),
    reading_date TEXT NOT NULL,
    sell         TEXT NOT NULL,
    buy          TEXT NOT NULL,
    best_sell    INTEGER NOT NULL DEFAULT 0,
    best_buy     INTEGER NOT NULL DEFAULT 0,
    UNIQUE (source_id, reading_date)
);

CREATE TABLE IF NOT EXISTS reference_readings (
    reading_date TEXT PRIMARY KEY,
    amount       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS subscribers (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    email      TEXT NOT NULL UNIQUE,
    full_name  TEXT NOT NULL,
    token      TEXT NOT NULL,
    active     INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS delivery_records (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    subscriber_id INTEGER NOT NULL REFERENCES subscribers(id),
    delivered_at  INTEGER NOT NULL,
    delivered_on  TEXT NOT NULL,
    UNIQUE (subscriber_id, delivered_on)
);

CREATE INDEX IF NOT EXISTS idx_delivery_records_delivered_at ON delivery_records(delivered_at);
CREATE INDEX IF NOT EXISTS idx_comparative_readings_date ON comparative_readings(reading_date);
`

// SQLite реализует репозитории поверх встроенной базы.
type SQLite struct {
	db  *sqlx.DB
	now func() time.Time
}

var (
	_ domain.SubscriberRepo = (*SQLite)(nil)
	_ domain.ReadingRepo    = (*SQLite)(nil)
	_ domain.DeliveryRepo   = (*SQLite)(nil)
)

// NewSQLite применяет схему и возвращает адаптер.
func NewSQLite(db *sqlx.DB) (*SQLite, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("applying sqlite schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

type subscriberRow struct {
	ID        int64  `db:"id"`
	Email     string `db:"email"`
	FullName  string `db:"full_name"`
	Token     string `db:"token"`
	Active    bool   `db:"active"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r subscriberRow) toDomain() domain.Subscriber {
	return domain.Subscriber{
		ID:        r.ID,
		Email:     r.Email,
		FullName:  r.FullName,
		Token:     r.Token,
		Active:    r.Active,
		CreatedAt: time.UnixMilli(r.CreatedAt),
		UpdatedAt: time.UnixMilli(r.UpdatedAt),
	}
}

type readingRow struct {
	Code     string `db:"code"`
	Name     string `db:"name"`
	Date     string `db:"reading_date"`
	Sell     string `db:"sell"`
	Buy      string `db:"buy"`
	BestSell bool   `db:"best_sell"`
	BestBuy  bool   `db:"best_buy"`
}

// UpsertSubscriber реализует domain.SubscriberRepo.
func (s *SQLite) UpsertSubscriber(ctx context.Context, email, fullName, token string) (domain.Subscriber, error) {
	now := s.now().UnixMilli()
	start := time.Now()
	var row subscriberRow
	err := s.db.GetContext(ctx, &row, `
INSERT INTO subscribers (email, full_name, token, active, created_at, updated_at)
VALUES (?, ?, ?, 0, ?, ?)
ON CONFLICT (email) DO UPDATE SET full_name = excluded.full_name, token = excluded.token, active = 0, updated_at = excluded.updated_at
RETURNING id, email, full_name, token, active, created_at, updated_at`, email, fullName, token, now, now)
	metrics.ObserveNetworkRequest("sqlite", "subscribers_upsert", "subscribers", start, err)
	if err != nil {
		return domain.Subscriber{}, err
	}
	return row.toDomain(), nil
}

// GetSubscriberByEmail реализует domain.SubscriberRepo.
func (s *SQLite) GetSubscriberByEmail(ctx context.Context, email string) (domain.Subscriber, error) {
	start := time.Now()
	var row subscriberRow
	err := s.db.GetContext(ctx, &row, `SELECT id, email, full_name, token, active, created_at, updated_at FROM subscribers WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.ObserveNetworkRequest("sqlite", "subscribers_get", "subscribers", start, nil)
		return domain.Subscriber{}, domain.ErrSubscriberNotFound
	}
	metrics.ObserveNetworkRequest("sqlite", "subscribers_get", "subscribers", start, err)
	if err != nil {
		return domain.Subscriber{}, err
	}
	return row.toDomain(), nil
}

// SetSubscriberActive реализует domain.SubscriberRepo.
func (s *SQLite) SetSubscriberActive(ctx context.Context, email, token string, active bool) (bool, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `UPDATE subscribers SET active = ?, updated_at = ? WHERE email = ? AND token = ?`,
		active, s.now().UnixMilli(), email, token)
	metrics.ObserveNetworkRequest("sqlite", "subscribers_set_active", "subscribers", start, err)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListComparativeReadings реализует domain.ReadingRepo.
func (s *SQLite) ListComparativeReadings(ctx context.Context, from, to time.Time) ([]domain.ComparativeReading, error) {
	start := time.Now()
	var rows []readingRow
	err := s.db.SelectContext(ctx, &rows, `
SELECT s.code, s.name, r.reading_date, r.sell, r.buy, r.best_sell, r.best_buy
FROM comparative_readings r
JOIN sources s ON s.id = r.source_id
WHERE r.reading_date BETWEEN ? AND ?
ORDER BY s.code, r.reading_date`, domain.DateKey(from), domain.DateKey(to))
	metrics.ObserveNetworkRequest("sqlite", "readings_list", "comparative_readings", start, err)
	if err != nil {
		return nil, err
	}

	result := make([]domain.ComparativeReading, 0, len(rows))
	for _, row := range rows {
		reading := domain.ComparativeReading{
			Source:   domain.Source{Code: row.Code, Name: row.Name},
			BestSell: row.BestSell,
			BestBuy:  row.BestBuy,
		}
		if reading.Date, err = domain.ParseDateKey(row.Date, from.Location()); err != nil {
			return nil, fmt.Errorf("parse reading date %q: %w", row.Date, err)
		}
		if reading.Sell, err = decimal.NewFromString(row.Sell); err != nil {
			return nil, fmt.Errorf("parse sell %q: %w", row.Sell, err)
		}
		if reading.Buy, err = decimal.NewFromString(row.Buy); err != nil {
			return nil, fmt.Errorf("parse buy %q: %w", row.Buy, err)
		}
		result = append(result, reading)
	}
	return result, nil
}

// GetReferenceReading реализует domain.ReadingRepo.
func (s *SQLite) GetReferenceReading(ctx context.Context, date time.Time) (domain.ReferenceReading, bool, error) {
	start := time.Now()
	var amount string
	err := s.db.GetContext(ctx, &amount, `SELECT amount FROM reference_readings WHERE reading_date = ?`, domain.DateKey(date))
	if errors.Is(err, sql.ErrNoRows) {
		metrics.ObserveNetworkRequest("sqlite", "reference_get", "reference_readings", start, nil)
		return domain.ReferenceReading{}, false, nil
	}
	metrics.ObserveNetworkRequest("sqlite", "reference_get", "reference_readings", start, err)
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
func (s *SQLite) ListEligibleSubscribers(ctx context.Context, from, to time.Time) ([]domain.Subscriber, error) {
	start := time.Now()
	var rows []subscriberRow
	err := s.db.SelectContext(ctx, &rows, `
SELECT s.id, s.email, s.full_name, s.token, s.active, s.created_at, s.updated_at
FROM subscribers s
WHERE s.active = 1
  AND NOT EXISTS (
    SELECT 1 FROM delivery_records d
    WHERE d.subscriber_id = s.id AND d.delivered_at >= ? AND d.delivered_at < ?
  )
ORDER BY s.id`, from.UnixMilli(), to.UnixMilli())
	metrics.ObserveNetworkRequest("sqlite", "subscribers_eligible", "subscribers", start, err)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Subscriber, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

// InsertDeliveryRecord реализует domain.DeliveryRepo.
func (s *SQLite) InsertDeliveryRecord(ctx context.Context, rec domain.DeliveryRecord) (bool, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO delivery_records (subscriber_id, delivered_at, delivered_on)
VALUES (?, ?, ?)
ON CONFLICT (subscriber_id, delivered_on) DO NOTHING`,
		rec.SubscriberID, rec.DeliveredAt.UnixMilli(), domain.DateKey(rec.DeliveredOn))
	metrics.ObserveNetworkRequest("sqlite", "delivery_insert", "delivery_records", start, err)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return false, fmt.Errorf("subscriber %d: %w", rec.SubscriberID, domain.ErrSubscriberNotFound)
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
