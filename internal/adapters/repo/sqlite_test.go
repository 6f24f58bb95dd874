package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"fx-digest/internal/domain"
	"fx-digest/internal/infra/db"
	"fx-digest/internal/infra/metrics"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	conn, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("не удалось открыть sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	store, err := NewSQLite(conn)
	if err != nil {
		t.Fatalf("не удалось применить схему: %v", err)
	}
	return store
}

func TestSQLiteUpsertResetsSubscriber(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	first, err := store.UpsertSubscriber(ctx, "ana@example.com", "Ana", "1-100")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if ok, err := store.SetSubscriberActive(ctx, "ana@example.com", "1-100", true); err != nil || !ok {
		t.Fatalf("активация не прошла: %v %v", ok, err)
	}

	second, err := store.UpsertSubscriber(ctx, "ana@example.com", "Ana María", "2-200")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("повторная подписка должна сохранить id: %d != %d", second.ID, first.ID)
	}
	if second.Active || second.Token != "2-200" || second.FullName != "Ana María" {
		t.Fatalf("неожиданное состояние: %+v", second)
	}
	if ok, _ := store.SetSubscriberActive(ctx, "ana@example.com", "1-100", true); ok {
		t.Fatal("старый токен не должен работать")
	}
}

func TestSQLiteGetSubscriberNotFound(t *testing.T) {
	store := newTestSQLite(t)
	if _, err := store.GetSubscriberByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, domain.ErrSubscriberNotFound) {
		t.Fatalf("ожидали ErrSubscriberNotFound, получили %v", err)
	}
}

func TestSQLiteEligibleAntiJoin(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	loc := time.FixedZone("CST", -6*3600)
	window := domain.WindowFor(time.Date(2024, 5, 20, 10, 0, 0, 0, loc))

	mk := func(email string, active bool) domain.Subscriber {
		sub, err := store.UpsertSubscriber(ctx, email, "X", "t-"+email)
		if err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
		if active {
			if _, err := store.SetSubscriberActive(ctx, email, "t-"+email, true); err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
		}
		return sub
	}
	sentToday := mk("today@example.com", true)
	sentYesterday := mk("yesterday@example.com", true)
	mk("inactive@example.com", false)
	fresh := mk("fresh@example.com", true)

	insert := func(sub domain.Subscriber, at time.Time) bool {
		ok, err := store.InsertDeliveryRecord(ctx, domain.DeliveryRecord{SubscriberID: sub.ID, DeliveredAt: at, DeliveredOn: domain.StartOfDay(at)})
		if err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
		return ok
	}
	insert(sentToday, window.Start.Add(time.Hour))
	insert(sentYesterday, window.Start.Add(-time.Minute))

	eligible, err := store.ListEligibleSubscribers(ctx, window.Start, window.End)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(eligible) != 2 || eligible[0].ID != sentYesterday.ID || eligible[1].ID != fresh.ID {
		t.Fatalf("неожиданный список: %+v", eligible)
	}

	if insert(sentToday, window.Start.Add(2*time.Hour)) {
		t.Fatal("вторая запись за тот же день не должна вставляться")
	}
}

func TestSQLiteInsertDeliveryUnknownSubscriber(t *testing.T) {
	store := newTestSQLite(t)
	now := time.Now()
	_, err := store.InsertDeliveryRecord(context.Background(), domain.DeliveryRecord{SubscriberID: 42, DeliveredAt: now, DeliveredOn: domain.StartOfDay(now)})
	if !errors.Is(err, domain.ErrSubscriberNotFound) {
		t.Fatalf("ожидали ErrSubscriberNotFound, получили %v", err)
	}
}

func TestSQLiteReadings(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	seed := []string{
		`INSERT INTO sources (code, name) VALUES ('LAFISE', 'Banco LAFISE'), ('BAC', 'BAC Credomatic')`,
		`INSERT INTO comparative_readings (source_id, reading_date, sell, buy, best_sell, best_buy) VALUES
			(1, '2024-05-20', '36.7000', '36.3500', 0, 1),
			(2, '2024-05-20', '36.6200', '36.3000', 1, 0),
			(2, '2024-05-19', '36.6000', '36.3000', 1, 0),
			(2, '2024-05-18', '36.5000', '36.2000', 1, 0)`,
		`INSERT INTO reference_readings (reading_date, amount) VALUES ('2024-05-20', '36.6243')`,
	}
	for _, q := range seed {
		if _, err := store.db.Exec(q); err != nil {
			t.Fatalf("не удалось заполнить базу: %v", err)
		}
	}

	today := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	readings, err := store.ListComparativeReadings(ctx, today.AddDate(0, 0, -1), today)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("ожидали 3 котировки, получили %d", len(readings))
	}
	if readings[0].Source.Code != "BAC" || domain.DateKey(readings[0].Date) != "2024-05-19" {
		t.Fatalf("неожиданный порядок: %+v", readings[0])
	}
	if !readings[1].BestSell || readings[1].Sell.String() != "36.62" {
		t.Fatalf("неожиданная котировка: %+v", readings[1])
	}

	ref, ok, err := store.GetReferenceReading(ctx, today)
	if err != nil || !ok || ref.Amount.String() != "36.6243" {
		t.Fatalf("неожиданный официальный курс: %+v %v %v", ref, ok, err)
	}
	if _, ok, err := store.GetReferenceReading(ctx, today.AddDate(0, 0, -1)); err != nil || ok {
		t.Fatalf("за вчера курса нет: %v %v", ok, err)
	}
}

func TestSQLiteObservesEveryQuery(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	day := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)

	ops := []struct {
		operation string
		table     string
		call      func() error
	}{
		{"subscribers_upsert", "subscribers", func() error {
			_, err := store.UpsertSubscriber(ctx, "ana@example.com", "Ana", "1-1")
			return err
		}},
		{"subscribers_get", "subscribers", func() error {
			_, err := store.GetSubscriberByEmail(ctx, "ana@example.com")
			return err
		}},
		{"subscribers_set_active", "subscribers", func() error {
			_, err := store.SetSubscriberActive(ctx, "ana@example.com", "1-1", true)
			return err
		}},
		{"readings_list", "comparative_readings", func() error {
			_, err := store.ListComparativeReadings(ctx, day.AddDate(0, 0, -1), day)
			return err
		}},
		{"reference_get", "reference_readings", func() error {
			_, _, err := store.GetReferenceReading(ctx, day)
			return err
		}},
		{"subscribers_eligible", "subscribers", func() error {
			_, err := store.ListEligibleSubscribers(ctx, day, day.AddDate(0, 0, 1))
			return err
		}},
		{"delivery_insert", "delivery_records", func() error {
			sub, err := store.GetSubscriberByEmail(ctx, "ana@example.com")
			if err != nil {
				return err
			}
			_, err = store.InsertDeliveryRecord(ctx, domain.DeliveryRecord{SubscriberID: sub.ID, DeliveredAt: day, DeliveredOn: day})
			return err
		}},
	}
	for _, op := range ops {
		counter := metrics.NetworkRequestTotal.WithLabelValues("sqlite", op.operation, op.table, "success")
		before := testutil.ToFloat64(counter)
		if err := op.call(); err != nil {
			t.Fatalf("%s: неожиданная ошибка: %v", op.operation, err)
		}
		if got := testutil.ToFloat64(counter); got <= before {
			t.Fatalf("%s: запрос не учтён в метриках", op.operation)
		}
	}
}
