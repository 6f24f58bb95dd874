package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fx-digest/internal/domain"
)

type sliceQueue struct {
	mu     sync.Mutex
	jobs   []domain.DispatchJob
	acks   []bool
	cancel context.CancelFunc
}

func (q *sliceQueue) Enqueue(_ context.Context, job domain.DispatchJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *sliceQueue) Receive(ctx context.Context) (domain.DispatchJob, domain.AckFunc, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		q.cancel()
		return domain.DispatchJob{}, nil, context.Canceled
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, func(success bool) error {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.acks = append(q.acks, success)
		return nil
	}, nil
}

type fakeLocker struct {
	held     bool
	err      error
	released int
}

func (l *fakeLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	return func() { l.released++ }, true, nil
}

type fakeDispatcher struct {
	windows []domain.DayWindow
	err     error
}

func (f *fakeDispatcher) RunDailyDispatch(_ context.Context, window domain.DayWindow, _ domain.LinkFunc) (domain.DispatchReport, error) {
	f.windows = append(f.windows, window)
	return domain.DispatchReport{Sent: 1}, f.err
}

func linkFactory(baseURL string) (domain.LinkFunc, error) {
	if baseURL == "::bad" {
		return nil, errors.New("invalid base url")
	}
	return deactivation, nil
}

func runWorker(t *testing.T, jobs []domain.DispatchJob, locker domain.Locker, dispatcher *fakeDispatcher) *sliceQueue {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue := &sliceQueue{jobs: jobs, cancel: cancel}
	w := NewWorker(queue, locker, dispatcher, linkFactory, time.UTC, time.Minute, zerolog.Nop())
	w.now = func() time.Time { return time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC) }
	w.retryDelay = time.Millisecond
	w.Run(ctx)
	return queue
}

func TestWorkerRunsTodayJobs(t *testing.T) {
	locker := &fakeLocker{}
	dispatcher := &fakeDispatcher{}
	queue := runWorker(t, []domain.DispatchJob{
		{ID: "1", Day: "2024-05-20"},
		{ID: "2", Day: "2024-05-19"},
		{ID: "3"},
	}, locker, dispatcher)

	if len(dispatcher.windows) != 2 {
		t.Fatalf("ожидали 2 запуска, получили %d", len(dispatcher.windows))
	}
	if domain.DateKey(dispatcher.windows[0].Today()) != "2024-05-20" {
		t.Fatalf("неожиданное окно: %v", dispatcher.windows[0])
	}
	if locker.released != 2 {
		t.Fatalf("ожидали освобождение блокировки дважды, получили %d", locker.released)
	}
	for i, ok := range queue.acks {
		if !ok {
			t.Fatalf("задача %d должна быть подтверждена", i)
		}
	}
}

func TestWorkerSkipsWhenLocked(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	queue := runWorker(t, []domain.DispatchJob{{ID: "1"}}, &fakeLocker{held: true}, dispatcher)
	if len(dispatcher.windows) != 0 {
		t.Fatal("при занятой блокировке рассылка не должна запускаться")
	}
	if len(queue.acks) != 1 || !queue.acks[0] {
		t.Fatalf("задача должна быть подтверждена, получили %v", queue.acks)
	}
}

func TestWorkerRequeuesOnFailure(t *testing.T) {
	tests := []struct {
		name       string
		locker     *fakeLocker
		dispatcher *fakeDispatcher
		job        domain.DispatchJob
		want       bool
	}{
		{name: "lock error", locker: &fakeLocker{err: errors.New("redis down")}, dispatcher: &fakeDispatcher{}, want: false},
		{name: "dispatch error", locker: &fakeLocker{}, dispatcher: &fakeDispatcher{err: errors.New("db down")}, want: false},
		{name: "bad base url is dropped", locker: &fakeLocker{}, dispatcher: &fakeDispatcher{}, job: domain.DispatchJob{BaseURL: "::bad"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := runWorker(t, []domain.DispatchJob{tt.job}, tt.locker, tt.dispatcher)
			if len(queue.acks) != 1 || queue.acks[0] != tt.want {
				t.Fatalf("ожидали ack=%v, получили %v", tt.want, queue.acks)
			}
		})
	}
}

func TestWorkerWithoutLocker(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	runWorker(t, []domain.DispatchJob{{ID: "1"}}, nil, dispatcher)
	if len(dispatcher.windows) != 1 {
		t.Fatalf("ожидали один запуск, получили %d", len(dispatcher.windows))
	}
}

// requeueQueue возвращает задачу в очередь при ack(false), как Redis и RabbitMQ.
type requeueQueue struct {
	mu   sync.Mutex
	jobs []domain.DispatchJob
}

func (q *requeueQueue) Enqueue(_ context.Context, job domain.DispatchJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *requeueQueue) Receive(ctx context.Context) (domain.DispatchJob, domain.AckFunc, error) {
	q.mu.Lock()
	if len(q.jobs) == 0 {
		q.mu.Unlock()
		<-ctx.Done()
		return domain.DispatchJob{}, nil, ctx.Err()
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.mu.Unlock()
	return job, func(success bool) error {
		if success {
			return nil
		}
		return q.Enqueue(context.Background(), job)
	}, nil
}

func TestWorkerBacksOffAfterRequeue(t *testing.T) {
	queue := &requeueQueue{jobs: []domain.DispatchJob{{ID: "1"}}}
	dispatcher := &fakeDispatcher{err: errors.New("db down")}
	w := NewWorker(queue, nil, dispatcher, linkFactory, time.UTC, time.Minute, zerolog.Nop())
	w.retryDelay = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	calls := len(dispatcher.windows)
	if calls < 2 {
		t.Fatalf("задача должна повторяться, запусков: %d", calls)
	}
	if calls > 6 {
		t.Fatalf("повторы без паузы: %d запусков за 200ms", calls)
	}
}
