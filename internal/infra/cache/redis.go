package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"fx-digest/internal/domain"
	"fx-digest/internal/infra/metrics"
)

// releaseScript удаляет ключ, только если он всё ещё принадлежит владельцу.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript продлевает ключ, только если он всё ещё принадлежит владельцу.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker реализует domain.Locker через SET NX.
type RedisLocker struct {
	client *redis.Client
}

var _ domain.Locker = (*RedisLocker)(nil)

// NewClient создаёт клиента Redis и проверяет соединение.
func NewClient(addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// NewRedisLocker создаёт блокировщик.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire берёт блокировку на ttl. Пока блокировка не отпущена, она продлевается
// каждые ttl/3, поэтому запуск длиннее ttl не теряет её. Если процесс умер,
// ключ истекает через ttl.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	owner := uuid.NewString()
	start := time.Now()
	ok, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	metrics.ObserveNetworkRequest("redis", "lock_acquire", key, start, err)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(stop, ttl/3, func() (bool, error) {
			extendCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			start := time.Now()
			n, err := extendScript.Run(extendCtx, l.client, []string{key}, owner, ttl.Milliseconds()).Int64()
			metrics.ObserveNetworkRequest("redis", "lock_extend", key, start, err)
			return n == 1, err
		})
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			start := time.Now()
			err := releaseScript.Run(releaseCtx, l.client, []string{key}, owner).Err()
			metrics.ObserveNetworkRequest("redis", "lock_release", key, start, err)
		})
	}
	return release, true, nil
}

// keepAlive вызывает extend каждые interval до закрытия stop. Цикл завершается,
// когда extend сообщает, что ключ больше не наш. Разовая ошибка сети не останавливает продление.
func keepAlive(stop <-chan struct{}, interval time.Duration, extend func() (held bool, err error)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			held, err := extend()
			if err == nil && !held {
				return
			}
		}
	}
}
