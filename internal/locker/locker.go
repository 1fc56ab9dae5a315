// Package locker реализует распределённую блокировку расчёта заказа
// и кэш идемпотентности на базе Redis.
package locker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// ErrBusy возвращается, если блокировка уже удерживается другим расчётом.
// Ошибка ретраебельна: вызывающий может повторить попытку позже.
var ErrBusy = errors.New("lock is busy")

const (
	lockExpiry     = 10 * time.Second
	lockTries      = 3
	lockRetryDelay = 500 * time.Millisecond
)

// Locker предоставляет блокировку по ключу участника и кэш идемпотентности.
// Nil-Locker и недоступный Redis деградируют до работы без блокировки:
// доступность расчёта важнее строгой взаимной исключительности.
type Locker struct {
	client *redis.Client
	rs     *redsync.Redsync
}

// New создаёт Locker, подключённый к Redis по указанному адресу.
// Пустой адрес возвращает nil: все операции работают без блокировки.
func New(addr string) *Locker {
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	pool := goredis.NewPool(client)

	return &Locker{
		client: client,
		rs:     redsync.New(pool),
	}
}

// Close закрывает соединение с Redis.
func (l *Locker) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}

// WithLock выполняет fn под блокировкой с коротким TTL по указанному ключу.
// Если блокировку удерживает другой расчёт, возвращается ErrBusy.
// Если бэкенд блокировок недоступен, fn выполняется без блокировки.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if l == nil || l.rs == nil {
		return fn(ctx)
	}

	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(lockExpiry),
		redsync.WithTries(lockTries),
		redsync.WithRetryDelay(lockRetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed) {
			return fmt.Errorf("%w: %s", ErrBusy, key)
		}
		// Бэкенд недоступен: продолжаем без блокировки.
		return fn(ctx)
	}
	defer mutex.UnlockContext(ctx)

	return fn(ctx)
}

// Remember сохраняет значение по ключу идемпотентности, если ключа ещё нет.
// Возвращает ранее сохранённое значение и признак его существования.
// При недоступном Redis идемпотентность отключается: возвращается пустое
// значение без ошибки.
func (l *Locker) Remember(ctx context.Context, key, value string, ttl time.Duration) (string, bool) {
	if l == nil || l.client == nil {
		return "", false
	}

	set, err := l.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return "", false
	}
	if set {
		return "", false
	}

	existing, err := l.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return existing, true
}

// Store перезаписывает значение по ключу идемпотентности.
func (l *Locker) Store(ctx context.Context, key, value string, ttl time.Duration) {
	if l == nil || l.client == nil {
		return
	}
	l.client.Set(ctx, key, value, ttl)
}
