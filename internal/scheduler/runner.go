// Package scheduler реализует планировщик отложенных задач и жизненный
// цикл пауз. Доставка задач — at-least-once с ограниченным числом
// повторов; все мутации, запускаемые задачами, идемпотентны, поэтому
// повторный или отменённый запуск безопасен.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Task представляет отложенную задачу планировщика.
type Task func(ctx context.Context) error

const (
	taskRetryBase = 500 * time.Millisecond
	taskRetryMax  = 5
)

// Runner исполняет задачи в назначенное время. Повторная постановка задачи
// с тем же именем заменяет предыдущую.
type Runner struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	timers map[string]*time.Timer
	logger *zap.Logger
}

// NewRunner создаёт планировщик задач.
func NewRunner(logger *zap.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[string]*time.Timer),
		logger: logger,
	}
}

// ScheduleAt ставит задачу на исполнение в момент at.
func (r *Runner) ScheduleAt(name string, at time.Time, task Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.timers[name]; ok {
		old.Stop()
	}

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	r.timers[name] = time.AfterFunc(delay, func() {
		r.execute(name, task)
	})
}

// ScheduleNow ставит задачу на немедленное исполнение.
func (r *Runner) ScheduleNow(name string, task Task) {
	r.ScheduleAt(name, time.Now(), task)
}

// Cancel снимает запланированную задачу. Уже начавшееся исполнение
// не прерывается: задачи идемпотентны и лишний запуск безвреден.
func (r *Runner) Cancel(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[name]; ok {
		t.Stop()
		delete(r.timers, name)
	}
}

// Close останавливает планировщик и снимает все задачи.
func (r *Runner) Close() {
	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
}

func (r *Runner) execute(name string, task Task) {
	r.mu.Lock()
	delete(r.timers, name)
	r.mu.Unlock()

	if r.ctx.Err() != nil {
		return
	}

	backoff := retry.WithMaxRetries(taskRetryMax, retry.NewExponential(taskRetryBase))
	err := retry.Do(r.ctx, backoff, func(ctx context.Context) error {
		if taskErr := task(ctx); taskErr != nil {
			return retry.RetryableError(taskErr)
		}
		return nil
	})
	if err != nil {
		// Исчерпание повторов — операторский сигнал; состояние выправит
		// ежедневная зачистка.
		r.logger.Error("scheduled task failed after retries",
			zap.String("task", name),
			zap.Error(err),
		)
		return
	}

	r.logger.Debug("scheduled task completed", zap.String("task", name))
}
