// Package events реализует внутрипроцессную шину доменных событий.
// Ядро публикует изменения состояния ваучеров и пауз явными событиями,
// а подписчики (журнал аудита, уведомления) обрабатывают их снаружи,
// не затрагивая чистоту расчётов.
package events

import (
	"context"
	"sync"
	"time"
)

// Event представляет доменное событие.
type Event interface {
	Name() string
}

// AccountProvisioned публикуется при создании счёта с начальными ваучерами.
type AccountProvisioned struct {
	ParticipantID int64
	AccountID     int64
	VoucherCount  int
}

func (AccountProvisioned) Name() string { return "account_provisioned" }

// VoucherConsumed публикуется при списании ваучера в расчёте заказа.
type VoucherConsumed struct {
	AccountID   int64
	OrderID     int64
	VoucherID   int64
	AmountCents int64
}

func (VoucherConsumed) Name() string { return "voucher_consumed" }

// VouchersFlagged публикуется при массовом изменении флага паузы.
type VouchersFlagged struct {
	PauseID    int64
	Program    string
	Activated  bool
	Multiplier int
	Updated    int
	Skipped    int
}

func (VouchersFlagged) Name() string { return "vouchers_flagged" }

// PauseArchivedEvent публикуется при архивации паузы.
type PauseArchivedEvent struct {
	PauseID int64
	Program string
	At      time.Time
}

func (PauseArchivedEvent) Name() string { return "pause_archived" }

// Handler обрабатывает опубликованное событие.
type Handler func(ctx context.Context, e Event)

// Bus реализует синхронную подписку и публикацию событий.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus создаёт пустую шину событий.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe регистрирует обработчик для события с указанным именем.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Publish доставляет событие всем подписчикам синхронно в порядке подписки.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	handlers := b.handlers[e.Name()]
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, e)
	}
}
