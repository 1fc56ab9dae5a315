// Package model содержит доменные сущности системы социальных ваучеров.
package model

import (
	"strings"
	"time"
)

// Participant представляет участника программы помощи домохозяйствам.
type Participant struct {
	ID           int64
	FullName     string
	Program      string
	Adults       int
	Children     int
	Infants      int
	OrderWeekday time.Weekday
	CreatedAt    time.Time
}

// HouseholdSize возвращает общее число членов домохозяйства.
func (p Participant) HouseholdSize() int {
	return p.Adults + p.Children + p.Infants
}

// Account представляет счёт участника, на котором учитываются ваучеры.
type Account struct {
	ID            int64
	ParticipantID int64
	CreatedAt     time.Time
}

// VoucherType описывает тип ваучера.
type VoucherType string

const (
	VoucherTypeGrocery VoucherType = "GROCERY"
	VoucherTypeOther   VoucherType = "OTHER"
)

// VoucherState описывает состояние ваучера в жизненном цикле
// pending → applied → {consumed | expired}.
type VoucherState string

const (
	VoucherStatePending  VoucherState = "PENDING"
	VoucherStateApplied  VoucherState = "APPLIED"
	VoucherStateConsumed VoucherState = "CONSUMED"
	VoucherStateExpired  VoucherState = "EXPIRED"
)

// Voucher представляет единицу пособия на счёте участника.
// Сумма ваучера не хранится, а вычисляется при чтении из базовой ставки счёта.
type Voucher struct {
	ID         int64
	AccountID  int64
	Type       VoucherType
	State      VoucherState
	PauseFlag  bool
	Multiplier int
	CreatedAt  time.Time
}

// PauseArchiveState описывает явное состояние архивации паузы.
type PauseArchiveState string

const (
	PauseActive   PauseArchiveState = "ACTIVE"
	PauseArchived PauseArchiveState = "ARCHIVED"
)

// Pause представляет запланированный перерыв в расписании встреч.
// Окно паузы действует как [Start, End).
type Pause struct {
	ID        int64
	Program   string
	Start     time.Time
	End       time.Time
	Reason    string
	Archive   PauseArchiveState
	CreatedAt time.Time
}

// Границы окна заказов перед началом паузы, в днях до Start.
const (
	OrderingWindowMinDays = 11
	OrderingWindowMaxDays = 14
)

// MaxPauseDurationDays ограничивает длительность паузы.
const MaxPauseDurationDays = 14

// DurationDays возвращает длительность паузы в днях, включая день начала.
func (p Pause) DurationDays() int {
	if !p.End.After(p.Start) {
		return 0
	}
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

// DurationMultiplier возвращает множитель, определяемый длительностью паузы.
func DurationMultiplier(days int) int {
	switch {
	case days <= 0:
		return 1
	case days < MaxPauseDurationDays:
		return 2
	default:
		return 3
	}
}

// OrderingWindow возвращает границы окна заказов паузы:
// [Start − 14 дней, Start − 11 дней].
func (p Pause) OrderingWindow() (open, close time.Time) {
	open = p.Start.AddDate(0, 0, -OrderingWindowMaxDays)
	close = p.Start.AddDate(0, 0, -OrderingWindowMinDays)
	return open, close
}

// InOrderingWindow сообщает, попадает ли момент now в окно заказов паузы.
func (p Pause) InOrderingWindow(now time.Time) bool {
	open, close := p.OrderingWindow()
	return !now.Before(open) && !now.After(close)
}

// EffectiveMultiplier возвращает множитель паузы на момент now.
// Вне окна заказов пауза не влияет на заказы, и множитель равен 1.
func (p Pause) EffectiveMultiplier(now time.Time) int {
	if !p.InOrderingWindow(now) {
		return 1
	}
	return DurationMultiplier(p.DurationDays())
}

// IsActiveGate сообщает, действует ли сейчас фильтр доступного баланса
// по флагу паузы.
func (p Pause) IsActiveGate(now time.Time) bool {
	return p.EffectiveMultiplier(now) > 1
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusPacking   OrderStatus = "PACKING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// LineItem представляет позицию заказа со снимком цены на момент оформления.
type LineItem struct {
	Product     string `json:"product"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	Quantity    int    `json:"quantity"`
	PriceCents  int64  `json:"price"`
}

// TotalCents возвращает стоимость позиции в копейках.
func (li LineItem) TotalCents() int64 {
	return int64(li.Quantity) * li.PriceCents
}

// Order описывает заказ участника.
type Order struct {
	ID         int64
	AccountID  int64
	Status     OrderStatus
	Items      []LineItem
	TotalCents int64
	CreatedAt  time.Time
}

// ItemCount возвращает суммарное количество единиц товара в заказе.
func (o Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// SumItems возвращает сумму всех позиций в копейках.
func SumItems(items []LineItem) int64 {
	var total int64
	for _, it := range items {
		total += it.TotalCents()
	}
	return total
}

// VoucherApplication фиксирует точную сумму, списанную с ваучера по заказу.
type VoucherApplication struct {
	ID          int64
	OrderID     int64
	VoucherID   int64
	AmountCents int64
	Note        string
	CreatedAt   time.Time
}

// BalanceSummary содержит четыре расчётных баланса счёта в копейках.
type BalanceSummary struct {
	FullCents      int64 `json:"full"`
	AvailableCents int64 `json:"available"`
	HygieneCents   int64 `json:"hygiene"`
	GoFreshCents   int64 `json:"go_fresh"`
}

// SpendBucket описывает корзину расходов, сверяемую с балансом.
type SpendBucket string

const (
	BucketFood    SpendBucket = "FOOD"
	BucketHygiene SpendBucket = "HYGIENE"
	BucketGoFresh SpendBucket = "GO_FRESH"
)

// BucketForCategory относит категорию к корзине расходов по имени,
// без учёта регистра.
func BucketForCategory(category string) SpendBucket {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "hygiene":
		return BucketHygiene
	case "go fresh", "go-fresh":
		return BucketGoFresh
	default:
		return BucketFood
	}
}

// PackingList представляет рабочий список одного упаковщика.
type PackingList struct {
	Packer  string
	Lines   []LineItem
	Summary map[string]map[string]int
}

// CombinedOrder представляет недельную агрегацию подтверждённых заказов
// программы, уникальную по паре программа+ISO-неделя.
type CombinedOrder struct {
	ID           int64
	Program      string
	Year         int
	Week         int
	Orders       []Order
	PackingLists []PackingList
	Summary      map[string]map[string]int
	CreatedAt    time.Time
}

// FailedAttempt фиксирует неудачную попытку подтверждения заказа.
// Запись сохраняется в отдельной транзакции и переживает откат основной.
type FailedAttempt struct {
	ID            int64
	ParticipantID int64
	Cart          []LineItem
	Balances      BalanceSummary
	PauseContext  string
	Violations    []string
	CreatedAt     time.Time
}
