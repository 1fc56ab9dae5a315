package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/okoshkina/benefit-system/internal/balance"
	"github.com/okoshkina/benefit-system/internal/events"
	"github.com/okoshkina/benefit-system/internal/model"
	"github.com/okoshkina/benefit-system/internal/validation"
)

const (
	// idempotencyBucket — окно, в котором повторная отправка той же
	// корзины считается дубликатом.
	idempotencyBucket = 5 * time.Minute
	idempotencyTTL    = 15 * time.Minute
)

// ErrEmptyOrder возвращается при попытке подтвердить заказ без позиций.
var ErrEmptyOrder = errors.New("order has no items")

// ConfirmOrder подтверждает заказ: повторно проверяет его, в одной
// транзакции сохраняет заказ и списывает ваучеры. Конкурентные отправки
// одного участника сериализуются распределённой блокировкой; повторная
// отправка той же корзины внутри короткого окна возвращает уже
// подтверждённый заказ. Любая неудача фиксируется записью аудита в
// независимой транзакции, и строка заказа не создаётся.
func (s *Service) ConfirmOrder(ctx context.Context, participantID int64, items []model.LineItem) (int64, error) {
	total := model.SumItems(items)
	if len(items) == 0 || total <= 0 {
		return 0, ErrEmptyOrder
	}

	idemKey := s.idempotencyKey(participantID, items)
	lockKey := fmt.Sprintf("settlement:participant:%d", participantID)

	var orderID int64
	err := s.locks.WithLock(ctx, lockKey, func(ctx context.Context) error {
		if existing, ok := s.locks.Remember(ctx, idemKey, "pending", idempotencyTTL); ok {
			if id, parseErr := strconv.ParseInt(existing, 10, 64); parseErr == nil && id > 0 {
				s.logger.Info("duplicate order submission suppressed",
					zap.Int64("participant_id", participantID),
					zap.Int64("order_id", id))
				orderID = id
				return nil
			}
		}

		id, settleErr := s.settle(ctx, participantID, items, total)
		if settleErr != nil {
			return settleErr
		}
		orderID = id

		s.locks.Store(ctx, idemKey, strconv.FormatInt(id, 10), idempotencyTTL)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return orderID, nil
}

func (s *Service) settle(ctx context.Context, participantID int64, items []model.LineItem, total int64) (int64, error) {
	st, err := s.loadAccountState(ctx, participantID)
	if err != nil {
		return 0, err
	}
	balances := s.balances(st)

	// Повторная проверка перед записью: защита в глубину от гонки между
	// первичной проверкой и подтверждением.
	if err := validation.Validate(items, *st.participant, s.limits, balances); err != nil {
		s.recordFailure(ctx, st, items, balances, err)
		return 0, err
	}

	note := fmt.Sprintf("order settlement for participant %d", participantID)
	orderID, apps, err := s.repo.SettleOrder(ctx, st.account.ID, items, total,
		balance.VoucherAmount(*st.participant, s.rates), st.snapshot.PauseGateActive, note)
	if err != nil {
		s.recordFailure(ctx, st, items, balances, err)
		return 0, err
	}

	for _, app := range apps {
		s.bus.Publish(ctx, events.VoucherConsumed{
			AccountID:   st.account.ID,
			OrderID:     orderID,
			VoucherID:   app.VoucherID,
			AmountCents: app.AmountCents,
		})
	}

	s.logger.Info("order confirmed",
		zap.Int64("participant_id", participantID),
		zap.Int64("order_id", orderID),
		zap.Int64("total", total),
		zap.Int("vouchers_consumed", len(apps)),
	)

	return orderID, nil
}

// recordFailure сохраняет аудит неудачной попытки. Запись идёт в
// собственной транзакции и переживает откат основной; ошибка записи
// не маскирует исходную ошибку расчёта.
func (s *Service) recordFailure(ctx context.Context, st *accountState, items []model.LineItem, balances model.BalanceSummary, cause error) {
	fa := model.FailedAttempt{
		ParticipantID: st.participant.ID,
		Cart:          items,
		Balances:      balances,
		PauseContext:  fmt.Sprintf("gate_active=%t pauses=%v", st.snapshot.PauseGateActive, st.gatePauses),
	}

	var vErr *validation.ValidationError
	if errors.As(cause, &vErr) {
		for _, v := range vErr.Violations {
			fa.Violations = append(fa.Violations, v.String())
		}
	} else {
		fa.Violations = []string{cause.Error()}
	}

	if err := s.repo.RecordFailedAttempt(context.WithoutCancel(ctx), fa); err != nil {
		s.logger.Error("record failed attempt", zap.Error(err))
	}
}

// idempotencyKey строит ключ дубликата из участника, содержимого корзины
// и временного интервала.
func (s *Service) idempotencyKey(participantID int64, items []model.LineItem) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%s|%s|%s|%d|%d", it.Product, it.Category, it.Subcategory, it.Quantity, it.PriceCents))
	}
	sort.Strings(lines)

	h := sha256.New()
	fmt.Fprintf(h, "%d:", participantID)
	for _, l := range lines {
		fmt.Fprintln(h, l)
	}
	fmt.Fprintf(h, "%d", s.now().Truncate(idempotencyBucket).Unix())

	return "order:idem:" + hex.EncodeToString(h.Sum(nil))
}
