// Package service реализует бизнес-логику системы ваучеров.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/okoshkina/benefit-system/internal/balance"
	"github.com/okoshkina/benefit-system/internal/events"
	"github.com/okoshkina/benefit-system/internal/model"
	"github.com/okoshkina/benefit-system/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateParticipant(ctx context.Context, p model.Participant) (int64, error)
	GetParticipant(ctx context.Context, id int64) (*model.Participant, error)
	ProvisionAccount(ctx context.Context, participantID int64) (*model.Account, error)
	GetAccountByParticipant(ctx context.Context, participantID int64) (*model.Account, error)
	GetVouchersByAccount(ctx context.Context, accountID int64) ([]model.Voucher, error)
	ListActivePauses(ctx context.Context, program string) ([]model.Pause, error)
	SettleOrder(ctx context.Context, accountID int64, items []model.LineItem, totalCents, voucherAmountCents int64, gateActive bool, note string) (int64, []model.VoucherApplication, error)
	GetOrdersByAccount(ctx context.Context, accountID int64) ([]model.Order, error)
	ListConfirmedOrders(ctx context.Context, program string, from, to time.Time) ([]model.Order, error)
	UpsertCombinedOrder(ctx context.Context, program string, year, week int, orderIDs []int64) (int64, error)
	CombinedOrderMembers(ctx context.Context, combinedID int64) ([]int64, error)
	RecordFailedAttempt(ctx context.Context, fa model.FailedAttempt) error
}

// LockCache описывает распределённую блокировку и кэш идемпотентности.
type LockCache interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
	Remember(ctx context.Context, key, value string, ttl time.Duration) (string, bool)
	Store(ctx context.Context, key, value string, ttl time.Duration)
}

// Service содержит бизнес-логику системы ваучеров.
type Service struct {
	repo   Repository
	locks  LockCache
	bus    *events.Bus
	logger *zap.Logger
	rates  balance.RateConfig
	limits []validation.Limit
	now    func() time.Time
}

// NewService создаёт новый сервис.
func NewService(repo Repository, locks LockCache, bus *events.Bus, logger *zap.Logger, rates balance.RateConfig, limits []validation.Limit) *Service {
	return &Service{
		repo:   repo,
		locks:  locks,
		bus:    bus,
		logger: logger,
		rates:  rates,
		limits: limits,
		now:    time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterParticipant создаёт участника и его счёт с начальными ваучерами.
func (s *Service) RegisterParticipant(ctx context.Context, p model.Participant) (*model.Participant, *model.Account, error) {
	id, err := s.repo.CreateParticipant(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	p.ID = id

	acc, err := s.repo.ProvisionAccount(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	s.bus.Publish(ctx, events.AccountProvisioned{
		ParticipantID: id,
		AccountID:     acc.ID,
		VoucherCount:  2,
	})

	return &p, acc, nil
}

// accountState собирает снимок счёта участника для расчётов.
type accountState struct {
	participant *model.Participant
	account     *model.Account
	snapshot    balance.Snapshot
	gatePauses  []int64
}

func (s *Service) loadAccountState(ctx context.Context, participantID int64) (*accountState, error) {
	participant, err := s.repo.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	account, err := s.repo.GetAccountByParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	vouchers, err := s.repo.GetVouchersByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	pauses, err := s.repo.ListActivePauses(ctx, participant.Program)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var gatePauses []int64
	for _, p := range pauses {
		if p.IsActiveGate(now) {
			gatePauses = append(gatePauses, p.ID)
		}
	}

	return &accountState{
		participant: participant,
		account:     account,
		snapshot: balance.Snapshot{
			Participant:     *participant,
			Account:         *account,
			Vouchers:        vouchers,
			PauseGateActive: len(gatePauses) > 0,
		},
		gatePauses: gatePauses,
	}, nil
}

// balances возвращает балансы счёта. Отсутствие настроенной ставки
// считается нулевым балансом, а не ошибкой, чтобы не ломать заказы.
func (s *Service) balances(st *accountState) model.BalanceSummary {
	summary, err := balance.Summary(st.snapshot, s.rates)
	if err != nil {
		if errors.Is(err, balance.ErrConfigurationMissing) {
			s.logger.Warn("no active rate configured, balances default to zero",
				zap.Int64("participant_id", st.participant.ID))
			return model.BalanceSummary{}
		}
	}
	return summary
}

// GetBalanceSummary возвращает четыре баланса счёта участника.
func (s *Service) GetBalanceSummary(ctx context.Context, participantID int64) (model.BalanceSummary, error) {
	st, err := s.loadAccountState(ctx, participantID)
	if err != nil {
		return model.BalanceSummary{}, err
	}
	return s.balances(st), nil
}

// ValidateOrder выполняет проверку предложенного заказа без изменения
// состояния. Возвращает nil либо *validation.ValidationError со всеми
// нарушениями сразу.
func (s *Service) ValidateOrder(ctx context.Context, participantID int64, items []model.LineItem) error {
	st, err := s.loadAccountState(ctx, participantID)
	if err != nil {
		return err
	}
	return validation.Validate(items, *st.participant, s.limits, s.balances(st))
}

// GetOrdersByParticipant возвращает заказы участника.
func (s *Service) GetOrdersByParticipant(ctx context.Context, participantID int64) ([]model.Order, error) {
	account, err := s.repo.GetAccountByParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetOrdersByAccount(ctx, account.ID)
}
