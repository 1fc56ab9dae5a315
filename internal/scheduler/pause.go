package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/okoshkina/benefit-system/internal/events"
	"github.com/okoshkina/benefit-system/internal/model"
	"github.com/okoshkina/benefit-system/internal/repository"
)

// ErrPauseLeadTime возвращается, если до начала паузы меньше 11 дней.
var (
	ErrPauseLeadTime = errors.New("pause must start at least 11 days from now")
	// ErrPauseDuration возвращается, если пауза длиннее 14 дней.
	ErrPauseDuration = errors.New("pause duration exceeds 14 days")
	// ErrPauseWindow возвращается при некорректном окне паузы.
	ErrPauseWindow = errors.New("pause end must be after start")
)

// deactivationBuffer — запас после закрытия окна заказов участника,
// прежде чем снимать флаги его ваучеров.
const deactivationBuffer = 5 * time.Minute

// Ledger описывает операции хранилища, используемые планировщиком пауз.
type Ledger interface {
	CreatePause(ctx context.Context, p model.Pause) (*model.Pause, error)
	GetPause(ctx context.Context, id int64) (*model.Pause, error)
	SetPauseArchive(ctx context.Context, id int64, state model.PauseArchiveState) error
	ListOverduePauses(ctx context.Context, now time.Time) ([]model.Pause, error)
	ActiveVoucherIDs(ctx context.Context, program string) ([]int64, error)
	FlaggedParticipants(ctx context.Context, program string) ([]repository.FlaggedParticipant, error)
	FlaggedVoucherIDs(ctx context.Context, program string) ([]int64, error)
	SetPauseState(ctx context.Context, voucherIDs []int64, activate bool, multiplier int) (int, int, error)
	ExpireVouchers(ctx context.Context, olderThan time.Time) (int64, error)
}

// PauseScheduler управляет жизненным циклом пауз и изменяет состояние
// ваучеров в нужные моменты времени.
type PauseScheduler struct {
	ledger    Ledger
	runner    *Runner
	bus       *events.Bus
	logger    *zap.Logger
	closeHour int
	now       func() time.Time
}

// NewPauseScheduler создаёт планировщик пауз. closeHour — час закрытия
// окна заказов участника в день его заказа.
func NewPauseScheduler(ledger Ledger, runner *Runner, bus *events.Bus, logger *zap.Logger, closeHour int) *PauseScheduler {
	return &PauseScheduler{
		ledger:    ledger,
		runner:    runner,
		bus:       bus,
		logger:    logger,
		closeHour: closeHour,
		now:       time.Now,
	}
}

// CreatePause проверяет и сохраняет паузу. Если окно заказов уже открыто,
// ваучеры помечаются немедленно; иначе пометка планируется на момент
// открытия окна.
func (s *PauseScheduler) CreatePause(ctx context.Context, program string, start, end time.Time, reason string) (*model.Pause, error) {
	now := s.now()

	if !end.After(start) {
		return nil, ErrPauseWindow
	}
	if start.Sub(now) < model.OrderingWindowMinDays*24*time.Hour {
		return nil, ErrPauseLeadTime
	}

	p := model.Pause{Program: program, Start: start, End: end, Reason: reason}
	if p.DurationDays() > model.MaxPauseDurationDays {
		return nil, ErrPauseDuration
	}

	created, err := s.ledger.CreatePause(ctx, p)
	if err != nil {
		return nil, err
	}

	if created.InOrderingWindow(now) {
		if err := s.armPause(ctx, *created); err != nil {
			return nil, err
		}
		return created, nil
	}

	open, _ := created.OrderingWindow()
	pauseID := created.ID
	s.runner.ScheduleAt(armTaskKey(pauseID), open, func(ctx context.Context) error {
		p, err := s.ledger.GetPause(ctx, pauseID)
		if err != nil {
			return err
		}
		if p.Archive == model.PauseArchived {
			return nil
		}
		return s.armPause(ctx, *p)
	})

	return created, nil
}

// armPause помечает все applied-ваучеры программы множителем паузы и
// запускает цепочку деактивации.
func (s *PauseScheduler) armPause(ctx context.Context, p model.Pause) error {
	multiplier := model.DurationMultiplier(p.DurationDays())

	ids, err := s.ledger.ActiveVoucherIDs(ctx, p.Program)
	if err != nil {
		return err
	}

	updated, skipped, err := s.ledger.SetPauseState(ctx, ids, true, multiplier)
	if err != nil {
		return err
	}

	s.logger.Info("pause armed",
		zap.Int64("pause_id", p.ID),
		zap.String("program", p.Program),
		zap.Int("multiplier", multiplier),
		zap.Int("updated", updated),
		zap.Int("skipped", skipped),
	)
	s.bus.Publish(ctx, events.VouchersFlagged{
		PauseID:    p.ID,
		Program:    p.Program,
		Activated:  true,
		Multiplier: multiplier,
		Updated:    updated,
		Skipped:    skipped,
	})

	return s.runDeactivation(ctx, p.ID)
}

// runDeactivation — самоперепланирующаяся задача: снимает флаги у
// участников, чьё окно заказов закрылось, и переносит себя на ближайшее
// ещё открытое закрытие. Когда открытых окон не остаётся, ставится
// одноразовая финальная зачистка на конец паузы.
func (s *PauseScheduler) runDeactivation(ctx context.Context, pauseID int64) error {
	p, err := s.ledger.GetPause(ctx, pauseID)
	if err != nil {
		return err
	}
	if p.Archive == model.PauseArchived {
		return nil
	}

	flagged, err := s.ledger.FlaggedParticipants(ctx, p.Program)
	if err != nil {
		return err
	}

	now := s.now()
	var nextClose time.Time
	anyOpen := false

	for _, fp := range flagged {
		closeAt := s.orderWindowClose(fp.Participant, *p)
		if !now.Before(closeAt.Add(deactivationBuffer)) {
			if _, _, err := s.ledger.SetPauseState(ctx, fp.VoucherIDs, false, 1); err != nil {
				return err
			}
			continue
		}
		if !anyOpen || closeAt.Before(nextClose) {
			nextClose = closeAt
		}
		anyOpen = true
	}

	if anyOpen {
		s.runner.ScheduleAt(deactivateTaskKey(pauseID), nextClose.Add(deactivationBuffer), func(ctx context.Context) error {
			return s.runDeactivation(ctx, pauseID)
		})
		return nil
	}

	s.runner.ScheduleAt(cleanupTaskKey(pauseID), p.End.Add(deactivationBuffer), func(ctx context.Context) error {
		return s.cleanup(ctx, pauseID)
	})
	return nil
}

// cleanup принудительно снимает оставшиеся флаги и архивирует паузу.
func (s *PauseScheduler) cleanup(ctx context.Context, pauseID int64) error {
	p, err := s.ledger.GetPause(ctx, pauseID)
	if err != nil {
		return err
	}
	if p.Archive == model.PauseArchived {
		return nil
	}

	ids, err := s.ledger.FlaggedVoucherIDs(ctx, p.Program)
	if err != nil {
		return err
	}
	if _, _, err := s.ledger.SetPauseState(ctx, ids, false, 1); err != nil {
		return err
	}

	if err := s.ledger.SetPauseArchive(ctx, pauseID, model.PauseArchived); err != nil {
		return err
	}

	s.logger.Info("pause archived", zap.Int64("pause_id", pauseID))
	s.bus.Publish(ctx, events.PauseArchivedEvent{PauseID: pauseID, Program: p.Program, At: s.now()})
	return nil
}

// Archive архивирует паузу вручную, немедленно снимая флаги ваучеров.
func (s *PauseScheduler) Archive(ctx context.Context, pauseID int64) error {
	s.runner.Cancel(armTaskKey(pauseID))
	s.runner.Cancel(deactivateTaskKey(pauseID))
	s.runner.Cancel(cleanupTaskKey(pauseID))
	return s.cleanup(ctx, pauseID)
}

// Unarchive возвращает паузу из архива. Флаги ваучеров восстанавливаются
// с пересчитанным множителем, только если текущий момент всё ещё внутри
// окна паузы [start, end): граница end исключена, как и в самом окне
// действия паузы.
func (s *PauseScheduler) Unarchive(ctx context.Context, pauseID int64) error {
	p, err := s.ledger.GetPause(ctx, pauseID)
	if err != nil {
		return err
	}

	if err := s.ledger.SetPauseArchive(ctx, pauseID, model.PauseActive); err != nil {
		return err
	}

	now := s.now()
	if now.Before(p.Start) || !now.Before(p.End) {
		return nil
	}

	multiplier := model.DurationMultiplier(p.DurationDays())
	ids, err := s.ledger.ActiveVoucherIDs(ctx, p.Program)
	if err != nil {
		return err
	}
	updated, skipped, err := s.ledger.SetPauseState(ctx, ids, true, multiplier)
	if err != nil {
		return err
	}

	s.bus.Publish(ctx, events.VouchersFlagged{
		PauseID:    pauseID,
		Program:    p.Program,
		Activated:  true,
		Multiplier: multiplier,
		Updated:    updated,
		Skipped:    skipped,
	})

	s.runner.ScheduleAt(cleanupTaskKey(pauseID), p.End.Add(deactivationBuffer), func(ctx context.Context) error {
		return s.cleanup(ctx, pauseID)
	})
	return nil
}

// RunSweep — страховочная зачистка: архивирует просроченные паузы,
// снимает потерянные флаги и просрочивает старые ваучеры. Покрывает
// пропущенные или упавшие задачи планировщика.
func (s *PauseScheduler) RunSweep(ctx context.Context, voucherValidity time.Duration) error {
	now := s.now()

	overdue, err := s.ledger.ListOverduePauses(ctx, now)
	if err != nil {
		return err
	}
	for _, p := range overdue {
		if err := s.cleanup(ctx, p.ID); err != nil {
			return err
		}
	}

	if voucherValidity > 0 {
		expired, err := s.ledger.ExpireVouchers(ctx, now.Add(-voucherValidity))
		if err != nil {
			return err
		}
		if expired > 0 {
			s.logger.Info("vouchers expired", zap.Int64("count", expired))
		}
	}

	return nil
}

// StartDailySweep запускает фоновый процесс ежедневной зачистки.
func (s *PauseScheduler) StartDailySweep(ctx context.Context, voucherValidity time.Duration) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			if err := s.RunSweep(ctx, voucherValidity); err != nil {
				s.logger.Error("daily sweep failed", zap.Error(err))
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// orderWindowClose возвращает момент закрытия окна заказов участника
// внутри окна заказов паузы: первое наступление дня заказа участника,
// не раньше открытия окна, ограниченное его закрытием.
func (s *PauseScheduler) orderWindowClose(p model.Participant, pause model.Pause) time.Time {
	open, windowClose := pause.OrderingWindow()

	t := time.Date(open.Year(), open.Month(), open.Day(), s.closeHour, 0, 0, 0, open.Location())
	for i := 0; i < 8 && (t.Weekday() != p.OrderWeekday || t.Before(open)); i++ {
		t = t.AddDate(0, 0, 1)
	}

	if t.After(windowClose) {
		return windowClose
	}
	return t
}

func armTaskKey(pauseID int64) string        { return fmt.Sprintf("pause:%d:arm", pauseID) }
func deactivateTaskKey(pauseID int64) string { return fmt.Sprintf("pause:%d:deactivate", pauseID) }
func cleanupTaskKey(pauseID int64) string    { return fmt.Sprintf("pause:%d:cleanup", pauseID) }
