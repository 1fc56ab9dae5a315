// Package main запускает HTTP-сервер системы социальных ваучеров.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/okoshkina/benefit-system/internal/balance"
	"github.com/okoshkina/benefit-system/internal/config"
	"github.com/okoshkina/benefit-system/internal/events"
	"github.com/okoshkina/benefit-system/internal/handler"
	"github.com/okoshkina/benefit-system/internal/locker"
	"github.com/okoshkina/benefit-system/internal/middleware"
	"github.com/okoshkina/benefit-system/internal/notify"
	"github.com/okoshkina/benefit-system/internal/repository"
	"github.com/okoshkina/benefit-system/internal/scheduler"
	"github.com/okoshkina/benefit-system/internal/service"
	"github.com/okoshkina/benefit-system/internal/validation"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	locks := locker.New(cfg.RedisAddress)
	defer locks.Close()

	bus := events.NewBus()
	subscribeAuditLog(bus, logger)
	if cfg.NotifyAddress != "" {
		subscribeNotifier(bus, notify.NewClient(cfg.NotifyAddress), logger)
	}

	rates := balance.RateConfig{
		PerPersonCents:      cfg.PerPersonRateCents,
		InfantModifierCents: cfg.InfantModifierCents,
		GoFreshEnabled:      cfg.GoFreshEnabled,
		GoFreshSmallMax:     cfg.GoFreshSmallMax,
		GoFreshMediumMax:    cfg.GoFreshMediumMax,
		GoFreshSmallCents:   cfg.GoFreshSmallCents,
		GoFreshMediumCents:  cfg.GoFreshMediumCents,
		GoFreshLargeCents:   cfg.GoFreshLargeCents,
	}

	svc := service.NewService(repo, locks, bus, logger, rates, loadLimits())
	defer svc.Close()

	runner := scheduler.NewRunner(logger)
	defer runner.Close()

	pauses := scheduler.NewPauseScheduler(repo, runner, bus, logger, cfg.OrderWindowCloseHour)

	authMiddleware := middleware.NewAuthMiddleware("benefit-secret")
	h := handler.NewHandler(svc, pauses, logger, authMiddleware, cfg.StaffKey)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск ежедневной страховочной зачистки пауз и ваучеров
	g.Go(func() error {
		pauses.StartDailySweep(ctx, time.Duration(cfg.VoucherValidityDays)*24*time.Hour)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting benefit server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// subscribeAuditLog пишет все доменные события в журнал аудита.
func subscribeAuditLog(bus *events.Bus, logger *zap.Logger) {
	audit := logger.Named("audit")

	bus.Subscribe(events.VoucherConsumed{}.Name(), func(ctx context.Context, e events.Event) {
		ev := e.(events.VoucherConsumed)
		audit.Info("voucher consumed",
			zap.Int64("account_id", ev.AccountID),
			zap.Int64("order_id", ev.OrderID),
			zap.Int64("voucher_id", ev.VoucherID),
			zap.Int64("amount", ev.AmountCents),
		)
	})
	bus.Subscribe(events.VouchersFlagged{}.Name(), func(ctx context.Context, e events.Event) {
		ev := e.(events.VouchersFlagged)
		audit.Info("vouchers flagged",
			zap.Int64("pause_id", ev.PauseID),
			zap.String("program", ev.Program),
			zap.Bool("activated", ev.Activated),
			zap.Int("multiplier", ev.Multiplier),
			zap.Int("updated", ev.Updated),
			zap.Int("skipped", ev.Skipped),
		)
	})
	bus.Subscribe(events.PauseArchivedEvent{}.Name(), func(ctx context.Context, e events.Event) {
		ev := e.(events.PauseArchivedEvent)
		audit.Info("pause archived",
			zap.Int64("pause_id", ev.PauseID),
			zap.String("program", ev.Program),
		)
	})
	bus.Subscribe(events.AccountProvisioned{}.Name(), func(ctx context.Context, e events.Event) {
		ev := e.(events.AccountProvisioned)
		audit.Info("account provisioned",
			zap.Int64("participant_id", ev.ParticipantID),
			zap.Int64("account_id", ev.AccountID),
			zap.Int("vouchers", ev.VoucherCount),
		)
	})
}

// subscribeNotifier пересылает события изменения состояния ваучеров
// внешней системе уведомлений.
func subscribeNotifier(bus *events.Bus, client *notify.Client, logger *zap.Logger) {
	bus.Subscribe(events.VoucherConsumed{}.Name(), func(ctx context.Context, e events.Event) {
		ev := e.(events.VoucherConsumed)
		if err := client.Send(ctx, notify.EventPayload{
			Name:        ev.Name(),
			AccountID:   ev.AccountID,
			OrderID:     ev.OrderID,
			VoucherID:   ev.VoucherID,
			AmountCents: ev.AmountCents,
		}); err != nil {
			logger.Warn("notify send failed", zap.Error(err))
		}
	})
	bus.Subscribe(events.PauseArchivedEvent{}.Name(), func(ctx context.Context, e events.Event) {
		ev := e.(events.PauseArchivedEvent)
		if err := client.Send(ctx, notify.EventPayload{
			Name:    ev.Name(),
			PauseID: ev.PauseID,
		}); err != nil {
			logger.Warn("notify send failed", zap.Error(err))
		}
	})
}

// loadLimits возвращает действующие лимиты категорий. В проде лимиты
// ведёт отдельный сервис конфигурации; здесь — базовый набор программы.
func loadLimits() []validation.Limit {
	return []validation.Limit{
		validation.CategoryLimit{Category: "Dairy", LimitScope: validation.ScopePerHousehold, Max: 5},
		validation.CategoryLimit{Category: "Meat", LimitScope: validation.ScopePerAdult, Max: 3},
		validation.SubcategoryLimit{Subcategory: "Diapers", LimitScope: validation.ScopePerInfant, Max: 2},
		validation.CategoryLimit{Category: "Treats", LimitScope: validation.ScopePerOrder, Max: 2},
	}
}
