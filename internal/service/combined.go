package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/okoshkina/benefit-system/internal/model"
	"github.com/okoshkina/benefit-system/internal/packing"
)

// BuildCombinedOrder собирает сводный заказ программы за ISO-неделю и
// распределяет его между упаковщиками. Повторный запуск для той же
// недели дополняет существующий сводный заказ, а не создаёт новый.
func (s *Service) BuildCombinedOrder(ctx context.Context, program string, year, week int, strategy packing.Strategy, packers []string, opts packing.Options) (*model.CombinedOrder, error) {
	from, to := isoWeekRange(year, week)

	orders, err := s.repo.ListConfirmedOrders(ctx, program, from, to)
	if err != nil {
		return nil, err
	}

	orderIDs := make([]int64, 0, len(orders))
	for _, o := range orders {
		orderIDs = append(orderIDs, o.ID)
	}

	combinedID, err := s.repo.UpsertCombinedOrder(ctx, program, year, week, orderIDs)
	if err != nil {
		return nil, err
	}

	members, err := s.repo.CombinedOrderMembers(ctx, combinedID)
	if err != nil {
		return nil, err
	}

	lists, err := packing.Split(orders, strategy, packers, opts)
	if err != nil {
		return nil, err
	}

	s.logger.Info("combined order built",
		zap.String("program", program),
		zap.Int("year", year),
		zap.Int("week", week),
		zap.Int("orders", len(orders)),
		zap.Int("members", len(members)),
		zap.Int("packers", len(packers)),
	)

	return &model.CombinedOrder{
		ID:           combinedID,
		Program:      program,
		Year:         year,
		Week:         week,
		Orders:       orders,
		PackingLists: lists,
		Summary:      packing.Aggregate(lists),
	}, nil
}

// isoWeekRange возвращает интервал [понедельник, следующий понедельник)
// для ISO-недели.
func isoWeekRange(year, week int) (time.Time, time.Time) {
	// 4 января всегда лежит в первой ISO-неделе года.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)

	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	firstMonday := jan4.AddDate(0, 0, 1-weekday)

	from := firstMonday.AddDate(0, 0, (week-1)*7)
	return from, from.AddDate(0, 0, 7)
}
