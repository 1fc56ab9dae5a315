package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okoshkina/benefit-system/internal/model"
)

// SettleOrder выполняет атомарное подтверждение заказа: сохраняет заказ
// со статусом confirmed и списывает ровно те ваучеры, которые нужны для
// покрытия суммы. Строки ваучеров блокируются на время транзакции, чтобы
// сериализоваться с планировщиком пауз.
//
// Правило списания: выбираются до двух старейших applied-ваучеров
// продуктового типа; если сумма заказа не превышает эффективный номинал
// первого (номинал × множитель), списывается только он, иначе оба.
// Если сумма недостижима, возвращается ErrInsufficientBenefit и заказ
// не создаётся.
func (r *PostgresRepository) SettleOrder(ctx context.Context, accountID int64, items []model.LineItem, totalCents, voucherAmountCents int64, gateActive bool, note string) (int64, []model.VoucherApplication, error) {
	var (
		orderID int64
		apps    []model.VoucherApplication
	)

	err := r.withRetry(ctx, func() error {
		orderID, apps = 0, nil

		tx, txErr := r.pool.Begin(ctx)
		if txErr != nil {
			return fmt.Errorf("begin tx: %w", txErr)
		}
		defer tx.Rollback(ctx)

		query := `SELECT id, multiplier FROM vouchers
		 WHERE account_id = $1 AND state = $2 AND type = $3`
		if gateActive {
			query += ` AND pause_flag`
		}
		query += ` ORDER BY created_at LIMIT 2 FOR UPDATE`

		rows, txErr := tx.Query(ctx, query,
			accountID, string(model.VoucherStateApplied), string(model.VoucherTypeGrocery),
		)
		if txErr != nil {
			return fmt.Errorf("lock vouchers: %w", txErr)
		}

		type lockedVoucher struct {
			id        int64
			effective int64
		}
		var vouchers []lockedVoucher
		for rows.Next() {
			var (
				id   int64
				mult int
			)
			if scanErr := rows.Scan(&id, &mult); scanErr != nil {
				rows.Close()
				return fmt.Errorf("scan voucher: %w", scanErr)
			}
			if mult < 1 {
				mult = 1
			}
			vouchers = append(vouchers, lockedVoucher{id: id, effective: voucherAmountCents * int64(mult)})
		}
		rows.Close()
		if rowsErr := rows.Err(); rowsErr != nil {
			return fmt.Errorf("rows error: %w", rowsErr)
		}

		effective := make([]int64, len(vouchers))
		for i, v := range vouchers {
			effective[i] = v.effective
		}
		applications, planErr := planConsumption(effective, totalCents)
		if planErr != nil {
			return planErr
		}
		toConsume := vouchers[:len(applications)]

		txErr = tx.QueryRow(ctx,
			`INSERT INTO orders (account_id, status, total) VALUES ($1, $2, $3) RETURNING id`,
			accountID, string(model.OrderStatusConfirmed), totalCents,
		).Scan(&orderID)
		if txErr != nil {
			return fmt.Errorf("insert order: %w", txErr)
		}

		for _, it := range items {
			_, txErr = tx.Exec(ctx,
				`INSERT INTO order_items (order_id, product, category, subcategory, quantity, price)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				orderID, it.Product, it.Category, it.Subcategory, it.Quantity, it.PriceCents,
			)
			if txErr != nil {
				return fmt.Errorf("insert order item: %w", txErr)
			}
		}

		for i, v := range toConsume {
			applied := applications[i]

			_, txErr = tx.Exec(ctx,
				`UPDATE vouchers SET state = $2, pause_flag = FALSE, multiplier = 1 WHERE id = $1`,
				v.id, string(model.VoucherStateConsumed),
			)
			if txErr != nil {
				return fmt.Errorf("consume voucher: %w", txErr)
			}

			var app model.VoucherApplication
			txErr = tx.QueryRow(ctx,
				`INSERT INTO voucher_applications (order_id, voucher_id, amount, note)
				 VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
				orderID, v.id, applied, note,
			).Scan(&app.ID, &app.CreatedAt)
			if txErr != nil {
				return fmt.Errorf("insert voucher application: %w", txErr)
			}
			app.OrderID = orderID
			app.VoucherID = v.id
			app.AmountCents = applied
			app.Note = note
			apps = append(apps, app)
		}

		if commitErr := tx.Commit(ctx); commitErr != nil {
			return fmt.Errorf("commit tx: %w", commitErr)
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	return orderID, apps, nil
}

// GetOrdersByAccount возвращает заказы счёта, новые первыми.
func (r *PostgresRepository) GetOrdersByAccount(ctx context.Context, accountID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, status, total, created_at
		 FROM orders
		 WHERE account_id = $1
		 ORDER BY created_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var (
			o      model.Order
			status string
		)
		if err := rows.Scan(&o.ID, &o.AccountID, &status, &o.TotalCents, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// ListConfirmedOrders возвращает подтверждённые заказы программы,
// созданные в интервале [from, to), вместе с позициями.
func (r *PostgresRepository) ListConfirmedOrders(ctx context.Context, program string, from, to time.Time) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT o.id, o.account_id, o.status, o.total, o.created_at
		 FROM orders o
		 JOIN accounts a ON a.id = o.account_id
		 JOIN participants p ON p.id = a.participant_id
		 WHERE p.program = $1 AND o.status = $2 AND o.created_at >= $3 AND o.created_at < $4
		 ORDER BY o.id`,
		program, string(model.OrderStatusConfirmed), from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select confirmed orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var (
			o      model.Order
			status string
		)
		if err := rows.Scan(&o.ID, &o.AccountID, &status, &o.TotalCents, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range orders {
		items, err := r.getOrderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

func (r *PostgresRepository) getOrderItems(ctx context.Context, orderID int64) ([]model.LineItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT product, category, subcategory, quantity, price
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var items []model.LineItem
	for rows.Next() {
		var it model.LineItem
		if err := rows.Scan(&it.Product, &it.Category, &it.Subcategory, &it.Quantity, &it.PriceCents); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// RecordFailedAttempt сохраняет запись о неудачной попытке подтверждения
// заказа. Выполняется в собственной транзакции и не зависит от отката
// основной транзакции расчёта.
func (r *PostgresRepository) RecordFailedAttempt(ctx context.Context, fa model.FailedAttempt) error {
	cart, err := json.Marshal(fa.Cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	balances, err := json.Marshal(fa.Balances)
	if err != nil {
		return fmt.Errorf("marshal balances: %w", err)
	}
	violations, err := json.Marshal(fa.Violations)
	if err != nil {
		return fmt.Errorf("marshal violations: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO failed_attempts (participant_id, cart, balances, pause_context, violations)
		 VALUES ($1, $2, $3, $4, $5)`,
		fa.ParticipantID, cart, balances, fa.PauseContext, violations,
	)
	if err != nil {
		return fmt.Errorf("insert failed attempt: %w", err)
	}

	return nil
}
