package repository

import (
	"context"
	"fmt"
)

// UpsertCombinedOrder создаёт сводный заказ программы за ISO-неделю либо
// дополняет уже существующий. Повторный запуск для той же пары
// программа+неделя присоединяет новые заказы, а не создаёт дубликат.
func (r *PostgresRepository) UpsertCombinedOrder(ctx context.Context, program string, year, week int, orderIDs []int64) (int64, error) {
	var combinedID int64

	err := r.withRetry(ctx, func() error {
		tx, txErr := r.pool.Begin(ctx)
		if txErr != nil {
			return fmt.Errorf("begin tx: %w", txErr)
		}
		defer tx.Rollback(ctx)

		txErr = tx.QueryRow(ctx,
			`INSERT INTO combined_orders (program, year, week)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (program, year, week) DO UPDATE SET program = EXCLUDED.program
			 RETURNING id`,
			program, year, week,
		).Scan(&combinedID)
		if txErr != nil {
			if isUniqueViolation(txErr) {
				return fmt.Errorf("combined order %s/%d-%d: %w", program, year, week, ErrIntegrityConflict)
			}
			return fmt.Errorf("upsert combined order: %w", txErr)
		}

		for _, orderID := range orderIDs {
			_, txErr = tx.Exec(ctx,
				`INSERT INTO combined_order_members (combined_order_id, order_id)
				 VALUES ($1, $2)
				 ON CONFLICT (order_id) DO NOTHING`,
				combinedID, orderID,
			)
			if txErr != nil {
				return fmt.Errorf("attach order %d: %w", orderID, txErr)
			}
		}

		if commitErr := tx.Commit(ctx); commitErr != nil {
			return fmt.Errorf("commit tx: %w", commitErr)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return combinedID, nil
}

// CombinedOrderMembers возвращает заказы, уже входящие в сводный заказ.
func (r *PostgresRepository) CombinedOrderMembers(ctx context.Context, combinedID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT order_id FROM combined_order_members WHERE combined_order_id = $1 ORDER BY order_id`,
		combinedID,
	)
	if err != nil {
		return nil, fmt.Errorf("select combined order members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}
