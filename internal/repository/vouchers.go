package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okoshkina/benefit-system/internal/model"
)

// SetPauseState массово выставляет флаг паузы и множитель ваучеров.
// Операция идемпотентна: строки, уже находящиеся в целевом состоянии,
// пропускаются. Транзакция удерживает блокировку затронутых строк,
// чтобы сериализоваться с конкурентным списанием.
func (r *PostgresRepository) SetPauseState(ctx context.Context, voucherIDs []int64, activate bool, multiplier int) (updated, skipped int, err error) {
	if len(voucherIDs) == 0 {
		return 0, 0, nil
	}

	targetMultiplier := pauseTargetMultiplier(activate, multiplier)

	err = r.withRetry(ctx, func() error {
		updated, skipped = 0, 0

		tx, txErr := r.pool.Begin(ctx)
		if txErr != nil {
			return fmt.Errorf("begin tx: %w", txErr)
		}
		defer tx.Rollback(ctx)

		rows, txErr := tx.Query(ctx,
			`SELECT id, pause_flag, multiplier
			 FROM vouchers
			 WHERE id = ANY($1)
			 ORDER BY id
			 FOR UPDATE`,
			voucherIDs,
		)
		if txErr != nil {
			return fmt.Errorf("lock vouchers: %w", txErr)
		}

		var locked []pauseRow
		for rows.Next() {
			var row pauseRow
			if scanErr := rows.Scan(&row.id, &row.pauseFlag, &row.multiplier); scanErr != nil {
				rows.Close()
				return fmt.Errorf("scan voucher: %w", scanErr)
			}
			locked = append(locked, row)
		}
		rows.Close()
		if rowsErr := rows.Err(); rowsErr != nil {
			return fmt.Errorf("rows error: %w", rowsErr)
		}

		var toUpdate []int64
		toUpdate, skipped = planPauseState(locked, activate, multiplier)

		if len(toUpdate) > 0 {
			tag, execErr := tx.Exec(ctx,
				`UPDATE vouchers SET pause_flag = $2, multiplier = $3 WHERE id = ANY($1)`,
				toUpdate, activate, targetMultiplier,
			)
			if execErr != nil {
				return fmt.Errorf("update vouchers: %w", execErr)
			}
			updated = int(tag.RowsAffected())
		}

		if commitErr := tx.Commit(ctx); commitErr != nil {
			return fmt.Errorf("commit tx: %w", commitErr)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return updated, skipped, nil
}

// ActiveVoucherIDs возвращает идентификаторы applied-ваучеров всех
// участников программы.
func (r *PostgresRepository) ActiveVoucherIDs(ctx context.Context, program string) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT v.id
		 FROM vouchers v
		 JOIN accounts a ON a.id = v.account_id
		 JOIN participants p ON p.id = a.participant_id
		 WHERE p.program = $1 AND v.state = $2`,
		program, string(model.VoucherStateApplied),
	)
	if err != nil {
		return nil, fmt.Errorf("select active vouchers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan voucher id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

// FlaggedParticipant описывает участника с помеченными ваучерами.
type FlaggedParticipant struct {
	Participant model.Participant
	VoucherIDs  []int64
}

// FlaggedParticipants возвращает участников программы, у которых остались
// ваучеры с выставленным флагом паузы, вместе с их ваучерами.
func (r *PostgresRepository) FlaggedParticipants(ctx context.Context, program string) ([]FlaggedParticipant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.full_name, p.program, p.adults, p.children, p.infants, p.order_weekday, p.created_at, v.id
		 FROM vouchers v
		 JOIN accounts a ON a.id = v.account_id
		 JOIN participants p ON p.id = a.participant_id
		 WHERE p.program = $1 AND v.pause_flag
		 ORDER BY p.id, v.id`,
		program,
	)
	if err != nil {
		return nil, fmt.Errorf("select flagged vouchers: %w", err)
	}
	defer rows.Close()

	var res []FlaggedParticipant
	index := make(map[int64]int)
	for rows.Next() {
		var (
			p         model.Participant
			weekday   int
			voucherID int64
		)
		if err := rows.Scan(&p.ID, &p.FullName, &p.Program, &p.Adults, &p.Children, &p.Infants, &weekday, &p.CreatedAt, &voucherID); err != nil {
			return nil, fmt.Errorf("scan flagged voucher: %w", err)
		}
		p.OrderWeekday = time.Weekday(weekday)

		i, ok := index[p.ID]
		if !ok {
			res = append(res, FlaggedParticipant{Participant: p})
			i = len(res) - 1
			index[p.ID] = i
		}
		res[i].VoucherIDs = append(res[i].VoucherIDs, voucherID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// FlaggedVoucherIDs возвращает все помеченные ваучеры программы.
func (r *PostgresRepository) FlaggedVoucherIDs(ctx context.Context, program string) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT v.id
		 FROM vouchers v
		 JOIN accounts a ON a.id = v.account_id
		 JOIN participants p ON p.id = a.participant_id
		 WHERE p.program = $1 AND v.pause_flag`,
		program,
	)
	if err != nil {
		return nil, fmt.Errorf("select flagged vouchers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan voucher id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

// ExpireVouchers переводит в состояние expired ваучеры, созданные раньше
// указанного момента и так и не истраченные. Возвращает число затронутых строк.
func (r *PostgresRepository) ExpireVouchers(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE vouchers SET state = $1
		 WHERE state IN ($2, $3) AND created_at < $4`,
		string(model.VoucherStateExpired),
		string(model.VoucherStatePending),
		string(model.VoucherStateApplied),
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("expire vouchers: %w", err)
	}
	return tag.RowsAffected(), nil
}
