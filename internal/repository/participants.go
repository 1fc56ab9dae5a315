package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/okoshkina/benefit-system/internal/model"
)

// CreateParticipant создаёт участника программы.
func (r *PostgresRepository) CreateParticipant(ctx context.Context, p model.Participant) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO participants (full_name, program, adults, children, infants, order_weekday)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		p.FullName, p.Program, p.Adults, p.Children, p.Infants, int(p.OrderWeekday),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create participant: %w", err)
	}
	return id, nil
}

// GetParticipant возвращает участника по идентификатору.
func (r *PostgresRepository) GetParticipant(ctx context.Context, id int64) (*model.Participant, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, full_name, program, adults, children, infants, order_weekday, created_at
		 FROM participants WHERE id = $1`,
		id,
	)

	var p model.Participant
	var weekday int
	err := row.Scan(&p.ID, &p.FullName, &p.Program, &p.Adults, &p.Children, &p.Infants, &weekday, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("participant %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}
	p.OrderWeekday = time.Weekday(weekday)

	return &p, nil
}

// ProvisionAccount создаёт счёт участника и два продуктовых ваучера на нём.
// Ваучеры создаются сразу в состоянии applied и готовы к списанию.
func (r *PostgresRepository) ProvisionAccount(ctx context.Context, participantID int64) (*model.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var acc model.Account
	err = tx.QueryRow(ctx,
		`INSERT INTO accounts (participant_id) VALUES ($1) RETURNING id, participant_id, created_at`,
		participantID,
	).Scan(&acc.ID, &acc.ParticipantID, &acc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("account for participant %d: %w", participantID, ErrIntegrityConflict)
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	for i := 0; i < 2; i++ {
		_, err = tx.Exec(ctx,
			`INSERT INTO vouchers (account_id, type, state) VALUES ($1, $2, $3)`,
			acc.ID, string(model.VoucherTypeGrocery), string(model.VoucherStateApplied),
		)
		if err != nil {
			return nil, fmt.Errorf("create voucher: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &acc, nil
}

// GetAccountByParticipant возвращает счёт участника.
func (r *PostgresRepository) GetAccountByParticipant(ctx context.Context, participantID int64) (*model.Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, participant_id, created_at FROM accounts WHERE participant_id = $1`,
		participantID,
	)

	var acc model.Account
	err := row.Scan(&acc.ID, &acc.ParticipantID, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account of participant %d: %w", participantID, ErrNotFound)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	return &acc, nil
}

// GetVouchersByAccount возвращает все ваучеры счёта, старейшие первыми.
func (r *PostgresRepository) GetVouchersByAccount(ctx context.Context, accountID int64) ([]model.Voucher, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, type, state, pause_flag, multiplier, created_at
		 FROM vouchers
		 WHERE account_id = $1
		 ORDER BY created_at`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select vouchers: %w", err)
	}
	defer rows.Close()

	return scanVouchers(rows)
}

func scanVouchers(rows pgx.Rows) ([]model.Voucher, error) {
	var res []model.Voucher
	for rows.Next() {
		var (
			v     model.Voucher
			vType string
			state string
		)
		if err := rows.Scan(&v.ID, &v.AccountID, &vType, &state, &v.PauseFlag, &v.Multiplier, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan voucher: %w", err)
		}
		v.Type = model.VoucherType(vType)
		v.State = model.VoucherState(state)
		res = append(res, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
