package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/okoshkina/benefit-system/internal/model"
)

// CreatePause сохраняет паузу, проверяя внутри транзакции отсутствие
// пересечений с другими неархивными паузами программы.
func (r *PostgresRepository) CreatePause(ctx context.Context, p model.Pause) (*model.Pause, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var overlaps bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM pauses
		    WHERE program = $1 AND archive = $2 AND start_at < $4 AND end_at > $3
		 )`,
		p.Program, string(model.PauseActive), p.Start, p.End,
	).Scan(&overlaps)
	if err != nil {
		return nil, fmt.Errorf("check overlap: %w", err)
	}
	if overlaps {
		return nil, ErrPauseOverlap
	}

	created := p
	err = tx.QueryRow(ctx,
		`INSERT INTO pauses (program, start_at, end_at, reason, archive)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		p.Program, p.Start, p.End, p.Reason, string(model.PauseActive),
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert pause: %w", err)
	}
	created.Archive = model.PauseActive

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &created, nil
}

// GetPause возвращает паузу по идентификатору.
func (r *PostgresRepository) GetPause(ctx context.Context, id int64) (*model.Pause, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, program, start_at, end_at, reason, archive, created_at
		 FROM pauses WHERE id = $1`,
		id,
	)

	p, err := scanPause(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pause %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get pause: %w", err)
	}

	return p, nil
}

// SetPauseArchive выставляет состояние архивации паузы.
func (r *PostgresRepository) SetPauseArchive(ctx context.Context, id int64, state model.PauseArchiveState) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE pauses SET archive = $2 WHERE id = $1`,
		id, string(state),
	)
	if err != nil {
		return fmt.Errorf("update pause: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pause %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListActivePauses возвращает неархивные паузы программы.
func (r *PostgresRepository) ListActivePauses(ctx context.Context, program string) ([]model.Pause, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, program, start_at, end_at, reason, archive, created_at
		 FROM pauses
		 WHERE program = $1 AND archive = $2
		 ORDER BY start_at`,
		program, string(model.PauseActive),
	)
	if err != nil {
		return nil, fmt.Errorf("select pauses: %w", err)
	}
	defer rows.Close()

	return collectPauses(rows)
}

// ListOverduePauses возвращает неархивные паузы любой программы,
// чьё окончание уже прошло. Используется ежедневной страховочной зачисткой.
func (r *PostgresRepository) ListOverduePauses(ctx context.Context, now time.Time) ([]model.Pause, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, program, start_at, end_at, reason, archive, created_at
		 FROM pauses
		 WHERE archive = $1 AND end_at <= $2
		 ORDER BY end_at`,
		string(model.PauseActive), now,
	)
	if err != nil {
		return nil, fmt.Errorf("select overdue pauses: %w", err)
	}
	defer rows.Close()

	return collectPauses(rows)
}

func collectPauses(rows pgx.Rows) ([]model.Pause, error) {
	var res []model.Pause
	for rows.Next() {
		p, err := scanPause(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pause: %w", err)
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanPause(row pgx.Row) (*model.Pause, error) {
	var p model.Pause
	var archive string
	if err := row.Scan(&p.ID, &p.Program, &p.Start, &p.End, &p.Reason, &archive, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Archive = model.PauseArchiveState(archive)
	return &p, nil
}
