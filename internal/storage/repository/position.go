package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
)

const positionColumns = `id, watch_id, code, status, entry_price, entry_quantity, entry_amount,
	remaining_quantity, avg_exit_price, tp1_executed, tp2_executed, tp3_executed,
	day_high_price, stop_loss_price, trailing_high, trailing_stop_price, trailing_active,
	realized_pnl, realized_pnl_percent, total_exit_amount, total_exit_quantity, close_reason,
	entry_time, closed_at, updated_at`

// PositionRepository реализует работу с позициями
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository создает новый репозиторий позиций
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create сохраняет новую позицию
func (r *PositionRepository) Create(ctx context.Context, pos *domain.Position) error {
	query := `
		INSERT INTO positions (watch_id, code, status, entry_price, entry_quantity, entry_amount,
			remaining_quantity, avg_exit_price, tp1_executed, tp2_executed, tp3_executed,
			day_high_price, stop_loss_price, trailing_high, trailing_stop_price, trailing_active,
			realized_pnl, realized_pnl_percent, total_exit_amount, total_exit_quantity, close_reason,
			entry_time, closed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		pos.WatchID, pos.Code, pos.Status, pos.EntryPrice, pos.EntryQuantity, pos.EntryAmount,
		pos.RemainingQuantity, pos.AvgExitPrice, pos.TP1Executed, pos.TP2Executed, pos.TP3Executed,
		pos.DayHighPrice, pos.StopLossPrice, pos.TrailingHigh, pos.TrailingStopPrice, pos.TrailingActive,
		pos.RealizedPnL, pos.RealizedPnLPercent, pos.TotalExitAmount, pos.TotalExitQuantity, pos.CloseReason,
		pos.EntryTime, pos.ClosedAt, pos.UpdatedAt,
	).Scan(&pos.ID)
}

// Update обновляет позицию. Закрытые позиции не меняются.
func (r *PositionRepository) Update(ctx context.Context, pos *domain.Position) error {
	query := `
		UPDATE positions SET
			status = $2, remaining_quantity = $3, avg_exit_price = $4,
			tp1_executed = $5, tp2_executed = $6, tp3_executed = $7,
			day_high_price = $8, trailing_high = $9, trailing_stop_price = $10, trailing_active = $11,
			realized_pnl = $12, realized_pnl_percent = $13, total_exit_amount = $14, total_exit_quantity = $15,
			close_reason = $16, closed_at = $17, updated_at = $18
		WHERE id = $1 AND status <> 'CLOSED'
	`
	res, err := r.db.ExecContext(ctx, query,
		pos.ID, pos.Status, pos.RemainingQuantity, pos.AvgExitPrice,
		pos.TP1Executed, pos.TP2Executed, pos.TP3Executed,
		pos.DayHighPrice, pos.TrailingHigh, pos.TrailingStopPrice, pos.TrailingActive,
		pos.RealizedPnL, pos.RealizedPnLPercent, pos.TotalExitAmount, pos.TotalExitQuantity,
		pos.CloseReason, pos.ClosedAt, pos.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res, "open position", pos.ID)
}

// FindByID получает позицию по id
func (r *PositionRepository) FindByID(ctx context.Context, id int64) (*domain.Position, error) {
	positions, err := r.query(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("position %d: %w", id, domain.ErrNotFound)
	}
	return &positions[0], nil
}

// FindOpen получает OPEN и PARTIAL позиции
func (r *PositionRepository) FindOpen(ctx context.Context) ([]domain.Position, error) {
	return r.query(ctx, `SELECT `+positionColumns+` FROM positions WHERE status <> 'CLOSED' ORDER BY id`)
}

// CountOpen считает открытые позиции
func (r *PositionRepository) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions WHERE status <> 'CLOSED'`).Scan(&n)
	return n, err
}

func (r *PositionRepository) query(ctx context.Context, query string, args ...interface{}) ([]domain.Position, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		err := rows.Scan(
			&p.ID, &p.WatchID, &p.Code, &p.Status, &p.EntryPrice, &p.EntryQuantity, &p.EntryAmount,
			&p.RemainingQuantity, &p.AvgExitPrice, &p.TP1Executed, &p.TP2Executed, &p.TP3Executed,
			&p.DayHighPrice, &p.StopLossPrice, &p.TrailingHigh, &p.TrailingStopPrice, &p.TrailingActive,
			&p.RealizedPnL, &p.RealizedPnLPercent, &p.TotalExitAmount, &p.TotalExitQuantity, &p.CloseReason,
			&p.EntryTime, &p.ClosedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
