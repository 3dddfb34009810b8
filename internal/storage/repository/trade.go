package repository

import (
	"context"
	"database/sql"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
)

// TradeRepository реализует работу с торговыми операциями
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый репозиторий для торговых операций
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Save сохраняет подтвержденную брокером сделку
func (r *TradeRepository) Save(ctx context.Context, trade *domain.Trade) error {
	query := `
		INSERT INTO trades (order_id, position_id, code, side, requested_price, requested_quantity,
			executed_price, executed_quantity, fee, status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		trade.OrderID,
		trade.PositionID,
		trade.Code,
		trade.Side,
		trade.RequestedPrice,
		trade.RequestedQuantity,
		trade.ExecutedPrice,
		trade.ExecutedQuantity,
		trade.Fee,
		trade.Status,
		trade.Reason,
		trade.CreatedAt,
	).Scan(&trade.ID)
}

// FindByPosition получает сделки позиции
func (r *TradeRepository) FindByPosition(ctx context.Context, positionID int64) ([]domain.Trade, error) {
	query := `
		SELECT id, order_id, position_id, code, side, requested_price, requested_quantity,
		       executed_price, executed_quantity, fee, status, COALESCE(reason, ''), created_at
		FROM trades
		WHERE position_id = $1
		ORDER BY id
	`
	return r.queryTrades(ctx, query, positionID)
}

// queryTrades выполняет запрос и возвращает список торговых операций
func (r *TradeRepository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var trade domain.Trade
		err := rows.Scan(
			&trade.ID,
			&trade.OrderID,
			&trade.PositionID,
			&trade.Code,
			&trade.Side,
			&trade.RequestedPrice,
			&trade.RequestedQuantity,
			&trade.ExecutedPrice,
			&trade.ExecutedQuantity,
			&trade.Fee,
			&trade.Status,
			&trade.Reason,
			&trade.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	return trades, rows.Err()
}
