package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
)

const watchColumns = `id, code, name, trading_date, prev_close, open_price, current_price, high_price, low_price,
	gap_percent, market_cap, trade_value, trade_strength, spread_percent,
	state, high_after_open, high_formed_at, pullback_low, pullback_start_at, entry_price,
	created_at, updated_at`

// WatchRepository реализует работу с watch-листом
type WatchRepository struct {
	db *sql.DB
}

// NewWatchRepository создает новый репозиторий watch-листа
func NewWatchRepository(db *sql.DB) *WatchRepository {
	return &WatchRepository{db: db}
}

// Save сохраняет новую запись
func (r *WatchRepository) Save(ctx context.Context, rec *domain.WatchRecord) error {
	query := `
		INSERT INTO watch_records (code, name, trading_date, prev_close, open_price, current_price, high_price, low_price,
			gap_percent, market_cap, trade_value, trade_strength, spread_percent,
			state, high_after_open, high_formed_at, pullback_low, pullback_start_at, entry_price,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		rec.Code, rec.Name, rec.TradingDate, rec.PrevClose, rec.OpenPrice, rec.CurrentPrice, rec.HighPrice, rec.LowPrice,
		rec.GapPercent, rec.MarketCap, rec.TradeValue, rec.TradeStrength, rec.SpreadPercent,
		rec.State, rec.HighAfterOpen, rec.HighFormedAt, rec.PullbackLow, rec.PullbackStartAt, rec.EntryPrice,
		rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.ID)
}

// Update обновляет цены, маркеры и состояние
func (r *WatchRepository) Update(ctx context.Context, rec *domain.WatchRecord) error {
	query := `
		UPDATE watch_records SET
			current_price = $2, high_price = $3, low_price = $4,
			state = $5, high_after_open = $6, high_formed_at = $7,
			pullback_low = $8, pullback_start_at = $9, entry_price = $10,
			updated_at = $11
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.CurrentPrice, rec.HighPrice, rec.LowPrice,
		rec.State, rec.HighAfterOpen, rec.HighFormedAt,
		rec.PullbackLow, rec.PullbackStartAt, rec.EntryPrice,
		rec.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res, "watch record", rec.ID)
}

// FindByID получает запись по id
func (r *WatchRepository) FindByID(ctx context.Context, id int64) (*domain.WatchRecord, error) {
	query := `SELECT ` + watchColumns + ` FROM watch_records WHERE id = $1`
	recs, err := r.query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("watch record %d: %w", id, domain.ErrNotFound)
	}
	return &recs[0], nil
}

// FindByState получает записи торгового дня в указанных состояниях
func (r *WatchRepository) FindByState(ctx context.Context, tradingDate string, states ...domain.WatchState) ([]domain.WatchRecord, error) {
	if len(states) == 0 {
		query := `SELECT ` + watchColumns + ` FROM watch_records WHERE trading_date = $1 ORDER BY gap_percent DESC, id`
		return r.query(ctx, query, tradingDate)
	}
	query := `SELECT ` + watchColumns + ` FROM watch_records
		WHERE trading_date = $1 AND state = ANY($2)
		ORDER BY gap_percent DESC, id`
	return r.query(ctx, query, tradingDate, pq.Array(stateStrings(states)))
}

// CountByState считает записи в указанных состояниях
func (r *WatchRepository) CountByState(ctx context.Context, tradingDate string, states ...domain.WatchState) (int, error) {
	var n int
	if len(states) == 0 {
		err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM watch_records WHERE trading_date = $1`, tradingDate).Scan(&n)
		return n, err
	}
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM watch_records WHERE trading_date = $1 AND state = ANY($2)`,
		tradingDate, pq.Array(stateStrings(states)),
	).Scan(&n)
	return n, err
}

func (r *WatchRepository) query(ctx context.Context, query string, args ...interface{}) ([]domain.WatchRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.WatchRecord
	for rows.Next() {
		var rec domain.WatchRecord
		err := rows.Scan(
			&rec.ID, &rec.Code, &rec.Name, &rec.TradingDate,
			&rec.PrevClose, &rec.OpenPrice, &rec.CurrentPrice, &rec.HighPrice, &rec.LowPrice,
			&rec.GapPercent, &rec.MarketCap, &rec.TradeValue, &rec.TradeStrength, &rec.SpreadPercent,
			&rec.State, &rec.HighAfterOpen, &rec.HighFormedAt, &rec.PullbackLow, &rec.PullbackStartAt, &rec.EntryPrice,
			&rec.CreatedAt, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func stateStrings(states []domain.WatchState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

// expectOneRow превращает UPDATE без затронутых строк в ErrNotFound
func expectOneRow(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, domain.ErrNotFound)
	}
	return nil
}
