package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
)

// SignalRepository реализует журнал сигналов (append-only)
type SignalRepository struct {
	db *sql.DB
}

// NewSignalRepository создает новый репозиторий сигналов
func NewSignalRepository(db *sql.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// Save сохраняет сигнал; метрики пишутся в JSONB
func (r *SignalRepository) Save(ctx context.Context, sig *domain.Signal) error {
	metrics, err := json.Marshal(sig.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal signal metrics: %w", err)
	}

	query := `
		INSERT INTO signals (code, trading_date, signal_type, reason, price, metrics, executed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		sig.Code, sig.TradingDate, sig.Type, sig.Reason, sig.Price, string(metrics), sig.Executed, sig.CreatedAt,
	).Scan(&sig.ID)
}

// MarkExecuted единственное допустимое изменение сигнала
func (r *SignalRepository) MarkExecuted(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE signals SET executed = true WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res, "signal", id)
}

// FindByDate получает сигналы торгового дня
func (r *SignalRepository) FindByDate(ctx context.Context, tradingDate string) ([]domain.Signal, error) {
	query := `
		SELECT id, code, trading_date, signal_type, reason, price, metrics, executed, created_at
		FROM signals
		WHERE trading_date = $1
		ORDER BY id
	`
	return r.query(ctx, query, tradingDate)
}

// FindLatest получает последний сигнал типа по инструменту
func (r *SignalRepository) FindLatest(ctx context.Context, code, tradingDate string, sigType domain.SignalType) (*domain.Signal, error) {
	query := `
		SELECT id, code, trading_date, signal_type, reason, price, metrics, executed, created_at
		FROM signals
		WHERE code = $1 AND trading_date = $2 AND signal_type = $3
		ORDER BY id DESC
		LIMIT 1
	`
	signals, err := r.query(ctx, query, code, tradingDate, sigType)
	if err != nil {
		return nil, err
	}
	if len(signals) == 0 {
		return nil, fmt.Errorf("%s signal for %s: %w", sigType, code, domain.ErrNotFound)
	}
	return &signals[0], nil
}

func (r *SignalRepository) query(ctx context.Context, query string, args ...interface{}) ([]domain.Signal, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		var (
			sig     domain.Signal
			metrics []byte
		)
		err := rows.Scan(&sig.ID, &sig.Code, &sig.TradingDate, &sig.Type, &sig.Reason, &sig.Price, &metrics, &sig.Executed, &sig.CreatedAt)
		if err != nil {
			return nil, err
		}
		if len(metrics) > 0 {
			if err := json.Unmarshal(metrics, &sig.Metrics); err != nil {
				return nil, fmt.Errorf("failed to unmarshal signal metrics: %w", err)
			}
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}
