package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/kirillm/gap-pullback-bot/internal/config"
	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/storage/repository"
)

// PostgresStorage является фасадом для работы с PostgreSQL через репозитории
type PostgresStorage struct {
	db        *sql.DB
	watches   *repository.WatchRepository
	positions *repository.PositionRepository
	signals   *repository.SignalRepository
	trades    *repository.TradeRepository
	logs      *repository.LogRepository
}

// NewPostgresStorage подключается к БД и применяет миграции
func NewPostgresStorage(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDatabaseConnection, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %v", domain.ErrDatabaseConnection, err)
	}

	// Настройка connection pool из конфигурации
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	storage := NewWithDB(db)

	if err := storage.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage, nil
}

// NewWithDB собирает фасад поверх готового соединения
func NewWithDB(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{
		db:        db,
		watches:   repository.NewWatchRepository(db),
		positions: repository.NewPositionRepository(db),
		signals:   repository.NewSignalRepository(db),
		trades:    repository.NewTradeRepository(db),
		logs:      repository.NewLogRepository(db),
	}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS watch_records (
		id BIGSERIAL PRIMARY KEY,
		code VARCHAR(20) NOT NULL,
		name VARCHAR(100) NOT NULL DEFAULT '',
		trading_date VARCHAR(10) NOT NULL,
		prev_close DECIMAL(20, 4) NOT NULL DEFAULT 0,
		open_price DECIMAL(20, 4) NOT NULL DEFAULT 0,
		current_price DECIMAL(20, 4) NOT NULL DEFAULT 0,
		high_price DECIMAL(20, 4) NOT NULL DEFAULT 0,
		low_price DECIMAL(20, 4) NOT NULL DEFAULT 0,
		gap_percent DECIMAL(10, 4) NOT NULL DEFAULT 0,
		market_cap DECIMAL(24, 2) NOT NULL DEFAULT 0,
		trade_value DECIMAL(24, 2) NOT NULL DEFAULT 0,
		trade_strength DECIMAL(10, 2) NOT NULL DEFAULT 0,
		spread_percent DECIMAL(10, 4) NOT NULL DEFAULT 0,
		state VARCHAR(20) NOT NULL,
		high_after_open DECIMAL(20, 4) NOT NULL DEFAULT 0,
		high_formed_at TIMESTAMP,
		pullback_low DECIMAL(20, 4) NOT NULL DEFAULT 0,
		pullback_start_at TIMESTAMP,
		entry_price DECIMAL(20, 4) NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
		UNIQUE (code, trading_date)
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		id BIGSERIAL PRIMARY KEY,
		watch_id BIGINT NOT NULL REFERENCES watch_records(id),
		code VARCHAR(20) NOT NULL,
		status VARCHAR(10) NOT NULL,
		entry_price DECIMAL(20, 4) NOT NULL,
		entry_quantity BIGINT NOT NULL,
		entry_amount DECIMAL(24, 2) NOT NULL,
		remaining_quantity BIGINT NOT NULL CHECK (remaining_quantity >= 0),
		avg_exit_price DECIMAL(20, 4) NOT NULL DEFAULT 0,
		tp1_executed BOOLEAN NOT NULL DEFAULT false,
		tp2_executed BOOLEAN NOT NULL DEFAULT false,
		tp3_executed BOOLEAN NOT NULL DEFAULT false,
		day_high_price DECIMAL(20, 4) NOT NULL DEFAULT 0,
		stop_loss_price DECIMAL(20, 4) NOT NULL,
		trailing_high DECIMAL(20, 4) NOT NULL DEFAULT 0,
		trailing_stop_price DECIMAL(20, 4) NOT NULL DEFAULT 0,
		trailing_active BOOLEAN NOT NULL DEFAULT false,
		realized_pnl DECIMAL(24, 2) NOT NULL DEFAULT 0,
		realized_pnl_percent DECIMAL(10, 2) NOT NULL DEFAULT 0,
		total_exit_amount DECIMAL(24, 2) NOT NULL DEFAULT 0,
		total_exit_quantity BIGINT NOT NULL DEFAULT 0,
		close_reason VARCHAR(20) NOT NULL DEFAULT '',
		entry_time TIMESTAMP NOT NULL,
		closed_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS signals (
		id BIGSERIAL PRIMARY KEY,
		code VARCHAR(20) NOT NULL,
		trading_date VARCHAR(10) NOT NULL,
		signal_type VARCHAR(20) NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		price DECIMAL(20, 4) NOT NULL DEFAULT 0,
		metrics JSONB,
		executed BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		order_id VARCHAR(100) NOT NULL,
		position_id BIGINT NOT NULL,
		code VARCHAR(20) NOT NULL,
		side VARCHAR(10) NOT NULL,
		requested_price DECIMAL(20, 4) NOT NULL DEFAULT 0,
		requested_quantity BIGINT NOT NULL,
		executed_price DECIMAL(20, 4) NOT NULL,
		executed_quantity BIGINT NOT NULL,
		fee DECIMAL(20, 4) NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL,
		reason VARCHAR(20),
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS logs (
		id BIGSERIAL PRIMARY KEY,
		level VARCHAR(10) NOT NULL,
		message TEXT NOT NULL,
		data TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_watch_records_date_state ON watch_records(trading_date, state)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_date ON signals(trading_date)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_position ON trades(position_id)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_created_at ON logs(created_at)`,
}

// Migrate создает таблицы, если их нет
func (s *PostgresStorage) Migrate(ctx context.Context) error {
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}

// Store репозитории в виде доменных интерфейсов
func (s *PostgresStorage) Store() *domain.Store {
	return &domain.Store{
		Watches:   s.watches,
		Positions: s.positions,
		Signals:   s.signals,
		Trades:    s.trades,
		Logs:      s.logs,
	}
}

// Close закрывает соединение с БД
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// DB возвращает подключение к БД
func (s *PostgresStorage) DB() *sql.DB {
	return s.db
}
