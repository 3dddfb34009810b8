package domain

import "context"

// WatchRepository хранилище watch-листа
type WatchRepository interface {
	Save(ctx context.Context, rec *WatchRecord) error
	Update(ctx context.Context, rec *WatchRecord) error
	FindByID(ctx context.Context, id int64) (*WatchRecord, error)
	FindByState(ctx context.Context, tradingDate string, states ...WatchState) ([]WatchRecord, error)
	CountByState(ctx context.Context, tradingDate string, states ...WatchState) (int, error)
}

// PositionRepository хранилище позиций
type PositionRepository interface {
	Create(ctx context.Context, pos *Position) error
	Update(ctx context.Context, pos *Position) error
	FindByID(ctx context.Context, id int64) (*Position, error)
	FindOpen(ctx context.Context) ([]Position, error)
	CountOpen(ctx context.Context) (int, error)
}

// SignalRepository хранилище сигналов
type SignalRepository interface {
	Save(ctx context.Context, sig *Signal) error
	MarkExecuted(ctx context.Context, id int64) error
	FindByDate(ctx context.Context, tradingDate string) ([]Signal, error)
	FindLatest(ctx context.Context, code, tradingDate string, sigType SignalType) (*Signal, error)
}

// TradeRepository хранилище сделок
type TradeRepository interface {
	Save(ctx context.Context, trade *Trade) error
	FindByPosition(ctx context.Context, positionID int64) ([]Trade, error)
}

// LogRepository определяет интерфейс для работы с логами
type LogRepository interface {
	Save(ctx context.Context, level, message, data string) error
}

// Store все репозитории, которые нужны движку
type Store struct {
	Watches   WatchRepository
	Positions PositionRepository
	Signals   SignalRepository
	Trades    TradeRepository
	Logs      LogRepository
}
