// Package memory implements the repositories in memory for tests and
// DRY_RUN sessions without a database.
package memory

import "github.com/kirillm/gap-pullback-bot/internal/domain"

// Stores groups the concrete in-memory stores.
type Stores struct {
	Watches   *WatchStore
	Positions *PositionStore
	Signals   *SignalStore
	Trades    *TradeStore
	Logs      *LogStore
}

// New creates empty stores.
func New() *Stores {
	return &Stores{
		Watches:   NewWatchStore(),
		Positions: NewPositionStore(),
		Signals:   NewSignalStore(),
		Trades:    NewTradeStore(),
		Logs:      NewLogStore(),
	}
}

// Store exposes the stores as domain repositories.
func (s *Stores) Store() *domain.Store {
	return &domain.Store{
		Watches:   s.Watches,
		Positions: s.Positions,
		Signals:   s.Signals,
		Trades:    s.Trades,
		Logs:      s.Logs,
	}
}
