package memory

import (
	"context"
	"sync"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
)

// TradeStore is an in-memory implementation of domain.TradeRepository.
type TradeStore struct {
	mu   sync.RWMutex
	data []domain.Trade
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{}
}

// Save appends a trade and assigns its ID.
func (s *TradeStore) Save(_ context.Context, trade *domain.Trade) error {
	if trade == nil || trade.OrderID == "" {
		return domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	trade.ID = int64(len(s.data) + 1)
	s.data = append(s.data, *trade)
	return nil
}

// FindByPosition returns trades of a position in insertion order.
func (s *TradeStore) FindByPosition(_ context.Context, positionID int64) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Trade
	for _, t := range s.data {
		if t.PositionID == positionID {
			out = append(out, t)
		}
	}
	return out, nil
}

// All returns every trade, used by tests.
func (s *TradeStore) All() []domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Trade(nil), s.data...)
}
