package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
)

// SignalStore is an append-only in-memory signal log.
type SignalStore struct {
	mu   sync.RWMutex
	data []domain.Signal
}

// NewSignalStore creates a new in-memory signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{}
}

// Save appends a signal and assigns its ID.
func (s *SignalStore) Save(_ context.Context, sig *domain.Signal) error {
	if sig == nil || sig.Code == "" {
		return domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sig.ID = int64(len(s.data) + 1)
	s.data = append(s.data, copySignal(sig))
	return nil
}

// MarkExecuted flips the executed flag, the only mutable field.
func (s *SignalStore) MarkExecuted(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id <= 0 || int(id) > len(s.data) {
		return fmt.Errorf("signal %d: %w", id, domain.ErrNotFound)
	}
	s.data[id-1].Executed = true
	return nil
}

// FindByDate returns signals of a trading date in insertion order.
func (s *SignalStore) FindByDate(_ context.Context, tradingDate string) ([]domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Signal
	for i := range s.data {
		if s.data[i].TradingDate == tradingDate {
			out = append(out, copySignal(&s.data[i]))
		}
	}
	return out, nil
}

// FindLatest returns the most recent signal of a type for a code.
func (s *SignalStore) FindLatest(_ context.Context, code, tradingDate string, sigType domain.SignalType) (*domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.data) - 1; i >= 0; i-- {
		sig := s.data[i]
		if sig.Code == code && sig.TradingDate == tradingDate && sig.Type == sigType {
			out := copySignal(&sig)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%s signal for %s: %w", sigType, code, domain.ErrNotFound)
}

func copySignal(sig *domain.Signal) domain.Signal {
	out := *sig
	if sig.Metrics != nil {
		out.Metrics = make(map[string]float64, len(sig.Metrics))
		for k, v := range sig.Metrics {
			out.Metrics[k] = v
		}
	}
	return out
}
