package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
)

// WatchStore is an in-memory implementation of domain.WatchRepository.
type WatchStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]*domain.WatchRecord
}

// NewWatchStore creates a new in-memory watch store.
func NewWatchStore() *WatchStore {
	return &WatchStore{data: make(map[int64]*domain.WatchRecord)}
}

// Save inserts a record and assigns its ID.
func (s *WatchStore) Save(_ context.Context, rec *domain.WatchRecord) error {
	if rec == nil || rec.Code == "" {
		return domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	rec.ID = s.nextID
	recCopy := *rec
	s.data[rec.ID] = &recCopy
	return nil
}

// Update replaces a stored record.
func (s *WatchStore) Update(_ context.Context, rec *domain.WatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[rec.ID]; !ok {
		return fmt.Errorf("watch record %d: %w", rec.ID, domain.ErrNotFound)
	}
	recCopy := *rec
	s.data[rec.ID] = &recCopy
	return nil
}

// FindByID returns a copy of the record.
func (s *WatchStore) FindByID(_ context.Context, id int64) (*domain.WatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[id]
	if !ok {
		return nil, fmt.Errorf("watch record %d: %w", id, domain.ErrNotFound)
	}
	recCopy := *rec
	return &recCopy, nil
}

// FindByState returns records of the trading date in any of the given states,
// ordered by gap% descending. No states means all states.
func (s *WatchStore) FindByState(_ context.Context, tradingDate string, states ...domain.WatchState) ([]domain.WatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.WatchRecord
	for _, rec := range s.data {
		if rec.TradingDate != tradingDate || !inStates(rec.State, states) {
			continue
		}
		out = append(out, *rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].GapPercent != out[j].GapPercent {
			return out[i].GapPercent > out[j].GapPercent
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CountByState counts records of the trading date in the given states.
func (s *WatchStore) CountByState(ctx context.Context, tradingDate string, states ...domain.WatchState) (int, error) {
	recs, err := s.FindByState(ctx, tradingDate, states...)
	return len(recs), err
}

func inStates(st domain.WatchState, states []domain.WatchState) bool {
	if len(states) == 0 {
		return true
	}
	for _, s := range states {
		if s == st {
			return true
		}
	}
	return false
}
