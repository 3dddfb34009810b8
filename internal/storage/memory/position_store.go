package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
)

// PositionStore is an in-memory implementation of domain.PositionRepository.
type PositionStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]*domain.Position
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{data: make(map[int64]*domain.Position)}
}

// Create inserts a position and assigns its ID.
func (s *PositionStore) Create(_ context.Context, pos *domain.Position) error {
	if pos == nil || pos.Code == "" {
		return domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	pos.ID = s.nextID
	posCopy := *pos
	s.data[pos.ID] = &posCopy
	return nil
}

// Update replaces a stored position. Closed positions are immutable.
func (s *PositionStore) Update(_ context.Context, pos *domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.data[pos.ID]
	if !ok {
		return fmt.Errorf("position %d: %w", pos.ID, domain.ErrNotFound)
	}
	if existing.Status == domain.PositionClosed {
		return fmt.Errorf("%w: position %d", domain.ErrPositionClosed, pos.ID)
	}
	posCopy := *pos
	s.data[pos.ID] = &posCopy
	return nil
}

// FindByID returns a copy of the position.
func (s *PositionStore) FindByID(_ context.Context, id int64) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.data[id]
	if !ok {
		return nil, fmt.Errorf("position %d: %w", id, domain.ErrNotFound)
	}
	posCopy := *pos
	return &posCopy, nil
}

// FindOpen returns OPEN and PARTIAL positions ordered by ID.
func (s *PositionStore) FindOpen(_ context.Context) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Position
	for _, pos := range s.data {
		if pos.Status != domain.PositionClosed {
			out = append(out, *pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CountOpen counts OPEN and PARTIAL positions.
func (s *PositionStore) CountOpen(ctx context.Context) (int, error) {
	open, err := s.FindOpen(ctx)
	return len(open), err
}

// All returns every position, used by tests.
func (s *PositionStore) All() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Position, 0, len(s.data))
	for _, pos := range s.data {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
