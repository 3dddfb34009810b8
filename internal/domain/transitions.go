package domain

import (
	"fmt"
	"time"
)

var transitions = map[WatchState][]WatchState{
	StateWatching:   {StateHighFormed},
	StateHighFormed: {StatePullback, StateFilteredOut},
	StatePullback:   {StateEntryReady, StateFilteredOut},
	StateEntryReady: {StateEntered},
	StateEntered:    {StateExited},
}

// CanTransition проверяет ребро графа состояний
func CanTransition(from, to WatchState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionTo переводит запись в новое состояние
func (w *WatchRecord) TransitionTo(to WatchState, at time.Time) error {
	if !CanTransition(w.State, to) {
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, w.State, to, w.Code)
	}
	w.State = to
	w.UpdatedAt = at
	return nil
}
