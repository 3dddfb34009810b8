package memory

import (
	"context"
	"sync"
	"time"
)

// LogEntry is a stored log line.
type LogEntry struct {
	Level     string
	Message   string
	Data      string
	CreatedAt time.Time
}

// LogStore keeps audit log lines in memory.
type LogStore struct {
	mu   sync.Mutex
	data []LogEntry
}

// NewLogStore creates a new in-memory log store.
func NewLogStore() *LogStore {
	return &LogStore{}
}

// Save appends a log line.
func (s *LogStore) Save(_ context.Context, level, message, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, LogEntry{Level: level, Message: message, Data: data, CreatedAt: time.Now()})
	return nil
}

// Entries returns stored lines.
func (s *LogStore) Entries() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LogEntry(nil), s.data...)
}
