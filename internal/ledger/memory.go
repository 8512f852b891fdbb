package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/ppiankov/vigil/internal/model"
)

// Memory is an in-process ledger with the same read surface as the remote
// service. Used by tests and by local replay; Append mirrors the service's
// append-only semantics.
type Memory struct {
	mu     sync.RWMutex
	events map[string][]model.Event
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{events: make(map[string][]model.Event)}
}

// Append adds an event to its session partition.
func (m *Memory) Append(event model.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.SessionID] = append(m.events[event.SessionID], event)
}

// Sessions implements Client.
func (m *Memory) Sessions(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessions := make([]string, 0, len(m.events))
	for id := range m.events {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	return sessions, nil
}

// Events implements Client.
func (m *Memory) Events(ctx context.Context, sessionID string) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]model.Event, len(m.events[sessionID]))
	copy(events, m.events[sessionID])
	return events, nil
}
