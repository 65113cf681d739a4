package ingest

import (
	"context"
	"sync"

	"github.com/mohammad-safakhou/meetflow/internal/meeting"
	"github.com/mohammad-safakhou/meetflow/internal/store"
)

// Memory is a process-local Repository used when no database is configured.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]meeting.Meeting
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]meeting.Meeting)}
}

func (m *Memory) SaveMeetings(_ context.Context, domain string, ms []meeting.Meeting) error {
	if len(ms) == 0 {
		return nil
	}
	cp := make([]meeting.Meeting, len(ms))
	copy(cp, ms)
	m.mu.Lock()
	m.data[domain] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) LoadMeetings(_ context.Context, domain string) ([]meeting.Meeting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.data[domain]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := make([]meeting.Meeting, len(ms))
	copy(cp, ms)
	return cp, nil
}
