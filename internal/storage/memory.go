package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation, useful for tests
// and simple single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	snaps    map[string]CachedSnapshot
	settings map[string]string
	jobs     map[string]ScheduledJob
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		snaps:    make(map[string]CachedSnapshot),
		settings: make(map[string]string),
		jobs:     make(map[string]ScheduledJob),
	}
}

func (m *MemoryStore) Close() error                   { return nil }
func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) GetSnapshot(ctx context.Context, key string) (*CachedSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snaps[key]
	if !ok {
		return nil, nil
	}
	cp := s
	cp.Payload = append([]byte(nil), s.Payload...)
	return &cp, nil
}

func (m *MemoryStore) PutSnapshot(ctx context.Context, snap CachedSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}
	snap.Payload = append([]byte(nil), snap.Payload...)
	m.snaps[snap.Key] = snap
	return nil
}

func (m *MemoryStore) ClearSnapshot(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, key)
	return nil
}

func (m *MemoryStore) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings[key], nil
}

func (m *MemoryStore) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *MemoryStore) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := 0
	if success {
		status = 1
	}
	m.jobs[name] = ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
	return nil
}
