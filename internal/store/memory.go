package store

import (
	"context"
	"maps"
	"sync"
)

// Memory is an in-process Repository. It backs single-instance deployments
// without Redis and the tests.
type Memory struct {
	mu     sync.RWMutex
	data   Snapshot
	nextID int
	subs   map[int]func(Snapshot)
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		data: make(Snapshot),
		subs: make(map[int]func(Snapshot)),
	}
}

func (m *Memory) Load(_ context.Context) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.data), nil
}

func (m *Memory) Save(_ context.Context, key Key, value any) (Ack, error) {
	raw, err := encode(key, value)
	if err != nil {
		return Ack{}, err
	}

	m.mu.Lock()
	m.data[key] = raw
	subs := make([]func(Snapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(Snapshot{key: raw})
	}
	return Ack{Key: key, Mode: ModeLocal}, nil
}

func (m *Memory) Subscribe(_ context.Context, onChange func(Snapshot)) (Unsubscribe, error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = onChange
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}, nil
}
