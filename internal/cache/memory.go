package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value []byte
	exp   time.Time
}

// Memory is an in-process TTL cache, safe for concurrent use. A background
// janitor sweeps expired entries; expired entries are also dropped on read.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	stop    chan struct{}
	once    sync.Once
}

// NewMemory creates a Memory cache and starts its janitor.
func NewMemory() *Memory {
	m := &Memory{
		entries: make(map[string]memEntry),
		stop:    make(chan struct{}),
	}
	go m.janitor(time.Minute)
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	ent, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !ent.exp.After(time.Now()) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}
	return ent.value, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	m.entries[key] = memEntry{value: value, exp: time.Now().Add(ttl)}
	m.mu.Unlock()
}

// Close stops the janitor.
func (m *Memory) Close() {
	m.once.Do(func() { close(m.stop) })
}

func (m *Memory) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-t.C:
			m.mu.Lock()
			for k, ent := range m.entries {
				if !ent.exp.After(now) {
					delete(m.entries, k)
				}
			}
			m.mu.Unlock()
		}
	}
}
