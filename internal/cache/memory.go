package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryBackend keeps entries in process. Expired entries are dropped on
// read and by a periodic cleanup routine; there is no size-based eviction.
type MemoryBackend struct {
	cache       sync.Map
	mu          sync.Mutex
	currentSize int64
	lastCleanup time.Time
	now         func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryBackend starts a cleanup routine every interval. A non-positive
// interval disables it.
func NewMemoryBackend(interval time.Duration) *MemoryBackend {
	m := &MemoryBackend{
		now:  time.Now,
		stop: make(chan struct{}),
	}
	if interval > 0 {
		go m.cleanupRoutine(interval)
	}
	return m
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.cache.Load(key)
	if !ok {
		return nil, ErrMiss
	}
	entry := v.(*memoryEntry)
	if !m.now().Before(entry.expiresAt) {
		m.deleteIfSame(key, entry)
		return nil, ErrMiss
	}
	out := make([]byte, len(entry.data))
	copy(out, entry.data)
	return out, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	data := make([]byte, len(value))
	copy(data, value)
	entry := &memoryEntry{data: data, expiresAt: m.now().Add(ttl)}

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, loaded := m.cache.Swap(key, entry); loaded {
		m.currentSize -= int64(len(prev.(*memoryEntry).data))
	}
	m.currentSize += int64(len(data))
	return nil
}

func (m *MemoryBackend) Flush(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Range(func(key, _ any) bool {
		m.cache.Delete(key)
		return true
	})
	m.currentSize = 0
	return nil
}

// Close stops the cleanup routine. The backend stays usable.
func (m *MemoryBackend) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

func (m *MemoryBackend) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entryCount int
	m.cache.Range(func(_, _ any) bool {
		entryCount++
		return true
	})

	return Stats{
		CurrentSize:     m.currentSize,
		EntryCount:      entryCount,
		LastCleanupTime: m.lastCleanup,
	}
}

// deleteIfSame removes key only if it still maps to entry, so a concurrent
// Set is never undone.
func (m *MemoryBackend) deleteIfSame(key string, entry *memoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache.CompareAndDelete(key, entry) {
		m.currentSize -= int64(len(entry.data))
	}
}

func (m *MemoryBackend) removeExpired() {
	now := m.now()
	m.cache.Range(func(key, value any) bool {
		entry := value.(*memoryEntry)
		if !now.Before(entry.expiresAt) {
			m.deleteIfSame(key.(string), entry)
		}
		return true
	})

	m.mu.Lock()
	m.lastCleanup = now
	m.mu.Unlock()
}

func (m *MemoryBackend) cleanupRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.removeExpired()
		case <-m.stop:
			return
		}
	}
}
