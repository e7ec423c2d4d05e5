package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMemory() (*MemoryBackend, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryBackend(0)
	m.now = clock.Now
	return m, clock
}

func TestMemoryExpiry(t *testing.T) {
	m, clock := newTestMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	clock.Advance(time.Minute)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 0, m.Stats().EntryCount)
	assert.Zero(t, m.Stats().CurrentSize)
}

func TestMemorySetRefreshesTTL(t *testing.T) {
	m, clock := newTestMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	clock.Advance(50 * time.Second)
	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	clock.Advance(50 * time.Second)

	_, err := m.Get(ctx, "k")
	assert.NoError(t, err)
}

func TestMemoryRemoveExpired(t *testing.T) {
	m, clock := newTestMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "short", []byte("12345"), time.Second))
	require.NoError(t, m.Set(ctx, "long", []byte("123"), time.Hour))
	clock.Advance(time.Minute)

	m.removeExpired()

	stats := m.Stats()
	assert.Equal(t, 1, stats.EntryCount)
	assert.Equal(t, int64(3), stats.CurrentSize)
	assert.Equal(t, clock.Now(), stats.LastCleanupTime)
}

func TestMemoryValuesAreCopied(t *testing.T) {
	m, _ := newTestMemory()
	ctx := context.Background()

	in := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", in, time.Minute))
	in[0] = 'x'

	out, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)

	out[1] = 'y'
	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryConcurrentAccess(t *testing.T) {
	m := NewMemoryBackend(time.Millisecond)
	defer m.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = m.Set(ctx, "same-key", []byte("payload"), time.Minute)
				_, _ = m.Get(ctx, "same-key")
			}
		}()
	}
	wg.Wait()

	stats := m.Stats()
	assert.Equal(t, 1, stats.EntryCount)
	assert.Equal(t, int64(len("payload")), stats.CurrentSize)
}

func TestMemoryCloseIsIdempotent(t *testing.T) {
	m := NewMemoryBackend(time.Millisecond)
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
}
