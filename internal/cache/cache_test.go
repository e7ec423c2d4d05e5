package cache

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muandane/ziria/internal/compact"
	"github.com/muandane/ziria/internal/imaging"
)

func encodedAvatar(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, imaging.BaseSize, imaging.BaseSize))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 7)
	}
	for y := 0; y < imaging.BaseSize; y++ {
		for x := 0; x < imaging.BaseSize; x++ {
			c := img.NRGBAAt(x, y)
			c.A = 0xff
			img.SetNRGBA(x, y, c)
		}
	}
	data, err := imaging.Encode(img)
	require.NoError(t, err)
	return data
}

// recordingBackend records what the store writes.
type recordingBackend struct {
	*MemoryBackend
	lastTTL time.Duration
	getErr  error
}

func (r *recordingBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	r.lastTTL = ttl
	return r.MemoryBackend.Set(ctx, key, value, ttl)
}

func (r *recordingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.MemoryBackend.Get(ctx, key)
}

func TestStoreRoundTrip(t *testing.T) {
	backend := &recordingBackend{MemoryBackend: NewMemoryBackend(0)}
	store := NewStore(backend, 20*time.Minute)
	ctx := context.Background()
	data := encodedAvatar(t)

	require.NoError(t, store.Set(ctx, "38aaf5-f", data))
	assert.Equal(t, 20*time.Minute, backend.lastTTL)

	raw, err := backend.MemoryBackend.Get(ctx, "38aaf5-f")
	require.NoError(t, err)
	assert.Len(t, raw, len(data)-compact.HeaderLen, "backend holds the stripped form")

	got, err := store.Get(ctx, "38aaf5-f")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestStoreMiss(t *testing.T) {
	store := NewStore(NewMemoryBackend(0), time.Minute)
	_, err := store.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestStoreEmptyValueIsMiss(t *testing.T) {
	backend := NewMemoryBackend(0)
	require.NoError(t, backend.Set(context.Background(), "k", nil, time.Minute))

	_, err := NewStore(backend, time.Minute).Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestStoreRejectsNonBaseImages(t *testing.T) {
	store := NewStore(NewMemoryBackend(0), time.Minute)

	big, err := imaging.Encode(image.NewNRGBA(image.Rect(0, 0, 16, 16)))
	require.NoError(t, err)

	err = store.Set(context.Background(), "k", big)
	assert.ErrorIs(t, err, compact.ErrIncompatible)

	_, err = store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestStorePropagatesBackendErrors(t *testing.T) {
	boom := errors.New("connection reset")
	store := NewStore(&recordingBackend{MemoryBackend: NewMemoryBackend(0), getErr: boom}, time.Minute)

	_, err := store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrMiss)
}

func TestStoreSetRefreshesValue(t *testing.T) {
	backend := NewMemoryBackend(0)
	store := NewStore(backend, time.Minute)
	ctx := context.Background()

	first := encodedAvatar(t)
	require.NoError(t, store.Set(ctx, "k", first))

	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 9, A: 0xff})
		}
	}
	second, err := imaging.Encode(img)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "k", second))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, second, got)

	stats, ok := store.Stats()
	require.True(t, ok)
	assert.Equal(t, 1, stats.EntryCount)
	assert.Equal(t, int64(len(second)-compact.HeaderLen), stats.CurrentSize)
}

func TestStoreFlush(t *testing.T) {
	store := NewStore(NewMemoryBackend(0), time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "a", encodedAvatar(t)))
	require.NoError(t, store.Set(ctx, "b", encodedAvatar(t)))

	require.NoError(t, store.Flush(ctx))

	for _, k := range []string{"a", "b"} {
		_, err := store.Get(ctx, k)
		assert.ErrorIs(t, err, ErrMiss)
	}
}

func TestStoreDefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, NewStore(NewMemoryBackend(0), 0).TTL())
}
