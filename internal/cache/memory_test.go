package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/contextual-meta-translator/internal/langset"
	"github.com/MimeLyc/contextual-meta-translator/internal/metadata"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sampleEntry(codes ...string) Entry {
	result := make(map[string]metadata.Translation, len(codes))
	for _, code := range codes {
		var tr metadata.Translation
		tr.Metadata.Title = "title-" + code
		result[code] = tr
	}
	return Entry{Result: result, Languages: langset.New(codes...)}
}

func TestMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore(WithClock(clock.Now))

	require.NoError(t, store.Set(ctx, "k1", sampleEntry("es", "fr"), time.Hour))

	got, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "title-es", got.Result["es"].Metadata.Title)
	assert.Equal(t, "es,fr", got.Languages.String())
	assert.Equal(t, clock.Now(), got.CreatedAt)

	_, ok, err = store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore(WithClock(clock.Now))
	ttl := 10 * time.Minute

	require.NoError(t, store.Set(ctx, "k1", sampleEntry("es"), ttl))

	clock.Advance(ttl - time.Millisecond)
	_, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(2 * time.Millisecond)
	_, ok, err = store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "entry past its ttl must read as missing")

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Count: 0, Backend: BackendMemory}, stats)

	removed, err := store.Sweep(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestMemoryStore_EntriesAreNotShared(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	entry := sampleEntry("es")

	require.NoError(t, store.Set(ctx, "k1", entry, time.Hour))
	entry.Result["de"] = metadata.Failed("mutated after set")

	got, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, got.Result, "de")

	got.Result["it"] = metadata.Failed("mutated after get")
	again, _, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.NotContains(t, again.Result, "it")
}

func TestMemoryStore_ClearAndStats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "a", sampleEntry("es"), time.Hour))
	require.NoError(t, store.Set(ctx, "b", sampleEntry("fr"), time.Hour))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)

	require.NoError(t, store.Clear(ctx))
	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Count)
}

func TestMemoryStore_InstancesAreIsolated(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryStore()
	b := NewMemoryStore()

	require.NoError(t, a.Set(ctx, "k", sampleEntry("es"), time.Hour))
	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
