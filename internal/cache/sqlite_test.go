package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/contextual-meta-translator/internal/metadata"
)

func newTestSQLiteStore(t *testing.T, path, namespace string, opts ...Option) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(path, namespace, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t, filepath.Join(t.TempDir(), "cache.db"), "ctxmeta")
	ctx := context.Background()

	entry := sampleEntry("es", "fr")
	entry.Result["de"] = metadata.Failed("output missing")
	require.NoError(t, store.Set(ctx, "k1", entry, time.Hour))

	got, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.Languages.String(), got.Languages.String())
	assert.Equal(t, "title-fr", got.Result["fr"].Metadata.Title)
	assert.True(t, got.Result["de"].Failed())
	assert.False(t, got.CreatedAt.IsZero())

	_, ok, err = store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_SetReplacesWholesale(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t, filepath.Join(t.TempDir(), "cache.db"), "ctxmeta")
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k1", sampleEntry("es", "fr"), time.Hour))
	require.NoError(t, store.Set(ctx, "k1", sampleEntry("de"), time.Hour))

	got, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "de", got.Languages.String())
	assert.NotContains(t, got.Result, "es")
}

func TestSQLiteStore_TTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := newTestSQLiteStore(t, filepath.Join(t.TempDir(), "cache.db"), "ctxmeta", WithClock(clock.Now))
	ctx := context.Background()
	ttl := 30 * time.Minute

	require.NoError(t, store.Set(ctx, "k1", sampleEntry("es"), ttl))

	clock.Advance(ttl - time.Second)
	_, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(2 * time.Second)
	_, ok, err = store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Count: 0, Backend: BackendSQLite}, stats)

	removed, err := store.Sweep(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestSQLiteStore_ClearOnlyTouchesOwnNamespace(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shared.db")
	ours := newTestSQLiteStore(t, path, "ctxmeta")
	theirs := newTestSQLiteStore(t, path, "other-app")
	ctx := context.Background()

	require.NoError(t, ours.Set(ctx, "k1", sampleEntry("es"), time.Hour))
	require.NoError(t, ours.Set(ctx, "k2", sampleEntry("fr"), time.Hour))
	require.NoError(t, theirs.Set(ctx, "k1", sampleEntry("de"), time.Hour))

	stats, err := ours.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)

	require.NoError(t, ours.Clear(ctx))

	stats, err = ours.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Count)

	got, ok, err := theirs.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "de", got.Languages.String())
}

func TestSQLiteStore_ReopenKeepsEntries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(path, "ctxmeta")
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "k1", sampleEntry("es"), time.Hour))
	require.NoError(t, first.Close())

	second := newTestSQLiteStore(t, path, "ctxmeta")
	_, ok, err := second.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMigrationVersion(t *testing.T) {
	assert.Equal(t, 1, migrationVersion("001_translation_cache.sql"))
	assert.Equal(t, 12, migrationVersion("12"))
	assert.Equal(t, 0, migrationVersion("init.sql"))
}

func TestSQLiteStore_UndecodableRowIsAMiss(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t, filepath.Join(t.TempDir(), "cache.db"), "ctxmeta")
	ctx := context.Background()
	now := time.Now()

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO translation_cache (namespace, cache_key, languages, payload_json, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		"ctxmeta", "broken", "es", "{not json", now.UnixNano(), now.Add(time.Hour).UnixNano(),
	)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "k1", sampleEntry("es"), time.Hour))

	fallback := NewFallbackStore(store, nil, OnFallback(func(*UnavailableError) {
		t.Error("a bad row must not take the durable backend out of service")
	}))

	_, ok, err := fallback.Get(ctx, "broken")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, fallback.Degraded())

	stats, err := fallback.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Count: 1, Backend: BackendSQLite}, stats)

	_, ok, err = fallback.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
}
