// Package cache stores translation results under content-addressed keys with
// a time-to-live.
//
// Two backends implement Store: SQLiteStore (durable, shared between
// processes through the database file) and MemoryStore (process local).
// FallbackStore puts the durable backend in front and degrades to memory for
// the rest of the process lifetime on the first durable failure. All backends
// honour the same contract: an entry older than its TTL is indistinguishable
// from a missing one, and entries are only ever replaced wholesale.
package cache

import (
	"context"
	"maps"
	"time"

	"github.com/MimeLyc/contextual-meta-translator/internal/langset"
	"github.com/MimeLyc/contextual-meta-translator/internal/metadata"
)

const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Entry is one cached translation result.
type Entry struct {
	Result    map[string]metadata.Translation
	Languages langset.Set
	CreatedAt time.Time
}

// Clone returns a copy that shares nothing mutable with e.
func (e Entry) Clone() Entry {
	e.Result = maps.Clone(e.Result)
	return e
}

type Stats struct {
	Count   int    `json:"count"`
	Backend string `json:"backendKind"`
}

type Store interface {
	// Get returns the entry for key, or false when it is absent or expired.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Set replaces the entry for key. A zero CreatedAt is stamped with now.
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	// Clear removes every entry of this store's namespace.
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Sweeper is implemented by stores that can purge expired entries eagerly.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// Option configures a store.
type Option func(*storeOptions)

type storeOptions struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) storeOptions {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
