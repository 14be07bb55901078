package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MimeLyc/contextual-meta-translator/pkg/log"
)

// UnavailableError reports that the durable backend failed and the store
// switched to memory.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("durable cache unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// FallbackStore serves from a durable primary until its first failure, then
// from an in-process MemoryStore for the rest of the process lifetime. The
// failing call is replayed on the memory backend, so callers never see a
// durable-store error. The switch is logged once and reported through the
// OnFallback hook once.
type FallbackStore struct {
	secondary  *MemoryStore
	onFallback func(*UnavailableError)
	logger     *log.Logger

	mu       sync.RWMutex
	primary  Store
	degraded bool
	once     sync.Once
}

type FallbackOption func(*FallbackStore)

// OnFallback registers a hook called once when the store degrades.
func OnFallback(fn func(*UnavailableError)) FallbackOption {
	return func(s *FallbackStore) {
		s.onFallback = fn
	}
}

func WithLogger(logger *log.Logger) FallbackOption {
	return func(s *FallbackStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewFallbackStore wraps primary. A nil primary starts degraded.
func NewFallbackStore(primary Store, secondary *MemoryStore, opts ...FallbackOption) *FallbackStore {
	if secondary == nil {
		secondary = NewMemoryStore()
	}
	s := &FallbackStore{
		primary:   primary,
		secondary: secondary,
		logger:    log.GetLogger().With("cache"),
		degraded:  primary == nil,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Degraded reports whether the memory backend is serving.
func (s *FallbackStore) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// Degrade switches to the memory backend permanently.
func (s *FallbackStore) Degrade(op string, cause error) {
	s.mu.Lock()
	primary := s.primary
	s.degraded = true
	s.primary = nil
	s.mu.Unlock()

	s.once.Do(func() {
		uerr := &UnavailableError{Op: op, Err: cause}
		s.logger.Warn("Falling back to in-process cache for the rest of this process: %v", uerr)
		if primary != nil {
			if err := primary.Close(); err != nil {
				s.logger.Debug("Closing durable cache after fallback: %v", err)
			}
		}
		if s.onFallback != nil {
			s.onFallback(uerr)
		}
	})
}

func (s *FallbackStore) active() (Store, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.degraded || s.primary == nil {
		return s.secondary, false
	}
	return s.primary, true
}

// run executes fn on the active backend and replays it on memory when the
// durable backend fails. Caller cancellation is returned as-is: it says
// nothing about the backend's health.
func (s *FallbackStore) run(ctx context.Context, op string, fn func(Store) error) error {
	store, durable := s.active()
	err := fn(store)
	if err == nil || !durable {
		return err
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	s.Degrade(op, err)
	return fn(s.secondary)
}

func (s *FallbackStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	var entry Entry
	var ok bool
	err := s.run(ctx, "get", func(store Store) error {
		var err error
		entry, ok, err = store.Get(ctx, key)
		return err
	})
	return entry, ok, err
}

func (s *FallbackStore) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	return s.run(ctx, "set", func(store Store) error {
		return store.Set(ctx, key, entry, ttl)
	})
}

func (s *FallbackStore) Clear(ctx context.Context) error {
	return s.run(ctx, "clear", func(store Store) error {
		return store.Clear(ctx)
	})
}

func (s *FallbackStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.run(ctx, "stats", func(store Store) error {
		var err error
		stats, err = store.Stats(ctx)
		return err
	})
	return stats, err
}

func (s *FallbackStore) Sweep(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	err := s.run(ctx, "sweep", func(store Store) error {
		sweeper, ok := store.(Sweeper)
		if !ok {
			return nil
		}
		var err error
		removed, err = sweeper.Sweep(ctx, now)
		return err
	})
	return removed, err
}

func (s *FallbackStore) Close() error {
	s.mu.Lock()
	primary := s.primary
	s.primary = nil
	s.degraded = true
	s.mu.Unlock()

	var err error
	if primary != nil {
		err = primary.Close()
	}
	return errors.Join(err, s.secondary.Close())
}
