package cache

import (
	"github.com/MimeLyc/contextual-meta-translator/internal/config"
	"github.com/MimeLyc/contextual-meta-translator/pkg/log"
)

// Open builds the store described by cfg. With the sqlite backend the result
// is a FallbackStore; when the database cannot be opened it starts out
// degraded instead of failing.
func Open(cfg config.CacheConfig, opts ...FallbackOption) Store {
	logger := log.GetLogger().With("cache")
	if cfg.Backend == config.BackendMemory {
		logger.Info("Using in-process cache backend")
		return NewMemoryStore()
	}

	opts = append([]FallbackOption{WithLogger(logger)}, opts...)
	primary, err := NewSQLiteStore(cfg.DBPath, cfg.Namespace)
	if err != nil {
		fallback := NewFallbackStore(nil, NewMemoryStore(), opts...)
		fallback.Degrade("open", err)
		return fallback
	}
	logger.Info("Using sqlite cache backend at %s (namespace %s)", cfg.DBPath, cfg.Namespace)
	return NewFallbackStore(primary, NewMemoryStore(), opts...)
}
