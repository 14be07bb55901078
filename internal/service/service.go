package service

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/contextual-meta-translator/internal/cache"
	"github.com/MimeLyc/contextual-meta-translator/internal/cachekey"
	"github.com/MimeLyc/contextual-meta-translator/internal/engine"
	"github.com/MimeLyc/contextual-meta-translator/internal/langset"
	"github.com/MimeLyc/contextual-meta-translator/internal/metadata"
	"github.com/MimeLyc/contextual-meta-translator/internal/telemetry"
	"github.com/MimeLyc/contextual-meta-translator/pkg/log"
)

const defaultTTL = 24 * time.Hour

// Service answers translate requests from the cache where possible and sends
// only the missing languages to the engine, in one batch.
type Service struct {
	store         cache.Store
	executor      BatchExecutor
	ttl           time.Duration
	defaultSource string
	detectSource  bool
	logger        *log.Logger

	// concurrent requests for the same cold key share one resolution
	inflight singleflight.Group
	mu       sync.Mutex
	flights  map[string]*flight
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithDefaultSourceLanguage sets the source language used when a snapshot
// declares none.
func WithDefaultSourceLanguage(code string) Option {
	return func(s *Service) {
		if code != "" {
			s.defaultSource = code
		}
	}
}

// WithSourceDetection enables detecting undeclared source languages from the
// page text.
func WithSourceDetection(enabled bool) Option {
	return func(s *Service) {
		s.detectSource = enabled
	}
}

func New(store cache.Store, executor BatchExecutor, opts ...Option) *Service {
	s := &Service{
		store:         store,
		executor:      executor,
		ttl:           defaultTTL,
		defaultSource: "en",
		logger:        log.GetLogger().With("service"),
		flights:       make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// outcome is what one resolution produces; it is shared by every caller
// coalesced onto the same key.
type outcome struct {
	result Result
	err    *TranslationError
	// abandoned is set when the resolution failed after every waiter had
	// left; a caller that joined late retries instead of inheriting it.
	abandoned bool
}

// flight tracks the callers waiting on one shared resolution. The shared
// work runs on ctx, which outlives any single caller and is cancelled when
// the last waiter leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (s *Service) join(ctx context.Context, key string) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		s.flights[key] = f
	}
	f.waiters++
	return f
}

func (s *Service) leave(key string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if s.flights[key] == f {
		delete(s.flights, key)
	}
}

// share runs resolve once for every concurrent caller of key. Each caller
// waits only as long as its own ctx allows; the shared work is cancelled
// once nobody is waiting for it.
func (s *Service) share(ctx context.Context, key string, resolve func(context.Context) outcome) (outcome, bool, error) {
	for {
		f := s.join(ctx, key)
		ch := s.inflight.DoChan(key, func() (any, error) {
			out := resolve(f.ctx)
			out.abandoned = out.err != nil && f.ctx.Err() != nil
			return out, nil
		})

		select {
		case <-ctx.Done():
			s.leave(key, f)
			return outcome{}, false, ctx.Err()
		case res := <-ch:
			s.leave(key, f)
			out := res.Val.(outcome)
			if out.abandoned && ctx.Err() == nil {
				s.logger.Debug("Shared translation was abandoned by its callers, retrying")
				continue
			}
			return out, res.Shared, nil
		}
	}
}

// Translate returns snapshot's content in every language of targets.
//
// Languages that fail individually carry an error marker and do not make
// Translate fail; see Result.Err. When the engine invocation itself fails the
// error is a *TranslationError whose Partial holds the cached languages and
// the markers, and the same result is returned as the first value.
//
// Concurrent calls for the same content and languages share one engine
// invocation. A caller's deadline bounds how long it waits; the invocation is
// cancelled only once every caller sharing it has gone.
func (s *Service) Translate(ctx context.Context, snapshot metadata.Snapshot, targets []string) (Result, error) {
	requested, err := langset.Parse(targets...)
	if err != nil {
		return Result{}, NewErrorWithCause(ErrValidation, "invalid target language", err)
	}

	source := metadata.SourceLanguage(snapshot, s.defaultSource, s.detectSource)
	content := metadata.Normalize(snapshot)
	pending := requested.Without(source)

	ctx, span := telemetry.Tracer().Start(ctx, "service.translate")
	defer span.End()
	span.SetAttributes(
		attribute.String("translate.source", source),
		attribute.StringSlice("translate.targets", pending.Codes()),
	)

	base := Result{Source: source, Languages: make(map[string]metadata.Translation, requested.Len())}
	if requested.Contains(source) {
		base.Languages[source] = metadata.Translation{Content: content}
	}
	if pending.IsEmpty() {
		return base, nil
	}
	if !content.Translatable() {
		// every field is empty, so each translation is the content itself
		for _, lang := range pending.Codes() {
			base.Languages[lang] = metadata.Translation{Content: content}
		}
		return base, nil
	}

	keyer, err := cachekey.NewKeyer(content, source)
	if err != nil {
		return Result{}, NewErrorWithCause(ErrUnknown, "compute cache key", err)
	}
	key := keyer.Key(pending)

	out, shared, err := s.share(ctx, key, func(ctx context.Context) outcome {
		return s.resolve(ctx, keyer, content, source, pending)
	})
	if err != nil {
		terr := NewErrorWithCause(ErrNetwork, "request deadline reached while waiting for translation", err)
		span.SetStatus(codes.Error, terr.Error())
		return Result{}, terr
	}
	if shared {
		s.logger.Debug("Joined in-flight translation for [%s]", pending)
	}

	result := out.result.clone()
	maps.Copy(result.Languages, base.Languages)
	span.SetAttributes(
		attribute.Int("translate.cached", len(result.Cached)),
		attribute.Int("translate.translated", len(result.Translated)),
	)

	if out.err != nil {
		terr := *out.err
		terr.Context = maps.Clone(out.err.Context)
		terr.Partial = &result
		span.RecordError(&terr)
		span.SetStatus(codes.Error, terr.Error())
		return result, &terr
	}
	return result, nil
}

// resolve runs the lookup, subset resolution, engine batch and publish for
// one target set. It never returns a Go error; batch failures travel in the
// outcome so coalesced callers all see them.
func (s *Service) resolve(
	ctx context.Context,
	keyer *cachekey.Keyer,
	content metadata.Content,
	source string,
	targets langset.Set,
) outcome {
	fullKey := keyer.Key(targets)
	if entry, ok := s.lookup(ctx, fullKey); ok {
		s.logger.Debug("Cache hit for [%s]", targets)
		languages := pick(entry.Result, targets)
		// rewritten with its original timestamp, so the expiry does not move
		s.publish(ctx, fullKey, cache.Entry{Result: languages, Languages: targets, CreatedAt: entry.CreatedAt})
		return outcome{result: Result{
			Source:    source,
			Languages: languages,
			Cached:    targets.Codes(),
		}}
	}

	accumulated := s.resolveSubsets(ctx, keyer, targets)
	cached := langset.New(mapKeys(accumulated)...)
	missing := targets.Minus(cached)

	if missing.IsEmpty() {
		s.logger.Info("Assembled [%s] from cached subsets", targets)
		s.publish(ctx, fullKey, cache.Entry{Result: accumulated, Languages: targets})
		return outcome{result: Result{Source: source, Languages: accumulated, Cached: cached.Codes()}}
	}

	s.logger.Info("Translating [%s] (cached: [%s])", missing, cached)
	fresh, err := s.executor.Execute(ctx, content, source, missing)
	for lang, tr := range fresh {
		if _, exists := accumulated[lang]; !exists && missing.Contains(lang) {
			accumulated[lang] = tr
		}
	}
	for _, lang := range missing.Codes() {
		if _, exists := accumulated[lang]; !exists {
			accumulated[lang] = metadata.Failed("engine returned no result for " + lang)
		}
	}

	result := Result{
		Source:     source,
		Languages:  accumulated,
		Cached:     cached.Codes(),
		Translated: missing.Codes(),
	}
	if err != nil {
		return outcome{result: result, err: s.batchError(err, source, missing)}
	}

	succeeded := make([]string, 0, len(accumulated))
	for lang, tr := range accumulated {
		if !tr.Failed() {
			succeeded = append(succeeded, lang)
		}
	}
	switch ok := langset.New(succeeded...); {
	case ok.Equal(targets):
		s.publish(ctx, fullKey, cache.Entry{Result: accumulated, Languages: targets})
	case !ok.IsEmpty():
		// failed languages stay uncached so the next request retries them
		s.publish(ctx, keyer.Key(ok), cache.Entry{Result: pick(accumulated, ok), Languages: ok})
	}
	return outcome{result: result}
}

// resolveSubsets merges every cached proper subset of targets. The first
// entry found for a language wins.
func (s *Service) resolveSubsets(ctx context.Context, keyer *cachekey.Keyer, targets langset.Set) map[string]metadata.Translation {
	accumulated := make(map[string]metadata.Translation, targets.Len())
	if targets.Len() > langset.MaxSubsetEnumeration {
		s.logger.Warn("Skipping subset lookup for %d languages (limit %d)", targets.Len(), langset.MaxSubsetEnumeration)
		return accumulated
	}
	for subset := range targets.ProperSubsets() {
		if len(accumulated) == targets.Len() || ctx.Err() != nil {
			break
		}
		entry, ok := s.lookup(ctx, keyer.Key(subset))
		if !ok {
			continue
		}
		for lang, tr := range entry.Result {
			if _, exists := accumulated[lang]; exists || tr.Failed() || !targets.Contains(lang) {
				continue
			}
			accumulated[lang] = tr
		}
	}
	return accumulated
}

// lookup treats store errors as misses; the store is never a reason to fail a
// translation.
func (s *Service) lookup(ctx context.Context, key string) (cache.Entry, bool) {
	entry, ok, err := s.store.Get(ctx, key)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("Cache lookup failed, treating as miss: %v", err)
		}
		return cache.Entry{}, false
	}
	return entry, ok
}

func (s *Service) publish(ctx context.Context, key string, entry cache.Entry) {
	if err := s.store.Set(ctx, key, entry, s.ttl); err != nil {
		s.logger.Warn("Failed to cache [%s]: %v", entry.Languages, err)
		return
	}
	s.logger.Debug("Cached [%s] for %s", entry.Languages, s.ttl)
}

func (s *Service) batchError(err error, source string, missing langset.Set) *TranslationError {
	var engErr *engine.EngineError
	if !errors.As(err, &engErr) {
		engErr = engine.Classify(-1, "", err)
	}
	terr := NewErrorWithCause(fromFailure(engErr.Kind), "translation engine failed", err).
		WithContext("source", source).
		WithContext("languages", missing.String())
	LogError(terr)
	return terr
}

// CacheStats reports the number of live entries and the serving backend.
func (s *Service) CacheStats(ctx context.Context) (cache.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return cache.Stats{}, NewErrorWithCause(ErrStoreUnavailable, "read cache stats", err)
	}
	return stats, nil
}

// ClearCache removes every entry of this service's namespace.
func (s *Service) ClearCache(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return NewErrorWithCause(ErrStoreUnavailable, "clear cache", err)
	}
	s.logger.Info("Translation cache cleared")
	return nil
}

func pick(result map[string]metadata.Translation, languages langset.Set) map[string]metadata.Translation {
	ret := make(map[string]metadata.Translation, languages.Len())
	for _, lang := range languages.Codes() {
		if tr, ok := result[lang]; ok {
			ret[lang] = tr
		}
	}
	return ret
}

func mapKeys(m map[string]metadata.Translation) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
