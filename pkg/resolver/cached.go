package resolver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/indigoray/civitai-downloader/pkg/cache"
	"github.com/indigoray/civitai-downloader/pkg/logging"
)

// CachedResolver decorates a resolver with a Redis-backed cache. Cache
// failures degrade to the inner resolver, never to a resolution failure.
type CachedResolver struct {
	inner  Resolver
	kind   string
	cache  *cache.Manager
	logger zerolog.Logger
}

// NewCachedResolver wraps inner with the cache. kind namespaces the cache
// keys (KindUser or KindCollection).
func NewCachedResolver(inner Resolver, kind string, manager *cache.Manager) *CachedResolver {
	return &CachedResolver{
		inner:  inner,
		kind:   kind,
		cache:  manager,
		logger: logging.NewLogger("resolver-cache"),
	}
}

// Resolve returns the cached unit when present, otherwise resolves and
// caches the result.
func (r *CachedResolver) Resolve(ctx context.Context, identifier string) (Unit, error) {
	key := cache.Key{Kind: r.kind, Identifier: identifier}

	entry, err := r.cache.Get(ctx, key)
	if err == nil {
		var unit Unit
		if uerr := json.Unmarshal(entry.Data, &unit); uerr == nil {
			r.logger.Debug().Str("identifier", identifier).Msg("Resolved from cache")
			return unit, nil
		}
		// Corrupted payload, fall through to a fresh resolution.
		_ = r.cache.Delete(ctx, key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn().Err(err).Str("identifier", identifier).Msg("Cache lookup failed")
	}

	unit, err := r.inner.Resolve(ctx, identifier)
	if err != nil {
		return Unit{}, err
	}

	if data, merr := json.Marshal(unit); merr == nil {
		if serr := r.cache.Set(ctx, key, cache.NewEntry(data)); serr != nil {
			r.logger.Warn().Err(serr).Str("identifier", identifier).Msg("Cache store failed")
		}
	}

	return unit, nil
}
