package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CachedProvider wraps a Provider with a cache chain and a rate limiter.
// Caches are consulted in order; the first hit wins and is written back to
// every cache in front of it. Only actual API calls consume rate tokens.
type CachedProvider struct {
	provider Provider
	caches   []Cache
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewCachedProvider builds the caching layer. caches are ordered fastest
// first (local LRU, then Redis). limiter may be nil for unlimited calls.
func NewCachedProvider(provider Provider, caches []Cache, limiter *rate.Limiter, logger *zap.Logger) *CachedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{provider: provider, caches: caches, limiter: limiter, logger: logger}
}

var _ Provider = (*CachedProvider)(nil)

// Model returns the underlying provider's model name.
func (p *CachedProvider) Model() string {
	return p.provider.Model()
}

// Embed returns the embedding for text, serving from cache when possible.
// Cache failures are logged and treated as misses; they never fail the call.
func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(p.provider.Model(), text)

	for i, cache := range p.caches {
		vector, ok, err := cache.Get(ctx, key)
		if err != nil {
			p.logger.Warn("embedding cache get failed", zap.Int("cache", i), zap.Error(err))
			continue
		}
		if ok {
			p.backfill(ctx, key, vector, i)
			return vector, nil
		}
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedding: rate limiter wait: %w", err)
		}
	}

	vector, err := p.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.backfill(ctx, key, vector, len(p.caches))
	return vector, nil
}

// backfill writes the vector into every cache in front of the level that
// produced it.
func (p *CachedProvider) backfill(ctx context.Context, key string, vector []float32, level int) {
	for i := 0; i < level && i < len(p.caches); i++ {
		if err := p.caches[i].Set(ctx, key, vector); err != nil {
			p.logger.Warn("embedding cache set failed", zap.Int("cache", i), zap.Error(err))
		}
	}
}
