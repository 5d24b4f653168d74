package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache stores embedding vectors keyed by model and text. A miss is reported
// as ok=false, never as an error; errors are reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) (vector []float32, ok bool, err error)
	Set(ctx context.Context, key string, vector []float32) error
}

// CacheKey derives the cache key for (model, text). The model name is mixed
// in so switching models never serves stale vectors, and the NUL separator
// keeps (model, text) pairs unambiguous.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// LocalCache is an in-process LRU embedding cache.
type LocalCache struct {
	cache *lru.Cache[string, []float32]
}

// NewLocalCache creates an LRU cache holding up to size entries
// (default 1024 when size is not positive).
func NewLocalCache(size int) (*LocalCache, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &LocalCache{cache: cache}, nil
}

var _ Cache = (*LocalCache)(nil)

func (c *LocalCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	vector, ok := c.cache.Get(key)
	return vector, ok, nil
}

func (c *LocalCache) Set(_ context.Context, key string, vector []float32) error {
	c.cache.Add(key, vector)
	return nil
}
